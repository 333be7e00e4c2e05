package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/williamcotton/webdsl/internal/value"
)

func TestSite_PreservesDeclarationOrder(t *testing.T) {
	site := &Site{
		Pages: []*Page{
			{ID: "first", Route: "/a"},
			{ID: "second", Route: "/b"},
		},
	}

	assert.Equal(t, "first", site.Pages[0].ID)
	assert.Equal(t, "second", site.Pages[1].ID)
}

func TestPipelineStep_TypeString(t *testing.T) {
	assert.Equal(t, "transform", StepTransform.String())
	assert.Equal(t, "dynamic-sql", StepDynamicSQL.String())
}

func TestStyleProp_RawCSSIsADistinctVariant(t *testing.T) {
	p := &StyleProp{RawCSS: "color: red;"}
	assert.Empty(t, p.Property)
	assert.Empty(t, p.Value)
	assert.Equal(t, "color: red;", p.RawCSS)
}

func TestGithubAuth_ValuesResolve(t *testing.T) {
	auth := &GithubAuth{
		ClientID:     value.NewString("abc"),
		ClientSecret: value.NewEnvVar("GITHUB_CLIENT_SECRET"),
	}
	id, ok := auth.ClientID.ResolveString()
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}
