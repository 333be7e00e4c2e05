package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/cache"
	"github.com/williamcotton/webdsl/internal/value"
)

func TestFromAST_WiresIndexSessionAndSteps(t *testing.T) {
	s := &ast.Site{
		Name: "test-site",
		Pages: []*ast.Page{
			{Route: "/", Method: "GET"},
		},
		APIs: []*ast.ApiEndpoint{
			{Route: "/api/ping", Method: "GET"},
		},
	}

	rt, err := FromAST(s, Options{CacheConfig: cache.Config{Type: "memory"}, SkipDatabase: true})
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Index)
	require.NotNil(t, rt.Cache)
	require.NotNil(t, rt.Session)
	require.NotNil(t, rt.Steps)
	assert.Nil(t, rt.DB)

	_, _, ok := rt.Index.FindAPI("/api/ping", "GET")
	assert.True(t, ok)

	_, _, ok = rt.Index.FindPage("/")
	assert.True(t, ok)
}

func TestFromAST_SkipDatabaseLeavesDBNil(t *testing.T) {
	s := &ast.Site{DatabaseURL: value.NewString("postgres://ignored")}

	rt, err := FromAST(s, Options{CacheConfig: cache.Config{Type: "memory"}, SkipDatabase: true})
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.DB)
}

func TestFromAST_DefaultsToMemoryCacheWhenUnset(t *testing.T) {
	rt, err := FromAST(&ast.Site{}, Options{SkipDatabase: true})
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Cache)
}

func TestClose_IdempotentOnEmptyRuntime(t *testing.T) {
	rt, err := FromAST(&ast.Site{}, Options{CacheConfig: cache.Config{Type: "memory"}, SkipDatabase: true})
	require.NoError(t, err)
	assert.NoError(t, rt.Close())
}
