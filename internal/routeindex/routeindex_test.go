package routeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamcotton/webdsl/internal/ast"
)

func TestFnv1a_MatchesKnownVector(t *testing.T) {
	// FNV-1a of the empty string is the offset basis.
	assert.Equal(t, uint32(2166136261), fnv1a(""))
}

func TestIndex_ExactLookups(t *testing.T) {
	site := &ast.Site{
		Pages:   []*ast.Page{{ID: "home", Route: "/"}},
		Layouts: []*ast.Layout{{ID: "main"}},
		APIs:    []*ast.ApiEndpoint{{Route: "/widgets", Method: "GET"}},
		Queries: []*ast.NamedQuery{{Name: "findWidgets"}},
	}
	idx := Build(site)

	p, ok := idx.FindPageExact("/")
	require.True(t, ok)
	assert.Equal(t, "home", p.ID)

	l, ok := idx.FindLayout("main")
	require.True(t, ok)
	assert.Equal(t, "main", l.ID)

	a, ok := idx.FindAPIExact("/widgets", "GET")
	require.True(t, ok)
	assert.Equal(t, "/widgets", a.Route)

	_, ok = idx.FindAPIExact("/widgets", "POST")
	assert.False(t, ok)

	q, ok := idx.FindQuery("findWidgets")
	require.True(t, ok)
	assert.Equal(t, "findWidgets", q.Name)
}

func TestIndex_LastRegisteredWinsOnDuplicateKey(t *testing.T) {
	first := &ast.Page{ID: "first", Route: "/dup"}
	second := &ast.Page{ID: "second", Route: "/dup"}
	idx := Build(&ast.Site{Pages: []*ast.Page{first, second}})

	p, ok := idx.FindPageExact("/dup")
	require.True(t, ok)
	assert.Equal(t, "second", p.ID)
}

func TestMatchPattern_BindsNamedSegments(t *testing.T) {
	params, ok := MatchPattern("/users/:id/posts/:postId", "/users/42/posts/7")
	require.True(t, ok)
	require.Len(t, params, 2)
	assert.Equal(t, Param{Name: "id", Value: "42"}, params[0])
	assert.Equal(t, Param{Name: "postId", Value: "7"}, params[1])
}

func TestMatchPattern_RejectsLiteralMismatch(t *testing.T) {
	_, ok := MatchPattern("/users/:id", "/accounts/42")
	assert.False(t, ok)
}

func TestMatchPattern_RejectsLengthMismatch(t *testing.T) {
	_, ok := MatchPattern("/users/:id", "/users/42/extra")
	assert.False(t, ok)
}

func TestMatchPattern_FailsPastParamCap(t *testing.T) {
	pattern := "/:a/:b/:c/:d/:e/:f/:g/:h"
	params, ok := MatchPattern(pattern, "/1/2/3/4/5/6/7/8")
	require.True(t, ok)
	assert.Len(t, params, MaxRouteParams)

	_, ok = MatchPattern(pattern+"/:i", "/1/2/3/4/5/6/7/8/9")
	assert.False(t, ok)
}

func TestIndex_FindPageFallsBackToPatternMatch(t *testing.T) {
	idx := Build(&ast.Site{Pages: []*ast.Page{{ID: "user", Route: "/users/:id"}}})

	page, params, ok := idx.FindPage("/users/99")
	require.True(t, ok)
	assert.Equal(t, "user", page.ID)
	require.Len(t, params, 1)
	assert.Equal(t, "99", params[0].Value)
}

func TestIndex_FindAPIRespectsMethod(t *testing.T) {
	idx := Build(&ast.Site{APIs: []*ast.ApiEndpoint{{Route: "/items/:id", Method: "DELETE"}}})

	_, _, ok := idx.FindAPI("/items/5", "GET")
	assert.False(t, ok)

	ep, params, ok := idx.FindAPI("/items/5", "DELETE")
	require.True(t, ok)
	assert.Equal(t, "/items/:id", ep.Route)
	assert.Equal(t, "5", params[0].Value)
}
