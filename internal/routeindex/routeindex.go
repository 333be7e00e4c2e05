// Package routeindex builds and queries the fixed-size hash tables used to
// resolve an incoming request to a page, API endpoint, layout, or named
// query/transform/script. Hashing is FNV-1a with plain uint32 wraparound;
// tables use fixed 64-bucket separate chaining rather than growing, which
// is plenty at configuration scale (tens to low hundreds of routes).
package routeindex

import "github.com/williamcotton/webdsl/internal/ast"

// bucketCount is the fixed table size; bucketMask selects the low bits of
// the hash as the bucket index (bucketCount is a power of two).
const (
	bucketCount = 64
	bucketMask  = bucketCount - 1

	// MaxRouteParams bounds how many ":name" segments a single route
	// pattern may bind.
	MaxRouteParams = 8
)

// fnv1a hashes s with deliberate uint32 overflow wraparound, matching the
// source's FNV-1a loop exactly (no bounds/overflow checks).
func fnv1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

type pageEntry struct {
	route string
	page  *ast.Page
	next  *pageEntry
}

type layoutEntry struct {
	id     string
	layout *ast.Layout
	next   *layoutEntry
}

type apiEntry struct {
	route, method string
	endpoint      *ast.ApiEndpoint
	next          *apiEntry
}

type namedEntry[T any] struct {
	name string
	val  T
	next *namedEntry[T]
}

// Index is the built route table for one Site. It is built once at load
// time and is read-only afterward, so concurrent lookups are safe.
type Index struct {
	pages      [bucketCount]*pageEntry
	layouts    [bucketCount]*layoutEntry
	apis       [bucketCount]*apiEntry
	queries    [bucketCount]*namedEntry[*ast.NamedQuery]
	transforms [bucketCount]*namedEntry[*ast.NamedTransform]
	scripts    [bucketCount]*namedEntry[*ast.NamedScript]
}

// Build constructs an Index from a parsed Site. Later declarations of a
// duplicate key displace earlier ones at lookup time (inserted at the head
// of its bucket's chain, so the most-recently-built entry matches first).
func Build(site *ast.Site) *Index {
	idx := &Index{}

	for _, p := range site.Pages {
		h := fnv1a(p.Route) & bucketMask
		idx.pages[h] = &pageEntry{route: p.Route, page: p, next: idx.pages[h]}
	}
	for _, l := range site.Layouts {
		h := fnv1a(l.ID) & bucketMask
		idx.layouts[h] = &layoutEntry{id: l.ID, layout: l, next: idx.layouts[h]}
	}
	for _, a := range site.APIs {
		h := (fnv1a(a.Route) ^ fnv1a(a.Method)) & bucketMask
		idx.apis[h] = &apiEntry{route: a.Route, method: a.Method, endpoint: a, next: idx.apis[h]}
	}
	for _, q := range site.Queries {
		h := fnv1a(q.Name) & bucketMask
		idx.queries[h] = &namedEntry[*ast.NamedQuery]{name: q.Name, val: q, next: idx.queries[h]}
	}
	for _, tr := range site.Transforms {
		h := fnv1a(tr.Name) & bucketMask
		idx.transforms[h] = &namedEntry[*ast.NamedTransform]{name: tr.Name, val: tr, next: idx.transforms[h]}
	}
	for _, s := range site.Scripts {
		h := fnv1a(s.Name) & bucketMask
		idx.scripts[h] = &namedEntry[*ast.NamedScript]{name: s.Name, val: s, next: idx.scripts[h]}
	}

	return idx
}

// FindPageExact looks up a page by an exact route-pattern string match
// (no ":name" expansion).
func (idx *Index) FindPageExact(route string) (*ast.Page, bool) {
	for e := idx.pages[fnv1a(route)&bucketMask]; e != nil; e = e.next {
		if e.route == route {
			return e.page, true
		}
	}
	return nil, false
}

// FindLayout looks up a layout by identifier.
func (idx *Index) FindLayout(id string) (*ast.Layout, bool) {
	for e := idx.layouts[fnv1a(id)&bucketMask]; e != nil; e = e.next {
		if e.id == id {
			return e.layout, true
		}
	}
	return nil, false
}

// FindAPIExact looks up an API endpoint by exact (route, method).
func (idx *Index) FindAPIExact(route, method string) (*ast.ApiEndpoint, bool) {
	h := (fnv1a(route) ^ fnv1a(method)) & bucketMask
	for e := idx.apis[h]; e != nil; e = e.next {
		if e.route == route && e.method == method {
			return e.endpoint, true
		}
	}
	return nil, false
}

// FindQuery looks up a named query.
func (idx *Index) FindQuery(name string) (*ast.NamedQuery, bool) {
	for e := idx.queries[fnv1a(name)&bucketMask]; e != nil; e = e.next {
		if e.name == name {
			return e.val, true
		}
	}
	return nil, false
}

// FindTransform looks up a named transform.
func (idx *Index) FindTransform(name string) (*ast.NamedTransform, bool) {
	for e := idx.transforms[fnv1a(name)&bucketMask]; e != nil; e = e.next {
		if e.name == name {
			return e.val, true
		}
	}
	return nil, false
}

// FindScript looks up a named script.
func (idx *Index) FindScript(name string) (*ast.NamedScript, bool) {
	for e := idx.scripts[fnv1a(name)&bucketMask]; e != nil; e = e.next {
		if e.name == name {
			return e.val, true
		}
	}
	return nil, false
}

// allPages and allAPIs support the pattern-matching fallback lookups below,
// which must walk every distinct route pattern since a segment template
// like "/users/:id" cannot be found by exact hash lookup on a concrete URL.
func (idx *Index) allPages() []*ast.Page {
	var out []*ast.Page
	seen := map[*ast.Page]bool{}
	for _, bucket := range idx.pages {
		for e := bucket; e != nil; e = e.next {
			if !seen[e.page] {
				seen[e.page] = true
				out = append(out, e.page)
			}
		}
	}
	return out
}

func (idx *Index) allAPIs() []*ast.ApiEndpoint {
	var out []*ast.ApiEndpoint
	seen := map[*ast.ApiEndpoint]bool{}
	for _, bucket := range idx.apis {
		for e := bucket; e != nil; e = e.next {
			if !seen[e.endpoint] {
				seen[e.endpoint] = true
				out = append(out, e.endpoint)
			}
		}
	}
	return out
}

// Param is one bound ":name" route-parameter value.
type Param struct {
	Name  string
	Value string
}

// MatchPattern reports whether pattern matches url segment-for-segment,
// binding ":name" segments to their corresponding URL text. It returns
// false (with no params) on any length or literal mismatch, and also when
// the pattern would bind more than MaxRouteParams parameters (the fixed
// parameter array overflows and the match fails).
func MatchPattern(pattern, url string) ([]Param, bool) {
	var params []Param
	pi, ui := 0, 0
	for pi < len(pattern) && ui < len(url) {
		if pattern[pi] == ':' {
			pi++
			nameStart := pi
			for pi < len(pattern) && pattern[pi] != '/' {
				pi++
			}
			name := pattern[nameStart:pi]

			valueStart := ui
			for ui < len(url) && url[ui] != '/' {
				ui++
			}
			value := url[valueStart:ui]

			if len(params) == MaxRouteParams {
				return nil, false
			}
			params = append(params, Param{Name: name, Value: value})
			continue
		}
		if pattern[pi] != url[ui] {
			return nil, false
		}
		pi++
		ui++
	}
	if pi != len(pattern) || ui != len(url) {
		return nil, false
	}
	return params, true
}

// FindPage resolves url to a page: first by exact string match, then by
// scanning every declared pattern for a segment-wise match.
func (idx *Index) FindPage(url string) (*ast.Page, []Param, bool) {
	if p, ok := idx.FindPageExact(url); ok {
		return p, nil, true
	}
	for _, p := range idx.allPages() {
		if params, ok := MatchPattern(p.Route, url); ok {
			return p, params, true
		}
	}
	return nil, nil, false
}

// FindAPI resolves (url, method) the same way as FindPage.
func (idx *Index) FindAPI(url, method string) (*ast.ApiEndpoint, []Param, bool) {
	if a, ok := idx.FindAPIExact(url, method); ok {
		return a, nil, true
	}
	for _, a := range idx.allAPIs() {
		if a.Method != method {
			continue
		}
		if params, ok := MatchPattern(a.Route, url); ok {
			return a, params, true
		}
	}
	return nil, nil, false
}
