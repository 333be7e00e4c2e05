package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/cache"
	"github.com/williamcotton/webdsl/internal/site"
)

func newTestDispatcher(t *testing.T, s *ast.Site) *Dispatcher {
	t.Helper()
	rt, err := site.FromAST(s, site.Options{CacheConfig: cache.Config{Type: "memory"}, SkipDatabase: true})
	require.NoError(t, err)
	return New(rt, nil, nil)
}

func TestDispatcher_RouteParameterExtraction(t *testing.T) {
	s := &ast.Site{
		APIs: []*ast.ApiEndpoint{
			{
				Route:  "/api/notes/:id/comments/:comment_id",
				Method: "GET",
				Pipeline: []*ast.PipelineStep{
					{Type: ast.StepTransform, Code: `{ params: .params, url: .url, method: .method }`},
				},
			},
		},
	}
	d := newTestDispatcher(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/notes/123/comments/456", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	params := out["params"].(map[string]any)
	assert.Equal(t, "123", params["id"])
	assert.Equal(t, "456", params["comment_id"])
	assert.Equal(t, "/api/notes/123/comments/456", out["url"])
	assert.Equal(t, "GET", out["method"])
}

func TestDispatcher_NotFound(t *testing.T) {
	d := newTestDispatcher(t, &ast.Site{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404 Not Found")
}

func TestDispatcher_MethodNotAllowed(t *testing.T) {
	s := &ast.Site{
		APIs: []*ast.ApiEndpoint{
			{Route: "/api/only-get", Method: "GET"},
		},
	}
	d := newTestDispatcher(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/only-get", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Method not allowed", out["error"])
}

func TestDispatcher_JSONValidationFailure(t *testing.T) {
	s := &ast.Site{
		APIs: []*ast.ApiEndpoint{
			{
				Route:  "/api/test/json",
				Method: "POST",
				Fields: []*ast.ApiField{
					{Name: "name", Type: ast.FieldString, Required: true, Length: ast.LengthRange{Min: 2, Max: 50, Set: true}},
					{Name: "age", Type: ast.FieldNumber, Required: true},
					{Name: "email", Type: ast.FieldString, Required: true, Format: "email"},
				},
			},
		},
	}
	d := newTestDispatcher(t, s)

	body := `{"name":"","age":"not a number","email":"not-an-email"}`
	req := httptest.NewRequest(http.MethodPost, "/api/test/json", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	errs := out["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "age")
	assert.Contains(t, errs, "email")
}

func TestDispatcher_PipelineWithTransformEndToEnd(t *testing.T) {
	s := &ast.Site{
		APIs: []*ast.ApiEndpoint{
			{
				Route:  "/api/test/pipeline",
				Method: "GET",
				Pipeline: []*ast.PipelineStep{
					{Type: ast.StepScript, Code: `request["transformed"] = true
return request`},
					{Type: ast.StepTransform, Code: `{ result: { transformed: .transformed } }`},
				},
			},
		},
	}
	d := newTestDispatcher(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/test/pipeline", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	result := out["result"].(map[string]any)
	assert.Equal(t, true, result["transformed"])
}

func TestDispatcher_PageWithReferenceDataAndErrorSuccessTemplates(t *testing.T) {
	s := &ast.Site{
		Pages: []*ast.Page{
			{
				Route:  "/test/form-with-ref",
				Method: "POST",
				Fields: []*ast.ApiField{
					{Name: "message", Type: ast.FieldString, Required: true, Length: ast.LengthRange{Min: 5, Max: 50, Set: true}},
					{Name: "category", Type: ast.FieldString, Required: true},
				},
				ReferenceData: []*ast.PipelineStep{
					{Type: ast.StepTransform, Code: `{ categories: [{id: "1", name: "Category 1"}, {id: "2", name: "Category 2"}, {id: "3", name: "Category 3"}] }`},
				},
				ErrorBlock: &ast.ResponseBlock{
					Template: &ast.Template{Kind: ast.TemplateMustache, Content: `{{#errors}}{{message}}{{/errors}}{{#categories}}{{name}}{{/categories}}<input value="{{values.message}}">`},
				},
				SuccessBlock: &ast.ResponseBlock{
					Template: &ast.Template{Kind: ast.TemplateMustache, Content: `Message: {{message}} Category: {{category}}`},
				},
				Pipeline: []*ast.PipelineStep{
					{Type: ast.StepTransform, Code: `{ message: .request.body.message, category: .request.body.category }`},
				},
			},
		},
	}
	d := newTestDispatcher(t, s)

	form := strings.NewReader("message=Hi&category=1")
	req := httptest.NewRequest(http.MethodPost, "/test/form-with-ref", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	bodyStr := rec.Body.String()
	assert.Contains(t, bodyStr, "Category 1")
	assert.Contains(t, bodyStr, "Category 2")
	assert.Contains(t, bodyStr, "Category 3")
	assert.Contains(t, bodyStr, `value="Hi"`)

	form2 := strings.NewReader("message=Hello+World&category=2")
	req2 := httptest.NewRequest(http.MethodPost, "/test/form-with-ref", form2)
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, req2)

	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "Message: Hello World Category: 2")
}

func TestDispatcher_RedirectOnSuccessfulPageSubmit(t *testing.T) {
	s := &ast.Site{
		Pages: []*ast.Page{
			{
				Route:    "/test/redirect",
				Method:   "POST",
				Redirect: "/dest",
				SuccessBlock: &ast.ResponseBlock{
					Redirect: "/dest",
				},
			},
		},
	}
	d := newTestDispatcher(t, s)

	req := httptest.NewRequest(http.MethodPost, "/test/redirect", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dest", rec.Header().Get("Location"))
}
