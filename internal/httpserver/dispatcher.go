// Package httpserver implements the request dispatcher: per-request
// context assembly, route resolution, reference-data/validation
// sequencing, pipeline execution, and response formation. The HTTP
// transport itself (connection accept, header parsing, response writing)
// is go-chi/chi, reduced here to a single catch-all handler that defers
// entirely to the hand-rolled route index rather than chi's own route
// tree. Chi supplies middleware (request id, real ip, recoverer,
// timeouts, CORS) and nothing else.
package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/auth"
	"github.com/williamcotton/webdsl/internal/pipeline"
	"github.com/williamcotton/webdsl/internal/render"
	"github.com/williamcotton/webdsl/internal/routeindex"
	"github.com/williamcotton/webdsl/internal/site"
	"github.com/williamcotton/webdsl/internal/validation"
	"github.com/williamcotton/webdsl/pkg/metrics"
)

// SessionCookieName is the cookie the dispatcher reads to resolve the
// current session for getStore/setStore and `user`/`isLoggedIn`. It is
// the same cookie internal/auth issues on login.
const SessionCookieName = auth.SessionCookieName

// Dispatcher resolves and serves one HTTP request at a time against a
// loaded site.Runtime. It holds no per-request state between calls; all
// per-request data lives in the JSON value threaded through ServeHTTP.
type Dispatcher struct {
	RT     *site.Runtime
	Logger *slog.Logger
	// Auth, when non-nil, handles the site's GitHub OAuth routes. It is
	// nil for sites with no `auth` block.
	Auth *auth.Authenticator
}

// New builds a Dispatcher over rt, defaulting to a discard logger when
// logger is nil. authenticator may be nil for sites with no auth block.
func New(rt *site.Runtime, logger *slog.Logger, authenticator *auth.Authenticator) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{RT: rt, Logger: logger, Auth: authenticator}
}

// Handler returns the http.Handler chi mounts as the catch-all route,
// wrapped in the CORS middleware API endpoints need.
func (d *Dispatcher) Handler() http.Handler {
	corsMW := cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	return corsMW(http.HandlerFunc(d.ServeHTTP))
}

// ServeHTTP resolves and serves a single request end to end: builtin
// routes first, then API endpoints, then pages, then 404.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path

	if d.serveBuiltin(w, r) {
		return
	}

	if api, params, ok := d.RT.Index.FindAPI(urlPath, r.Method); ok {
		d.serveAPI(w, r, api, params)
		return
	}
	if d.apiRouteExistsForOtherMethod(urlPath, r.Method) {
		writeJSON(w, http.StatusMethodNotAllowed, pipeline.JSON{"error": "Method not allowed"})
		return
	}

	if page, params, ok := d.RT.Index.FindPage(urlPath); ok && page.Method == r.Method {
		d.servePage(w, r, page, params)
		return
	}

	writeNotFound(w)
}

func (d *Dispatcher) apiRouteExistsForOtherMethod(urlPath, method string) bool {
	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		if m == method {
			continue
		}
		if _, _, ok := d.RT.Index.FindAPI(urlPath, m); ok {
			return true
		}
	}
	return false
}

// serveBuiltin handles the automatic routes that take priority over
// generic routing: the aggregated stylesheet and, when the site declares
// an `auth` block, the GitHub OAuth login/callback/logout routes.
func (d *Dispatcher) serveBuiltin(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Path == "/styles.css" {
		w.Header().Set("Content-Type", "text/css")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(render.Styles(d.RT.Site.Styles)))
		return true
	}
	if d.Auth != nil {
		switch r.URL.Path {
		case d.Auth.LoginPath():
			d.Auth.LoginHandler(w, r)
			return true
		case d.Auth.CallbackPath():
			d.Auth.CallbackHandler(w, r)
			return true
		case "/auth/logout":
			d.Auth.LogoutHandler(w, r)
			return true
		}
	}
	return false
}

func (d *Dispatcher) serveAPI(w http.ResponseWriter, r *http.Request, api *ast.ApiEndpoint, params []routeindex.Param) {
	ctx, body := d.buildRequestContext(r, params)

	if len(api.Fields) > 0 {
		errs, values := validation.ValidateFields(api.Fields, body)
		if errs != nil {
			writeJSON(w, http.StatusBadRequest, pipeline.JSON{"errors": errs, "values": values})
			return
		}
	}

	result := d.runPipeline(r, api.Route, api.Pipeline, ctx)
	if result == nil {
		writeJSON(w, http.StatusInternalServerError, pipeline.JSON{"error": "internal error"})
		return
	}
	if _, hasErr := result["error"]; hasErr {
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	if _, hasErrs := result["errors"]; hasErrs {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d *Dispatcher) servePage(w http.ResponseWriter, r *http.Request, page *ast.Page, params []routeindex.Param) {
	ctx, body := d.buildRequestContext(r, params)
	layout, _ := d.RT.Index.FindLayout(page.Layout)

	isFormSubmit := r.Method == http.MethodPost && len(page.Fields) > 0

	if isFormSubmit {
		refData := d.runPipeline(r, page.Route, page.ReferenceData, pipeline.JSON{"request": ctx})
		errs, values := validation.ValidateFields(page.Fields, body)
		if errs != nil {
			merged := mergeInto(refData, pipeline.JSON{
				"errors":  errs,
				"values":  values,
				"request": ctx,
			})
			d.renderPage(w, r, page, layout, page.ErrorBlock, merged)
			return
		}
	}

	result := d.runPipeline(r, page.Route, page.Pipeline, pipeline.JSON{"request": ctx})
	if result == nil {
		result = pipeline.JSON{"error": "internal error"}
	}
	merged := mergeInto(result, pipeline.JSON{"request": ctx})

	if _, hasErr := merged["error"]; hasErr {
		d.renderPage(w, r, page, layout, page.ErrorBlock, merged)
		return
	}
	if _, hasErrs := merged["errors"]; hasErrs {
		d.renderPage(w, r, page, layout, page.ErrorBlock, merged)
		return
	}
	d.renderPage(w, r, page, layout, page.SuccessBlock, merged)
}

// mergeInto shallow-merges base's keys underneath overlay's, with
// overlay winning on conflicts (overlay holds the fields the dispatcher
// itself controls, such as "request", "errors" and "values").
func mergeInto(base, overlay pipeline.JSON) pipeline.JSON {
	out := make(pipeline.JSON, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) renderPage(w http.ResponseWriter, r *http.Request, page *ast.Page, layout *ast.Layout, block *ast.ResponseBlock, data pipeline.JSON) {
	redirectTo, body, err := render.ResponseBlock(block, page, layout, data)
	if err != nil {
		d.Logger.ErrorContext(r.Context(), "render failed", "route", page.Route, "error", err)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<h1>500 Internal Server Error</h1>"))
		return
	}
	if redirectTo != "" {
		w.Header().Set("Location", redirectTo)
		w.WriteHeader(http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// runPipeline compiles steps fresh per call (pipeline.StepFunc closures
// are cheap; the expensive work they wrap, transform compilation and
// prepared statements, is cached inside steps.Runtime) and threads
// requestContext through them. An empty pipeline returns the seed object
// unchanged. route is the owning route pattern, used as the execution
// metric's label.
func (d *Dispatcher) runPipeline(r *http.Request, route string, astSteps []*ast.PipelineStep, seed pipeline.JSON) pipeline.JSON {
	if len(astSteps) == 0 {
		return seed
	}
	fns := d.RT.Steps.BuildAll(astSteps)
	start := time.Now()
	out, err := pipeline.Execute(r.Context(), fns, seed)
	d.recordPipeline(route, out, err, time.Since(start))
	if err != nil {
		d.Logger.ErrorContext(r.Context(), "pipeline execution failed", "error", err)
		return nil
	}
	return out
}

func (d *Dispatcher) recordPipeline(route string, out pipeline.JSON, err error, dur time.Duration) {
	if d.RT.Steps.Metrics == nil {
		return
	}
	status := metrics.WorkflowStatusSuccess
	if err != nil || out == nil {
		status = metrics.WorkflowStatusFailure
	} else if _, ok := out["error"]; ok {
		status = metrics.WorkflowStatusFailure
	} else if _, ok := out["errors"]; ok {
		status = metrics.WorkflowStatusFailure
	}
	d.RT.Steps.Metrics.Workflow().RecordExecution(route, status, dur)
}

// buildRequestContext assembles the JSON request-context document and
// returns the accumulated body alongside it for validation, which
// operates on the raw body rather than the full context.
func (d *Dispatcher) buildRequestContext(r *http.Request, params []routeindex.Param) (pipeline.JSON, pipeline.JSON) {
	query := pipeline.JSON{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	headers := pipeline.JSON{}
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}

	cookies := pipeline.JSON{}
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	body := d.readBody(r)

	ctx := pipeline.NewRequestContext(r.Method, r.URL.Path, query, headers, cookies, body)

	paramsJSON := pipeline.JSON{}
	for _, p := range params {
		paramsJSON[p.Name] = p.Value
	}
	ctx["params"] = paramsJSON

	if sessionID, err := r.Cookie(SessionCookieName); err == nil {
		ctx["sessionId"] = sessionID.Value
		if d.RT.Session != nil {
			if sess, ok := d.RT.Session.Get(r.Context(), sessionID.Value); ok {
				ctx["isLoggedIn"] = true
				if u, ok := sess["user"]; ok {
					ctx["user"] = u
				}
			}
		}
	}
	if _, ok := ctx["isLoggedIn"]; !ok {
		ctx["isLoggedIn"] = false
	}

	return ctx, body
}

// readBody drains and parses the request body: a streaming key/value
// parser for form-encoded bodies, raw-bytes-then-parse for
// application/json.
func (d *Dispatcher) readBody(r *http.Request) pipeline.JSON {
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		var body pipeline.JSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return pipeline.JSON{}
		}
		return body
	case strings.Contains(contentType, "application/x-www-form-urlencoded"), strings.Contains(contentType, "multipart/form-data"):
		if err := r.ParseForm(); err != nil {
			return pipeline.JSON{}
		}
		body := pipeline.JSON{}
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				body[k] = vs[0]
			}
		}
		return body
	default:
		return pipeline.JSON{}
	}
}

func writeJSON(w http.ResponseWriter, status int, v pipeline.JSON) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("<html><body><h1>404 Not Found</h1></body></html>"))
}
