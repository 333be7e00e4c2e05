// Package steps implements the four pipeline-step executors: transform,
// script, static SQL, and dynamic SQL. Each is compiled down to a
// pipeline.StepFunc closure bound to a *Runtime, a long-lived runtime
// context that owns every cache the executors share, so there are no
// package-level globals.
package steps

import (
	"context"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/dbpool"
	"github.com/williamcotton/webdsl/internal/pipeline"
	"github.com/williamcotton/webdsl/internal/routeindex"
	"github.com/williamcotton/webdsl/internal/scriptvm"
	"github.com/williamcotton/webdsl/internal/sessionstore"
	"github.com/williamcotton/webdsl/internal/transform"
	"github.com/williamcotton/webdsl/pkg/metrics"
)

// Runtime owns every cache and resource pool the step executors need:
// the route index (for named-reference resolution), the database pool,
// the session store (backing getStore/setStore), and a compiled-transform
// cache keyed by a hash of the source text. All fields are safe for
// concurrent use by many in-flight requests.
type Runtime struct {
	Index   *routeindex.Index
	DB      *dbpool.Pool
	Session *sessionstore.Store

	// Scripts, when non-nil, holds the script modules discovered at
	// startup; they are installed into every script step's namespace.
	Scripts *scriptvm.Modules

	// Metrics, when non-nil, records per-step execution durations (by
	// step kind) and outbound fetch calls.
	Metrics *metrics.Registry

	transformMu    sync.Mutex
	transformCache map[string]*transform.Program

	httpClient *http.Client
}

// NewRuntime builds a Runtime. db may be nil (e.g. a site with no
// `database` block); SQL steps then return a nil result (which stops the
// pipeline) rather than panicking.
func NewRuntime(idx *routeindex.Index, db *dbpool.Pool, session *sessionstore.Store) *Runtime {
	return &Runtime{
		Index:          idx,
		DB:             db,
		Session:        session,
		transformCache: map[string]*transform.Program{},
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

func errOut(msg string) pipeline.JSON { return pipeline.JSON{"error": msg} }

// compileTransform returns a cached *transform.Program for source,
// compiling it only on the first request to observe this exact text.
func (rt *Runtime) compileTransform(source string) (*transform.Program, error) {
	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])

	rt.transformMu.Lock()
	if p, ok := rt.transformCache[key]; ok {
		rt.transformMu.Unlock()
		return p, nil
	}
	rt.transformMu.Unlock()

	p, err := transform.Compile(source)
	if err != nil {
		return nil, err
	}

	rt.transformMu.Lock()
	rt.transformCache[key] = p
	rt.transformMu.Unlock()
	return p, nil
}

// Transform builds the StepFunc for a transform pipeline step, resolving
// a named transform through the route index when step.Name is set.
func (rt *Runtime) Transform(step *ast.PipelineStep) pipeline.StepFunc {
	return func(ctx context.Context, input, requestContext pipeline.JSON) (pipeline.JSON, error) {
		source := step.Code
		if step.Name != "" {
			nt, ok := rt.Index.FindTransform(step.Name)
			if !ok {
				return errOut("Transform not found"), nil
			}
			source = nt.Code
		}

		program, err := rt.compileTransform(source)
		if err != nil {
			return errOut(err.Error()), nil
		}

		out, err := program.Run(input)
		if err != nil {
			return errOut(err.Error()), nil
		}
		result, ok := out.(map[string]any)
		if !ok {
			return pipeline.JSON{"result": out}, nil
		}
		return result, nil
	}
}

// Script builds the StepFunc for a script pipeline step, resolving a
// named script through the route index when step.Name is set.
func (rt *Runtime) Script(step *ast.PipelineStep) pipeline.StepFunc {
	return func(ctx context.Context, input, requestContext pipeline.JSON) (pipeline.JSON, error) {
		source := step.Code
		if step.Name != "" {
			ns, ok := rt.Index.FindScript(step.Name)
			if !ok {
				return errOut("Script not found"), nil
			}
			source = ns.Code
		}

		globals := scriptvm.Globals{
			Request: requestContext,
			Query:   asJSON(requestContext["query"]),
			Body:    asJSON(requestContext["body"]),
			Headers: asJSON(requestContext["headers"]),
			Cookies: asJSON(requestContext["cookies"]),
			Params:  asJSON(requestContext["params"]),
		}

		sessionID, _ := requestContext["sessionId"].(string)
		lib := scriptvm.Library{
			Fetch:     rt.fetch,
			SQLQuery:  rt.sqlQueryDynamic,
			FindQuery: rt.findQuery,
			GetStore: func(key string) (any, bool) {
				if rt.Session == nil || sessionID == "" {
					return nil, false
				}
				return rt.Session.GetKey(ctx, sessionID, key)
			},
			SetStore: func(key string, value any) bool {
				if rt.Session == nil || sessionID == "" {
					return false
				}
				return rt.Session.SetKey(ctx, sessionID, key, value)
			},
		}

		var modules map[string]string
		if rt.Scripts != nil {
			// a stale module source is preferable to failing the step,
			// so a rescan error keeps whatever loaded last time
			_ = rt.Scripts.Load()
			modules = rt.Scripts.Sources()
		}

		result, err := scriptvm.Run(ctx, source, globals, lib, modules)
		if err != nil {
			return errOut(err.Error()), nil
		}

		merged := make(pipeline.JSON, len(input)+len(result))
		for k, v := range input {
			merged[k] = v
		}
		for k, v := range result {
			merged[k] = v
		}
		return merged, nil
	}
}

func asJSON(v any) pipeline.JSON {
	if m, ok := v.(pipeline.JSON); ok {
		return m
	}
	return pipeline.JSON{}
}

func (rt *Runtime) findQuery(name string) (string, bool) {
	q, ok := rt.Index.FindQuery(name)
	if !ok {
		return "", false
	}
	return q.SQL, true
}

func (rt *Runtime) fetch(url string, opts pipeline.JSON) (pipeline.JSON, error) {
	method := "GET"
	var bodyReader io.Reader
	if opts != nil {
		if m, ok := opts["method"].(string); ok && m != "" {
			method = strings.ToUpper(m)
		}
		if b, ok := opts["body"]; ok {
			switch bv := b.(type) {
			case string:
				bodyReader = strings.NewReader(bv)
			default:
				enc, err := json.Marshal(bv)
				if err != nil {
					return nil, fmt.Errorf("fetch: encoding body: %w", err)
				}
				bodyReader = strings.NewReader(string(enc))
			}
		}
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if opts != nil {
		if h, ok := opts["headers"].(pipeline.JSON); ok {
			for k, v := range h {
				if s, ok := v.(string); ok {
					req.Header.Set(k, s)
				}
			}
		}
	}

	start := time.Now()
	resp, err := rt.httpClient.Do(req)
	if err != nil {
		if rt.Metrics != nil {
			rt.Metrics.Integration().RecordError("fetch", req.URL.Host, "request")
		}
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if rt.Metrics != nil {
		rt.Metrics.Integration().RecordCall("fetch", req.URL.Host, resp.StatusCode, time.Since(start))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading response: %w", err)
	}

	var parsedBody any
	if err := json.Unmarshal(raw, &parsedBody); err != nil {
		parsedBody = string(raw)
	}

	return pipeline.JSON{
		"status": resp.StatusCode,
		"ok":     resp.StatusCode >= 200 && resp.StatusCode < 300,
		"body":   parsedBody,
	}, nil
}

func (rt *Runtime) sqlQueryDynamic(sql string, params []any) (pipeline.JSON, error) {
	if rt.DB == nil {
		return nil, fmt.Errorf("sqlQuery: no database configured")
	}
	conn, err := rt.DB.Acquire(context.Background())
	if err != nil {
		return nil, err
	}
	defer rt.DB.Release(conn)

	rows, err := rt.DB.Query(conn, sql, toDriverValues(params))
	if err != nil {
		return nil, err
	}
	return pipeline.JSON{"rows": rowsToJSON(rows)}, nil
}

// StaticSQL builds the StepFunc for a static-sql pipeline step: either
// the step's inline SQL text or a named query's SQL resolved through the
// route index.
func (rt *Runtime) StaticSQL(step *ast.PipelineStep) pipeline.StepFunc {
	return func(ctx context.Context, input, requestContext pipeline.JSON) (pipeline.JSON, error) {
		sqlText := step.Code
		if step.Name != "" {
			q, ok := rt.Index.FindQuery(step.Name)
			if !ok {
				return errOut("Query not found"), nil
			}
			sqlText = q.SQL
		}
		return rt.runSQL(ctx, sqlText, extractParams(input), input)
	}
}

// DynamicSQL builds the StepFunc for a dynamic-sql pipeline step: the
// input object must itself supply `sql` (and optionally `params`).
func (rt *Runtime) DynamicSQL(step *ast.PipelineStep) pipeline.StepFunc {
	return func(ctx context.Context, input, requestContext pipeline.JSON) (pipeline.JSON, error) {
		sqlText, ok := input["sql"].(string)
		if !ok || sqlText == "" {
			return errOut("dynamic SQL step requires input.sql"), nil
		}
		return rt.runSQL(ctx, sqlText, extractParams(input), input)
	}
}

// extractParams pulls the SQL parameter vector out of the step input:
// input.params when it is an array, otherwise no parameters.
func extractParams(input pipeline.JSON) []any {
	if p, ok := input["params"].([]any); ok {
		return p
	}
	return nil
}

// stringifyParam converts one JSON value to the string form Postgres
// expects for a positional placeholder: a string is used as-is, an
// integer is rendered without a decimal point, null becomes the empty
// string, and any other JSON value is compactly serialized.
func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func toDriverValues(params []any) []driver.Value {
	out := make([]driver.Value, len(params))
	for i, p := range params {
		out[i] = stringifyParam(p)
	}
	return out
}

func rowsToJSON(rows []dbpool.Row) []pipeline.JSON {
	out := make([]pipeline.JSON, len(rows))
	for i, row := range rows {
		converted := make(pipeline.JSON, len(row))
		for k, v := range row {
			converted[k] = driverValueToJSON(v)
		}
		out[i] = converted
	}
	return out
}

func driverValueToJSON(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// runSQL executes sqlText against the stringified params and shapes the
// result as { "rows": [...] } merged with the step's input properties. A
// query failure returns (nil, nil): the SQL step returns null and the
// pipeline executor surfaces that as the overall failure.
func (rt *Runtime) runSQL(ctx context.Context, sqlText string, params []any, input pipeline.JSON) (pipeline.JSON, error) {
	if rt.DB == nil {
		return nil, nil
	}
	conn, err := rt.DB.Acquire(ctx)
	if err != nil {
		return nil, nil
	}
	defer rt.DB.Release(conn)

	rows, err := rt.DB.Query(conn, sqlText, toDriverValues(params))
	if err != nil {
		return nil, nil
	}

	result := make(pipeline.JSON, len(input)+1)
	for k, v := range input {
		result[k] = v
	}
	result["rows"] = rowsToJSON(rows)
	return result, nil
}

// Build compiles an *ast.PipelineStep into a pipeline.StepFunc of the
// correct kind, observing the step's execution duration under its kind
// when a metrics registry is configured.
func (rt *Runtime) Build(step *ast.PipelineStep) pipeline.StepFunc {
	var fn pipeline.StepFunc
	switch step.Type {
	case ast.StepTransform:
		fn = rt.Transform(step)
	case ast.StepScript:
		fn = rt.Script(step)
	case ast.StepStaticSQL:
		fn = rt.StaticSQL(step)
	case ast.StepDynamicSQL:
		fn = rt.DynamicSQL(step)
	default:
		fn = func(ctx context.Context, input, requestContext pipeline.JSON) (pipeline.JSON, error) {
			return errOut("unknown step type"), nil
		}
	}
	if rt.Metrics == nil {
		return fn
	}
	wf := rt.Metrics.Workflow()
	kind := step.Type.String()
	return func(ctx context.Context, input, requestContext pipeline.JSON) (pipeline.JSON, error) {
		start := time.Now()
		out, err := fn(ctx, input, requestContext)
		wf.RecordStep("pipeline", kind, time.Since(start))
		return out, err
	}
}

// BuildAll compiles an ordered list of *ast.PipelineStep into the
// []pipeline.StepFunc pipeline.Execute runs in order.
func (rt *Runtime) BuildAll(steps []*ast.PipelineStep) []pipeline.StepFunc {
	out := make([]pipeline.StepFunc, len(steps))
	for i, s := range steps {
		out[i] = rt.Build(s)
	}
	return out
}
