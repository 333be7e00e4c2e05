// Package scriptvm runs one embedded-script pipeline step per request
// using the Yaegi Go interpreter (github.com/traefik/yaegi). Script
// bodies are a restricted Go subset with the library surface
// (fetch/sqlQuery/findQuery/getStore/setStore) injected as Go symbols.
//
// Each script step gets a fresh *interp.Interpreter; interpreter states
// are never shared across requests, and every value a script produces is
// copied into the step's JSON output before the interpreter is discarded.
package scriptvm

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

func interpValueOf(v any) reflect.Value { return reflect.ValueOf(v) }

// JSON mirrors pipeline.JSON without importing it, keeping this package
// free of a dependency cycle on the step-executor layer.
type JSON = map[string]any

// Library is the function surface a script body may call into. The step
// executor supplies a concrete implementation backed by the dbpool,
// routeindex, and sessionstore.
type Library struct {
	Fetch     func(url string, opts JSON) (JSON, error)
	SQLQuery  func(sql string, params []any) (JSON, error)
	FindQuery func(name string) (string, bool)
	GetStore  func(key string) (any, bool)
	SetStore  func(key string, value any) bool
}

// Globals are the request-derived variables seeded into the script's
// namespace before it runs (request, query, body, headers, cookies,
// params).
type Globals struct {
	Request JSON
	Query   JSON
	Body    JSON
	Headers JSON
	Cookies JSON
	Params  JSON
}

// Run compiles and executes source, a script body ending in a `return`
// statement that yields the step's result. modules (stem -> source, may
// be nil) are installed as zero-argument callables in the script's
// namespace before the body runs. On any compile or runtime error, Run
// returns a non-nil error; the step executor is responsible for
// converting that into the `{ "error": "<message>" }` payload.
func Run(ctx context.Context, source string, g Globals, lib Library, modules map[string]string) (JSON, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("scriptvm: loading stdlib symbols: %w", err)
	}

	// the Exports key is importPath/packageName, so script bodies see
	// these symbols via `import . "script"`
	exports := interp.Exports{
		"script/script": {
			"Request": interpValueOf(g.Request),
			"Query":   interpValueOf(g.Query),
			"Body":    interpValueOf(g.Body),
			"Headers": interpValueOf(g.Headers),
			"Cookies": interpValueOf(g.Cookies),
			"Params":  interpValueOf(g.Params),

			"Fetch": interpValueOf(func(url string, opts JSON) (JSON, error) {
				if lib.Fetch == nil {
					return nil, fmt.Errorf("fetch is not available")
				}
				return lib.Fetch(url, opts)
			}),
			"SQLQuery": interpValueOf(func(sql string, params []any) (JSON, error) {
				if lib.SQLQuery == nil {
					return nil, fmt.Errorf("sqlQuery is not available")
				}
				return lib.SQLQuery(sql, params)
			}),
			"FindQuery": interpValueOf(func(name string) string {
				if lib.FindQuery == nil {
					return ""
				}
				sql, _ := lib.FindQuery(name)
				return sql
			}),
			"GetStore": interpValueOf(func(key string) any {
				if lib.GetStore == nil {
					return nil
				}
				v, _ := lib.GetStore(key)
				return v
			}),
			"SetStore": interpValueOf(func(key string, value any) bool {
				if lib.SetStore == nil {
					return false
				}
				return lib.SetStore(key, value)
			}),
		},
	}
	if err := i.Use(exports); err != nil {
		return nil, fmt.Errorf("scriptvm: installing library surface: %w", err)
	}

	program := wrap(source, modules)
	if _, err := i.Eval(program); err != nil {
		return nil, fmt.Errorf("scriptvm: compiling script: %w", err)
	}

	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("scriptvm: locating entry point: %w", err)
	}
	fn, ok := v.Interface().(func() JSON)
	if !ok {
		return nil, fmt.Errorf("scriptvm: script does not return a value")
	}

	done := make(chan JSON, 1)
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("scriptvm: script panicked: %v", r)
			}
		}()
		done <- fn()
	}()

	select {
	case result := <-done:
		return result, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// wrap embeds the raw script body (the brace-enclosed raw-block lexeme,
// e.g. `request["transformed"] = true; return request`) into a runnable
// package so it has access to the globals and library functions installed
// under the synthetic "script" package path, matching the convention every
// `lua { ... }` / `script NAME { lua { ... } }` body is authored against.
// Discovered modules become zero-argument closures named after their file
// stem, declared ahead of the body so it can call them directly.
func wrap(source string, modules map[string]string) string {
	var b strings.Builder
	b.WriteString("package main\n")
	b.WriteString("import . \"script\"\n")
	b.WriteString("func Run() map[string]interface{} {\n")
	b.WriteString("request := Request\n")
	b.WriteString("query := Query\n")
	b.WriteString("body := Body\n")
	b.WriteString("headers := Headers\n")
	b.WriteString("cookies := Cookies\n")
	b.WriteString("params := Params\n")
	b.WriteString("fetch := Fetch\n")
	b.WriteString("sqlQuery := SQLQuery\n")
	b.WriteString("findQuery := FindQuery\n")
	b.WriteString("getStore := GetStore\n")
	b.WriteString("setStore := SetStore\n")
	b.WriteString("_ = request; _ = query; _ = body; _ = headers; _ = cookies; _ = params\n")
	b.WriteString("_ = fetch; _ = sqlQuery; _ = findQuery; _ = getStore; _ = setStore\n")

	stems := make([]string, 0, len(modules))
	for stem := range modules {
		stems = append(stems, stem)
	}
	sort.Strings(stems)
	for _, stem := range stems {
		b.WriteString(stem)
		b.WriteString(" := func() map[string]interface{} {\n")
		b.WriteString(modules[stem])
		b.WriteString("\n}\n_ = ")
		b.WriteString(stem)
		b.WriteString("\n")
	}

	b.WriteString(source)
	b.WriteString("\n}\n")
	return b.String()
}
