// Package pipeline threads a JSON value through an ordered list of step
// functions, short-circuiting as soon as a step's input carries a
// structured error.
package pipeline

import "context"

// JSON is the dynamic document type steps operate on: the result of
// unmarshaling a JSON object is always a map[string]any in Go, matching
// the request-context shape the dispatcher builds.
type JSON = map[string]any

// StepFunc executes one pipeline stage. input is the current value
// (either the original request context or the previous step's output);
// requestContext is always the original, unmodified context, available for
// steps that need top-level request fields regardless of pipeline position.
type StepFunc func(ctx context.Context, input, requestContext JSON) (JSON, error)

// hasError reports whether input already carries a top-level "error" or
// "errors" key, the pipeline's single failure signal.
func hasError(input JSON) bool {
	if input == nil {
		return false
	}
	if _, ok := input["error"]; ok {
		return true
	}
	if _, ok := input["errors"]; ok {
		return true
	}
	return false
}

// deepCopy recursively copies maps/slices so a short-circuited value is
// never aliased with the one a later caller might still be mutating.
func deepCopy(v any) any {
	switch t := v.(type) {
	case JSON:
		out := make(JSON, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// Execute runs steps in order against requestContext, returning the final
// value. A step that observes an error key already present in its input
// short-circuits by returning a deep copy of that input without running
// any remaining steps. A step returning a nil value (no error) also stops
// the pipeline early, propagating nil. Once ctx is canceled, the step in
// progress completes and Execute returns ctx's error without running the
// remaining steps.
func Execute(ctx context.Context, steps []StepFunc, requestContext JSON) (JSON, error) {
	current := requestContext

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hasError(current) {
			copied := deepCopy(current)
			return copied.(JSON), nil
		}

		result, err := step(ctx, current, requestContext)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// NewRequestContext builds the base JSON document every pipeline starts
// from. Absent fields default to empty objects so steps can index into
// query/headers/cookies/body without nil checks.
func NewRequestContext(method, url string, query, headers, cookies, body JSON) JSON {
	if method == "" {
		method = "GET"
	}
	if url == "" {
		url = "/"
	}
	ctx := JSON{
		"method": method,
		"url":    url,
	}
	if query != nil {
		ctx["query"] = deepCopy(query)
	} else {
		ctx["query"] = JSON{}
	}
	if headers != nil {
		ctx["headers"] = deepCopy(headers)
	} else {
		ctx["headers"] = JSON{}
	}
	if cookies != nil {
		ctx["cookies"] = deepCopy(cookies)
	} else {
		ctx["cookies"] = JSON{}
	}
	if body != nil {
		ctx["body"] = deepCopy(body)
	} else {
		ctx["body"] = JSON{}
	}
	return ctx
}
