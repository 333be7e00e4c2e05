package scriptvm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsRequestWithMutation(t *testing.T) {
	g := Globals{Request: JSON{"method": "GET", "url": "/x"}}

	out, err := Run(context.Background(), `request["transformed"] = true
return request`, g, Library{}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["transformed"])
	assert.Equal(t, "GET", out["method"])
}

func TestRun_SeedsAllGlobals(t *testing.T) {
	g := Globals{
		Request: JSON{"method": "GET"},
		Query:   JSON{"q": "search"},
		Body:    JSON{"name": "n"},
		Headers: JSON{"Accept": "text/html"},
		Cookies: JSON{"sid": "abc"},
		Params:  JSON{"id": "7"},
	}

	out, err := Run(context.Background(), `return map[string]interface{}{
	"q": query["q"],
	"name": body["name"],
	"accept": headers["Accept"],
	"sid": cookies["sid"],
	"id": params["id"],
}`, g, Library{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "search", out["q"])
	assert.Equal(t, "n", out["name"])
	assert.Equal(t, "text/html", out["accept"])
	assert.Equal(t, "abc", out["sid"])
	assert.Equal(t, "7", out["id"])
}

func TestRun_LibraryFunctions(t *testing.T) {
	stored := map[string]any{}
	lib := Library{
		FindQuery: func(name string) (string, bool) {
			if name == "listUsers" {
				return "SELECT * FROM users", true
			}
			return "", false
		},
		GetStore: func(key string) (any, bool) {
			v, ok := stored[key]
			return v, ok
		},
		SetStore: func(key string, value any) bool {
			stored[key] = value
			return true
		},
	}

	out, err := Run(context.Background(), `ok := setStore("theme", "dark")
return map[string]interface{}{
	"sql": findQuery("listUsers"),
	"stored": ok,
	"theme": getStore("theme"),
}`, Globals{}, lib, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users", out["sql"])
	assert.Equal(t, true, out["stored"])
	assert.Equal(t, "dark", out["theme"])
}

func TestRun_CompileErrorSurfacesAsError(t *testing.T) {
	_, err := Run(context.Background(), `this is not a program`, Globals{}, Library{}, nil)
	require.Error(t, err)
}

func TestRun_ModuleCallableByStem(t *testing.T) {
	modules := map[string]string{
		"greeting": `return map[string]interface{}{"text": "hello"}`,
	}

	out, err := Run(context.Background(), `g := greeting()
return map[string]interface{}{"greeting": g["text"]}`, Globals{}, Library{}, modules)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["greeting"])
}
