// Package site assembles a fully running configuration: parsing the
// source file (with includes), building the route index, and wiring up
// the long-lived resource pools (database, session store) the dispatcher
// and step executors share for the lifetime of the process.
package site

import (
	"fmt"

	"github.com/williamcotton/webdsl/internal/ast"
	"github.com/williamcotton/webdsl/internal/cache"
	"github.com/williamcotton/webdsl/internal/dbpool"
	"github.com/williamcotton/webdsl/internal/parser"
	"github.com/williamcotton/webdsl/internal/routeindex"
	"github.com/williamcotton/webdsl/internal/scriptvm"
	"github.com/williamcotton/webdsl/internal/sessionstore"
	"github.com/williamcotton/webdsl/internal/steps"
	"github.com/williamcotton/webdsl/pkg/metrics"
)

// InitialPoolSize and MaxPoolSize are the database pool's fixed
// parameters.
const (
	InitialPoolSize = 20
	MaxPoolSize     = 50
)

// Runtime is everything a running server needs for the lifetime of one
// Site configuration: the immutable parsed tree, its route index, and the
// owned resource pools step executors and the dispatcher read from.
type Runtime struct {
	Site    *ast.Site
	Index   *routeindex.Index
	DB      *dbpool.Pool
	Cache   cache.Cache
	Session *sessionstore.Store
	Steps   *steps.Runtime
}

// Options configures resource construction so tests can substitute an
// in-memory cache or skip the database entirely.
type Options struct {
	// CacheConfig backs the session store. Defaults to an in-memory
	// cache when zero-valued, matching cache.DefaultConfig's Type.
	CacheConfig cache.Config
	// SkipDatabase builds a Runtime with a nil DB pool (validate-only
	// or database-less sites).
	SkipDatabase bool
	// ScriptsDir, when non-empty, is scanned for *.lua script modules
	// installed into every script step's namespace. A missing directory
	// is not an error.
	ScriptsDir string
}

// Load parses entryPath (and its includes), builds the route index, and
// wires up the database pool and session store. DatabaseURL resolution
// (literal or $NAME env reference) happens here, at load time, not at
// parse time.
func Load(entryPath string, opts Options) (*Runtime, error) {
	s, err := parser.LoadSite(entryPath, parser.DefaultFileLoader)
	if err != nil {
		return nil, fmt.Errorf("site: %w", err)
	}
	return FromAST(s, opts)
}

// FromAST builds a Runtime from an already-parsed Site, used by tests
// that construct an *ast.Site directly without a source file.
func FromAST(s *ast.Site, opts Options) (*Runtime, error) {
	idx := routeindex.Build(s)

	c, err := cache.New(opts.CacheConfig)
	if err != nil {
		return nil, fmt.Errorf("site: building cache: %w", err)
	}
	sessions := sessionstore.New(c)

	var pool *dbpool.Pool
	if !opts.SkipDatabase {
		dsn, ok := s.DatabaseURL.ResolveString()
		if ok && dsn != "" {
			pool, err = dbpool.New(dsn, InitialPoolSize, MaxPoolSize)
			if err != nil {
				return nil, fmt.Errorf("site: connecting to database: %w", err)
			}
		}
	}

	stepRT := steps.NewRuntime(idx, pool, sessions)
	stepRT.Metrics = metrics.Global()
	if opts.ScriptsDir != "" {
		mods := scriptvm.NewModules(opts.ScriptsDir, nil)
		if err := mods.Load(); err != nil {
			return nil, fmt.Errorf("site: loading script modules: %w", err)
		}
		stepRT.Scripts = mods
	}

	return &Runtime{
		Site:    s,
		Index:   idx,
		DB:      pool,
		Cache:   c,
		Session: sessions,
		Steps:   stepRT,
	}, nil
}

// Close tears down every owned resource: the database pool and the cache
// backend.
func (rt *Runtime) Close() error {
	var firstErr error
	if rt.DB != nil {
		if err := rt.DB.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Cache != nil {
		if err := rt.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
