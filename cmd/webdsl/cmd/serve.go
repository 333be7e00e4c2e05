package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/williamcotton/webdsl/internal/auth"
	"github.com/williamcotton/webdsl/internal/cache"
	"github.com/williamcotton/webdsl/internal/dbpool"
	"github.com/williamcotton/webdsl/internal/httpserver"
	"github.com/williamcotton/webdsl/internal/shutdown"
	"github.com/williamcotton/webdsl/internal/shutdown/hooks"
	"github.com/williamcotton/webdsl/internal/site"
	"github.com/williamcotton/webdsl/pkg/logging"
)

// dbPoolCloser adapts *dbpool.Pool's CloseAll to the single-argument Close
// hooks.DatabaseShutdown expects.
type dbPoolCloser struct{ pool *dbpool.Pool }

func (c dbPoolCloser) Close() error { return c.pool.CloseAll() }

var (
	servePort        int
	serveDatabaseURL string
	serveWorkers     int
	serveLogLevel    string
	serveLogFormat   string
	serveRedisURL    string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [site-file]",
		Short: "Parse a site configuration and serve it over HTTP",
		Long: `serve loads a site configuration (explicit path, site.webdsl, or the
first *.webdsl file in the current directory), builds its route index and
resource pools, and listens for HTTP requests until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}

	cmd.Flags().IntVar(&servePort, "port", 0, "port to listen on, overrides the site's declared port")
	cmd.Flags().StringVar(&serveDatabaseURL, "database-url", "", "Postgres connection string, overrides the site's declared database")
	cmd.Flags().IntVar(&serveWorkers, "workers", 0, "worker pool size bound (0 or less = default of 8)")
	cmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "log output format (json|text)")
	cmd.Flags().StringVar(&serveRedisURL, "redis-url", "", "Redis URL backing the session store (memory cache if unset)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	explicit := ""
	if len(args) == 1 {
		explicit = args[0]
	}
	sitePath := findSiteFile(explicit)
	if sitePath == "" {
		return fmt.Errorf("no site file found: pass a path, create site.webdsl, or add a *.webdsl file")
	}

	logger := logging.New(logging.Config{Level: serveLogLevel, Format: serveLogFormat, Output: "stdout"})
	logger.SetDefault()

	printVerbose(cmd, "Loading site from %s\n", sitePath)

	cacheCfg := cache.DefaultConfig()
	if serveRedisURL != "" {
		cacheCfg.Type = "redis"
		cacheCfg.URL = serveRedisURL
	}

	opts := site.Options{
		CacheConfig: cacheCfg,
		ScriptsDir:  filepath.Join(filepath.Dir(sitePath), "scripts"),
	}
	rt, err := site.Load(sitePath, opts)
	if err != nil {
		return fmt.Errorf("loading site: %w", err)
	}
	defer rt.Close()

	if serveDatabaseURL != "" && rt.DB == nil {
		pool, err := dbpool.New(serveDatabaseURL, site.InitialPoolSize, site.MaxPoolSize)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		rt.DB = pool
		rt.Steps.DB = pool
	}

	var authenticator *auth.Authenticator
	if rt.Site.Auth != nil {
		a, err := auth.New(rt.Site.Auth, rt.Session, rt.Site.BaseURL)
		if err != nil {
			logger.Warn("auth not configured", "error", err)
		} else {
			authenticator = a
		}
	}

	dispatcher := httpserver.New(rt, logger.Logger, authenticator)
	router := httpserver.NewRouter(dispatcher, serveWorkers)

	port := servePort
	if port == 0 {
		if p, ok := rt.Site.Port.ResolveNumber(); ok {
			port = p
		} else {
			port = 8080
		}
	}
	addr := fmt.Sprintf(":%d", port)

	// drainer tracks in-flight requests so the http-drainer shutdown hook
	// can wait for them to finish instead of cutting them off.
	drainer := shutdown.NewHTTPDrainer(router)
	server := httpserver.NewServer(drainer, addr)

	mgr := shutdown.NewManager(shutdown.DefaultConfig(), logger.Logger)
	mgr.RegisterHook(hooks.HTTPDrainerShutdown(drainer, mgr.Config().DrainTimeout))
	mgr.RegisterHook(hooks.HTTPServerShutdown(server.Underlying(), mgr.Config().DrainTimeout))
	if rt.DB != nil {
		mgr.RegisterHook(hooks.DatabaseShutdown("database", dbPoolCloser{rt.DB}))
	}
	if rt.Cache != nil {
		mgr.RegisterHook(hooks.CacheShutdown("cache", rt.Cache))
	}

	done := mgr.ListenForSignals()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		closeErr := rt.Close()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return closeErr
	case <-done:
		if errs := mgr.Errors(); len(errs) > 0 {
			logger.Warn("shutdown completed with errors", "count", len(errs), "first", errs[0])
		} else {
			logger.Info("shutdown complete")
		}
	}

	return nil
}
