// Package app wires the configured components into the HTTP surface
// (spec §4.7): GET /, GET /health, GET /internal/status, and a
// catch-all proxy route.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ensemblehq/inference-proxy/internal/adapter/cache"
	"github.com/ensemblehq/inference-proxy/internal/adapter/forwarder"
	"github.com/ensemblehq/inference-proxy/internal/adapter/httpclient"
	"github.com/ensemblehq/inference-proxy/internal/adapter/refresher"
	"github.com/ensemblehq/inference-proxy/internal/adapter/selector"
	"github.com/ensemblehq/inference-proxy/internal/app/middleware"
	"github.com/ensemblehq/inference-proxy/internal/config"
	"github.com/ensemblehq/inference-proxy/internal/version"
)

// reserved names the three exact-match routes own. The catch-all
// pattern "/" on Go 1.22+'s enhanced ServeMux loses to any more
// specific registered pattern automatically, but a request for one of
// these paths with an unsupported method would otherwise fall through
// to the catch-all's method-less registration — this guard makes sure
// that never forwards a reserved path to a backend (resolves the
// duplicate-route-ordering design question).
var reservedPaths = map[string]struct{}{
	"/":                {},
	"/health":          {},
	"/internal/status": {},
}

// Application owns every long-lived component and the HTTP server.
type Application struct {
	cfg        *config.Config
	logger     *slog.Logger
	cache      *cache.Cache
	refresher  *refresher.Refresher
	forwarder  *forwarder.Forwarder
	server     *http.Server
	cancelLoop context.CancelFunc
}

// New constructs every component from cfg but does not start serving.
func New(cfg *config.Config, logger *slog.Logger) *Application {
	probeClient := httpclient.New(logger)
	streamClient := httpclient.NewStreaming(logger)

	c := cache.New(cfg.Backends)
	r := refresher.New(c, probeClient, logger, cfg.Proxy.MetricsCacheTTL,
		cfg.Proxy.MaxAllowedRequestQueue, cfg.Proxy.MaxAllowedDeferred)
	fw := forwarder.New(streamClient, logger, cfg.Proxy.BackendTimeout)

	a := &Application{
		cfg:       cfg,
		logger:    logger,
		cache:     c,
		refresher: r,
		forwarder: fw,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleWelcome)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /internal/status", a.handleStatus)
	mux.HandleFunc("/", a.handleProxy)

	handler := middleware.Logging(logger)(mux)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a
}

// Start runs the cache refresher in the background and serves HTTP
// until ctx is cancelled, then shuts down gracefully.
func (a *Application) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancelLoop = cancel
	go a.refresher.Run(loopCtx)

	a.logger.Info("listening", "addr", a.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return a.Stop()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Stop shuts the HTTP server down gracefully and stops the refresher.
func (a *Application) Stop() error {
	if a.cancelLoop != nil {
		a.cancelLoop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	return a.server.Shutdown(shutdownCtx)
}

func (a *Application) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.WelcomeMessage())
}

func (a *Application) handleProxy(w http.ResponseWriter, r *http.Request) {
	if _, reserved := reservedPaths[r.URL.Path]; reserved {
		http.NotFound(w, r)
		return
	}

	target, ok := selector.Choose(a.cache, a.cfg.Proxy.MetricsCacheTTL)
	if !ok {
		http.Error(w, "No backend available", http.StatusServiceUnavailable)
		return
	}

	requestID := middleware.RequestIDFrom(r.Context())
	a.forwarder.Forward(w, r, target, r.URL.Path, requestID)
}

