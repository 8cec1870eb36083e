package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"courtq/pkg/auth"
	"courtq/pkg/config"
	"courtq/pkg/contracts"
	"courtq/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

// Worker is a background loop that runs until its context is cancelled.
type Worker func(ctx context.Context) error

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.RequesterRateLimiter
	healthHandler    http.Handler
	appHTTPHandler   http.Handler

	workers   map[string]Worker
	closers   []func() error
	cancel    context.CancelFunc
	workersWG sync.WaitGroup
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{
		cfg:     cfg,
		workers: make(map[string]Worker),
	}
}

// SetApp builds the middleware stacks and the server. health serves
// /health, /ready and /metrics without authentication.
func (a *Application) SetApp(appHandler, health contracts.Handler, resolver auth.Resolver) {
	a.setHealthHandler(health)
	a.setAppHandler(appHandler, resolver)
	a.setAppServer()
}

// AddWorker registers a loop started with the server and stopped on
// shutdown.
func (a *Application) AddWorker(name string, w Worker) {
	a.workers[name] = w
}

// OnShutdown registers a resource closed after the workers stop.
func (a *Application) OnShutdown(closer func() error) {
	a.closers = append(a.closers, closer)
}

func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler(health contracts.Handler) {
	healthRouter := httprouter.New()
	health.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler, resolver auth.Resolver) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewRequesterRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.RequesterKey,
		a.cfg.Log,
	)

	var appHTTPHandler http.Handler = appRouter
	appHTTPHandler = middleware.Idempotency(a.idempotencyStore)(appHTTPHandler)
	appHTTPHandler = middleware.RequestTimeout(a.cfg.RequestTimeout, a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.RateLimit(a.rateLimiter)(appHTTPHandler)
	appHTTPHandler = middleware.Authenticate(resolver, a.cfg.PaymentWebhookSecret, a.cfg.Log)(appHTTPHandler)
	if a.cfg.PaymentWebhookSecret != "" {
		a.cfg.Log.Info("Payment webhook signature verification enabled")
	}
	appHTTPHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHTTPHandler)
	appHTTPHandler = middleware.RequestLogging(a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.Recovery(a.cfg.Log)(appHTTPHandler)
	a.appHTTPHandler = appHTTPHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/metrics", a.healthHandler)
	mux.Handle("/", a.appHTTPHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for name, run := range a.workers {
		a.workersWG.Add(1)
		go func() {
			defer a.workersWG.Done()
			a.cfg.Log.Info("Starting background worker", "worker", name)
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Background worker stopped with error", "worker", name, "error", err)
			}
		}()
	}
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	a.startWorkers()

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	a.workersWG.Wait()
	a.cfg.Log.Info("Background workers stopped")

	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.cfg.Log.Error("Failed to release resource on shutdown", "error", err)
		}
	}
	a.cfg.GracefulShutdown()

	a.cfg.Log.Info("Server stopped gracefully")
}
