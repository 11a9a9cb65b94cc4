// Package server builds the application graph from configuration and runs the
// HTTP server until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/api"
	"github.com/JakeFAU/buzzcrawl/internal/audit"
	"github.com/JakeFAU/buzzcrawl/internal/cache"
	memcache "github.com/JakeFAU/buzzcrawl/internal/cache/memory"
	rediscache "github.com/JakeFAU/buzzcrawl/internal/cache/redis"
	"github.com/JakeFAU/buzzcrawl/internal/clock/system"
	"github.com/JakeFAU/buzzcrawl/internal/config"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/credit"
	creditmemory "github.com/JakeFAU/buzzcrawl/internal/credit/memory"
	creditpg "github.com/JakeFAU/buzzcrawl/internal/credit/postgres"
	"github.com/JakeFAU/buzzcrawl/internal/dispatcher"
	"github.com/JakeFAU/buzzcrawl/internal/hash/sha256"
	"github.com/JakeFAU/buzzcrawl/internal/id/uuid"
	"github.com/JakeFAU/buzzcrawl/internal/normalize"
	"github.com/JakeFAU/buzzcrawl/internal/orchestrator"
	"github.com/JakeFAU/buzzcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

// App owns every long-lived service and releases them in Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	apiServer    *api.Server
	orchestrator *orchestrator.Orchestrator
	registry     *source.Registry
	ledger       *credit.Ledger
	limiter      *ratelimit.Limiter
	cache        cache.Store
	auditHub     *audit.Hub

	creditStore credit.Store
	redisClient *goredis.Client
	closers     []namedCloser

	closeOnce sync.Once
}

type namedCloser struct {
	name  string
	close func() error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the audit metrics on reg instead of the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// Build creates the application's dependencies. On error everything created so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (app *App, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	built := app
	defer func() {
		if err != nil {
			if built.auditHub != nil {
				_ = built.auditHub.Close(ctx)
			}
			built.releaseResources()
		}
	}()

	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("credit_backend", cfg.Credit.Backend),
	)

	clock := system.New()
	if app.registry, err = buildRegistry(cfg, logger); err != nil {
		return nil, err
	}
	readyChecks := map[string]api.ReadyCheck{}
	if app.cache, err = app.setupCache(ctx, clock, readyChecks); err != nil {
		return nil, err
	}
	if err = app.setupCredit(ctx); err != nil {
		return nil, err
	}
	app.limiter = ratelimit.New(ratelimit.Config{
		Limit:     cfg.RateLimit.Limit,
		Window:    cfg.RateLimit.Window,
		Overrides: cfg.RateLimit.Overrides,
	}, clock)

	sinkList, err := app.setupAuditSinks(ctx, o.registerer)
	if err != nil {
		return nil, err
	}
	if len(sinkList) > 0 {
		app.auditHub = audit.NewHub(audit.Config{
			BufferSize:     cfg.Audit.BufferSize,
			MaxBatchEvents: cfg.Audit.BatchSize,
			MaxBatchWait:   cfg.Audit.BatchWait,
			Logger:         logger,
		}, sinkList...)
		logger.Info("audit hub initialized", zap.Int("sinks", len(sinkList)))
	}

	ids := uuid.New()
	deps := orchestrator.Deps{
		Sources: app.registry,
		Limiter: app.limiter,
		Credits: app.ledger,
		Dispatcher: dispatcher.New(app.registry, dispatcher.Config{
			MaxWorkers:   cfg.Crawler.MaxWorkers,
			FetchTimeout: cfg.Crawler.FetchTimeout,
		}, logger),
		Normalizer: normalize.New(app.registry.Catalog(), normalize.Config{
			MinLength:  cfg.Crawler.MinLength,
			DisplayCap: cfg.Crawler.DisplayCap,
			SampleCap:  cfg.Crawler.SampleCap,
		}),
		Cache:  app.cache,
		Hasher: sha256.New(),
		IDs:    ids,
		Clock:  clock,
	}
	if app.auditHub != nil {
		deps.Audit = app.auditHub
	}
	app.orchestrator, err = orchestrator.New(deps, orchestrator.Config{
		MaxInputLength: cfg.Crawler.MaxInputLength,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	apiOpts := api.Options{
		AdminKey:       cfg.Auth.AdminKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		IDs:            ids,
		ReadyChecks:    readyChecks,
	}
	if cfg.Auth.Enabled {
		apiOpts.APIKey = cfg.Auth.APIKey
	}
	app.apiServer, err = api.NewServer(app.orchestrator, app.registry, app.ledger, app.limiter, apiOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

// Orchestrator returns the crawl pipeline.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Ledger returns the credit ledger.
func (a *App) Ledger() *credit.Ledger { return a.ledger }

// Registry returns the fetcher registry.
func (a *App) Registry() *source.Registry { return a.registry }

// Handler returns the HTTP handler tree.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then shuts
// down gracefully and closes the application.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cache.RunJanitor(ctx, a.cache, a.cfg.Cache.SweepInterval, a.logger.Named("cache"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close flushes the audit hub and releases stores and clients. Repeated calls
// are no-ops.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		if a.auditHub != nil {
			if hubErr := a.auditHub.Close(ctx); hubErr != nil {
				a.logger.Warn("audit hub close failed", zap.Error(hubErr))
				err = hubErr
			}
		}
		a.releaseResources()
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
	return err
}

func (a *App) releaseResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	if a.creditStore != nil {
		a.creditStore.Close()
		a.creditStore = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
		a.redisClient = nil
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) setupCache(ctx context.Context, clock crawler.Clock, checks map[string]api.ReadyCheck) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case "redis":
		client, err := rediscache.NewClient(ctx, a.cfg.Cache.Redis.Addr, a.cfg.Cache.Redis.Password, a.cfg.Cache.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis cache init failed: %w", err)
		}
		a.redisClient = client
		store := rediscache.New(client, a.cfg.Cache.TTL, a.cfg.Cache.Redis.Prefix)
		checks["cache"] = store.Ping
		a.logger.Info("using redis cache", zap.String("addr", a.cfg.Cache.Redis.Addr), zap.Duration("ttl", a.cfg.Cache.TTL))
		return store, nil
	default:
		a.logger.Info("using in-memory cache", zap.Duration("ttl", a.cfg.Cache.TTL))
		return memcache.New(a.cfg.Cache.TTL, clock), nil
	}
}

func (a *App) setupCredit(ctx context.Context) error {
	switch a.cfg.Credit.Backend {
	case "postgres":
		store, err := creditpg.New(ctx, creditpg.Config{
			DSN:            a.cfg.Credit.DSN,
			Table:          a.cfg.Credit.Table,
			InitialBalance: a.cfg.Credit.InitialBalance,
			MaxConns:       a.cfg.Credit.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("credit store init failed: %w", err)
		}
		a.creditStore = store
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("credit store migrate failed: %w", err)
		}
		a.logger.Info("using postgres credit store", zap.String("table", a.cfg.Credit.Table))
	default:
		a.creditStore = creditmemory.New(a.cfg.Credit.InitialBalance)
		a.logger.Info("using in-memory credit store", zap.Int("initial_balance", a.cfg.Credit.InitialBalance))
	}

	a.ledger = credit.NewLedger(a.creditStore, a.registry.Catalog(), credit.Config{
		FreeTrial: a.cfg.Credit.FreeTrial,
	}, a.logger)

	users := make([]string, 0, len(a.cfg.Credit.Roles))
	for user := range a.cfg.Credit.Roles {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		role, err := credit.ParseRole(a.cfg.Credit.Roles[user])
		if err != nil {
			return fmt.Errorf("credit.roles.%s: %w", user, err)
		}
		if err := a.ledger.SetRole(ctx, user, role); err != nil {
			return fmt.Errorf("seed role for %s: %w", user, err)
		}
	}
	return nil
}
