package app

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quotebridge-backend/internal/data/db"
	"github.com/yungbote/quotebridge-backend/internal/http"
	"github.com/yungbote/quotebridge-backend/internal/jobs/worker"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
	"github.com/yungbote/quotebridge-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Store    *db.Service
	Router   *gin.Engine
	Cfg      Config
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services
	Worker   *worker.Worker

	otelShutdown func(context.Context) error
}

// NewLogger builds the process logger from LOG_MODE (development by default).
func NewLogger() (*logger.Logger, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenStore connects to the ledger store and brings the schema up to date.
func OpenStore(log *logger.Logger, cfg Config) (*db.Service, error) {
	store, err := db.NewService(log, cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("init ledger store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate ledger store: %w", err)
	}
	return store, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	metrics := observability.Init(log, cfg.MetricsEnabled)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     Version,
	})

	store, err := OpenStore(log, cfg)
	if err != nil {
		return nil, err
	}
	theDB := store.DB()

	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	aggs := wireAggregates(theDB, log, metrics, reposet)
	serviceset := wireServices(theDB, log, cfg, metrics, reposet, aggs, clients.Sink, clients.Attachments)

	handlerset := wireHandlers(log, serviceset)
	middleware := wireMiddleware(log, cfg)
	router := wireRouter(log, cfg, metrics, handlerset, middleware)

	var w *worker.Worker
	if cfg.Worker.Enabled {
		w = worker.NewWorker(log, serviceset.Dispatcher, serviceset.Negotiations, metrics, worker.Config{
			OutboxPollInterval: cfg.Worker.OutboxPollInterval,
			RecoveryInterval:   cfg.Worker.RecoveryInterval,
			RecoveryStaleAfter: cfg.Worker.RecoveryStaleAfter,
		})
	}

	return &App{
		Log:          log,
		Store:        store,
		Router:       router,
		Cfg:          cfg,
		Metrics:      metrics,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Worker:       w,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the HTTP server and background worker until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Metrics.StartDBCollector(ctx, a.Log, a.Store.DB())
	if a.Worker != nil {
		a.Worker.Start(ctx)
		defer a.Worker.Wait()
	}
	addr := net.JoinHostPort("", a.Cfg.Port)
	a.Log.Info("HTTP server listening", "addr", addr)
	srv := &http.Server{Engine: a.Router}
	return srv.Run(ctx, addr)
}

// Recover runs one crash-recovery pass.
func (a *App) Recover(ctx context.Context) (services.RecoveryReport, error) {
	return a.Services.Negotiations.RecoverStuckSessions(ctx, a.Cfg.Worker.RecoveryStaleAfter)
}

// DispatchOutbox drains due notifications once.
func (a *App) DispatchOutbox(ctx context.Context) error {
	if a.Services.Dispatcher == nil {
		return nil
	}
	_, err := a.Services.Dispatcher.DispatchOnce(ctx)
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	a.Clients.Close(a.Log)
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("close ledger store", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
