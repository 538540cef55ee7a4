package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/tilesmart/tiles-admin/internal/app"
	"github.com/tilesmart/tiles-admin/internal/auth"
	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/export"
	"github.com/tilesmart/tiles-admin/internal/observability"
	"github.com/tilesmart/tiles-admin/internal/platform/cache"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/reports"
	reportshttp "github.com/tilesmart/tiles-admin/internal/reports/http"
	"github.com/tilesmart/tiles-admin/internal/shared"
	"github.com/tilesmart/tiles-admin/internal/view"
	"github.com/tilesmart/tiles-admin/jobs"
	"github.com/tilesmart/tiles-admin/report"
)

func main() {
	_ = godotenv.Load()
	app.RefreshTestMode()
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	queryMetrics, err := query.NewMetrics(metrics.Registerer())
	if err != nil {
		logger.Error("register query metrics", slog.Any("error", err))
		os.Exit(1)
	}

	backendClient, err := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, backend.WithLoginPath(cfg.BackendLoginPath))
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}

	layouts := reports.Layouts{}
	if cfg.ReportLayoutFile != "" {
		layouts, err = reports.LoadLayouts(cfg.ReportLayoutFile)
		if err != nil {
			logger.Error("load report layouts", slog.String("file", cfg.ReportLayoutFile), slog.Any("error", err))
			os.Exit(1)
		}
	}
	catalog := reports.NewCatalog(backendClient, query.RegistryConfig{
		Cache:   query.NewCache(redisClient, cfg.QueryCacheTTL),
		Metrics: queryMetrics,
		IdleTTL: cfg.QueryIdleTTL,
	}, layouts)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	pdfRenderer, gotenberg, err := app.NewPDFRenderer(cfg, templates)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "tiles_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authService := auth.NewService(backendClient, catalog)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	queueOpts, err := cache.QueueOpts(cfg.RedisAddr)
	if err != nil {
		logger.Error("queue options", slog.Any("error", err))
		os.Exit(1)
	}
	jobsClient, err := jobs.NewClient(queueOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	exportStore := export.NewStore(redisClient, cfg.ExportTTL)
	reportsHandler, err := reportshttp.NewHandler(reportshttp.Config{
		Logger:     logger,
		Catalog:    catalog,
		Templates:  templates,
		CSRF:       csrfManager,
		PDF:        pdfRenderer,
		Downloader: backendClient,
		Queue:      export.NewQueue(exportStore, jobsClient),
		Store:      exportStore,
		AsyncRows:  cfg.PDFAsyncRows,
		ExportRate: cfg.ExportRate,
	})
	if err != nil {
		logger.Error("init report handlers", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		ReportsHandler: reportsHandler,
		PDFHandler:     report.NewHandler(gotenberg, logger),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("backend", cfg.BackendURL),
			slog.String("pdf_renderer", cfg.PDFRenderer),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
