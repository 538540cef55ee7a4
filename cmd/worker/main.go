package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tilesmart/tiles-admin/internal/app"
	"github.com/tilesmart/tiles-admin/internal/export"
	"github.com/tilesmart/tiles-admin/internal/observability"
	"github.com/tilesmart/tiles-admin/internal/platform/cache"
	"github.com/tilesmart/tiles-admin/internal/view"
	"github.com/tilesmart/tiles-admin/jobs"
)

func main() {
	_ = godotenv.Load()
	app.RefreshTestMode()
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	renderer, _, err := app.NewPDFRenderer(cfg, templates)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	exportJob := export.NewWorker(export.JobConfig{
		Store:    export.NewStore(redisClient, cfg.ExportTTL),
		Renderer: renderer,
		Metrics:  metrics.Jobs(),
		Logger:   logger,
	})

	queueOpts, err := cache.QueueOpts(cfg.RedisAddr)
	if err != nil {
		logger.Error("queue options", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   queueOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerThreads,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExportPDF, Handler: exportJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting export worker", slog.Int("concurrency", cfg.WorkerThreads), slog.String("pdf_renderer", cfg.PDFRenderer))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
