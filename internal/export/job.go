package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tilesmart/tiles-admin/internal/jobs"
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/jobs"
)

// Queue hands large PDF exports to the background worker.
type Queue struct {
	store    *Store
	enqueuer jobs.Enqueuer
}

// NewQueue constructs a Queue.
func NewQueue(store *Store, enqueuer jobs.Enqueuer) *Queue {
	return &Queue{store: store, enqueuer: enqueuer}
}

// Submit registers a pending export for owner and enqueues its rendering.
func (q *Queue) Submit(ctx context.Context, owner, stem string, doc layout.Document) (Job, error) {
	if !doc.Ready() {
		return Job{}, ErrNotReady
	}
	job, err := q.store.Create(ctx, owner, doc.Report, Filename(stem, doc, "pdf"))
	if err != nil {
		return Job{}, err
	}
	if _, err := q.enqueuer.EnqueueExportPDF(ctx, jobs.ExportPDFPayload{JobID: job.ID, Document: doc}); err != nil {
		_, _ = q.store.Fail(ctx, job.ID, "could not queue export")
		return Job{}, fmt.Errorf("export: enqueue: %w", err)
	}
	return job, nil
}

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Store    *Store
	Renderer PDFRenderer
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
}

// Worker renders queued exports.
type Worker struct {
	store    *Store
	renderer PDFRenderer
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

// NewWorker constructs the export task handler.
func NewWorker(cfg JobConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: cfg.Store, renderer: cfg.Renderer, metrics: cfg.Metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (w *Worker) Handle(ctx context.Context, task *asynq.Task) error {
	if w == nil || w.store == nil || w.renderer == nil {
		return fmt.Errorf("export worker not configured")
	}
	payload, err := jobs.DecodeExportPDF(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	job, err := w.store.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return asynq.SkipRetry
		}
		return err
	}
	if job.Finished() {
		return nil
	}
	if job.Status == JobPending {
		if _, err := w.store.MarkRunning(ctx, job.ID); err != nil && !errors.Is(err, ErrJobState) {
			return err
		}
	}

	attempt := w.metrics.Attempt(job.Report)
	data, err := w.renderer.RenderPDF(ctx, payload.Document)
	if err != nil {
		final := lastAttempt(ctx)
		if final {
			_, _ = w.store.Fail(ctx, job.ID, "The PDF could not be generated.")
		}
		w.logger.Error("export pdf render", slog.String("job_id", job.ID), slog.String("report", job.Report), slog.Bool("final", final), slog.Any("error", err))
		return attempt.Failed(err, final)
	}
	if _, err := w.store.Complete(ctx, job.ID, data); err != nil {
		return attempt.Failed(err, lastAttempt(ctx))
	}
	attempt.Done(len(data))
	w.logger.Info("export ready", slog.String("job_id", job.ID), slog.String("report", job.Report), slog.Int("bytes", len(data)))
	return nil
}

// lastAttempt reports whether asynq will not retry a failure of this run.
// Outside a worker there is no retry budget.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
