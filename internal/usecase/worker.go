package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"profile-analyzer/internal/config"
	"profile-analyzer/internal/domain"
	"profile-analyzer/pkg/ai"
	"profile-analyzer/pkg/metrics"
)

// Analyzer is the per-job work the worker drives. *Processor implements it.
type Analyzer interface {
	Analyze(ctx context.Context, job domain.Job) (json.RawMessage, error)
	Merge(ctx context.Context, job domain.Job, result json.RawMessage) error
}

const (
	msgInternalError = "internal error"
	msgWorkerStopped = "worker stopped before the analysis finished"
	msgStaleJob      = "worker restarted while the analysis was running"
)

// Worker drains the ledger. A single worker runs per process; jobs of one
// batch are processed one after another with a fixed delay in between.
type Worker struct {
	ledger   Ledger
	analyzer Analyzer
	cfg      config.WorkerConfig
	ticker   TickerFactory
	sleep    ai.Sleeper
	now      func() time.Time
	log      *zap.SugaredLogger
}

type WorkerOption func(*Worker)

func WithTicker(f TickerFactory) WorkerOption {
	return func(w *Worker) { w.ticker = f }
}

func WithWorkerSleeper(s ai.Sleeper) WorkerOption {
	return func(w *Worker) { w.sleep = s }
}

func NewWorker(ledger Ledger, analyzer Analyzer, cfg config.WorkerConfig, opts ...WorkerOption) *Worker {
	w := &Worker{
		ledger:   ledger,
		analyzer: analyzer,
		cfg:      cfg,
		ticker:   JitterTicker(cfg.PollJitter),
		sleep:    ai.SleepContext,
		now:      time.Now,
		log:      zap.S().Named("worker"),
	}
	for _, o := range opts {
		o(w)
	}
	if w.cfg.BatchSize < 1 {
		w.cfg.BatchSize = 1
	}
	return w
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	t := w.ticker(w.cfg.PollInterval)
	defer t.Stop()

	w.log.Infow("worker started",
		"interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"inter_job_delay", w.cfg.InterJobDelay)
	w.FailStale(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return
		case <-t.C():
			w.Tick(ctx)
		}
	}
}

// Tick claims one batch and processes it. It returns the number of jobs
// claimed.
func (w *Worker) Tick(ctx context.Context) int {
	w.FailStale(ctx)

	jobs, err := w.ledger.ClaimBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Errorw("failed to claim jobs", "error", err)
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}
	metrics.IncreaseJobsClaimedMetric(len(jobs))

	for i, job := range jobs {
		if i > 0 && w.cfg.InterJobDelay > 0 {
			if err := w.sleep(ctx, w.cfg.InterJobDelay); err != nil {
				w.failRemaining(ctx, jobs[i:], msgWorkerStopped)
				return len(jobs)
			}
		}
		if ctx.Err() != nil {
			w.failRemaining(ctx, jobs[i:], msgWorkerStopped)
			return len(jobs)
		}

		err := w.process(ctx, job)
		var cerr *ContextError
		if errors.As(err, &cerr) {
			w.log.Errorw("cannot resolve analysis context, failing batch",
				"job_id", job.ID, "remaining", len(jobs)-i-1, "error", cerr)
			w.failRemaining(ctx, jobs[i+1:], cerr.Error())
			return len(jobs)
		}
	}
	return len(jobs)
}

// FailStale fails running jobs that started longer ago than the job
// timeout plus the stale grace. No live worker holds such a job, so its
// process died before writing an outcome. Without a job timeout nothing
// is considered stale.
func (w *Worker) FailStale(ctx context.Context) int {
	if w.cfg.JobTimeout <= 0 {
		return 0
	}
	age := w.cfg.JobTimeout + w.cfg.StaleGrace
	ids, err := w.ledger.FailStale(ctx, w.now().Add(-age), msgStaleJob)
	if err != nil {
		w.log.Errorw("failed to recover stale jobs", "error", err)
		return 0
	}
	for _, id := range ids {
		w.log.Warnw("failed stale job", "job_id", id, "older_than", age)
		metrics.ObserveJobCompletedMetric(string(domain.StatusFailed), age)
	}
	return len(ids)
}

// process runs one claimed job to a terminal state and returns the error
// it failed with, if any.
func (w *Worker) process(ctx context.Context, job domain.Job) error {
	start := w.now()
	log := w.log.With("job_id", job.ID, "subject_id", job.SubjectID)

	jobCtx, cancel := w.jobContext(ctx)
	defer cancel()

	result, err := w.analyze(jobCtx, job)
	if err != nil {
		msg := w.failureMessage(ctx, jobCtx, err)
		log.Warnw("analysis failed", "error", err, "message", msg)
		w.markFailed(ctx, job, msg, start)
		return err
	}

	if err := w.ledger.MarkSuccess(context.WithoutCancel(ctx), job.ID, result); err != nil {
		log.Errorw("failed to record result", "error", err)
		return nil
	}
	metrics.ObserveJobCompletedMetric(string(domain.StatusSuccess), w.now().Sub(start))
	log.Infow("analysis succeeded", "elapsed", w.now().Sub(start))

	if err := w.analyzer.Merge(ctx, job, result); err != nil {
		log.Warnw("failed to merge result into subject", "error", err)
	}
	return nil
}

func (w *Worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) analyze(ctx context.Context, job domain.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("panic while analyzing job", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			result, err = nil, errors.New(msgInternalError)
		}
	}()
	return w.analyzer.Analyze(ctx, job)
}

func (w *Worker) failureMessage(parent, jobCtx context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return msgWorkerStopped
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("analysis timed out after %s", w.cfg.JobTimeout)
	}
	return err.Error()
}

func (w *Worker) markFailed(ctx context.Context, job domain.Job, msg string, start time.Time) {
	// The ledger write must land even when the worker is shutting down.
	if err := w.ledger.MarkFailed(context.WithoutCancel(ctx), job.ID, msg); err != nil {
		w.log.Errorw("failed to record failure", "job_id", job.ID, "error", err)
		return
	}
	metrics.ObserveJobCompletedMetric(string(domain.StatusFailed), w.now().Sub(start))
}

func (w *Worker) failRemaining(ctx context.Context, jobs []domain.Job, msg string) {
	now := w.now()
	for _, j := range jobs {
		w.markFailed(ctx, j, msg, now)
	}
}
