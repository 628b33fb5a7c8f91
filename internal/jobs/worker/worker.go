package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

// Recorder receives job outcomes. *observability.Metrics satisfies it.
type Recorder interface {
	JobFinished(jobType, status string, d time.Duration)
}

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	StaleRunning      time.Duration
	HeartbeatInterval time.Duration
	Retry             runtime.RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = c.StaleRunning / 3
	}
	if c.Retry.Base <= 0 {
		c.Retry = runtime.DefaultRetryPolicy()
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   runtime.Notifier
	metrics  Recorder
	cfg      Config

	onTerminal runtime.TerminalHook
	wake       chan struct{}
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify runtime.Notifier, metrics Recorder, cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		metrics:  metrics,
		cfg:      cfg,
		wake:     make(chan struct{}, cfg.Concurrency),
	}
}

// SetTerminalHook installs the callback run when a job fails for good.
func (w *Worker) SetTerminalHook(h runtime.TerminalHook) { w.onTerminal = h }

// Wake nudges idle loops to poll now instead of waiting for the next tick.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run starts the pool and blocks until ctx is canceled and every loop has returned.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		workerID := i + 1
		go func() {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
	wg.Wait()
	return nil
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
		// Drain consecutive due jobs before sleeping again.
		for ctx.Err() == nil && w.RunOnce(ctx, workerID) {
		}
	}
}

// RunOnce fails lost jobs that have no attempts left, then claims and executes at most one job.
// It reports whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	w.reapLost(ctx, workerID)
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.execute(ctx, workerID, job)
	return true
}

// reapLost settles running jobs whose worker stopped heartbeating on their last attempt.
func (w *Worker) reapLost(ctx context.Context, workerID int) {
	lost, err := w.repo.FailStaleExhausted(dbctx.Context{Ctx: ctx}, w.cfg.StaleRunning, errWorkerLost.Error())
	if err != nil {
		w.log.Warn("FailStaleExhausted failed", "worker_id", workerID, "error", err)
		return
	}
	settle := context.WithoutCancel(ctx)
	for _, job := range lost {
		w.log.Warn("Failed job lost by its worker", "job_id", job.ID, "job_type", job.JobType, "attempts", job.Attempts)
		if w.onTerminal != nil {
			w.onTerminal(settle, job, errWorkerLost)
		}
		if w.notify != nil {
			w.notify.JobFailed(job.OwnerUserID, job, job.Stage, job.Error)
		}
		if w.metrics != nil {
			var dur time.Duration
			if job.LockedAt != nil {
				dur = time.Since(*job.LockedAt)
			}
			w.metrics.JobFinished(job.JobType, job.Status, dur)
		}
	}
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.JobRun) {
	start := time.Now()
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	jc.Retry = w.cfg.Retry
	jc.OnTerminal = w.onTerminal

	log := w.log.With("worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	defer func() {
		if w.metrics != nil {
			w.metrics.JobFinished(job.JobType, job.Status, time.Since(start))
		}
	}()

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", runtime.Permanent(&missingHandlerError{JobType: job.JobType}))
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(hbCtx, job)

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			// Most pipelines call jc.Fail themselves; this is a safety net.
			jc.Fail("run", runErr)
			return
		}
		if !jc.Finished() {
			jc.Succeed("done", nil)
		}
	}()

	log.Debug("Job finished", "status", job.Status, "duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun) {
	t := time.NewTicker(w.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
				w.log.Debug("Heartbeat failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

var errWorkerLost = errors.New("worker stopped responding on the last attempt")

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
