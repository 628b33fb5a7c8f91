package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type funcHandler struct {
	typ string
	run func(*runtime.Context) error
}

func (h funcHandler) Type() string                  { return h.typ }
func (h funcHandler) Run(jc *runtime.Context) error { return h.run(jc) }

type harness struct {
	db       *gorm.DB
	repo     repos.JobRunRepo
	worker   *Worker
	terminal atomic.Int32
}

func newHarness(t *testing.T, handlers ...runtime.Handler) *harness {
	t.Helper()
	db := testutil.DB(t)
	repo := repos.NewJobRunRepo(db, logger.Nop())
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	h := &harness{db: db, repo: repo}
	h.worker = NewWorker(db, logger.Nop(), repo, reg, nil, nil, Config{
		Concurrency:       1,
		HeartbeatInterval: time.Hour,
		Retry:             runtime.RetryPolicy{Base: time.Minute, Max: time.Hour},
	})
	h.worker.SetTerminalHook(func(ctx context.Context, job *types.JobRun, err error) {
		h.terminal.Add(1)
	})
	return h
}

func (h *harness) enqueue(t *testing.T, jobType string, maxAttempts int) *types.JobRun {
	t.Helper()
	job := &types.JobRun{OwnerUserID: uuid.New(), JobType: jobType, MaxAttempts: maxAttempts}
	_, err := h.repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job})
	require.NoError(t, err)
	return job
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *types.JobRun {
	t.Helper()
	job, err := h.repo.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func (h *harness) makeDue(t *testing.T, id uuid.UUID) {
	t.Helper()
	require.NoError(t, h.repo.UpdateFields(dbctx.Context{Ctx: context.Background()}, id, map[string]interface{}{
		"next_run_at": time.Now().UTC().Add(-time.Second),
	}))
}

func TestWorkerRetriesTransientFailureWithBackoff(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, funcHandler{typ: "flaky", run: func(jc *runtime.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("upstream timeout")
		}
		jc.Succeed("done", map[string]any{"ok": true})
		return nil
	}})
	ctx := context.Background()
	job := h.enqueue(t, "flaky", 4)

	require.True(t, h.worker.RunOnce(ctx, 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "retrying", got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "upstream timeout", got.Error)
	assert.True(t, got.NextRunAt.After(time.Now().UTC().Add(30*time.Second)), "backoff should push next_run_at out")

	assert.False(t, h.worker.RunOnce(ctx, 1), "a retrying job is not due before next_run_at")

	h.makeDue(t, job.ID)
	require.True(t, h.worker.RunOnce(ctx, 1))
	got = h.reload(t, job.ID)
	assert.Equal(t, "succeeded", got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.NotNil(t, got.FinishedAt)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	assert.Equal(t, int32(0), h.terminal.Load())
}

func TestWorkerPermanentFailureIsTerminal(t *testing.T) {
	h := newHarness(t, funcHandler{typ: "refuse", run: func(jc *runtime.Context) error {
		return runtime.Permanent(errors.New("Topic not allowed"))
	}})
	job := h.enqueue(t, "refuse", 4)

	require.True(t, h.worker.RunOnce(context.Background(), 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "Topic not allowed", got.Error)
	assert.Equal(t, int32(1), h.terminal.Load())
}

func TestWorkerAtMostOnceJobIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, funcHandler{typ: "stream", run: func(jc *runtime.Context) error {
		calls.Add(1)
		panic("boom")
	}})
	job := h.enqueue(t, "stream", 1)

	require.True(t, h.worker.RunOnce(context.Background(), 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "panic: boom", got.Error)

	h.makeDue(t, job.ID)
	assert.False(t, h.worker.RunOnce(context.Background(), 1))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), h.terminal.Load())
}

func TestWorkerExhaustsAttempts(t *testing.T) {
	h := newHarness(t, funcHandler{typ: "broken", run: func(jc *runtime.Context) error {
		jc.Fail("generate", errors.New("bad json"))
		return nil
	}})
	job := h.enqueue(t, "broken", 2)
	ctx := context.Background()

	require.True(t, h.worker.RunOnce(ctx, 1))
	assert.Equal(t, "retrying", h.reload(t, job.ID).Status)

	h.makeDue(t, job.ID)
	require.True(t, h.worker.RunOnce(ctx, 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "generate", got.Stage)
	assert.Equal(t, int32(1), h.terminal.Load())
}

func TestWorkerFailsUnknownJobType(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t, "mystery", 4)

	require.True(t, h.worker.RunOnce(context.Background(), 1))
	assert.Equal(t, "failed", h.reload(t, job.ID).Status)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()
	h.worker.Wake()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerFailsJobLostOnLastAttempt(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, funcHandler{typ: "outline", run: func(jc *runtime.Context) error {
		calls.Add(1)
		return nil
	}})
	stale := time.Now().UTC().Add(-time.Hour)
	job := &types.JobRun{OwnerUserID: uuid.New(), JobType: "outline", Status: "running", Attempts: 4, MaxAttempts: 4, HeartbeatAt: &stale, LockedAt: &stale}
	_, err := h.repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job})
	require.NoError(t, err)

	assert.False(t, h.worker.RunOnce(context.Background(), 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, errWorkerLost.Error(), got.Error)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, int32(1), h.terminal.Load())
	assert.Equal(t, int32(0), calls.Load())

	assert.False(t, h.worker.RunOnce(context.Background(), 1))
	assert.Equal(t, int32(1), h.terminal.Load())
}

func TestWorkerSettlesJobAfterShutdownStarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t,
		funcHandler{typ: "fails", run: func(jc *runtime.Context) error {
			cancel()
			jc.Fail("generate", runtime.Permanent(errors.New("refused")))
			return nil
		}},
	)
	job := h.enqueue(t, "fails", 4)

	require.True(t, h.worker.RunOnce(ctx, 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "refused", got.Error)
	assert.Equal(t, int32(1), h.terminal.Load())
}

func TestWorkerSucceedsJobAfterShutdownStarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, funcHandler{typ: "slow", run: func(jc *runtime.Context) error {
		cancel()
		return nil
	}})
	job := h.enqueue(t, "slow", 4)

	require.True(t, h.worker.RunOnce(ctx, 1))
	got := h.reload(t, job.ID)
	assert.Equal(t, "succeeded", got.Status)
	assert.NotNil(t, got.FinishedAt)
}
