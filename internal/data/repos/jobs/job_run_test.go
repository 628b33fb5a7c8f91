package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

func TestJobRunRepoClaimOrderAndEligibility(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	now := time.Now().UTC()
	owner := uuid.New()
	stale := now.Add(-time.Hour)

	future := &types.JobRun{OwnerUserID: owner, JobType: "course_outline", Status: "retrying", NextRunAt: now.Add(time.Hour), CreatedAt: now.Add(-4 * time.Hour)}
	older := &types.JobRun{OwnerUserID: owner, JobType: "course_outline", Status: "queued", NextRunAt: now.Add(-2 * time.Hour), CreatedAt: now.Add(-3 * time.Hour)}
	retry := &types.JobRun{OwnerUserID: owner, JobType: "course_outline", Status: "retrying", NextRunAt: now.Add(-time.Minute), CreatedAt: now.Add(-2 * time.Hour)}
	exhausted := &types.JobRun{OwnerUserID: owner, JobType: "lesson_stream", Status: "running", Attempts: 1, MaxAttempts: 1, HeartbeatAt: &stale, NextRunAt: now.Add(-5 * time.Hour), CreatedAt: now.Add(-5 * time.Hour)}
	done := &types.JobRun{OwnerUserID: owner, JobType: "course_outline", Status: "succeeded", NextRunAt: now.Add(-6 * time.Hour), CreatedAt: now.Add(-6 * time.Hour)}

	if _, err := repo.Create(dbc, []*types.JobRun{future, older, retry, exhausted, done}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if first == nil || first.ID != older.ID {
		t.Fatalf("expected oldest due job first, got %+v", first)
	}
	if first.Status != "running" || first.Attempts != 1 {
		t.Fatalf("claimed job not marked running: %+v", first)
	}

	second, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil || second == nil || second.ID != retry.ID {
		t.Fatalf("expected due retry next, got %+v err=%v", second, err)
	}

	third, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if third != nil {
		t.Fatalf("future, exhausted and finished jobs must not be claimed, got %+v", third)
	}
}

func TestJobRunRepoReclaimsStaleRunning(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	stale := time.Now().UTC().Add(-time.Hour)
	job := &types.JobRun{OwnerUserID: uuid.New(), JobType: "quiz_generation", Status: "running", Attempts: 1, MaxAttempts: 4, HeartbeatAt: &stale}
	if _, err := repo.Create(dbc, []*types.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil || got == nil || got.ID != job.ID {
		t.Fatalf("expected stale job reclaimed, got %+v err=%v", got, err)
	}
	if got.Attempts != 2 {
		t.Fatalf("expected attempts to grow, got %d", got.Attempts)
	}
}

func TestJobRunRepoUpdateFieldsUnlessStatus(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	job := &types.JobRun{OwnerUserID: uuid.New(), JobType: "course_outline", Status: "succeeded"}
	if _, err := repo.Create(dbc, []*types.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	changed, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{"succeeded", "failed"}, map[string]interface{}{"status": "failed"})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if changed {
		t.Fatalf("terminal job must not change")
	}

	n, err := repo.CountByStatus(dbc, "succeeded")
	if err != nil || n != 1 {
		t.Fatalf("CountByStatus: n=%d err=%v", n, err)
	}
}

func TestJobRunRepoFailsStaleExhausted(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	stale := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	lost := &types.JobRun{OwnerUserID: uuid.New(), JobType: "course_outline", Status: "running", Attempts: 4, MaxAttempts: 4, HeartbeatAt: &stale}
	alive := &types.JobRun{OwnerUserID: uuid.New(), JobType: "course_outline", Status: "running", Attempts: 4, MaxAttempts: 4, HeartbeatAt: &fresh}
	retryable := &types.JobRun{OwnerUserID: uuid.New(), JobType: "quiz_generation", Status: "running", Attempts: 1, MaxAttempts: 4, HeartbeatAt: &stale}
	if _, err := repo.Create(dbc, []*types.JobRun{lost, alive, retryable}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	failed, err := repo.FailStaleExhausted(dbc, 5*time.Minute, "worker lost")
	if err != nil {
		t.Fatalf("FailStaleExhausted: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != lost.ID {
		t.Fatalf("expected only the exhausted stale job, got %+v", failed)
	}
	if failed[0].Status != "failed" || failed[0].Error != "worker lost" || failed[0].FinishedAt == nil {
		t.Fatalf("returned job not marked failed: %+v", failed[0])
	}

	stored, err := repo.GetByID(dbc, lost.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != "failed" || stored.Error != "worker lost" {
		t.Fatalf("stored job not failed: %+v", stored)
	}
	if still, _ := repo.GetByID(dbc, alive.ID); still == nil || still.Status != "running" {
		t.Fatalf("job with a fresh heartbeat must stay running, got %+v", still)
	}

	again, err := repo.FailStaleExhausted(dbc, 5*time.Minute, "worker lost")
	if err != nil || len(again) != 0 {
		t.Fatalf("second pass must find nothing, got %+v err=%v", again, err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, 5*time.Minute)
	if err != nil || claimed == nil || claimed.ID != retryable.ID {
		t.Fatalf("expected only the retryable stale job to be reclaimed, got %+v err=%v", claimed, err)
	}
}
