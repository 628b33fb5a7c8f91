package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

// Notifier receives job lifecycle events for the job owner.
type Notifier interface {
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, pct int, msg string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMsg string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

// TerminalHook runs once when a job reaches its final failed state.
type TerminalHook func(ctx context.Context, job *types.JobRun, err error)

var terminalStatuses = []string{jobdomain.StatusSucceeded, jobdomain.StatusFailed}

/*
Context is the execution handle for one claimed job run.
Pipelines never touch job_run directly; they report through Progress, Fail and Succeed,
which keep the row, the in-memory copy and the notifications consistent.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Notify Notifier

	Retry      RetryPolicy
	OnTerminal TerminalHook

	payload map[string]any
	done    bool
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify Notifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
		Retry:  DefaultRetryPolicy(),
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload returns the decoded payload. It never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// DecodePayload unmarshals the raw job payload into dst.
func (c *Context) DecodePayload(dst any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return errors.New("empty job payload")
	}
	if err := json.Unmarshal(c.Job.Payload, dst); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	return nil
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// settleCtx outlives cancellation of the run so terminal writes land during shutdown.
func (c *Context) settleCtx() context.Context {
	return context.WithoutCancel(c.ctx())
}

// Progress records a non-terminal stage and refreshes the heartbeat.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, terminalStatuses, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct, msg)
	}
}

/*
Fail records a failed attempt.
While attempts remain and err is not Permanent, the job moves to retrying with next_run_at
pushed out by the retry policy. Otherwise it becomes failed, OnTerminal runs and a failed
event is emitted. A job already in a terminal status is left untouched.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.done {
		return
	}
	c.done = true
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	retry := c.Job != nil && !IsPermanent(err) && c.Job.Attempts < c.Job.MaxAttempts
	updates := map[string]interface{}{
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}
	var next time.Time
	if retry {
		next = now.Add(c.Retry.Backoff(c.Job.Attempts))
		updates["status"] = jobdomain.StatusRetrying
		updates["next_run_at"] = next
	} else {
		updates["status"] = jobdomain.StatusFailed
		updates["finished_at"] = now
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.settleCtx()}, c.Job.ID, terminalStatuses, updates)
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
		if retry {
			c.Job.Status = jobdomain.StatusRetrying
			c.Job.NextRunAt = next
		} else {
			c.Job.Status = jobdomain.StatusFailed
			c.Job.FinishedAt = &now
		}
	}

	if retry {
		if c.Notify != nil {
			c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, "retrying", c.Job.Progress, msg)
		}
		return
	}

	if c.OnTerminal != nil && c.Job != nil {
		c.OnTerminal(c.settleCtx(), c.Job, err)
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

// Succeed marks the job succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil || c.done {
		return
	}
	c.done = true
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.settleCtx()}, c.Job.ID, terminalStatuses, map[string]interface{}{
			"status":       jobdomain.StatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"finished_at":  now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobdomain.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.FinishedAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}

// Finished reports whether Fail or Succeed already ran on this context.
func (c *Context) Finished() bool { return c != nil && c.done }
