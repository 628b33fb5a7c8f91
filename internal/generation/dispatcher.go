package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

// CreditLedger is the slice of *credits.Ledger the dispatcher uses.
type CreditLedger interface {
	EnsureValid(ctx context.Context, userID uuid.UUID) (*types.User, error)
	Consume(dbc dbctx.Context, userID uuid.UUID, kind string, cost int) error
}

type JobCreatedNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
}

type Recorder interface {
	Dispatched(kind, outcome string)
}

type Accepted struct {
	TaskID   uuid.UUID  `json:"task_id"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	Status   string     `json:"status"`
	StreamID string     `json:"stream_id,omitempty"`
}

type DispatcherConfig struct {
	// NotifyChannel, when set, is signalled with pg_notify as the dispatch commits.
	NotifyChannel string
}

type Dispatcher struct {
	db       *gorm.DB
	log      *logger.Logger
	registry *Registry
	ledger   CreditLedger
	jobs     repos.JobRunRepo
	notify   JobCreatedNotifier
	metrics  Recorder
	wake     func()
	cfg      DispatcherConfig
}

func NewDispatcher(db *gorm.DB, baseLog *logger.Logger, registry *Registry, ledger CreditLedger, jobs repos.JobRunRepo, notify JobCreatedNotifier, metrics Recorder, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		db:       db,
		log:      baseLog.With("service", "GenerationDispatcher"),
		registry: registry,
		ledger:   ledger,
		jobs:     jobs,
		notify:   notify,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// SetWaker registers an in-process wake-up for a worker pool sharing this process.
func (d *Dispatcher) SetWaker(wake func()) { d.wake = wake }

func (d *Dispatcher) record(kind, outcome string) {
	if d.metrics != nil {
		d.metrics.Dispatched(kind, outcome)
	}
}

/*
Dispatch charges credits, prepares the task and enqueues its job in one transaction.
If any step fails nothing persists: no charge, no row, no job.
Credits are topped up in a separate commit first, so a refused request still keeps
the daily reset.
*/
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, req Request) (*Accepted, error) {
	task, ok := d.registry.Get(kind)
	if !ok {
		d.record(kind, "unknown_kind")
		return nil, apierr.NotFound("unknown_kind", fmt.Errorf("unknown generation kind %q", kind))
	}
	spec := task.Spec()
	if req.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("unauthorized", errors.New("missing user"))
	}

	if _, err := d.ledger.EnsureValid(ctx, req.UserID); err != nil {
		return nil, err
	}

	var job *types.JobRun
	var prepared *Prepared
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := d.ledger.Consume(dbc, req.UserID, string(spec.Kind), spec.Cost); err != nil {
			return err
		}
		p, err := task.Prepare(dbc, req)
		if err != nil {
			return err
		}
		prepared = p

		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		if td := ctxutil.GetTraceData(ctx); td != nil {
			payload["trace_id"] = td.TraceID
			payload["request_id"] = td.RequestID
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode job payload: %w", err)
		}
		job = &types.JobRun{
			OwnerUserID: req.UserID,
			JobType:     string(spec.Kind),
			EntityType:  p.EntityType,
			EntityID:    p.EntityID,
			MaxAttempts: spec.Delivery.MaxAttempts(),
			Payload:     datatypes.JSON(raw),
		}
		if _, err := d.jobs.Create(dbc, []*types.JobRun{job}); err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		if err := task.Bind(dbc, p, job.ID); err != nil {
			return fmt.Errorf("bind task: %w", err)
		}
		if d.cfg.NotifyChannel != "" && tx.Dialector.Name() == "postgres" {
			// delivered by postgres only when the transaction commits
			if err := tx.Exec("SELECT pg_notify(?, ?)", d.cfg.NotifyChannel, job.ID.String()).Error; err != nil {
				return fmt.Errorf("notify enqueue: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			d.record(string(spec.Kind), "insufficient_credits")
		} else {
			d.record(string(spec.Kind), "rejected")
		}
		return nil, err
	}

	d.record(string(spec.Kind), "accepted")
	d.log.Info("generation dispatched",
		"kind", spec.Kind,
		"job_id", job.ID,
		"user_id", req.UserID,
		"delivery", spec.Delivery.String(),
	)
	if d.notify != nil {
		d.notify.JobCreated(req.UserID, job)
	}
	if d.wake != nil {
		d.wake()
	}
	return &Accepted{
		TaskID:   job.ID,
		EntityID: prepared.EntityID,
		Status:   learning.StatusGenerating,
		StreamID: req.StreamID,
	}, nil
}
