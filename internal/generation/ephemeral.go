package generation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

type payloadFunc func(dbc dbctx.Context, req Request) (map[string]any, error)

// ephemeralTask keeps its result in a redis Slot instead of a table.
type ephemeralTask struct {
	spec    Spec
	slot    Slot
	mailbox *Mailbox
	jobs    repos.JobRunRepo
	// readyStatus and field shape the poll response once a result exists
	readyStatus string
	field       string
	rawJSON     bool
	payload     payloadFunc
}

func (t *ephemeralTask) Spec() Spec { return t.spec }

func (t *ephemeralTask) Prepare(dbc dbctx.Context, req Request) (*Prepared, error) {
	payload, err := t.payload(dbc, req)
	if err != nil {
		return nil, err
	}
	return &Prepared{EntityType: t.spec.EntityType, Payload: payload}, nil
}

func (t *ephemeralTask) Bind(dbc dbctx.Context, prepared *Prepared, handle uuid.UUID) error {
	return nil
}

func (t *ephemeralTask) Advance(ctx context.Context, job *types.JobRun, cause error) error {
	if job == nil {
		return nil
	}
	detail := "generation failed"
	if cause != nil {
		detail = cause.Error()
	}
	return t.mailbox.PutError(ctx, t.slot, job.ID, detail)
}

func (t *ephemeralTask) ReadStatus(ctx context.Context, userID uuid.UUID, handle uuid.UUID) (Status, error) {
	job, err := t.jobs.GetByID(dbctx.Bg(ctx), handle)
	if err != nil {
		return nil, err
	}
	if job != nil && job.OwnerUserID != userID {
		return nil, apierr.NotFound("task_not_found", nil)
	}

	v, ok, err := t.mailbox.ReadResult(ctx, t.slot, handle)
	if err != nil {
		return nil, err
	}
	if ok {
		if t.rawJSON {
			return Status{"status": t.readyStatus, t.field: json.RawMessage(v)}, nil
		}
		return Status{"status": t.readyStatus, t.field: v}, nil
	}

	detail, ok, err := t.mailbox.ReadError(ctx, t.slot, handle)
	if err != nil {
		return nil, err
	}
	if ok {
		return Status{"status": "error", "detail": detail}, nil
	}
	return Status{"status": pollStatus(job)}, nil
}
