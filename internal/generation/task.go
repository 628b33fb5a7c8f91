package generation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

// Request is what a client asked for.
type Request struct {
	UserID   uuid.UUID
	Params   json.RawMessage
	StreamID string
}

// Prepared is what Prepare hands back to the dispatcher for the job row.
type Prepared struct {
	EntityType string
	EntityID   *uuid.UUID
	Payload    map[string]any
}

// Status is the poll response body. "status" is always set.
type Status map[string]any

/*
Task is one generation kind.

The dispatcher calls Prepare and Bind inside the transaction that charges credits
and inserts the job, so a failure in either leaves nothing behind. The worker calls
Advance once a job has failed for good. The status bridge calls ReadStatus.
*/
type Task interface {
	Spec() Spec
	Prepare(dbc dbctx.Context, req Request) (*Prepared, error)
	Bind(dbc dbctx.Context, prepared *Prepared, handle uuid.UUID) error
	Advance(ctx context.Context, job *types.JobRun, cause error) error
	ReadStatus(ctx context.Context, userID uuid.UUID, handle uuid.UUID) (Status, error)
}
