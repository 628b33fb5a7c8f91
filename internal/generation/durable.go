package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
)

const StatusUnknown = "UNKNOWN"

// DurableRow is the part of a course or roadmap the task lifecycle needs.
type DurableRow struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Status string
}

// DurableStore adapts a relational table that carries a task_id and a status.
type DurableStore interface {
	ByTaskID(dbc dbctx.Context, taskID string) (*DurableRow, error)
	ByID(dbc dbctx.Context, id uuid.UUID) (*DurableRow, error)
	SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error
	TransitionIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error)
}

type createFunc func(dbc dbctx.Context, req Request) (uuid.UUID, map[string]any, error)

type durableTask struct {
	spec   Spec
	store  DurableStore
	jobs   repos.JobRunRepo
	idKey  string
	create createFunc
}

func (t *durableTask) Spec() Spec { return t.spec }

func (t *durableTask) Prepare(dbc dbctx.Context, req Request) (*Prepared, error) {
	id, payload, err := t.create(dbc, req)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload[t.idKey] = id.String()
	return &Prepared{EntityType: t.spec.EntityType, EntityID: &id, Payload: payload}, nil
}

func (t *durableTask) Bind(dbc dbctx.Context, prepared *Prepared, handle uuid.UUID) error {
	if prepared == nil || prepared.EntityID == nil {
		return fmt.Errorf("%s: nothing to bind", t.spec.Kind)
	}
	return t.store.SetTaskID(dbc, *prepared.EntityID, handle.String())
}

// Advance marks the row FAILED; rows that already left GENERATING are untouched.
func (t *durableTask) Advance(ctx context.Context, job *types.JobRun, cause error) error {
	if job == nil || job.EntityID == nil {
		return nil
	}
	_, err := t.store.TransitionIf(dbctx.Bg(ctx), *job.EntityID, []string{learning.StatusGenerating}, learning.StatusFailed)
	return err
}

func (t *durableTask) ReadStatus(ctx context.Context, userID uuid.UUID, handle uuid.UUID) (Status, error) {
	dbc := dbctx.Bg(ctx)
	job, err := t.jobs.GetByID(dbc, handle)
	if err != nil {
		return nil, err
	}
	if job != nil && job.OwnerUserID != userID {
		return Status{"status": StatusUnknown}, nil
	}
	row, err := t.store.ByTaskID(dbc, handle.String())
	if err != nil {
		return nil, err
	}
	// the task id is bound in the dispatch transaction, but rows written by
	// older releases may lack it
	if row == nil && job != nil && job.EntityID != nil {
		if row, err = t.store.ByID(dbc, *job.EntityID); err != nil {
			return nil, err
		}
	}
	if row == nil || row.UserID != userID {
		return Status{"status": StatusUnknown}, nil
	}

	if job != nil {
		switch job.Status {
		case jobdomain.StatusSucceeded:
			if _, err := t.store.TransitionIf(dbc, row.ID, []string{learning.StatusGenerating}, learning.StatusNotStarted); err != nil {
				return nil, err
			}
			return Status{"status": "SUCCESS", t.idKey: row.ID}, nil
		case jobdomain.StatusFailed:
			if _, err := t.store.TransitionIf(dbc, row.ID, []string{learning.StatusGenerating}, learning.StatusFailed); err != nil {
				return nil, err
			}
			return Status{"status": "FAILURE", t.idKey: row.ID}, nil
		}
	}
	return Status{"status": row.Status, t.idKey: row.ID}, nil
}

type courseStore struct{ courses repos.CourseRepo }

func (s courseStore) ByTaskID(dbc dbctx.Context, taskID string) (*DurableRow, error) {
	c, err := s.courses.GetByTaskID(dbc, taskID)
	return courseRow(c), err
}

func (s courseStore) ByID(dbc dbctx.Context, id uuid.UUID) (*DurableRow, error) {
	c, err := s.courses.GetByID(dbc, id)
	return courseRow(c), err
}

func (s courseStore) SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error {
	return s.courses.SetTaskID(dbc, id, taskID)
}

func (s courseStore) TransitionIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error) {
	return s.courses.UpdateStatusIf(dbc, id, from, to)
}

func courseRow(c *types.Course) *DurableRow {
	if c == nil {
		return nil
	}
	return &DurableRow{ID: c.ID, UserID: c.UserID, Status: c.Status}
}

type roadmapStore struct{ roadmaps repos.RoadmapRepo }

func (s roadmapStore) ByTaskID(dbc dbctx.Context, taskID string) (*DurableRow, error) {
	r, err := s.roadmaps.GetByTaskID(dbc, taskID)
	return roadmapRow(r), err
}

func (s roadmapStore) ByID(dbc dbctx.Context, id uuid.UUID) (*DurableRow, error) {
	r, err := s.roadmaps.GetByID(dbc, id)
	return roadmapRow(r), err
}

func (s roadmapStore) SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error {
	return s.roadmaps.SetTaskID(dbc, id, taskID)
}

func (s roadmapStore) TransitionIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error) {
	return s.roadmaps.UpdateStatusIf(dbc, id, from, to)
}

func roadmapRow(r *types.Roadmap) *DurableRow {
	if r == nil {
		return nil
	}
	return &DurableRow{ID: r.ID, UserID: r.UserID, Status: r.Status}
}
