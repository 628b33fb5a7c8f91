package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

type LessonStreamParams struct {
	CourseID uuid.UUID `json:"course_id"`
	ModuleID uuid.UUID `json:"module_id"`
	LessonID uuid.UUID `json:"lesson_id"`
}

// lessonStreamTask has no row of its own: the lesson it fills already exists
// and its tokens go straight to the waiting client.
type lessonStreamTask struct {
	lessons repos.LessonRepo
	modules repos.ModuleRepo
	courses repos.CourseRepo
	jobs    repos.JobRunRepo
	broker  streaming.Broker
}

func (t *lessonStreamTask) Spec() Spec {
	return Spec{Kind: KindLessonStream, Cost: 20, Form: FormStream, Delivery: AtMostOnce, EntityType: "lesson"}
}

func (t *lessonStreamTask) Prepare(dbc dbctx.Context, req Request) (*Prepared, error) {
	if req.StreamID == "" {
		return nil, apierr.BadRequest("stream_required", errors.New("lesson_stream must be opened as a stream"))
	}
	var p LessonStreamParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, apierr.BadRequest("invalid_params", fmt.Errorf("decode lesson stream params: %w", err))
	}
	if p.CourseID == uuid.Nil || p.ModuleID == uuid.Nil || p.LessonID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_params", errors.New("course_id, module_id and lesson_id are required"))
	}
	lesson, err := t.lessons.GetByID(dbc, p.LessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil || lesson.UserID != req.UserID || lesson.ModuleID != p.ModuleID {
		return nil, apierr.NotFound("lesson_not_found", errors.New("lesson not found"))
	}
	module, err := t.modules.GetByID(dbc, p.ModuleID)
	if err != nil {
		return nil, err
	}
	if module == nil || module.CourseID != p.CourseID {
		return nil, apierr.NotFound("lesson_not_found", errors.New("lesson not found"))
	}
	course, err := t.courses.GetByID(dbc, p.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil || course.UserID != req.UserID {
		return nil, apierr.NotFound("course_not_found", errors.New("course not found"))
	}

	id := p.LessonID
	return &Prepared{
		EntityType: "lesson",
		EntityID:   &id,
		Payload: map[string]any{
			"lesson_id": p.LessonID.String(),
			"module_id": p.ModuleID.String(),
			"course_id": p.CourseID.String(),
			"stream_id": req.StreamID,
		},
	}, nil
}

func (t *lessonStreamTask) Bind(dbc dbctx.Context, prepared *Prepared, handle uuid.UUID) error {
	return nil
}

// Advance closes the stream with the in-band error terminator.
func (t *lessonStreamTask) Advance(ctx context.Context, job *types.JobRun, cause error) error {
	if job == nil {
		return nil
	}
	var p struct {
		StreamID string `json:"stream_id"`
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.StreamID == "" {
		return fmt.Errorf("lesson stream job %s has no stream_id", job.ID)
	}
	detail := "generation failed"
	if cause != nil {
		detail = cause.Error()
	}
	return t.broker.Publish(ctx, p.StreamID, streaming.ErrorMessage(detail))
}

func (t *lessonStreamTask) ReadStatus(ctx context.Context, userID uuid.UUID, handle uuid.UUID) (Status, error) {
	job, err := t.jobs.GetByID(dbctx.Bg(ctx), handle)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != userID {
		return Status{"status": pollStatus(nil)}, nil
	}
	return Status{"status": pollStatus(job)}, nil
}
