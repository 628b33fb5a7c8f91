package lesson_stream

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	jobrt "github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

/*
Run streams one lesson to the subscriber waiting on stream_id.
Every delta is published as it arrives. Content and status changes commit in one
transaction, and only then is the end sentinel published. Failures are terminal for
this job type; the terminal hook publishes the error sentinel, so Run never does.
*/
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	streamID := jc.PayloadString("stream_id")
	if streamID == "" {
		jc.Fail("validate", jobrt.Permanent(errors.New("missing stream_id")))
		return nil
	}
	lessonID, okL := jc.PayloadUUID("lesson_id")
	moduleID, okM := jc.PayloadUUID("module_id")
	courseID, okC := jc.PayloadUUID("course_id")
	if !okL || !okM || !okC {
		jc.Fail("validate", jobrt.Permanent(errors.New("missing lesson_id, module_id or course_id")))
		return nil
	}

	dbc := dbctx.Bg(jc.Ctx)
	lesson, err := p.lessons.GetByID(dbc, lessonID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if lesson == nil || lesson.ModuleID != moduleID {
		jc.Fail("load", jobrt.Permanent(fmt.Errorf("lesson %s not found", lessonID)))
		return nil
	}
	course, err := p.courses.GetByID(dbc, courseID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if course == nil {
		jc.Fail("load", jobrt.Permanent(fmt.Errorf("course %s not found", courseID)))
		return nil
	}
	module, err := p.modules.GetByID(dbc, moduleID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	in := prompts.Input{LessonTitle: lesson.Title, CourseTitle: course.Title}
	if module != nil {
		in.ModuleTitle = module.Title
	}
	prompt, err := p.prompts.Build(prompts.PromptLessonStream, in)
	if err != nil {
		jc.Fail("prompt", jobrt.Permanent(err))
		return nil
	}

	jc.Progress("stream", 10, "Streaming lesson")
	chunks := 0
	content, err := p.ai.StreamText(jc.Ctx, prompt.System, prompt.User, func(delta string) error {
		chunks++
		return p.broker.Publish(jc.Ctx, streamID, delta)
	})
	if err != nil {
		jc.Fail("stream", err)
		return nil
	}

	err = p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if err := p.lessons.SetContent(tdbc, lesson.ID, content); err != nil {
			return fmt.Errorf("save lesson content: %w", err)
		}
		if _, err := p.lessons.UpdateStatusIf(tdbc, lesson.ID, []string{learning.StatusNotGenerated}, learning.StatusInProgress); err != nil {
			return fmt.Errorf("lesson status: %w", err)
		}
		if module != nil {
			if err := p.markStarted(tdbc, module.ID, course.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	if err := p.broker.Publish(jc.Ctx, streamID, streaming.EndSentinel); err != nil {
		p.log.Warn("Publishing stream end failed", "stream_id", streamID, "error", err)
	}
	jc.Succeed("done", map[string]any{
		"lesson_id": lesson.ID,
		"chunks":    chunks,
		"bytes":     len(content),
	})
	return nil
}

// markStarted moves a NOT_GENERATED module and course to IN_PROGRESS. Any other status is left alone.
func (p *Pipeline) markStarted(dbc dbctx.Context, moduleID, courseID uuid.UUID) error {
	from := []string{learning.StatusNotGenerated}
	if _, err := p.modules.UpdateStatusIf(dbc, moduleID, from, learning.StatusInProgress); err != nil {
		return fmt.Errorf("module status: %w", err)
	}
	if _, err := p.courses.UpdateStatusIf(dbc, courseID, from, learning.StatusInProgress); err != nil {
		return fmt.Errorf("course status: %w", err)
	}
	return nil
}
