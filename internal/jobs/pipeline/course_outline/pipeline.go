package course_outline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/structured"
	jobrt "github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

type outline struct {
	Refused       bool   `json:"refused"`
	RefusalReason string `json:"refusal_reason"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Modules       []struct {
		Title   string `json:"title"`
		Lessons []struct {
			Title string `json:"title"`
		} `json:"lessons"`
	} `json:"modules"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	courseID, ok := jc.PayloadUUID("course_id")
	if !ok {
		courseID, ok = entityID(jc.Job)
	}
	if !ok || courseID == uuid.Nil {
		jc.Fail("validate", jobrt.Permanent(fmt.Errorf("missing course_id")))
		return nil
	}
	course, err := p.courses.GetByID(dbctx.Bg(jc.Ctx), courseID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if course == nil {
		jc.Fail("load", jobrt.Permanent(fmt.Errorf("course %s not found", courseID)))
		return nil
	}

	jc.Progress("generate", 10, "Generating course outline")
	var out outline
	prompt, err := structured.Generate(jc.Ctx, p.ai, p.prompts, prompts.PromptCourseOutline, prompts.Input{
		Topic:        firstNonEmpty(jc.PayloadString("topic"), course.Title),
		Level:        firstNonEmpty(jc.PayloadString("level"), course.Level, "beginner"),
		CustomPrompt: firstNonEmpty(jc.PayloadString("custom_prompt"), course.CustomPrompt),
	}, &out)
	if err != nil {
		jc.Fail("generate", err)
		return nil
	}
	if out.Refused {
		reason := strings.TrimSpace(out.RefusalReason)
		if reason == "" {
			reason = "topic refused"
		}
		jc.Fail("generate", jobrt.Permanent(errors.New(reason)))
		return nil
	}
	if len(out.Modules) == 0 {
		jc.Fail("generate", errors.New("outline has no modules"))
		return nil
	}

	jc.Progress("persist", 80, "Saving modules and lessons")
	course.Title = firstNonEmpty(strings.TrimSpace(out.Title), course.Title)
	course.Description = strings.TrimSpace(out.Description)
	modules := make([]*types.Module, 0, len(out.Modules))
	lessonCount := 0
	for _, m := range out.Modules {
		mod := &types.Module{Title: strings.TrimSpace(m.Title), Status: learning.StatusNotGenerated}
		for _, l := range m.Lessons {
			mod.Lessons = append(mod.Lessons, &types.Lesson{Title: strings.TrimSpace(l.Title), Status: learning.StatusNotGenerated})
			lessonCount++
		}
		modules = append(modules, mod)
	}

	err = p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if err := p.courses.ReplaceOutline(dbc, course, modules); err != nil {
			return fmt.Errorf("replace outline: %w", err)
		}
		if _, err := p.courses.UpdateStatusIf(dbc, course.ID, []string{learning.StatusGenerating}, learning.StatusNotStarted); err != nil {
			return fmt.Errorf("mark course ready: %w", err)
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	p.log.Info("Course outline generated", "course_id", course.ID, "modules", len(modules), "lessons", lessonCount)
	jc.Succeed("done", map[string]any{
		"course_id":      course.ID,
		"modules":        len(modules),
		"lessons":        lessonCount,
		"prompt_version": prompt.Version,
	})
	return nil
}

func entityID(job *types.JobRun) (uuid.UUID, bool) {
	if job.EntityID == nil {
		return uuid.Nil, false
	}
	return *job.EntityID, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
