package course_outline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai/openaitest"
)

func outlineJSON() map[string]any {
	return map[string]any{
		"refused":        false,
		"refusal_reason": "",
		"title":          "Go Fundamentals",
		"description":    "Learn Go from scratch.",
		"modules": []any{
			map[string]any{"title": "Basics", "lessons": []any{
				map[string]any{"title": "Variables"},
				map[string]any{"title": "Types"},
			}},
			map[string]any{"title": "Concurrency", "lessons": []any{
				map[string]any{"title": "Goroutines"},
			}},
		},
	}
}

func dispatch(t *testing.T, env *pipelinetest.Env) (*generation.Accepted, uuid.UUID) {
	t.Helper()
	u := env.User(t)
	raw, _ := json.Marshal(map[string]any{"topic": "Go", "custom_prompt": "focus on tooling"})
	acc, err := env.Dispatcher.Dispatch(context.Background(), "course_outline", generation.Request{UserID: u.ID, Params: raw})
	require.NoError(t, err)
	return acc, u.ID
}

func TestCourseOutlinePersistsModulesAndLessons(t *testing.T) {
	env := pipelinetest.New(t)
	ai := &openaitest.Fake{JSON: outlineJSON()}
	p := New(env.DB, logger.Nop(), ai, env.Prompts, env.Deps.Courses)
	acc, userID := dispatch(t, env)

	job := env.Run(t, p, acc.TaskID)
	assert.Equal(t, jobdomain.StatusSucceeded, job.Status)

	call := ai.LastCall()
	assert.Equal(t, "course_outline", call.SchemaName)
	assert.Contains(t, call.User, "TOPIC: Go")
	assert.Contains(t, call.User, "LEVEL: Beginner")
	assert.Contains(t, call.User, "focus on tooling")

	course, err := env.Deps.Courses.GetWithOutline(dbctx.Bg(context.Background()), *acc.EntityID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusNotStarted, course.Status)
	assert.Equal(t, "Go Fundamentals", course.Title)
	require.Len(t, course.Modules, 2)
	assert.Equal(t, "Basics", course.Modules[0].Title)
	require.Len(t, course.Modules[0].Lessons, 2)
	assert.Equal(t, learning.StatusNotGenerated, course.Modules[0].Lessons[0].Status)
	assert.Equal(t, userID, course.Modules[0].Lessons[0].UserID)

	st, err := env.Bridge.Status(context.Background(), "course", userID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", st["status"])
}

func TestCourseOutlineRerunReplacesOutline(t *testing.T) {
	env := pipelinetest.New(t)
	p := New(env.DB, logger.Nop(), &openaitest.Fake{JSON: outlineJSON()}, env.Prompts, env.Deps.Courses)
	acc, _ := dispatch(t, env)

	env.Run(t, p, acc.TaskID)
	env.Run(t, p, acc.TaskID)

	course, err := env.Deps.Courses.GetWithOutline(dbctx.Bg(context.Background()), *acc.EntityID)
	require.NoError(t, err)
	assert.Len(t, course.Modules, 2)
	var lessons int64
	require.NoError(t, env.DB.Table("lesson").Count(&lessons).Error)
	assert.Equal(t, int64(3), lessons)
}

func TestCourseOutlineRefusalFailsImmediately(t *testing.T) {
	env := pipelinetest.New(t)
	out := outlineJSON()
	out["refused"] = true
	out["refusal_reason"] = "unsafe topic"
	out["modules"] = []any{}
	p := New(env.DB, logger.Nop(), &openaitest.Fake{JSON: out}, env.Prompts, env.Deps.Courses)
	acc, _ := dispatch(t, env)

	job := env.Run(t, p, acc.TaskID)
	assert.Equal(t, jobdomain.StatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "unsafe topic", job.Error)

	course, err := env.Deps.Courses.GetByID(dbctx.Bg(context.Background()), *acc.EntityID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusFailed, course.Status)
}

func TestCourseOutlineTransientFailureRetries(t *testing.T) {
	env := pipelinetest.New(t)
	p := New(env.DB, logger.Nop(), &openaitest.Fake{Err: errors.New("503 upstream")}, env.Prompts, env.Deps.Courses)
	acc, _ := dispatch(t, env)

	job := env.Run(t, p, acc.TaskID)
	assert.Equal(t, jobdomain.StatusRetrying, job.Status)

	course, err := env.Deps.Courses.GetByID(dbctx.Bg(context.Background()), *acc.EntityID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusGenerating, course.Status)
}

func TestCourseOutlineRejectsInvalidOutput(t *testing.T) {
	env := pipelinetest.New(t)
	out := outlineJSON()
	delete(out, "modules")
	p := New(env.DB, logger.Nop(), &openaitest.Fake{JSON: out}, env.Prompts, env.Deps.Courses)
	acc, _ := dispatch(t, env)

	job := env.Run(t, p, acc.TaskID)
	assert.Equal(t, jobdomain.StatusRetrying, job.Status)
	assert.Contains(t, job.Error, "failed validation")
}
