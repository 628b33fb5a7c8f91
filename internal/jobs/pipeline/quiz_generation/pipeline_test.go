package quiz_generation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai/openaitest"
)

func question(correct int) map[string]any {
	return map[string]any{
		"question":             "What starts a goroutine?",
		"options":              []any{"go", "defer", "chan", "select"},
		"correct_option_index": correct,
		"explanation":          "The go statement.",
	}
}

func dispatchQuiz(t *testing.T, env *pipelinetest.Env) *generation.Accepted {
	t.Helper()
	u := env.User(t)
	raw, _ := json.Marshal(map[string]any{"lesson_name": "Goroutines"})
	acc, err := env.Dispatcher.Dispatch(context.Background(), "quiz", generation.Request{UserID: u.ID, Params: raw})
	require.NoError(t, err)
	return acc
}

func TestQuizStoredWithTTL(t *testing.T) {
	env := pipelinetest.New(t)
	ai := &openaitest.Fake{JSON: map[string]any{"questions": []any{question(0)}}}
	p := New(logger.Nop(), ai, env.Prompts, env.Deps.Mailbox)
	acc := dispatchQuiz(t, env)

	job := env.Run(t, p, acc.TaskID)
	require.Equal(t, jobdomain.StatusSucceeded, job.Status, job.Error)
	assert.Contains(t, ai.LastCall().User, `"Goroutines"`)

	key := "quiz:" + acc.TaskID.String()
	assert.Equal(t, generation.QuizTTL, env.Redis.TTL(key))
	raw, err := env.Redis.Get(key)
	require.NoError(t, err)
	var quiz Quiz
	require.NoError(t, json.Unmarshal([]byte(raw), &quiz))
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "go", quiz.Questions[0].Options[0])

	u, err := env.Deps.Jobs.GetByID(dbcFor(), acc.TaskID)
	require.NoError(t, err)
	st, err := env.Bridge.Status(context.Background(), "quiz", u.OwnerUserID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "done", st["status"])

	env.Redis.FastForward(generation.QuizTTL + time.Second)
	assert.False(t, env.Redis.Exists(key))
	st, err = env.Bridge.Status(context.Background(), "quiz", u.OwnerUserID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "success", st["status"])
}

func TestQuizRejectsOutOfRangeAnswer(t *testing.T) {
	env := pipelinetest.New(t)
	p := New(logger.Nop(), &openaitest.Fake{JSON: map[string]any{"questions": []any{question(7)}}}, env.Prompts, env.Deps.Mailbox)
	acc := dispatchQuiz(t, env)

	job := env.Run(t, p, acc.TaskID)
	assert.Equal(t, jobdomain.StatusRetrying, job.Status)
	assert.False(t, env.Redis.Exists("quiz:"+acc.TaskID.String()))
}

func dbcFor() dbctx.Context { return dbctx.Bg(context.Background()) }
