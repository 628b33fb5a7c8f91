package chat_stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai/openaitest"
)

func send(t *testing.T, env *pipelinetest.Env, userID uuid.UUID, params map[string]any) *generation.Accepted {
	t.Helper()
	raw, _ := json.Marshal(params)
	acc, err := env.Dispatcher.Dispatch(context.Background(), "chat", generation.Request{UserID: userID, Params: raw})
	require.NoError(t, err)
	return acc
}

func TestChatKeepsHistoryAcrossTurns(t *testing.T) {
	env := pipelinetest.New(t)
	u := env.User(t)
	course, _, _ := testutil.SeedCourseTree(t, context.Background(), env.DB, u.ID)
	ai := &openaitest.Fake{Text: "first answer"}
	p := New(logger.Nop(), ai, env.Prompts, env.Deps.Mailbox, env.Deps.Courses)

	first := send(t, env, u.ID, map[string]any{"session_id": "s1", "message": "what is a slice?", "course_id": course.ID})
	job := env.Run(t, p, first.TaskID)
	require.Equal(t, jobdomain.StatusSucceeded, job.Status, job.Error)
	assert.Contains(t, ai.LastCall().System, "The learner is studying: Go.")

	st, err := env.Bridge.Status(context.Background(), "chat", u.ID, first.TaskID)
	require.NoError(t, err)
	assert.Equal(t, generation.Status{"status": "ready", "reply": "first answer"}, st)

	ai.Text = "second answer"
	second := send(t, env, u.ID, map[string]any{"session_id": "s1", "message": "and a map?"})
	env.Run(t, p, second.TaskID)

	history := ai.LastCall().History
	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "first answer", history[1].Content)
	assert.Equal(t, "and a map?", history[2].Content)

	saved, err := env.Deps.Mailbox.ChatHistory(context.Background(), u.ID, "s1")
	require.NoError(t, err)
	assert.Len(t, saved, 4)
}

func TestChatFailureIsTerminalAndReported(t *testing.T) {
	env := pipelinetest.New(t)
	u := env.User(t)
	p := New(logger.Nop(), &openaitest.Fake{Err: errors.New("upstream down")}, env.Prompts, env.Deps.Mailbox, env.Deps.Courses)

	acc := send(t, env, u.ID, map[string]any{"session_id": "s1", "message": "hi"})
	job := env.Run(t, p, acc.TaskID)
	assert.Equal(t, jobdomain.StatusFailed, job.Status)

	st, err := env.Bridge.Status(context.Background(), "chat", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "error", st["status"])
	assert.Contains(t, st["detail"], "upstream down")

	saved, err := env.Deps.Mailbox.ChatHistory(context.Background(), u.ID, "s1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}
