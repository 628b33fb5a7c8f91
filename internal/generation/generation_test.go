package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

type fixture struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	deps       Deps
	registry   *Registry
	dispatcher *Dispatcher
	bridge     *Bridge
	broker     *streaming.LocalBroker
	created    []uuid.UUID
	woken      int
}

func (f *fixture) JobCreated(userID uuid.UUID, job *types.JobRun) {
	f.created = append(f.created, job.ID)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := logger.Nop()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{db: db, mr: mr, broker: streaming.NewLocalBroker(64)}
	f.deps = Deps{
		Users:        repos.NewUserRepo(db, log),
		Courses:      repos.NewCourseRepo(db, log),
		Modules:      repos.NewModuleRepo(db, log),
		Lessons:      repos.NewLessonRepo(db, log),
		Roadmaps:     repos.NewRoadmapRepo(db, log),
		RoadmapNodes: repos.NewRoadmapNodeRepo(db, log),
		Jobs:         repos.NewJobRunRepo(db, log),
		Mailbox:      NewMailbox(rdb),
		Broker:       f.broker,
	}
	reg, err := NewDefaultRegistry(f.deps)
	require.NoError(t, err)
	f.registry = reg
	ledger := credits.NewLedger(db, f.deps.Users, log, nil)
	f.dispatcher = NewDispatcher(db, log, reg, ledger, f.deps.Jobs, f, nil, DispatcherConfig{NotifyChannel: "job_run_enqueued"})
	f.dispatcher.SetWaker(func() { f.woken++ })
	f.bridge = NewBridge(log, reg, f.dispatcher, f.broker, nil, time.Second)
	return f
}

func (f *fixture) seedUser(t *testing.T, mutate ...func(*types.User)) *types.User {
	t.Helper()
	return testutil.SeedUser(t, context.Background(), f.db, uuid.NewString()+"@example.com", mutate...)
}

func withCredits(n int) func(*types.User) {
	return func(u *types.User) {
		future := time.Now().UTC().Add(time.Hour)
		u.Credits = n
		u.CreditsResetAt = &future
	}
}

func (f *fixture) reloadUser(t *testing.T, id uuid.UUID) *types.User {
	t.Helper()
	var out types.User
	require.NoError(t, f.db.First(&out, "id = ?", id).Error)
	return &out
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) setJobStatus(t *testing.T, id uuid.UUID, status string) {
	t.Helper()
	require.NoError(t, f.db.Model(&types.JobRun{}).Where("id = ?", id).Update("status", status).Error)
}

func dbcBg() dbctx.Context { return dbctx.Bg(context.Background()) }

func params(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestParseKindAliases(t *testing.T) {
	assert.Equal(t, KindLessonStream, ParseKind("lesson"))
	assert.Equal(t, KindQuiz, ParseKind(" Quiz "))
	assert.Equal(t, KindCourseOutline, ParseKind("course_outline"))
	assert.Equal(t, Kind("nope"), ParseKind("nope"))
	assert.Equal(t, 4, AtLeastOnce.MaxAttempts())
	assert.Equal(t, 1, AtMostOnce.MaxAttempts())
}

func TestDispatchCourseOutline(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, withCredits(200))

	acc, err := f.dispatcher.Dispatch(context.Background(), "course_outline", Request{
		UserID: u.ID,
		Params: params(map[string]any{"topic": "Go", "level": "Intermediate"}),
	})
	require.NoError(t, err)
	assert.Equal(t, learning.StatusGenerating, acc.Status)
	require.NotNil(t, acc.EntityID)

	var course types.Course
	require.NoError(t, f.db.First(&course, "id = ?", *acc.EntityID).Error)
	assert.Equal(t, learning.StatusGenerating, course.Status)
	assert.Equal(t, "intermediate", course.Level)
	require.NotNil(t, course.TaskID)
	assert.Equal(t, acc.TaskID.String(), *course.TaskID)

	var job types.JobRun
	require.NoError(t, f.db.First(&job, "id = ?", acc.TaskID).Error)
	assert.Equal(t, string(KindCourseOutline), job.JobType)
	assert.Equal(t, 4, job.MaxAttempts)
	assert.Equal(t, jobdomain.StatusQueued, job.Status)
	assert.Contains(t, string(job.Payload), course.ID.String())

	assert.Equal(t, 190, f.reloadUser(t, u.ID).Credits)
	assert.Equal(t, []uuid.UUID{acc.TaskID}, f.created)
	assert.Equal(t, 1, f.woken)
}

func TestDispatchIsAtomicWhenCreditsRunOut(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, withCredits(15))
	req := Request{UserID: u.ID, Params: params(map[string]any{"topic": "Go"})}

	_, err := f.dispatcher.Dispatch(context.Background(), "course", req)
	require.NoError(t, err)
	assert.Equal(t, 5, f.reloadUser(t, u.ID).Credits)

	_, err = f.dispatcher.Dispatch(context.Background(), "course", req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, credits.ErrInsufficientCredits))

	assert.Equal(t, int64(1), f.count(t, &types.Course{}))
	assert.Equal(t, int64(1), f.count(t, &types.JobRun{}))
	assert.Equal(t, 5, f.reloadUser(t, u.ID).Credits)
	assert.Len(t, f.created, 1)
}

func TestDispatchRollsBackChargeOnInvalidParams(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, withCredits(50))

	_, err := f.dispatcher.Dispatch(context.Background(), "course_outline", Request{UserID: u.ID, Params: params(map[string]any{"level": "expert", "topic": "x"})})
	ae, ok := apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, 50, f.reloadUser(t, u.ID).Credits)
	assert.Equal(t, int64(0), f.count(t, &types.JobRun{}))
}

func TestDispatchPremiumIsNotCharged(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, withCredits(0), func(u *types.User) {
		u.MembershipPlan = user.PlanPremium
		u.MembershipStatus = user.MembershipActive
	})
	_, err := f.dispatcher.Dispatch(context.Background(), "roadmap", Request{UserID: u.ID, Params: params(map[string]any{"roadmap_name": "Backend"})})
	require.NoError(t, err)
	assert.Equal(t, 0, f.reloadUser(t, u.ID).Credits)
}

func TestDispatchUnknownKind(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t)
	_, err := f.dispatcher.Dispatch(context.Background(), "poem", Request{UserID: u.ID})
	ae, ok := apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestDispatchCourseLinksRoadmapNode(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, withCredits(200))
	rm := testutil.SeedRoadmap(t, context.Background(), f.db, u.ID, "1", "2")

	acc, err := f.dispatcher.Dispatch(context.Background(), "course_outline", Request{UserID: u.ID, Params: params(map[string]any{
		"topic": "HTTP", "roadmap_id": rm.ID, "roadmap_node_id": "2",
	})})
	require.NoError(t, err)

	var node types.RoadmapNode
	require.NoError(t, f.db.First(&node, "roadmap_id = ? AND node_id = ?", rm.ID, "2").Error)
	require.NotNil(t, node.CourseID)
	assert.Equal(t, *acc.EntityID, *node.CourseID)

	other := f.seedUser(t, withCredits(200))
	_, err = f.dispatcher.Dispatch(context.Background(), "course_outline", Request{UserID: other.ID, Params: params(map[string]any{
		"topic": "HTTP", "roadmap_id": rm.ID,
	})})
	ae, ok := apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestDurablePollReconcilesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(200))
	acc, err := f.dispatcher.Dispatch(ctx, "course_outline", Request{UserID: u.ID, Params: params(map[string]any{"topic": "Go"})})
	require.NoError(t, err)

	st, err := f.bridge.Status(ctx, "course_outline", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusGenerating, st["status"])

	f.setJobStatus(t, acc.TaskID, jobdomain.StatusSucceeded)
	st, err = f.bridge.Status(ctx, "course_outline", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", st["status"])
	assert.Equal(t, *acc.EntityID, st["course_id"])

	var course types.Course
	require.NoError(t, f.db.First(&course, "id = ?", *acc.EntityID).Error)
	assert.Equal(t, learning.StatusNotStarted, course.Status)

	// the learner moves on; later polls must not rewind the row
	require.NoError(t, f.deps.Courses.UpdateStatus(dbcBg(), course.ID, learning.StatusInProgress))
	_, err = f.bridge.Status(ctx, "course_outline", u.ID, acc.TaskID)
	require.NoError(t, err)
	require.NoError(t, f.db.First(&course, "id = ?", *acc.EntityID).Error)
	assert.Equal(t, learning.StatusInProgress, course.Status)

	st, err = f.bridge.Status(ctx, "course_outline", uuid.New(), acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, st["status"])
}

func TestDurablePollFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(200))
	acc, err := f.dispatcher.Dispatch(ctx, "roadmap_outline", Request{UserID: u.ID, Params: params(map[string]any{"roadmap_name": "Data"})})
	require.NoError(t, err)

	f.setJobStatus(t, acc.TaskID, jobdomain.StatusFailed)
	for i := 0; i < 2; i++ {
		st, err := f.bridge.Status(ctx, "roadmap", u.ID, acc.TaskID)
		require.NoError(t, err)
		assert.Equal(t, "FAILURE", st["status"])
	}
	var rm types.Roadmap
	require.NoError(t, f.db.First(&rm, "id = ?", *acc.EntityID).Error)
	assert.Equal(t, learning.StatusFailed, rm.Status)

	st, err := f.bridge.Status(ctx, "roadmap", u.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, st["status"])
}

func TestDurablePollFallsBackToJobEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(200))
	acc, err := f.dispatcher.Dispatch(ctx, "course_outline", Request{UserID: u.ID, Params: params(map[string]any{"topic": "Go"})})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&types.Course{}).Where("id = ?", *acc.EntityID).Update("task_id", nil).Error)

	st, err := f.bridge.Status(ctx, "course_outline", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusGenerating, st["status"])
}

func TestQuizPollHonoursTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(200))
	acc, err := f.dispatcher.Dispatch(ctx, "quiz", Request{UserID: u.ID, Params: params(map[string]any{"lesson_name": "Goroutines"})})
	require.NoError(t, err)
	assert.Nil(t, acc.EntityID)
	assert.Equal(t, 195, f.reloadUser(t, u.ID).Credits)

	st, err := f.bridge.Status(ctx, "quiz", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "pending", st["status"])

	require.NoError(t, f.deps.Mailbox.PutResult(ctx, QuizSlot, acc.TaskID, `{"questions":[]}`))
	ttl := f.mr.TTL("quiz:" + acc.TaskID.String())
	assert.Equal(t, QuizTTL, ttl)

	for i := 0; i < 2; i++ {
		st, err = f.bridge.Status(ctx, "quiz", u.ID, acc.TaskID)
		require.NoError(t, err)
		assert.Equal(t, "done", st["status"])
		assert.JSONEq(t, `{"questions":[]}`, string(st["quiz"].(json.RawMessage)))
	}

	f.mr.FastForward(QuizTTL + time.Second)
	f.setJobStatus(t, acc.TaskID, jobdomain.StatusSucceeded)
	st, err = f.bridge.Status(ctx, "quiz", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "success", st["status"])
}

func TestChatPollConsumesReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(0))
	acc, err := f.dispatcher.Dispatch(ctx, "chat", Request{UserID: u.ID, Params: params(map[string]any{"session_id": "s1", "message": "hi"})})
	require.NoError(t, err)

	require.NoError(t, f.deps.Mailbox.PutResult(ctx, ChatSlot, acc.TaskID, "hello there"))
	assert.Equal(t, time.Duration(0), f.mr.TTL("chat_result:"+acc.TaskID.String()))

	st, err := f.bridge.Status(ctx, "chat", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, Status{"status": "ready", "reply": "hello there"}, st)

	f.setJobStatus(t, acc.TaskID, jobdomain.StatusSucceeded)
	st, err = f.bridge.Status(ctx, "chat", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "success", st["status"])
}

func TestEphemeralTerminalFailureWritesErrorMailbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(200))
	acc, err := f.dispatcher.Dispatch(ctx, "quiz_generation", Request{UserID: u.ID, Params: params(map[string]any{"lesson_name": "x"})})
	require.NoError(t, err)

	job, err := f.deps.Jobs.GetByID(dbcBg(), acc.TaskID)
	require.NoError(t, err)
	f.registry.TerminalHook(logger.Nop())(ctx, job, errors.New("model unavailable"))

	st, err := f.bridge.Status(ctx, "quiz", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, Status{"status": "error", "detail": "model unavailable"}, st)

	_, err = f.bridge.Status(ctx, "quiz", uuid.New(), acc.TaskID)
	ae, ok := apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestOpenStreamRelaysTerminalFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, withCredits(200))
	c, m, l := testutil.SeedCourseTree(t, ctx, f.db, u.ID)

	stream, err := f.bridge.OpenStream(ctx, "lesson", Request{UserID: u.ID, Params: params(map[string]any{
		"course_id": c.ID, "module_id": m.ID, "lesson_id": l.ID,
	})})
	require.NoError(t, err)
	assert.NotEmpty(t, stream.Accepted.StreamID)
	assert.Equal(t, 180, f.reloadUser(t, u.ID).Credits)

	job, err := f.deps.Jobs.GetByID(dbcBg(), stream.Accepted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.MaxAttempts)
	assert.Contains(t, string(job.Payload), stream.Accepted.StreamID)

	f.registry.TerminalHook(logger.Nop())(ctx, job, errors.New("boom"))
	var out strings.Builder
	assert.Equal(t, streaming.OutcomeError, stream.Relay(ctx, &out, nil))
	assert.Equal(t, "event: error\ndata: {\"error\":\"boom\"}\n\n", out.String())
}

func TestOpenStreamRejectsForeignLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.seedUser(t, withCredits(200))
	intruder := f.seedUser(t, withCredits(200))
	c, m, l := testutil.SeedCourseTree(t, ctx, f.db, owner.ID)

	_, err := f.bridge.OpenStream(ctx, "lesson_stream", Request{UserID: intruder.ID, Params: params(map[string]any{
		"course_id": c.ID, "module_id": m.ID, "lesson_id": l.ID,
	})})
	ae, ok := apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Equal(t, 200, f.reloadUser(t, intruder.ID).Credits)
	assert.Equal(t, int64(0), f.count(t, &types.JobRun{}))

	_, err = f.bridge.OpenStream(ctx, "quiz", Request{UserID: owner.ID})
	ae, ok = apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
}

func TestLessonStreamRequiresStream(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, withCredits(200))
	_, err := f.dispatcher.Dispatch(context.Background(), "lesson_stream", Request{UserID: u.ID, Params: params(map[string]any{})})
	ae, ok := apierr.From(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
}

func TestChatHistoryIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := uuid.New()
	var h []ChatMessage
	for i := 0; i < maxChatTurns+10; i++ {
		h = append(h, ChatMessage{Role: "user", Content: "m"})
	}
	require.NoError(t, f.deps.Mailbox.SaveChatHistory(ctx, uid, "s", h))
	got, err := f.deps.Mailbox.ChatHistory(ctx, uid, "s")
	require.NoError(t, err)
	assert.Len(t, got, maxChatTurns)

	got, err = f.deps.Mailbox.ChatHistory(ctx, uid, "other")
	require.NoError(t, err)
	assert.Empty(t, got)
}
