// Package pipelinetest wires a sqlite database, miniredis and a local stream broker
// behind the generation dispatcher so pipeline tests can dispatch a kind and run its job.
package pipelinetest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

type Env struct {
	DB         *gorm.DB
	Redis      *miniredis.Miniredis
	Deps       generation.Deps
	Registry   *generation.Registry
	Dispatcher *generation.Dispatcher
	Bridge     *generation.Bridge
	Broker     *streaming.LocalBroker
	Prompts    *prompts.Catalog
}

func New(t *testing.T) *Env {
	t.Helper()
	db := testutil.DB(t)
	log := logger.Nop()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	broker := streaming.NewLocalBroker(256)
	deps := generation.Deps{
		Users:        repos.NewUserRepo(db, log),
		Courses:      repos.NewCourseRepo(db, log),
		Modules:      repos.NewModuleRepo(db, log),
		Lessons:      repos.NewLessonRepo(db, log),
		Roadmaps:     repos.NewRoadmapRepo(db, log),
		RoadmapNodes: repos.NewRoadmapNodeRepo(db, log),
		Jobs:         repos.NewJobRunRepo(db, log),
		Mailbox:      generation.NewMailbox(rdb),
		Broker:       broker,
	}
	reg, err := generation.NewDefaultRegistry(deps)
	require.NoError(t, err)
	ledger := credits.NewLedger(db, deps.Users, log, nil)
	disp := generation.NewDispatcher(db, log, reg, ledger, deps.Jobs, nil, nil, generation.DispatcherConfig{})
	catalog, err := prompts.Load()
	require.NoError(t, err)

	return &Env{
		DB:         db,
		Redis:      mr,
		Deps:       deps,
		Registry:   reg,
		Dispatcher: disp,
		Bridge:     generation.NewBridge(log, reg, disp, broker, nil, 2*time.Second),
		Broker:     broker,
		Prompts:    catalog,
	}
}

// User seeds a free user with a full daily allowance.
func (e *Env) User(t *testing.T) *types.User {
	t.Helper()
	return testutil.SeedUser(t, context.Background(), e.DB, uuid.NewString()+"@example.com", func(u *types.User) {
		next := time.Now().UTC().Add(time.Hour)
		u.Credits = credits.DailyAllowance
		u.CreditsResetAt = &next
	})
}

// Run claims the job the way the worker does and hands it to h with the terminal hook attached.
func (e *Env) Run(t *testing.T, h runtime.Handler, jobID uuid.UUID) *types.JobRun {
	t.Helper()
	ctx := context.Background()
	dbc := dbctx.Bg(ctx)
	now := time.Now().UTC()
	require.NoError(t, e.Deps.Jobs.UpdateFields(dbc, jobID, map[string]interface{}{
		"status":       jobdomain.StatusRunning,
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
	}))
	job, err := e.Deps.Jobs.GetByID(dbc, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)

	jc := runtime.NewContext(ctx, e.DB, job, e.Deps.Jobs, nil)
	jc.Retry = runtime.RetryPolicy{Base: time.Minute, Max: time.Hour}
	jc.OnTerminal = e.Registry.TerminalHook(logger.Nop())
	if err := h.Run(jc); err != nil {
		jc.Fail("run", err)
	}
	if !jc.Finished() {
		jc.Succeed("done", nil)
	}

	out, err := e.Deps.Jobs.GetByID(dbc, jobID)
	require.NoError(t, err)
	return out
}
