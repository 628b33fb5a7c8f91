package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type countingRecorder struct {
	consumed int
	denied   int
}

func (r *countingRecorder) CreditsConsumed(string, int) { r.consumed++ }
func (r *countingRecorder) CreditsDenied(string)        { r.denied++ }

func newLedger(t *testing.T, db *gorm.DB, rec Recorder) (*Ledger, repos.UserRepo) {
	t.Helper()
	users := repos.NewUserRepo(db, logger.Nop())
	return NewLedger(db, users, logger.Nop(), rec), users
}

func consume(t *testing.T, l *Ledger, db *gorm.DB, userID uuid.UUID, cost int) error {
	t.Helper()
	return db.Transaction(func(tx *gorm.DB) error {
		return l.Consume(dbctx.Context{Ctx: context.Background(), Tx: tx}, userID, "course_outline", cost)
	})
}

func TestLedgerScenarioFifteenToFive(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)
	u := testutil.SeedUser(t, ctx, db, "fifteen@example.com", func(u *types.User) {
		u.Credits = 15
		u.CreditsResetAt = &future
	})
	rec := &countingRecorder{}
	l, users := newLedger(t, db, rec)

	require.NoError(t, consume(t, l, db, u.ID, 10))

	err := consume(t, l, db, u.ID, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientCredits))

	got, err := users.GetByID(dbctx.Context{Ctx: ctx}, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Credits)
	assert.Equal(t, 10, got.TotalCreditsUsed)
	assert.Equal(t, 1, rec.consumed)
	assert.Equal(t, 1, rec.denied)
}

func TestLedgerPremiumIsExempt(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, db, "premium@example.com", func(u *types.User) {
		u.MembershipPlan = user.PlanPremium
		u.MembershipStatus = user.MembershipActive
	})
	l, users := newLedger(t, db, nil)

	require.NoError(t, consume(t, l, db, u.ID, 20))

	got, err := users.GetByID(dbctx.Context{Ctx: ctx}, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Credits)
	assert.Nil(t, got.CreditsResetAt)
}

func TestLedgerMonotonicity(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, db, "mono@example.com")
	l, users := newLedger(t, db, nil)

	_, err := l.EnsureValid(ctx, u.ID)
	require.NoError(t, err)

	spent := 0
	for _, cost := range []int{10, 20, 5, 10, 150, 20} {
		if err := consume(t, l, db, u.ID, cost); err == nil {
			spent += cost
		} else {
			require.True(t, errors.Is(err, ErrInsufficientCredits))
		}
	}

	got, err := users.GetByID(dbctx.Context{Ctx: ctx}, u.ID)
	require.NoError(t, err)
	assert.Equal(t, DailyAllowance-spent, got.Credits)
	assert.GreaterOrEqual(t, got.Credits, 0)
}

func TestLedgerEnsureValidCommitsReset(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	u := testutil.SeedUser(t, ctx, db, "reset@example.com", func(u *types.User) {
		u.Credits = 3
		u.CreditsResetAt = &past
	})
	l, users := newLedger(t, db, nil)

	first, err := l.EnsureValid(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, DailyAllowance, first.Credits)

	second, err := l.EnsureValid(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Credits, second.Credits)
	assert.True(t, first.CreditsResetAt.Equal(*second.CreditsResetAt))

	stored, err := users.GetByID(dbctx.Context{Ctx: ctx}, u.ID)
	require.NoError(t, err)
	assert.Equal(t, DailyAllowance, stored.Credits)

	require.NoError(t, users.UpdateFields(dbctx.Context{Ctx: ctx}, u.ID, map[string]interface{}{"credits": 7}))
	early, err := l.EnsureValid(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, early.Credits)

	tomorrow := first.CreditsResetAt.Add(time.Minute)
	third, err := l.WithClock(func() time.Time { return tomorrow }).EnsureValid(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, DailyAllowance, third.Credits)
	assert.True(t, third.CreditsResetAt.After(*first.CreditsResetAt))
}

func TestLedgerConsumeLocksUserRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	userID := uuid.New()
	resetAt := time.Now().UTC().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "email", "credits", "credits_reset_at", "membership_plan", "membership_status"}).
		AddRow(userID.String(), "lock@example.com", 50, resetAt, user.PlanFree, user.MembershipInactive)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "user" WHERE id = .* FOR UPDATE`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "user" SET .*credits - .* WHERE \(id = .* AND credits >= .*\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	l, _ := newLedger(t, db, nil)
	require.NoError(t, consume(t, l, db, userID, 10))
	require.NoError(t, mock.ExpectationsWereMet())
}
