package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	apperr "github.com/yungbote/coursebuilder-backend/internal/pkg/errors"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

// Recorder receives ledger outcomes. *observability.Metrics satisfies it.
type Recorder interface {
	CreditsConsumed(kind string, amount int)
	CreditsDenied(kind string)
}

type Ledger struct {
	db      *gorm.DB
	users   repos.UserRepo
	log     *logger.Logger
	metrics Recorder
	now     func() time.Time
}

func NewLedger(db *gorm.DB, users repos.UserRepo, baseLog *logger.Logger, metrics Recorder) *Ledger {
	return &Ledger{
		db:      db,
		users:   users,
		log:     baseLog.With("service", "CreditLedger"),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of the ledger that reads time from now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	cp := *l
	cp.now = now
	return &cp
}

// EnsureValid applies the daily reset and commits it in its own transaction so concurrent
// readers see the refreshed balance. It returns the user as stored after the call.
func (l *Ledger) EnsureValid(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	var out *types.User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := l.refreshLocked(dbctx.Context{Ctx: ctx, Tx: tx}, userID)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Consume charges cost credits inside dbc.Tx. The user row stays locked until the caller's
// transaction ends, so the charge and whatever the caller writes next commit or roll back together.
func (l *Ledger) Consume(dbc dbctx.Context, userID uuid.UUID, kind string, cost int) error {
	if dbc.Tx == nil {
		return fmt.Errorf("credits: Consume requires a transaction")
	}
	u, err := l.refreshLocked(dbc, userID)
	if err != nil {
		return err
	}
	charge, err := Authorize(u, cost, l.now())
	if err != nil {
		l.denied(kind)
		return err
	}
	if !charge {
		return nil
	}
	ok, err := l.users.ConsumeCredits(dbc, userID, cost)
	if err != nil {
		return fmt.Errorf("consume credits: %w", err)
	}
	if !ok {
		l.denied(kind)
		return &InsufficientCreditsError{Required: cost, Available: u.Credits}
	}
	if l.metrics != nil {
		l.metrics.CreditsConsumed(kind, cost)
	}
	l.log.Debug("Credits consumed", "user_id", userID, "kind", kind, "cost", cost, "remaining", u.Credits-cost)
	return nil
}

// ApplyDowngrade persists a lapsed premium membership as free/INACTIVE and updates u in place.
func (l *Ledger) ApplyDowngrade(ctx context.Context, u *types.User) error {
	if !Downgrade(u, l.now()) {
		return nil
	}
	l.log.Info("Downgrading expired membership", "user_id", u.ID)
	return l.users.UpdateFields(dbctx.Context{Ctx: ctx}, u.ID, map[string]interface{}{
		"membership_plan":   u.MembershipPlan,
		"membership_status": u.MembershipStatus,
	})
}

func (l *Ledger) refreshLocked(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	u, err := l.users.GetByIDForUpdate(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	if Refresh(u, l.now()) {
		if err := l.users.UpdateFields(dbc, userID, map[string]interface{}{
			"credits":          u.Credits,
			"credits_reset_at": u.CreditsResetAt,
		}); err != nil {
			return nil, fmt.Errorf("reset credits: %w", err)
		}
	}
	return u, nil
}

func (l *Ledger) denied(kind string) {
	if l.metrics != nil {
		l.metrics.CreditsDenied(kind)
	}
}
