package credits

import (
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
)

const (
	// DailyAllowance is the balance a non-premium user is topped up to on reset.
	DailyAllowance = 200
	ResetInterval  = 24 * time.Hour
)

// ErrInsufficientCredits matches every *InsufficientCreditsError through errors.Is.
var ErrInsufficientCredits = errors.New("insufficient credits")

type InsufficientCreditsError struct {
	Reason    string
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

// Refresh applies the daily reset to u in memory and reports whether anything changed.
// A balance already at or above the allowance keeps its deadline.
func Refresh(u *user.User, now time.Time) bool {
	if u == nil || u.IsPremiumActive() {
		return false
	}
	if u.CreditsResetAt == nil {
		next := now.Add(ResetInterval)
		u.Credits = DailyAllowance
		u.CreditsResetAt = &next
		return true
	}
	if !now.Before(*u.CreditsResetAt) && u.Credits < DailyAllowance {
		next := now.Add(ResetInterval)
		u.Credits = DailyAllowance
		u.CreditsResetAt = &next
		return true
	}
	return false
}

// Authorize decides whether u may spend cost credits at now.
// charge is false for exempt users. A refused request returns an *InsufficientCreditsError.
func Authorize(u *user.User, cost int, now time.Time) (charge bool, err error) {
	if u == nil {
		return false, &InsufficientCreditsError{Reason: "user not found", Required: cost}
	}
	if u.IsPremiumActive() {
		return false, nil
	}
	if u.MembershipActiveUntil != nil && u.MembershipActiveUntil.After(now) {
		return false, nil
	}
	if u.MembershipActiveUntil != nil && u.MembershipActiveUntil.Before(now) {
		return false, &InsufficientCreditsError{Reason: "membership expired", Required: cost, Available: u.Credits}
	}
	if cost <= 0 {
		return false, nil
	}
	if u.Credits < cost {
		return false, &InsufficientCreditsError{Required: cost, Available: u.Credits}
	}
	return true, nil
}

// Downgrade moves a lapsed premium membership back to the free plan in memory.
func Downgrade(u *user.User, now time.Time) bool {
	if u == nil || u.MembershipPlan != user.PlanPremium || u.MembershipStatus == user.MembershipActive {
		return false
	}
	if u.MembershipActiveUntil == nil || u.MembershipActiveUntil.After(now) {
		return false
	}
	u.MembershipPlan = user.PlanFree
	u.MembershipStatus = user.MembershipInactive
	return true
}
