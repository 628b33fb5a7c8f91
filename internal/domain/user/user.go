package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	PlanFree    = "free"
	PlanPremium = "premium"

	MembershipActive   = "ACTIVE"
	MembershipInactive = "INACTIVE"
	MembershipCanceled = "CANCELED"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string    `gorm:"not null;column:password" json:"-"`
	FirstName string    `gorm:"not null;column:first_name" json:"first_name"`
	LastName  string    `gorm:"not null;column:last_name" json:"last_name"`
	Role      string    `gorm:"column:role;not null;default:'user';index" json:"role"`
	Suspended bool      `gorm:"column:suspended;not null;default:false" json:"suspended"`

	// Credit ledger. Kept on the user row so it can be locked in the same
	// transaction that creates a generation row.
	Credits          int        `gorm:"column:credits;not null;default:0" json:"credits"`
	CreditsResetAt   *time.Time `gorm:"column:credits_reset_at" json:"credits_reset_at,omitempty"`
	TotalCreditsUsed int        `gorm:"column:total_credits_used;not null;default:0" json:"total_credits_used"`

	MembershipPlan        string     `gorm:"column:membership_plan;not null;default:'free';index" json:"membership_plan"`
	MembershipStatus      string     `gorm:"column:membership_status;not null;default:'INACTIVE';index" json:"membership_status"`
	MembershipActiveUntil *time.Time `gorm:"column:membership_active_until" json:"membership_active_until,omitempty"`
	StripeCustomerID      *string    `gorm:"column:stripe_customer_id;index" json:"-"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.MembershipPlan == "" {
		u.MembershipPlan = PlanFree
	}
	if u.MembershipStatus == "" {
		u.MembershipStatus = MembershipInactive
	}
	return nil
}

// IsPremiumActive reports whether the user holds an active premium plan.
func (u *User) IsPremiumActive() bool {
	return u != nil && u.MembershipPlan == PlanPremium && u.MembershipStatus == MembershipActive
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }
