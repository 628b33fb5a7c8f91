package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

// ListFilter narrows an admin user listing. Zero values match everything.
type ListFilter struct {
	Search    string
	Plan      string
	Role      string
	Suspended *bool
	Limit     int
	Offset    int
}

// Stats are the user counters shown on the admin dashboard.
type Stats struct {
	Total     int64 `json:"total_users"`
	Premium   int64 `json:"premium_users"`
	Free      int64 `json:"free_users"`
	Active    int64 `json:"active_users"`
	Suspended int64 `json:"suspended_users"`
	Admins    int64 `json:"admin_users"`
	NewLast7d int64 `json:"new_users_last_7_days"`
}

type UserRepo interface {
	Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error)
	GetByID(dbc dbctx.Context, userID uuid.UUID) (*types.User, error)
	GetByIDForUpdate(dbc dbctx.Context, userID uuid.UUID) (*types.User, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.User, error)
	GetByStripeCustomerID(dbc dbctx.Context, customerID string) (*types.User, error)
	EmailExists(dbc dbctx.Context, email string) (bool, error)
	UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error
	ConsumeCredits(dbc dbctx.Context, userID uuid.UUID, cost int) (bool, error)
	List(dbc dbctx.Context, filter ListFilter) ([]*types.User, int64, error)
	Stats(dbc dbctx.Context, now time.Time) (Stats, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	if len(users) == 0 {
		return []*types.User{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (ur *userRepo) GetByID(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	return firstOrNil(transaction.WithContext(dbc.Ctx).Where("id = ?", userID))
}

// GetByIDForUpdate locks the user row until the surrounding transaction ends.
// It must run inside dbc.Tx; outside a transaction the lock is released immediately.
func (ur *userRepo) GetByIDForUpdate(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	return firstOrNil(transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID))
}

func (ur *userRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return firstOrNil(transaction.WithContext(dbc.Ctx).Where("email = ?", email))
}

func (ur *userRepo) GetByStripeCustomerID(dbc dbctx.Context, customerID string) (*types.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, nil
	}
	return firstOrNil(transaction.WithContext(dbc.Ctx).Where("stripe_customer_id = ?", customerID))
}

func (ur *userRepo) EmailExists(dbc dbctx.Context, email string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	if userID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Updates(updates).Error
}

// ConsumeCredits decrements credits by cost only when the balance covers it.
// It reports false when the guard rejected the update.
func (ur *userRepo) ConsumeCredits(dbc dbctx.Context, userID uuid.UUID, cost int) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	if userID == uuid.Nil || cost < 0 {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("id = ? AND credits >= ?", userID, cost).
		Updates(map[string]interface{}{
			"credits":            gorm.Expr("credits - ?", cost),
			"total_credits_used": gorm.Expr("total_credits_used + ?", cost),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (ur *userRepo) List(dbc dbctx.Context, filter ListFilter) ([]*types.User, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.User{})
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}
	if filter.Plan != "" {
		q = q.Where("membership_plan = ?", filter.Plan)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.Suspended != nil {
		q = q.Where("suspended = ?", *filter.Suspended)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.User
	if err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (ur *userRepo) Stats(dbc dbctx.Context, now time.Time) (Stats, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.db
	}
	base := func() *gorm.DB { return transaction.WithContext(dbc.Ctx).Model(&types.User{}) }

	var st Stats
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&st.Total, base()},
		{&st.Premium, base().Where("membership_plan = ? AND membership_status = ?", user.PlanPremium, user.MembershipActive)},
		{&st.Free, base().Where("membership_plan = ?", user.PlanFree)},
		{&st.Active, base().Where("suspended = ?", false)},
		{&st.Suspended, base().Where("suspended = ?", true)},
		{&st.Admins, base().Where("role = ?", user.RoleAdmin)},
		{&st.NewLast7d, base().Where("created_at >= ?", now.Add(-7*24*time.Hour))},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

func firstOrNil(q *gorm.DB) (*types.User, error) {
	var u types.User
	err := q.First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
