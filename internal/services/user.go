package services

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type UserService interface {
	// GetMe returns the caller after the daily credit reset and any lapsed-membership downgrade.
	GetMe(dbc dbctx.Context) (*types.User, error)
}

type userService struct {
	db     *gorm.DB
	log    *logger.Logger
	ledger *credits.Ledger
}

func NewUserService(db *gorm.DB, baseLog *logger.Logger, ledger *credits.Ledger) UserService {
	return &userService{db: db, log: baseLog.With("service", "UserService"), ledger: ledger}
}

func (us *userService) GetMe(dbc dbctx.Context) (*types.User, error) {
	userID, err := requestUserID(dbc)
	if err != nil {
		return nil, err
	}
	u, err := us.ledger.EnsureValid(dbc.Ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := us.ledger.ApplyDowngrade(dbc.Ctx, u); err != nil {
		us.log.Warn("Membership downgrade failed", "user_id", userID, "error", err)
		return nil, err
	}
	return u, nil
}
