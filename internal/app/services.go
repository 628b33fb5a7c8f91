package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/services"
)

type Services struct {
	Auth       services.AuthService
	User       services.UserService
	Jobs       services.JobService
	Learning   services.LearningService
	Admin      services.AdminService
	Membership services.MembershipService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, ledger *credits.Ledger) Services {
	log.Info("Wiring services...")
	return Services{
		Auth:       services.NewAuthService(db, log, r.Users, r.UserTokens, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		User:       services.NewUserService(db, log, ledger),
		Jobs:       services.NewJobService(db, log, r.JobRuns),
		Learning:   services.NewLearningService(db, log, r.Courses, r.Modules, r.Lessons, r.Roadmaps, r.RoadmapNodes),
		Admin:      services.NewAdminService(db, log, r.Users, r.UserTokens, r.Courses, r.Roadmaps, r.JobRuns),
		Membership: services.NewMembershipService(db, log, r.Users, cfg.StripeWebhookSecret),
	}
}
