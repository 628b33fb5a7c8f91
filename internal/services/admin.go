package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type DashboardStats struct {
	repos.UserStats
	Courses    int64 `json:"total_courses"`
	Roadmaps   int64 `json:"total_roadmaps"`
	JobsFailed int64 `json:"jobs_failed"`
}

type UserPage struct {
	Users  []*types.User `json:"users"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type MembershipUpdate struct {
	Plan        string     `json:"membership_plan"`
	Status      string     `json:"membership_status"`
	ActiveUntil *time.Time `json:"membership_active_until"`
}

type AdminService interface {
	Dashboard(dbc dbctx.Context) (*DashboardStats, error)
	ListUsers(dbc dbctx.Context, filter repos.UserListFilter) (*UserPage, error)
	GetUser(dbc dbctx.Context, userID uuid.UUID) (*types.User, error)
	SetCredits(dbc dbctx.Context, userID uuid.UUID, credits int) (*types.User, error)
	SetMembership(dbc dbctx.Context, userID uuid.UUID, in MembershipUpdate) (*types.User, error)
	SetRole(dbc dbctx.Context, userID uuid.UUID, role string) (*types.User, error)
	// SetSuspended toggles the flag; suspending also revokes every refresh token.
	SetSuspended(dbc dbctx.Context, userID uuid.UUID, suspended bool) (*types.User, error)
}

type adminService struct {
	db       *gorm.DB
	log      *logger.Logger
	users    repos.UserRepo
	tokens   repos.UserTokenRepo
	courses  repos.CourseRepo
	roadmaps repos.RoadmapRepo
	jobs     repos.JobRunRepo
	now      func() time.Time
}

func NewAdminService(
	db *gorm.DB,
	baseLog *logger.Logger,
	users repos.UserRepo,
	tokens repos.UserTokenRepo,
	courses repos.CourseRepo,
	roadmaps repos.RoadmapRepo,
	jobs repos.JobRunRepo,
) AdminService {
	return &adminService{
		db:       db,
		log:      baseLog.With("service", "AdminService"),
		users:    users,
		tokens:   tokens,
		courses:  courses,
		roadmaps: roadmaps,
		jobs:     jobs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *adminService) Dashboard(dbc dbctx.Context) (*DashboardStats, error) {
	us, err := s.users.Stats(dbc, s.now())
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	out := &DashboardStats{UserStats: us}
	if out.Courses, err = s.courses.Count(dbc); err != nil {
		return nil, fmt.Errorf("count courses: %w", err)
	}
	if out.Roadmaps, err = s.roadmaps.Count(dbc); err != nil {
		return nil, fmt.Errorf("count roadmaps: %w", err)
	}
	if out.JobsFailed, err = s.jobs.CountByStatus(dbc, jobdomain.StatusFailed); err != nil {
		return nil, fmt.Errorf("count failed jobs: %w", err)
	}
	return out, nil
}

func (s *adminService) ListUsers(dbc dbctx.Context, filter repos.UserListFilter) (*UserPage, error) {
	filter.Plan = strings.ToLower(strings.TrimSpace(filter.Plan))
	filter.Role = strings.ToLower(strings.TrimSpace(filter.Role))
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	users, total, err := s.users.List(dbc, filter)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return &UserPage{Users: users, Total: total, Limit: limit, Offset: filter.Offset}, nil
}

func (s *adminService) GetUser(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	u, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, notFound("user")
	}
	return u, nil
}

func (s *adminService) update(dbc dbctx.Context, userID uuid.UUID, fields map[string]interface{}) (*types.User, error) {
	if _, err := s.GetUser(dbc, userID); err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(dbc, userID, fields); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.log.Info("Admin updated user", "user_id", userID, "fields", fieldNames(fields))
	return s.GetUser(dbc, userID)
}

func (s *adminService) SetCredits(dbc dbctx.Context, userID uuid.UUID, credits int) (*types.User, error) {
	if credits < 0 {
		return nil, apierr.BadRequest("invalid_credits", errors.New("credits must not be negative"))
	}
	return s.update(dbc, userID, map[string]interface{}{"credits": credits})
}

func (s *adminService) SetMembership(dbc dbctx.Context, userID uuid.UUID, in MembershipUpdate) (*types.User, error) {
	plan := strings.ToLower(strings.TrimSpace(in.Plan))
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if plan != user.PlanFree && plan != user.PlanPremium {
		return nil, apierr.BadRequest("invalid_plan", fmt.Errorf("membership_plan must be %q or %q", user.PlanFree, user.PlanPremium))
	}
	switch status {
	case user.MembershipActive, user.MembershipInactive, user.MembershipCanceled:
	case "":
		status = user.MembershipActive
		if plan == user.PlanFree {
			status = user.MembershipInactive
		}
	default:
		return nil, apierr.BadRequest("invalid_membership_status", fmt.Errorf("unknown membership_status %q", in.Status))
	}
	return s.update(dbc, userID, map[string]interface{}{
		"membership_plan":         plan,
		"membership_status":       status,
		"membership_active_until": in.ActiveUntil,
	})
}

func (s *adminService) SetRole(dbc dbctx.Context, userID uuid.UUID, role string) (*types.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != user.RoleUser && role != user.RoleAdmin {
		return nil, apierr.BadRequest("invalid_role", fmt.Errorf("role must be %q or %q", user.RoleUser, user.RoleAdmin))
	}
	return s.update(dbc, userID, map[string]interface{}{"role": role})
}

func (s *adminService) SetSuspended(dbc dbctx.Context, userID uuid.UUID, suspended bool) (*types.User, error) {
	u, err := s.update(dbc, userID, map[string]interface{}{"suspended": suspended})
	if err != nil {
		return nil, err
	}
	if suspended {
		if err := s.tokens.DeleteByUserIDs(dbc, []uuid.UUID{userID}); err != nil {
			return nil, fmt.Errorf("revoke tokens: %w", err)
		}
	}
	return u, nil
}

func fieldNames(fields map[string]interface{}) []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	return out
}
