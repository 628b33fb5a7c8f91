package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos/auth"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/learning"
	"github.com/yungbote/coursebuilder-backend/internal/data/repos/user"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserListFilter = user.ListFilter
type UserStats = user.Stats
type UserTokenRepo = auth.UserTokenRepo

type CourseRepo = learning.CourseRepo
type ModuleRepo = learning.ModuleRepo
type LessonRepo = learning.LessonRepo
type RoadmapRepo = learning.RoadmapRepo
type RoadmapNodeRepo = learning.RoadmapNodeRepo

type JobRunRepo = jobs.JobRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }
func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, baseLog)
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return learning.NewCourseRepo(db, baseLog)
}
func NewModuleRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRepo {
	return learning.NewModuleRepo(db, baseLog)
}
func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return learning.NewLessonRepo(db, baseLog)
}
func NewRoadmapRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapRepo {
	return learning.NewRoadmapRepo(db, baseLog)
}
func NewRoadmapNodeRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapNodeRepo {
	return learning.NewRoadmapNodeRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
