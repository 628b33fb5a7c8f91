package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type Repos struct {
	Users        repos.UserRepo
	UserTokens   repos.UserTokenRepo
	Courses      repos.CourseRepo
	Modules      repos.ModuleRepo
	Lessons      repos.LessonRepo
	Roadmaps     repos.RoadmapRepo
	RoadmapNodes repos.RoadmapNodeRepo
	JobRuns      repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Users:        repos.NewUserRepo(db, log),
		UserTokens:   repos.NewUserTokenRepo(db, log),
		Courses:      repos.NewCourseRepo(db, log),
		Modules:      repos.NewModuleRepo(db, log),
		Lessons:      repos.NewLessonRepo(db, log),
		Roadmaps:     repos.NewRoadmapRepo(db, log),
		RoadmapNodes: repos.NewRoadmapNodeRepo(db, log),
		JobRuns:      repos.NewJobRunRepo(db, log),
	}
}
