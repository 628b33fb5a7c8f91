package domain

import (
	"github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
)

type User = user.User
type UserToken = user.UserToken

type Course = learning.Course
type Module = learning.Module
type Lesson = learning.Lesson
type Roadmap = learning.Roadmap
type RoadmapNode = learning.RoadmapNode

type JobRun = jobs.JobRun

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&User{},
		&UserToken{},
		&Roadmap{},
		&RoadmapNode{},
		&Course{},
		&Module{},
		&Lesson{},
		&JobRun{},
	}
}
