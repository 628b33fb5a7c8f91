package lesson_stream

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	ai      openai.Client
	prompts *prompts.Catalog
	broker  streaming.Broker
	lessons repos.LessonRepo
	modules repos.ModuleRepo
	courses repos.CourseRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	ai openai.Client,
	catalog *prompts.Catalog,
	broker streaming.Broker,
	lessons repos.LessonRepo,
	modules repos.ModuleRepo,
	courses repos.CourseRepo,
) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("job", "lesson_stream"),
		ai:      ai,
		prompts: catalog,
		broker:  broker,
		lessons: lessons,
		modules: modules,
		courses: courses,
	}
}

func (p *Pipeline) Type() string { return "lesson_stream" }
