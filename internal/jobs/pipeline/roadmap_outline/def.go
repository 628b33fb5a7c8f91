package roadmap_outline

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	ai       openai.Client
	prompts  *prompts.Catalog
	roadmaps repos.RoadmapRepo
}

func New(db *gorm.DB, baseLog *logger.Logger, ai openai.Client, catalog *prompts.Catalog, roadmaps repos.RoadmapRepo) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", "roadmap_outline"),
		ai:       ai,
		prompts:  catalog,
		roadmaps: roadmaps,
	}
}

func (p *Pipeline) Type() string { return "roadmap_outline" }
