package quiz_generation

import (
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

type Pipeline struct {
	log     *logger.Logger
	ai      openai.Client
	prompts *prompts.Catalog
	mailbox *generation.Mailbox
}

func New(baseLog *logger.Logger, ai openai.Client, catalog *prompts.Catalog, mailbox *generation.Mailbox) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", "quiz_generation"),
		ai:      ai,
		prompts: catalog,
		mailbox: mailbox,
	}
}

func (p *Pipeline) Type() string { return "quiz_generation" }
