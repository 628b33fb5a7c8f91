package chat_stream

import (
	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
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
	courses repos.CourseRepo
}

func New(baseLog *logger.Logger, ai openai.Client, catalog *prompts.Catalog, mailbox *generation.Mailbox, courses repos.CourseRepo) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", "chat_stream"),
		ai:      ai,
		prompts: catalog,
		mailbox: mailbox,
		courses: courses,
	}
}

func (p *Pipeline) Type() string { return "chat_stream" }
