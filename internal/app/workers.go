package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/chat_stream"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/course_outline"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/lesson_stream"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/quiz_generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/roadmap_outline"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/worker"
	"github.com/yungbote/coursebuilder-backend/internal/observability"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

// wireWorker registers one pipeline per generation job type behind a worker pool.
func wireWorker(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	deps generation.Deps,
	tasks *generation.Registry,
	notify runtime.Notifier,
	metrics *observability.Metrics,
) (*worker.Worker, error) {
	ai, err := openai.NewClient(log, metrics, openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		Timeout:    cfg.OpenAITimeout,
		MaxRetries: cfg.OpenAIMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai: %w", err)
	}
	catalog, err := prompts.Load()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	reg := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		course_outline.New(db, log, ai, catalog, deps.Courses),
		roadmap_outline.New(db, log, ai, catalog, deps.Roadmaps),
		quiz_generation.New(log, ai, catalog, deps.Mailbox),
		chat_stream.New(log, ai, catalog, deps.Mailbox, deps.Courses),
		lesson_stream.New(db, log, ai, catalog, deps.Broker, deps.Lessons, deps.Modules, deps.Courses),
	} {
		if err := reg.Register(h); err != nil {
			return nil, fmt.Errorf("register %s: %w", h.Type(), err)
		}
	}

	w := worker.NewWorker(db, log, deps.Jobs, reg, notify, metrics, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		StaleRunning: cfg.WorkerStaleRunning,
	})
	w.SetTerminalHook(tasks.TerminalHook(log))
	return w, nil
}
