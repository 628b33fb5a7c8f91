package quiz_generation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/structured"
	jobrt "github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

type Quiz struct {
	Questions []Question `json:"questions"`
}

type Question struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	lesson := jc.PayloadString("lesson_name")
	if lesson == "" {
		jc.Fail("validate", jobrt.Permanent(errors.New("missing lesson_name")))
		return nil
	}

	jc.Progress("generate", 10, "Generating quiz")
	var quiz Quiz
	if _, err := structured.Generate(jc.Ctx, p.ai, p.prompts, prompts.PromptQuiz, prompts.Input{LessonName: lesson}, &quiz); err != nil {
		jc.Fail("generate", err)
		return nil
	}
	for i, q := range quiz.Questions {
		if q.CorrectOptionIndex >= len(q.Options) {
			jc.Fail("generate", fmt.Errorf("question %d: correct_option_index %d out of range", i+1, q.CorrectOptionIndex))
			return nil
		}
	}

	raw, err := json.Marshal(quiz)
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}
	if err := p.mailbox.PutResult(jc.Ctx, generation.QuizSlot, jc.Job.ID, string(raw)); err != nil {
		jc.Fail("persist", fmt.Errorf("store quiz: %w", err))
		return nil
	}
	p.log.Debug("Quiz stored", "job_id", jc.Job.ID, "questions", len(quiz.Questions))
	jc.Succeed("done", map[string]any{"questions": len(quiz.Questions)})
	return nil
}
