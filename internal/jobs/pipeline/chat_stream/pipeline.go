package chat_stream

import (
	"errors"
	"fmt"

	"github.com/yungbote/coursebuilder-backend/internal/generation"
	jobrt "github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	sessionID := jc.PayloadString("session_id")
	message := jc.PayloadString("message")
	if sessionID == "" || message == "" {
		jc.Fail("validate", jobrt.Permanent(errors.New("missing session_id or message")))
		return nil
	}
	userID := jc.Job.OwnerUserID

	in := prompts.Input{}
	if courseID, ok := jc.PayloadUUID("course_id"); ok {
		c, err := p.courses.GetByID(dbctx.Bg(jc.Ctx), courseID)
		if err != nil {
			jc.Fail("load", err)
			return nil
		}
		if c != nil && c.UserID == userID {
			in.CourseTitle = c.Title
		}
	}
	prompt, err := p.prompts.Build(prompts.PromptChat, in)
	if err != nil {
		jc.Fail("prompt", jobrt.Permanent(err))
		return nil
	}

	history, err := p.mailbox.ChatHistory(jc.Ctx, userID, sessionID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("load chat history: %w", err))
		return nil
	}
	history = append(history, generation.ChatMessage{Role: "user", Content: message})

	turns := make([]openai.Message, 0, len(history))
	for _, m := range history {
		turns = append(turns, openai.Message{Role: m.Role, Content: m.Content})
	}
	jc.Progress("respond", 20, "Generating reply")
	reply, err := p.ai.GenerateChat(jc.Ctx, prompt.System, turns)
	if err != nil {
		jc.Fail("respond", err)
		return nil
	}

	history = append(history, generation.ChatMessage{Role: "assistant", Content: reply})
	if err := p.mailbox.SaveChatHistory(jc.Ctx, userID, sessionID, history); err != nil {
		jc.Fail("persist", fmt.Errorf("save chat history: %w", err))
		return nil
	}
	if err := p.mailbox.PutResult(jc.Ctx, generation.ChatSlot, jc.Job.ID, reply); err != nil {
		jc.Fail("persist", fmt.Errorf("store reply: %w", err))
		return nil
	}
	jc.Succeed("done", map[string]any{"session_id": sessionID, "turns": len(history)})
	return nil
}
