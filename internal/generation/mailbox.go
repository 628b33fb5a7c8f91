package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	QuizTTL       = time.Hour
	ErrorTTL      = time.Hour
	maxChatTurns  = 50
	chatKeyPrefix = "course_chat:"
)

// Slot names the redis keys one ephemeral kind uses.
type Slot struct {
	ResultPrefix string
	ErrorPrefix  string
	ResultTTL    time.Duration
	// ConsumeOnRead deletes the result on the first successful read.
	ConsumeOnRead bool
}

var (
	QuizSlot = Slot{ResultPrefix: "quiz:", ErrorPrefix: "quiz_error:", ResultTTL: QuizTTL}
	ChatSlot = Slot{ResultPrefix: "chat_result:", ErrorPrefix: "chat_error:", ConsumeOnRead: true}
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Mailbox stores ephemeral results and chat history in redis.
type Mailbox struct {
	rdb goredis.UniversalClient
}

func NewMailbox(rdb goredis.UniversalClient) *Mailbox {
	return &Mailbox{rdb: rdb}
}

func (m *Mailbox) PutResult(ctx context.Context, s Slot, handle uuid.UUID, value string) error {
	return m.rdb.Set(ctx, s.ResultPrefix+handle.String(), value, s.ResultTTL).Err()
}

// ReadResult returns the stored result, removing it when the slot says so.
func (m *Mailbox) ReadResult(ctx context.Context, s Slot, handle uuid.UUID) (string, bool, error) {
	key := s.ResultPrefix + handle.String()
	var (
		v   string
		err error
	)
	if s.ConsumeOnRead {
		v, err = m.rdb.GetDel(ctx, key).Result()
	} else {
		v, err = m.rdb.Get(ctx, key).Result()
	}
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *Mailbox) PutError(ctx context.Context, s Slot, handle uuid.UUID, detail string) error {
	return m.rdb.Set(ctx, s.ErrorPrefix+handle.String(), detail, ErrorTTL).Err()
}

func (m *Mailbox) ReadError(ctx context.Context, s Slot, handle uuid.UUID) (string, bool, error) {
	v, err := m.rdb.Get(ctx, s.ErrorPrefix+handle.String()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func chatKey(userID uuid.UUID, sessionID string) string {
	return chatKeyPrefix + userID.String() + ":" + sessionID
}

func (m *Mailbox) ChatHistory(ctx context.Context, userID uuid.UUID, sessionID string) ([]ChatMessage, error) {
	raw, err := m.rdb.Get(ctx, chatKey(userID, sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []ChatMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode chat history: %w", err)
	}
	return out, nil
}

// SaveChatHistory keeps only the most recent turns.
func (m *Mailbox) SaveChatHistory(ctx context.Context, userID uuid.UUID, sessionID string, history []ChatMessage) error {
	if len(history) > maxChatTurns {
		history = history[len(history)-maxChatTurns:]
	}
	b, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, chatKey(userID, sessionID), b, 0).Err()
}
