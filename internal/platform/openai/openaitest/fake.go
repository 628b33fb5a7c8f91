// Package openaitest provides a scripted openai.Client for pipeline tests.
package openaitest

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
)

type Call struct {
	Method     string
	System     string
	User       string
	SchemaName string
	History    []openai.Message
}

// Fake returns its configured outputs and records every call.
type Fake struct {
	mu sync.Mutex

	JSON   map[string]any
	Text   string
	Deltas []string
	Err    error
	// StreamErr, when set, is returned after all Deltas were delivered.
	StreamErr error

	Calls []Call
}

var _ openai.Client = (*Fake)(nil)

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, c)
}

func (f *Fake) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	f.record(Call{Method: "GenerateJSON", System: system, User: user, SchemaName: schemaName})
	if f.Err != nil {
		return nil, f.Err
	}
	if f.JSON == nil {
		return nil, errors.New("openaitest: no JSON configured")
	}
	return f.JSON, nil
}

func (f *Fake) GenerateText(ctx context.Context, system string, user string) (string, error) {
	f.record(Call{Method: "GenerateText", System: system, User: user})
	return f.Text, f.Err
}

func (f *Fake) GenerateChat(ctx context.Context, system string, history []openai.Message) (string, error) {
	cp := append([]openai.Message(nil), history...)
	f.record(Call{Method: "GenerateChat", System: system, History: cp})
	return f.Text, f.Err
}

func (f *Fake) StreamText(ctx context.Context, system string, user string, onDelta func(delta string) error) (string, error) {
	f.record(Call{Method: "StreamText", System: system, User: user})
	if f.Err != nil {
		return "", f.Err
	}
	var out string
	for _, d := range f.Deltas {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := onDelta(d); err != nil {
			return out, err
		}
		out += d
	}
	if f.StreamErr != nil {
		return out, f.StreamErr
	}
	return out, nil
}

func (f *Fake) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return Call{}
	}
	return f.Calls[len(f.Calls)-1]
}
