package structured

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

// Generate renders name, asks the model for schema-bound JSON, validates it and decodes it into dst.
// A prompt that cannot be rendered is Permanent; model and validation failures stay retryable.
func Generate(ctx context.Context, ai openai.Client, cat *prompts.Catalog, name prompts.PromptName, in prompts.Input, dst any) (prompts.Prompt, error) {
	p, err := cat.Build(name, in)
	if err != nil {
		return p, runtime.Permanent(fmt.Errorf("build prompt: %w", err))
	}
	obj, err := ai.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	if err != nil {
		return p, fmt.Errorf("generate %s: %w", name, err)
	}
	if err := cat.Validate(name, obj); err != nil {
		return p, err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return p, fmt.Errorf("encode %s output: %w", name, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return p, fmt.Errorf("decode %s output: %w", name, err)
	}
	return p, nil
}
