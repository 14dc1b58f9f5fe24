package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/deepgraph/agent/errs"
	"github.com/dshills/deepgraph/graph/model"
)

// StructuredSpec describes the single tool a structured call forces
// the model to invoke. Schema follows JSON Schema, the same shape
// graph/model.ToolSpec.Schema already expects.
type StructuredSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// InvokeStructured calls m.Chat with a single tool matching spec and
// decodes the model's first matching tool call's Input into a T. None
// of the three providers in graph/model expose a native structured-
// output mode (only OpenAI's does, and not uniformly) — forcing a tool
// call is the one mechanism all three share, so this is implemented
// once here rather than per-provider.
func InvokeStructured[T any](ctx context.Context, m model.ChatModel, messages []model.Message, spec StructuredSpec) (T, error) {
	var zero T

	tools := []model.ToolSpec{{Name: spec.Name, Description: spec.Description, Schema: spec.Schema}}
	out, err := m.Chat(ctx, messages, tools)
	if err != nil {
		return zero, errs.TransientDriver("llm chat failed", err)
	}

	for _, call := range out.ToolCalls {
		if call.Name != spec.Name {
			continue
		}
		raw, err := json.Marshal(call.Input)
		if err != nil {
			return zero, errs.PermanentDriver("marshal tool call input", err)
		}
		var result T
		if err := json.Unmarshal(raw, &result); err != nil {
			return zero, errs.PermanentDriver("decode structured output", err)
		}
		return result, nil
	}

	return zero, errs.PermanentDriver(fmt.Sprintf("model did not call required tool %q", spec.Name), nil)
}
