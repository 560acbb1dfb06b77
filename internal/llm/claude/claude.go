package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/store"
	"kite-agent-bridge/internal/trace"
	"kite-agent-bridge/internal/types"
)

const defaultModel = "claude-sonnet-4-20250514"

// ClaudeDecider implements the Decider interface using the Anthropic Messages API
type ClaudeDecider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewClaudeDecider creates a new Claude-based decider. The key is read from
// CLAUDE_API_KEY, falling back to ANTHROPIC_API_KEY.
func NewClaudeDecider(cfg *store.Config) (*ClaudeDecider, error) {
	apiKey := strings.TrimSpace(os.Getenv("CLAUDE_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if apiKey == "" {
		return nil, errors.New("CLAUDE_API_KEY missing")
	}

	opts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	// If you use a proxy/bedrock/vertex, set the endpoint via llm.base_url or CLAUDE_API_ENDPOINT
	if ep := strings.TrimSpace(os.Getenv("CLAUDE_API_ENDPOINT")); ep != "" {
		opts = append(opts, aoption.WithBaseURL(ep))
	} else if cfg.LLM.BaseURL != "" {
		opts = append(opts, aoption.WithBaseURL(cfg.LLM.BaseURL))
	}

	model := cfg.LLM.Model
	if model == "" {
		model = defaultModel
	}
	return &ClaudeDecider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(cfg.LLM.MaxTokens),
		temperature: cfg.LLM.Temperature,
	}, nil
}

// Decide asks Claude for the next step of a capability
func (d *ClaudeDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: d.maxTokens,
		Messages:  buildMessages(req.Transcript),
		Tools:     buildTools(req.Tools),
	}
	if s := strings.TrimSpace(req.Instructions); s != "" {
		params.System = []anthropic.TextBlockParam{{Text: s}}
	}
	if d.temperature > 0 {
		params.Temperature = anthropic.Float(d.temperature)
	}

	logger.Debug(ctx, "Calling Claude", "agent", req.Agent, "model", d.model, "turns", len(req.Transcript))
	msg, err := d.client.Messages.New(ctx, params)
	if err != nil {
		return types.Decision{}, fmt.Errorf("claude request failed: %w", err)
	}
	return decisionFromContent(msg.Content)
}

func decisionFromContent(blocks []anthropic.ContentBlockUnion) (types.Decision, error) {
	var text strings.Builder
	for _, block := range blocks {
		switch variant := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			args := json.RawMessage(variant.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			return types.Decision{Call: &types.ToolCall{ID: variant.ID, Name: variant.Name, Arguments: args}}, nil
		case anthropic.TextBlock:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(strings.TrimSpace(variant.Text))
		}
	}
	if text.Len() == 0 {
		return types.Decision{}, errors.New("claude returned neither text nor a tool call")
	}
	return types.Decision{Answer: text.String()}, nil
}

func buildTools(specs []types.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := map[string]any{}
		if len(spec.InputSchema) > 0 {
			_ = json.Unmarshal(spec.InputSchema, &schema)
		}
		props, ok := schema["properties"]
		if !ok || props == nil {
			props = map[string]any{}
		}
		var required []string
		if arr, ok := schema["required"].([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok {
					required = append(required, s)
				}
			}
		}
		param := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: props, Required: required},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

// buildMessages folds the transcript into alternating user/assistant
// messages. Tool results travel in user messages.
func buildMessages(transcript []types.Turn) []anthropic.MessageParam {
	var (
		out    []anthropic.MessageParam
		blocks []anthropic.ContentBlockParamUnion
		role   string
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == types.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, turn := range transcript {
		next := types.RoleUser
		if turn.Role == types.RoleAssistant {
			next = types.RoleAssistant
		}
		if next != role {
			flush()
			role = next
		}

		switch turn.Role {
		case types.RoleAssistant:
			if turn.Call != nil {
				args := turn.Call.Arguments
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(turn.Call.ID, args, turn.Call.Name))
			} else if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
		case types.RoleTool:
			blocks = append(blocks, anthropic.NewToolResultBlock(turn.CallID, turn.Result, turn.IsError))
		default:
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
		}
	}
	flush()

	if len(out) == 0 {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("Continue.")))
	}
	return out
}
