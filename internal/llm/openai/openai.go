package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/store"
	"kite-agent-bridge/internal/trace"
	"kite-agent-bridge/internal/types"
)

const defaultModel = "gpt-4o-mini"

type OpenAIDecider struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewOpenAIDecider(cfg *store.Config) (*OpenAIDecider, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, ooption.WithBaseURL(cfg.LLM.BaseURL))
	}

	model := cfg.LLM.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIDecider{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   int64(cfg.LLM.MaxTokens),
		temperature: cfg.LLM.Temperature,
	}, nil
}

func (d *OpenAIDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	params := oresponses.ResponseNewParams{
		Model:             oshared.ResponsesModel(d.model),
		MaxOutputTokens:   openai.Int(d.maxTokens),
		ParallelToolCalls: openai.Bool(false),
		Input:             oresponses.ResponseNewParamsInputUnion{OfInputItemList: buildInput(req.Transcript)},
	}
	if s := strings.TrimSpace(req.Instructions); s != "" {
		params.Instructions = openai.String(s)
	}
	if d.temperature > 0 {
		params.Temperature = openai.Float(d.temperature)
	}
	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	logger.Debug(ctx, "Calling OpenAI", "agent", req.Agent, "model", d.model, "turns", len(req.Transcript))
	resp, err := d.client.Responses.New(ctx, params)
	if err != nil {
		return types.Decision{}, fmt.Errorf("openai request failed: %w", err)
	}
	return decisionFromResponse(resp)
}

func decisionFromResponse(resp *oresponses.Response) (types.Decision, error) {
	var text strings.Builder
	for _, item := range resp.Output {
		switch strings.TrimSpace(item.Type) {
		case "function_call":
			args := strings.TrimSpace(item.Arguments)
			if args == "" || !json.Valid([]byte(args)) {
				args = "{}"
			}
			return types.Decision{Call: &types.ToolCall{ID: item.CallID, Name: item.Name, Arguments: json.RawMessage(args)}}, nil
		case "message":
			for _, part := range item.AsMessage().Content {
				if strings.TrimSpace(part.Type) != "output_text" {
					continue
				}
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(strings.TrimSpace(part.Text))
			}
		}
	}
	if text.Len() == 0 {
		return types.Decision{}, errors.New("openai returned neither text nor a tool call")
	}
	return types.Decision{Answer: text.String()}, nil
}

func buildTools(specs []types.ToolSpec) []oresponses.ToolUnionParam {
	out := make([]oresponses.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := map[string]any{}
		if len(spec.InputSchema) > 0 {
			_ = json.Unmarshal(spec.InputSchema, &schema)
		}
		delete(schema, "$schema")
		tool := oresponses.ToolParamOfFunction(spec.Name, schema, false)
		if tool.OfFunction != nil {
			tool.OfFunction.Description = openai.String(spec.Description)
		}
		out = append(out, tool)
	}
	return out
}

func buildInput(transcript []types.Turn) oresponses.ResponseInputParam {
	items := make(oresponses.ResponseInputParam, 0, len(transcript)+1)
	for _, turn := range transcript {
		switch turn.Role {
		case types.RoleAssistant:
			if turn.Call != nil {
				args := string(turn.Call.Arguments)
				if args == "" {
					args = "{}"
				}
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCall(args, turn.Call.ID, turn.Call.Name))
			} else if turn.Text != "" {
				items = append(items, oresponses.ResponseInputItemParamOfMessage(turn.Text, oresponses.EasyInputMessageRoleAssistant))
			}
		case types.RoleTool:
			items = append(items, oresponses.ResponseInputItemParamOfFunctionCallOutput(turn.CallID, turn.Result))
		default:
			if turn.Text != "" {
				items = append(items, oresponses.ResponseInputItemParamOfMessage(turn.Text, oresponses.EasyInputMessageRoleUser))
			}
		}
	}
	if len(items) == 0 {
		items = append(items, oresponses.ResponseInputItemParamOfMessage("Continue.", oresponses.EasyInputMessageRoleUser))
	}
	return items
}
