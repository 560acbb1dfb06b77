// Package agent routes natural-language requests through a manager and three
// capabilities (login, trading, research) to the proxy tool client.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/trace"
	"kite-agent-bridge/internal/types"
)

const (
	defaultMaxSteps = 8
	maxHistory      = 20
)

// Capability is one agent the manager can delegate to.
type Capability struct {
	Name         string
	Description  string
	Instructions string
	Tools        []Tool
}

func (c *Capability) specs() []types.ToolSpec {
	out := make([]types.ToolSpec, 0, len(c.Tools))
	for _, t := range c.Tools {
		out = append(out, t.Spec())
	}
	return out
}

func (c *Capability) tool(name string) (Tool, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Router is the manager. It keeps the conversation across turns and handles
// one turn at a time.
type Router struct {
	decider      interfaces.Decider
	client       interfaces.ToolClient
	capabilities []*Capability
	maxSteps     int

	mu      sync.Mutex
	history []types.Turn
}

type Option func(*Router)

// WithMaxSteps bounds decisions per manager turn and per capability run.
func WithMaxSteps(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// NewRouter wires the capabilities. A nil researcher leaves research out.
func NewRouter(decider interfaces.Decider, client interfaces.ToolClient, researcher interfaces.Researcher, opts ...Option) *Router {
	r := &Router{
		decider:  decider,
		client:   client,
		maxSteps: defaultMaxSteps,
		capabilities: []*Capability{
			{Name: types.AgentAuth, Description: descKiteAuthAgent, Instructions: authInstructions, Tools: AuthTools(client)},
			{Name: types.AgentKite, Description: descKiteAgent, Instructions: kiteInstructions, Tools: KiteTools(client)},
		},
	}
	if researcher != nil {
		r.capabilities = append(r.capabilities, &Capability{
			Name: types.AgentResearch, Description: descResearchAgent, Instructions: researchInstructions, Tools: ResearchTools(researcher),
		})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capabilities lists the agents the manager can delegate to.
func (r *Router) Capabilities() []*Capability {
	return r.capabilities
}

func (r *Router) capability(name string) (*Capability, bool) {
	for _, c := range r.capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (r *Router) managerSpecs() []types.ToolSpec {
	schema := schemaOf[delegateArgs]()
	out := make([]types.ToolSpec, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		out = append(out, types.ToolSpec{Name: c.Name, Description: c.Description, InputSchema: schema})
	}
	return out
}

// Reset forgets the conversation.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// Handle runs one user turn and returns the answer. Errors are returned only
// when a decider fails; tool failures become part of the answer.
func (r *Router) Handle(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty request", types.ErrMissingParameters)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := trace.StartSpan(ctx, "agent.Handle")
	defer span.End()

	seen := secrets{}
	transcript := append(append([]types.Turn{}, r.history...), types.Turn{Role: types.RoleUser, Text: text})

	for step := 0; step < r.maxSteps; step++ {
		decision, err := r.decider.Decide(ctx, types.DecisionRequest{
			Agent:        types.AgentManager,
			Instructions: managerInstructions,
			Tools:        r.managerSpecs(),
			Transcript:   transcript,
		})
		if err != nil {
			return "", fmt.Errorf("manager decision failed: %w", err)
		}

		if !decision.IsCall() {
			return r.finish(text, seen.scrub(decision.Answer)), nil
		}

		call := *decision.Call
		transcript = append(transcript, types.Turn{Role: types.RoleAssistant, Call: &call})

		c, ok := r.capability(call.Name)
		if !ok {
			transcript = append(transcript, toolError(call.ID, "Unknown agent: "+call.Name))
			continue
		}
		var args delegateArgs
		if err := decodeArgs(call.Arguments, &args); err != nil || strings.TrimSpace(args.Task) == "" {
			transcript = append(transcript, toolError(call.ID, "Delegation needs a non-empty task"))
			continue
		}

		logger.Info(ctx, "Delegating to agent", "agent", c.Name, "step", step)
		out, err := r.run(ctx, c, args.Task, seen)
		if err != nil {
			return "", err
		}
		if out.failed {
			span.SetAttributes(attribute.String("failed_agent", c.Name))
			return r.finish(text, seen.scrub(out.text)), nil
		}
		transcript = append(transcript, types.Turn{Role: types.RoleTool, CallID: call.ID, Result: seen.scrub(out.text)})
	}

	return r.finish(text, fmt.Sprintf("I could not finish that request within %d steps.", r.maxSteps)), nil
}

// finish records the turn in the conversation history.
func (r *Router) finish(userText, answer string) string {
	answer = strings.TrimSpace(answer)
	r.history = append(r.history,
		types.Turn{Role: types.RoleUser, Text: userText},
		types.Turn{Role: types.RoleAssistant, Text: answer},
	)
	if len(r.history) > maxHistory {
		r.history = r.history[len(r.history)-maxHistory:]
	}
	return answer
}

type runResult struct {
	text   string
	failed bool
}

// run drives one capability until it answers or a tool fails.
func (r *Router) run(ctx context.Context, c *Capability, task string, seen secrets) (runResult, error) {
	ctx, span := trace.StartSpan(ctx, "agent."+c.Name)
	defer span.End()

	transcript := []types.Turn{{Role: types.RoleUser, Text: task}}
	for step := 0; step < r.maxSteps; step++ {
		decision, err := r.decider.Decide(ctx, types.DecisionRequest{
			Agent:        c.Name,
			Instructions: c.Instructions,
			Tools:        c.specs(),
			Transcript:   transcript,
		})
		if err != nil {
			return runResult{}, fmt.Errorf("%s decision failed: %w", c.Name, err)
		}
		if !decision.IsCall() {
			return runResult{text: decision.Answer}, nil
		}

		call := *decision.Call
		seen.observe(call.Arguments)

		tool, ok := c.tool(call.Name)
		if !ok {
			transcript = append(transcript, types.Turn{Role: types.RoleAssistant, Call: &call}, toolError(call.ID, "Unknown tool: "+call.Name))
			continue
		}

		if tool.Privileged {
			check, turns := r.guard(ctx, call.ID)
			transcript = append(transcript, turns...)
			if !check.OK() {
				logger.Warn(ctx, "Privileged tool blocked by auth check", "agent", c.Name, "tool", tool.Name)
				return runResult{text: explain(check), failed: true}, nil
			}
		}
		transcript = append(transcript, types.Turn{Role: types.RoleAssistant, Call: &call})

		env := tool.Run(ctx, call.Arguments)
		transcript = append(transcript, types.Turn{
			Role:    types.RoleTool,
			CallID:  call.ID,
			Result:  seen.redactEnvelope(env),
			IsError: !env.OK(),
		})
		if !env.OK() {
			logger.Warn(ctx, "Tool returned an error", "agent", c.Name, "tool", tool.Name)
			return runResult{text: explain(env), failed: true}, nil
		}
	}

	logger.Warn(ctx, "Capability hit the step limit", "agent", c.Name, "steps", r.maxSteps)
	return runResult{text: fmt.Sprintf("The %s could not finish within %d steps.", c.Name, r.maxSteps), failed: true}, nil
}

// guard checks the session before every privileged call. The check is
// recorded in the transcript ahead of the call so the decider sees it.
func (r *Router) guard(ctx context.Context, callID string) (types.Envelope, []types.Turn) {
	id := callID + "_auth"
	env := r.client.CheckAuthenticationStatus(ctx)
	return env, []types.Turn{
		{Role: types.RoleAssistant, Call: &types.ToolCall{ID: id, Name: "check_authentication_status", Arguments: json.RawMessage("{}")}},
		{Role: types.RoleTool, CallID: id, Result: env.String(), IsError: !env.OK()},
	}
}

func toolError(callID, msg string) types.Turn {
	return types.Turn{Role: types.RoleTool, CallID: callID, Result: types.Failure(msg).String(), IsError: true}
}
