package types

import "encoding/json"

// ToolSpec describes a tool to a decider.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall is one tool invocation chosen by a decider.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Capability names. The manager delegates to the other three through tools
// of the same name.
const (
	AgentManager  = "manager"
	AgentAuth     = "kite_auth_agent"
	AgentKite     = "kite_agent"
	AgentResearch = "research_agent"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one entry of a capability transcript. Assistant turns carry either
// Text or Call; tool turns carry the Result of the call with the same CallID.
type Turn struct {
	Role    string    `json:"role"`
	Text    string    `json:"text,omitempty"`
	Call    *ToolCall `json:"call,omitempty"`
	CallID  string    `json:"call_id,omitempty"`
	Result  string    `json:"result,omitempty"`
	IsError bool      `json:"is_error,omitempty"`
}

// DecisionRequest is everything a decider sees for one step.
type DecisionRequest struct {
	Agent        string     `json:"agent"`
	Instructions string     `json:"instructions"`
	Tools        []ToolSpec `json:"tools"`
	Transcript   []Turn     `json:"transcript"`
}

// LastUserText returns the most recent user turn.
func (r DecisionRequest) LastUserText() string {
	for i := len(r.Transcript) - 1; i >= 0; i-- {
		if r.Transcript[i].Role == RoleUser {
			return r.Transcript[i].Text
		}
	}
	return ""
}

// Decision is either a tool call or a final answer.
type Decision struct {
	Call   *ToolCall `json:"call,omitempty"`
	Answer string    `json:"answer,omitempty"`
}

// IsCall reports whether the decider asked for a tool.
func (d Decision) IsCall() bool {
	return d.Call != nil
}
