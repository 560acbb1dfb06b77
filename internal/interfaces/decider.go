package interfaces

import (
	"context"

	"kite-agent-bridge/internal/types"
)

// Decider picks the next step of a capability: one tool call or a final
// answer.
type Decider interface {
	Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error)
}
