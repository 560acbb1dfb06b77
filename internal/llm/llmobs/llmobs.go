package llmobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/trace"
	"kite-agent-bridge/internal/types"
)

// observableDecider wraps a Decider with observability (logging & tracing)
type observableDecider struct {
	decider  interfaces.Decider
	provider string
}

// Compile-time interface check
var _ interfaces.Decider = (*observableDecider)(nil)

// Wrap wraps a decider with observability middleware
func Wrap(decider interfaces.Decider, provider string) interfaces.Decider {
	return &observableDecider{
		decider:  decider,
		provider: provider,
	}
}

// Decide asks the wrapped decider for the next step. Transcript contents are
// never logged since tool results may carry account data.
func (od *observableDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", od.provider),
		attribute.String("agent", req.Agent),
		attribute.Int("transcript.turns", len(req.Transcript)),
	)

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting decision",
		"provider", od.provider,
		"agent", req.Agent,
		"tools", len(req.Tools),
		"turns", len(req.Transcript),
	)

	decision, err := od.decider.Decide(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to get decision", err,
			"provider", od.provider,
			"agent", req.Agent,
		)
		return types.Decision{}, err
	}

	if decision.IsCall() {
		span.SetAttributes(attribute.String("tool", decision.Call.Name))
		logger.InfoSkip(ctx, 1, "Decision received",
			"agent", req.Agent,
			"tool", decision.Call.Name,
		)
	} else {
		logger.InfoSkip(ctx, 1, "Decision received",
			"agent", req.Agent,
			"answer_length", len(decision.Answer),
		)
	}
	return decision, nil
}
