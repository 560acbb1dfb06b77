package interfaces

import (
	"context"

	"kite-agent-bridge/internal/types"
)

// Researcher answers free-text questions from the web. It never touches the
// broker session.
type Researcher interface {
	Research(ctx context.Context, query string) (types.ResearchResult, error)
}
