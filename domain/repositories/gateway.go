package repositories

import (
	"context"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// Gateway executes plans against the smart-home tool server.
type Gateway interface {
	// Execute runs one plan. Tool-level failures and ambiguity are reported in
	// the result; the error is reserved for transport and policy failures.
	Execute(ctx context.Context, plan entities.Plan, sessionID string) (*entities.ExecutionResult, error)
	// ToolCatalog returns the allowlisted tool specs, possibly cached.
	ToolCatalog(ctx context.Context) []ToolSpec
	// ListTools returns every tool name the gateway advertises.
	ListTools(ctx context.Context) ([]string, error)
}
