package repositories

import (
	"context"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// ToolSpec is one gateway tool as advertised by the tool catalog.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// PlanContext is what the planner may know besides the transcript.
type PlanContext struct {
	CorrelationID string
	ToolCatalog   []ToolSpec
	CurrentRoom   *entities.RoomContext
}

// Planner maps a transcript to a single gateway tool call.
type Planner interface {
	Plan(ctx context.Context, transcript string, planCtx PlanContext) (entities.Plan, error)
	// Name identifies the provider in logs and metrics
	Name() string
}
