package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// FallbackPlanner consults the heuristic planner only when the primary planner
// fails with a transient error (timeout, quota, model not found) and the
// deployment opted in. The primary is always tried first.
type FallbackPlanner struct {
	primary   repositories.Planner
	heuristic repositories.Planner
	enabled   bool
	logger    *zap.Logger
}

// NewFallbackPlanner wraps primary with the heuristic fallback policy.
func NewFallbackPlanner(primary, heuristic repositories.Planner, enabled bool, logger *zap.Logger) *FallbackPlanner {
	return &FallbackPlanner{
		primary:   primary,
		heuristic: heuristic,
		enabled:   enabled,
		logger:    logger,
	}
}

// Name implements repositories.Planner
func (f *FallbackPlanner) Name() string {
	return f.primary.Name()
}

// Plan implements repositories.Planner
func (f *FallbackPlanner) Plan(ctx context.Context, transcript string, planCtx repositories.PlanContext) (entities.Plan, error) {
	plan, err := f.primary.Plan(ctx, transcript, planCtx)
	if err == nil {
		return plan, nil
	}
	if !f.enabled || f.heuristic == nil || !domain.IsFallbackEligible(err) {
		return entities.Plan{}, err
	}

	f.logger.Warn("Planner failed, trying heuristic fallback",
		zap.String("correlationID", planCtx.CorrelationID),
		zap.String("provider", f.primary.Name()),
		zap.Error(err))

	fallbackPlan, fallbackErr := f.heuristic.Plan(ctx, transcript, planCtx)
	if fallbackErr != nil {
		// the heuristic only knows a few phrasings; the provider failure is the real cause
		return entities.Plan{}, err
	}
	return fallbackPlan, nil
}
