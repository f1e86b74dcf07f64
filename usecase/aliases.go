package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// DefaultAliasTools are the tool paths that consult the alias cache.
var DefaultAliasTools = []string{"c4_tv_watch_by_name"}

// NormalizeRoomQuery is the alias cache key form of a room query.
func NormalizeRoomQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// AliasService remembers which room a client meant by an ambiguous room query.
// Aliases never expire.
type AliasService struct {
	store  repositories.AliasStore
	tools  map[string]bool
	logger *zap.Logger
}

// NewAliasService creates the service. Only plans whose tool is in tools are
// ever rewritten from the cache.
func NewAliasService(store repositories.AliasStore, tools []string, logger *zap.Logger) *AliasService {
	allowed := make(map[string]bool, len(tools))
	for _, t := range tools {
		allowed[t] = true
	}
	return &AliasService{store: store, tools: allowed, logger: logger}
}

// Remember stores the chosen room under the clarification query and under the
// plan's room_name when that differs. It never propagates failures.
func (s *AliasService) Remember(ctx context.Context, clientKey string, pending *entities.PendingClarification, choice entities.Candidate) {
	if s == nil || pending == nil || clientKey == "" {
		return
	}
	defer recoverBestEffort(s.logger, "remember room alias")

	if !pending.Clarification.Kind.IsRoomKind() || choice.RoomID == nil {
		return
	}
	query := NormalizeRoomQuery(pending.Clarification.Query)
	if query == "" {
		return
	}

	alias := repositories.RoomAlias{RoomID: *choice.RoomID, RoomName: choice.Name}
	keys := []string{query}
	if planRoom := NormalizeRoomQuery(pending.OriginalPlan.StringArg("room_name")); planRoom != "" && planRoom != query {
		keys = append(keys, planRoom)
	}

	for _, key := range keys {
		if err := s.store.Set(ctx, clientKey, key, alias); err != nil {
			s.logger.Warn("Failed to store room alias",
				zap.String("clientKey", clientKey),
				zap.String("query", key),
				zap.Error(err))
			return
		}
	}

	s.logger.Info("Stored room alias",
		zap.String("clientKey", clientKey),
		zap.Strings("queries", keys),
		zap.Int("roomID", alias.RoomID),
		zap.String("roomName", alias.RoomName))
}

// Apply adds room_id from the cache when the plan's tool consults aliases and
// names a room without an id. It never propagates failures; on any problem the
// plan is returned unchanged.
func (s *AliasService) Apply(ctx context.Context, clientKey string, plan entities.Plan) (out entities.Plan) {
	out = plan
	if s == nil {
		return plan
	}
	defer recoverBestEffort(s.logger, "apply room alias")

	if clientKey == "" || !s.tools[plan.Tool] || plan.HasArg("room_id") {
		return plan
	}
	query := NormalizeRoomQuery(plan.StringArg("room_name"))
	if query == "" {
		return plan
	}

	alias, err := s.store.Get(ctx, clientKey, query)
	if err != nil {
		s.logger.Warn("Failed to read room alias", zap.String("query", query), zap.Error(err))
		return plan
	}
	if alias == nil {
		return plan
	}

	enriched := plan.Clone()
	enriched.Args["room_id"] = alias.RoomID
	s.logger.Info("Applied room alias",
		zap.String("clientKey", clientKey),
		zap.String("tool", plan.Tool),
		zap.String("query", query),
		zap.Int("roomID", alias.RoomID))
	return enriched
}

// recoverBestEffort is deferred by helpers documented as never propagating.
func recoverBestEffort(logger *zap.Logger, what string) {
	if r := recover(); r != nil && logger != nil {
		logger.Error("Best-effort step panicked", zap.String("step", what), zap.Any("panic", r))
	}
}
