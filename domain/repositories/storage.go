package repositories

import (
	"context"
	"time"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// RoomAlias is a remembered answer to a room clarification.
type RoomAlias struct {
	RoomID   int    `json:"room_id"`
	RoomName string `json:"room_name"`
}

// AliasStore persists room aliases keyed by client identity and normalized query.
type AliasStore interface {
	Get(ctx context.Context, clientKey, query string) (*RoomAlias, error)
	Set(ctx context.Context, clientKey, query string, alias RoomAlias) error
}

// CommandHistory defines data access methods for command records
type CommandHistory interface {
	Record(ctx context.Context, record *entities.CommandRecord) error
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.CommandRecord, error)
	// PruneOlderThan deletes records created before cutoff and returns how many went.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
