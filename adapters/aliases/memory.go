package aliases

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// MemoryStore keeps room aliases in a process-local map. Entries live for the
// lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]repositories.RoomAlias
	log  *zap.Logger
}

// NewMemoryStore creates an empty in-memory alias store
func NewMemoryStore(log *zap.Logger) *MemoryStore {
	log.Info("In-memory room alias store initialized")
	return &MemoryStore{
		data: make(map[string]map[string]repositories.RoomAlias),
		log:  log,
	}
}

// Get implements repositories.AliasStore. A missing alias is (nil, nil).
func (s *MemoryStore) Get(ctx context.Context, clientKey, query string) (*repositories.RoomAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alias, ok := s.data[clientKey][query]
	if !ok {
		return nil, nil
	}
	return &alias, nil
}

// Set implements repositories.AliasStore
func (s *MemoryStore) Set(ctx context.Context, clientKey, query string, alias repositories.RoomAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byQuery, ok := s.data[clientKey]
	if !ok {
		byQuery = make(map[string]repositories.RoomAlias)
		s.data[clientKey] = byQuery
	}
	byQuery[query] = alias
	return nil
}

// Len returns how many aliases are stored for clientKey.
func (s *MemoryStore) Len(clientKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[clientKey])
}
