package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// DefaultHistoryPerDevice bounds the in-memory history of one device.
const DefaultHistoryPerDevice = 200

// MemoryCommandHistory is an in-memory implementation of CommandHistory used
// when no MongoDB is configured.
type MemoryCommandHistory struct {
	mu        sync.RWMutex
	records   map[string][]*entities.CommandRecord // device_id -> records, oldest first
	perDevice int
	now       func() time.Time
}

// NewMemoryCommandHistory creates an empty history keeping at most perDevice
// records for each device.
func NewMemoryCommandHistory(perDevice int) *MemoryCommandHistory {
	if perDevice <= 0 {
		perDevice = DefaultHistoryPerDevice
	}
	return &MemoryCommandHistory{
		records:   make(map[string][]*entities.CommandRecord),
		perDevice: perDevice,
		now:       time.Now,
	}
}

// Record implements CommandHistory interface
func (m *MemoryCommandHistory) Record(ctx context.Context, record *entities.CommandRecord) error {
	if record == nil {
		return errors.New("command record cannot be nil")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recordCopy := *record
	list := append(m.records[record.DeviceID], &recordCopy)
	if len(list) > m.perDevice {
		list = list[len(list)-m.perDevice:]
	}
	m.records[record.DeviceID] = list
	return nil
}

// ListByDevice implements CommandHistory interface, newest first.
func (m *MemoryCommandHistory) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.CommandRecord, error) {
	if deviceID == "" {
		return nil, errors.New("device ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.records[deviceID]
	out := make([]*entities.CommandRecord, 0, len(list))
	for _, r := range list {
		recordCopy := *r
		out = append(out, &recordCopy)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneOlderThan implements CommandHistory interface
func (m *MemoryCommandHistory) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for deviceID, list := range m.records {
		kept := list[:0]
		for _, r := range list {
			if r.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.records, deviceID)
			continue
		}
		m.records[deviceID] = kept
	}
	return deleted, nil
}
