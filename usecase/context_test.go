package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

func TestApplyRoomContext(t *testing.T) {
	withID := &entities.RoomContext{RoomID: entities.IntPtr(3), RoomName: "Kitchen"}
	nameOnly := &entities.RoomContext{RoomName: "Kitchen"}

	tests := []struct {
		name string
		plan entities.Plan
		room *entities.RoomContext
		want map[string]interface{}
	}{
		{"no room context", entities.Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{}}, nil, map[string]interface{}{}},
		{"id preferred", entities.Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{}}, withID, map[string]interface{}{"room_id": 3}},
		{"name fallback", entities.Plan{Tool: "c4_tv_off", Args: map[string]interface{}{}}, nameOnly, map[string]interface{}{"room_name": "Kitchen"}},
		{"name required tools", entities.Plan{Tool: "c4_scene_activate_by_name", Args: map[string]interface{}{"scene_name": "Dinner"}}, withID, map[string]interface{}{"scene_name": "Dinner", "room_name": "Kitchen"}},
		{"explicit room kept", entities.Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{"room": "Den"}}, withID, map[string]interface{}{"room": "Den"}},
		{"explicit id kept", entities.Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{"room_id": 9}}, withID, map[string]interface{}{"room_id": 9}},
		{"tool without room semantics", entities.Plan{Tool: "c4_list_rooms", Args: map[string]interface{}{}}, withID, map[string]interface{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyRoomContext(tt.plan, tt.room, zap.NewNop())
			assert.Equal(t, tt.want, got.Args)
		})
	}
}

func TestInferRoom(t *testing.T) {
	id, name, ok := InferRoom(entities.Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{"room_id": float64(4), "room_name": "Den"}}, nil, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, 4, *id)
	assert.Equal(t, "Den", name)

	result := &entities.ExecutionResult{Success: true, Result: map[string]interface{}{
		"result": map[string]interface{}{"resolved": map[string]interface{}{"room_id": "6", "room_name": "Office"}},
	}}
	id, name, ok = InferRoom(entities.Plan{Tool: "c4_tv_watch_by_name", Args: map[string]interface{}{}}, result, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, 6, *id)
	assert.Equal(t, "Office", name)

	_, _, ok = InferRoom(entities.Plan{Tool: "c4_list_rooms"}, &entities.ExecutionResult{Result: []interface{}{"x"}}, zap.NewNop())
	assert.False(t, ok)
}

func TestRemoteUpdate(t *testing.T) {
	kitchen := &entities.RoomContext{RoomID: entities.IntPtr(3), RoomName: "Kitchen"}

	plan := entities.Plan{Tool: "c4_tv_watch_by_name", Args: map[string]interface{}{"source_device_name": "Roku"}}
	result := &entities.ExecutionResult{Success: true, Result: map[string]interface{}{
		"planned": map[string]interface{}{"source_device_id": float64(41)},
	}}
	remote, reason, ok := RemoteUpdate(plan, result, kitchen, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, ReasonWatch, reason)
	assert.True(t, remote.Active)
	assert.Equal(t, "media", remote.Kind)
	assert.Equal(t, "41", remote.MediaDeviceID)
	assert.Equal(t, "Kitchen — Roku", remote.Label)

	remote, reason, ok = RemoteUpdate(entities.Plan{Tool: "c4_tv_remote_last", Args: map[string]interface{}{"button": "mute"}}, nil, nil, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, ReasonWatch, reason)
	assert.Equal(t, "tv", remote.Kind)
	assert.Empty(t, remote.MediaDeviceID)

	remote, reason, ok = RemoteUpdate(entities.Plan{Tool: "c4_room_off"}, nil, kitchen, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, ReasonOff, reason)
	assert.False(t, remote.Active)

	_, _, ok = RemoteUpdate(entities.Plan{Tool: "c4_room_lights_set"}, nil, kitchen, zap.NewNop())
	assert.False(t, ok)
}

func TestAliasService(t *testing.T) {
	ctx := context.Background()
	store := newFakeAliasStore()
	svc := NewAliasService(store, DefaultAliasTools, zap.NewNop())

	pending := &entities.PendingClarification{
		OriginalPlan:  entities.Plan{Tool: "c4_tv_watch_by_name", Args: map[string]interface{}{"room_name": "Downstairs"}},
		Clarification: entities.Clarification{Kind: entities.ClarificationRoom, Query: " Basement "},
	}
	svc.Remember(ctx, "device-1", pending, room("Basement Stairs", 14))

	for _, key := range []string{"basement", "downstairs"} {
		alias, ok := store.Lookup("device-1", key)
		require.True(t, ok, key)
		assert.Equal(t, repositories.RoomAlias{RoomID: 14, RoomName: "Basement Stairs"}, alias)
	}

	plan := entities.Plan{Tool: "c4_tv_watch_by_name", Args: map[string]interface{}{"room_name": "BASEMENT"}}
	got := svc.Apply(ctx, "device-1", plan)
	assert.Equal(t, 14, got.Args["room_id"])
	assert.NotContains(t, plan.Args, "room_id")

	t.Run("other clients do not share aliases", func(t *testing.T) {
		got := svc.Apply(ctx, "device-2", plan)
		assert.NotContains(t, got.Args, "room_id")
	})

	t.Run("only allowlisted tools", func(t *testing.T) {
		lights := entities.Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{"room_name": "Basement"}}
		got := svc.Apply(ctx, "device-1", lights)
		assert.NotContains(t, got.Args, "room_id")
	})

	t.Run("explicit id wins", func(t *testing.T) {
		explicit := entities.Plan{Tool: "c4_tv_watch_by_name", Args: map[string]interface{}{"room_name": "Basement", "room_id": 2}}
		got := svc.Apply(ctx, "device-1", explicit)
		assert.Equal(t, 2, got.Args["room_id"])
	})

	t.Run("non room choices are not remembered", func(t *testing.T) {
		device := &entities.PendingClarification{
			Clarification: entities.Clarification{Kind: entities.ClarificationDevice, Query: "roku"},
		}
		svc.Remember(ctx, "device-1", device, entities.Candidate{Name: "Roku", DeviceID: "4"})
		_, ok := store.Lookup("device-1", "roku")
		assert.False(t, ok)
	})
}

func TestAliasServiceNeverPropagates(t *testing.T) {
	ctx := context.Background()
	plan := entities.Plan{Tool: "c4_tv_watch_by_name", Args: map[string]interface{}{"room_name": "Basement"}}
	pending := &entities.PendingClarification{
		Clarification: entities.Clarification{Kind: entities.ClarificationRoom, Query: "basement"},
	}

	failing := newFakeAliasStore()
	failing.getErr = errBoom
	failing.setErr = errBoom
	svc := NewAliasService(failing, DefaultAliasTools, zap.NewNop())
	svc.Remember(ctx, "device-1", pending, room("Basement Stairs", 14))
	assert.Equal(t, plan, svc.Apply(ctx, "device-1", plan))

	exploding := newFakeAliasStore()
	exploding.panics = true
	svc = NewAliasService(exploding, DefaultAliasTools, zap.NewNop())
	assert.NotPanics(t, func() {
		svc.Remember(ctx, "device-1", pending, room("Basement Stairs", 14))
	})
	assert.Equal(t, plan, svc.Apply(ctx, "device-1", plan))

	var nilSvc *AliasService
	assert.Equal(t, plan, nilSvc.Apply(ctx, "device-1", plan))
}

func TestHistoryCleanupRunOnce(t *testing.T) {
	history := &fakeHistory{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := NewHistoryCleanupService(history, 24*time.Hour, time.Hour, zap.NewNop())
	svc.now = func() time.Time { return now }

	assert.Equal(t, int64(3), svc.RunOnce(context.Background()))
	require.Len(t, history.pruned, 1)
	assert.Equal(t, now.Add(-24*time.Hour), history.pruned[0])

	disabled := NewHistoryCleanupService(history, 0, time.Hour, zap.NewNop())
	assert.Equal(t, int64(0), disabled.RunOnce(context.Background()))
	assert.Len(t, history.pruned, 1)

	history.err = errBoom
	assert.Equal(t, int64(0), svc.RunOnce(context.Background()))
}

func TestHistoryCleanupStopIsIdempotent(t *testing.T) {
	svc := NewHistoryCleanupService(&fakeHistory{}, time.Hour, time.Hour, zap.NewNop())
	svc.Start()
	svc.Stop()
	assert.NotPanics(t, svc.Stop)
}
