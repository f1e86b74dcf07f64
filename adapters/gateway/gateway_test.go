package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

type recordedCall struct {
	Kind      string                 `json:"kind"`
	Name      string                 `json:"name"`
	Args      map[string]interface{} `json:"args"`
	SessionID string                 `json:"-"`
}

func newTestServer(t *testing.T, respond func(call recordedCall) (int, interface{})) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mcp/call":
			var call recordedCall
			require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
			call.SessionID = r.Header.Get("X-Session-Id")
			*calls = append(*calls, call)
			status, body := respond(call)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func ok(body interface{}) (int, interface{}) { return http.StatusOK, body }

func TestExecute_Success(t *testing.T) {
	srv, calls := newTestServer(t, func(call recordedCall) (int, interface{}) {
		return ok(map[string]interface{}{"ok": true, "result": map[string]interface{}{"ok": true}})
	})
	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	result, err := client.Execute(context.Background(), entities.Plan{
		Tool: "c4_room_lights_set",
		Args: map[string]interface{}{"room": "Kitchen", "state": "on"},
	}, "device-1")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "c4_room_lights_set", result.Tool)
	assert.Nil(t, result.Clarification)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "tool", call.Kind)
	assert.Equal(t, "device-1", call.SessionID)
	assert.Equal(t, "Kitchen", call.Args["room_name"])
	assert.NotContains(t, call.Args, "room")
}

func TestExecute_ToolNotAllowed(t *testing.T) {
	srv, calls := newTestServer(t, func(recordedCall) (int, interface{}) { return ok(map[string]interface{}{}) })
	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_scheduler_set"}, "device-1")

	require.Error(t, err)
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err, ""))
	assert.Empty(t, *calls)
}

func TestExecute_CustomAllowlist(t *testing.T) {
	srv, _ := newTestServer(t, func(recordedCall) (int, interface{}) { return ok(map[string]interface{}{"ok": true}) })
	client := NewClient(Config{BaseURL: srv.URL, Allowlist: []string{"c4_list_rooms"}}, zap.NewNop())

	_, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_room_lights_set"}, "d")
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err, ""))

	result, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_list_rooms"}, "d")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"c4_list_rooms"}, client.Allowlist())
}

func TestExecute_NestedAmbiguity(t *testing.T) {
	srv, _ := newTestServer(t, func(recordedCall) (int, interface{}) {
		return ok(map[string]interface{}{
			"ok": true,
			"result": map[string]interface{}{
				"ok":    false,
				"error": "ambiguous",
				"details": map[string]interface{}{
					"details": "Multiple rooms match 'basement'",
					"matches": []interface{}{
						map[string]interface{}{"name": "Basement Bar", "room_id": 12},
						map[string]interface{}{"name": "Basement Office", "room_id": "14"},
					},
				},
			},
		})
	})
	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	result, err := client.Execute(context.Background(), entities.Plan{
		Tool: "c4_room_lights_set",
		Args: map[string]interface{}{"room_name": "basement", "state": "on"},
	}, "d")

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Clarification)
	assert.Equal(t, entities.ClarificationRoom, result.Clarification.Kind)
	assert.Equal(t, "basement", result.Clarification.Query)
	assert.Equal(t, "Multiple rooms match 'basement'", result.Clarification.Prompt)
	require.Len(t, result.Clarification.Candidates, 2)
	assert.Equal(t, 12, *result.Clarification.Candidates[0].RoomID)
	assert.Equal(t, 14, *result.Clarification.Candidates[1].RoomID)
}

func TestExecute_ToolReportedFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(recordedCall) (int, interface{}) {
		return ok(map[string]interface{}{"ok": true, "result": map[string]interface{}{"ok": false, "error": "Device offline"}})
	})
	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	result, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_tv_off_last"}, "d")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, result.Clarification)
	assert.Equal(t, "Device offline", result.Error)
}

func TestExecute_HTTPError(t *testing.T) {
	srv, _ := newTestServer(t, func(recordedCall) (int, interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "bad args"}
	})
	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_tv_off_last"}, "d")

	require.Error(t, err)
	appErr, isApp := domain.AsAppError(err)
	require.True(t, isApp)
	assert.Equal(t, domain.CodeMCPCommand, appErr.Code)
	details := appErr.Details.(map[string]interface{})
	assert.Equal(t, http.StatusBadRequest, details["status"])
}

func TestExecute_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_tv_off_last"}, "d")

	require.Error(t, err)
	assert.Equal(t, domain.CodeMCPTimeout, domain.CodeOf(err, ""))
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestExecute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := NewClient(Config{BaseURL: url}, zap.NewNop())

	_, err := client.Execute(context.Background(), entities.Plan{Tool: "c4_tv_off_last"}, "d")

	require.Error(t, err)
	assert.Equal(t, domain.CodeMCPConnection, domain.CodeOf(err, ""))
}

func TestToolCatalog_CachesAndFilters(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tools": map[string]interface{}{
				"c4_room_lights_set": map[string]interface{}{"description": "Set room lights"},
				"c4_scheduler_set":   map[string]interface{}{"description": "Not allowed"},
			},
		})
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, CatalogTTL: time.Minute}, zap.NewNop())

	first := client.ToolCatalog(context.Background())
	second := client.ToolCatalog(context.Background())

	require.Len(t, first, 1)
	assert.Equal(t, "c4_room_lights_set", first[0].Name)
	assert.Equal(t, "Set room lights", first[0].Description)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestToolCatalog_KeepsPreviousOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]interface{}{map[string]interface{}{"name": "c4_list_rooms"}})
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, CatalogTTL: time.Minute}, zap.NewNop())

	now := time.Now()
	client.now = func() time.Time { return now }
	require.Len(t, client.ToolCatalog(context.Background()), 1)

	fail.Store(true)
	now = now.Add(2 * time.Minute)
	catalog := client.ToolCatalog(context.Background())
	require.Len(t, catalog, 1)
	assert.Equal(t, "c4_list_rooms", catalog[0].Name)
}

func TestToolSpecsFromList(t *testing.T) {
	tests := []struct {
		name string
		resp interface{}
		want []string
	}{
		{"bare array", []interface{}{"a", map[string]interface{}{"name": "b"}}, []string{"a", "b"}},
		{"tools array", map[string]interface{}{"tools": []interface{}{map[string]interface{}{"name": "x"}}}, []string{"x"}},
		{"tools map", map[string]interface{}{"tools": map[string]interface{}{"z": nil, "y": map[string]interface{}{}}}, []string{"y", "z"}},
		{"items", map[string]interface{}{"items": []interface{}{"i"}}, []string{"i"}},
		{"unknown", map[string]interface{}{"other": 1}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := toolSpecsFromList(tt.resp)
			names := make([]string, 0, len(specs))
			for _, s := range specs {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		tool string
		in   map[string]interface{}
		want map[string]interface{}
	}{
		{
			name: "room alias keys",
			tool: "c4_room_lights_set",
			in:   map[string]interface{}{"roomName": "Den", "require_unique": true},
			want: map[string]interface{}{"room_name": "Den", "require_unique": true},
		},
		{
			name: "flags stripped for strict tools",
			tool: "c4_tv_off_last",
			in:   map[string]interface{}{"require_unique": true, "include_candidates": true},
			want: map[string]interface{}{},
		},
		{
			name: "watch source keys",
			tool: "c4_tv_watch_by_name",
			in:   map[string]interface{}{"device_name": " Roku ", "room": "Basement"},
			want: map[string]interface{}{"source_device_name": "Roku", "room_name": "Basement"},
		},
		{
			name: "app launch by name",
			tool: "c4_media_watch_launch_app_by_name",
			in:   map[string]interface{}{"app_name": "Netflix", "deviceName": "Apple TV"},
			want: map[string]interface{}{"app": "Netflix", "device_name": "Apple TV"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArgs(tt.tool, tt.in))
		})
	}
}

func TestNormalizeArgs_DoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{"room": "Den"}
	_ = NormalizeArgs("c4_room_lights_set", in)
	assert.Equal(t, map[string]interface{}{"room": "Den"}, in)
}

func TestExtractAmbiguity_DeviceCandidates(t *testing.T) {
	resp := map[string]interface{}{
		"error": "ambiguous",
		"candidates": []interface{}{
			map[string]interface{}{"name": "Roku", "device_id": 101, "room_name": "Basement", "score": 95},
			map[string]interface{}{"name": "Roku Old", "device_id": "102", "room_name": "Den", "score": 40},
			map[string]interface{}{"name": "Apple TV", "device_id": 103, "room_name": "Den", "score": 90},
		},
	}

	c, marker := extractAmbiguity("c4_tv_watch_by_name", map[string]interface{}{"source_device_name": "roku"}, resp)

	require.NotNil(t, c)
	assert.NotNil(t, marker)
	assert.Equal(t, entities.ClarificationDevice, c.Kind)
	assert.Equal(t, "roku", c.Query)
	require.Len(t, c.Candidates, 2)
	assert.Equal(t, "Basement — Roku", c.Candidates[0].Label)
	assert.Equal(t, "101", c.Candidates[0].DeviceID)
	assert.Equal(t, "Apple TV", c.Candidates[1].Name)
	assert.Equal(t, "Multiple matches found", c.Prompt)
}

func TestExtractAmbiguity_NotAmbiguous(t *testing.T) {
	c, marker := extractAmbiguity("c4_room_lights_set", nil, map[string]interface{}{"ok": true})
	assert.Nil(t, c)
	assert.Nil(t, marker)

	c, marker = extractAmbiguity("c4_room_lights_set", nil, map[string]interface{}{"error": "ambiguous", "matches": []interface{}{}})
	assert.Nil(t, c)
	assert.NotNil(t, marker)
}

func TestExecute_EmptyAmbiguityFails(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{
			name: "nested below result",
			body: map[string]interface{}{
				"ok": true,
				"result": map[string]interface{}{
					"result": map[string]interface{}{"ok": false, "error": "ambiguous", "matches": []interface{}{}},
				},
			},
			want: "Multiple matches found",
		},
		{
			name: "without ok flag",
			body: map[string]interface{}{
				"result": map[string]interface{}{"error": "ambiguous", "matches": []interface{}{}, "details": "No rooms matched 'upstairs'"},
			},
			want: "No rooms matched 'upstairs'",
		},
		{
			name: "candidates without names",
			body: map[string]interface{}{
				"result": map[string]interface{}{"error": "ambiguous", "candidates": []interface{}{map[string]interface{}{"score": 10}}},
			},
			want: "Multiple matches found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(recordedCall) (int, interface{}) { return ok(tt.body) })
			client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

			result, err := client.Execute(context.Background(), entities.Plan{
				Tool: "c4_room_lights_set",
				Args: map[string]interface{}{"room_name": "upstairs", "state": "on"},
			}, "device-1")

			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Nil(t, result.Clarification)
			assert.Equal(t, tt.want, result.Error)
		})
	}
}

func TestInferKind(t *testing.T) {
	withDevice := []entities.Candidate{{Name: "x", DeviceID: "1"}}
	withRoom := []entities.Candidate{{Name: "x", RoomID: entities.IntPtr(1)}}

	assert.Equal(t, entities.ClarificationDevice, inferKind("c4_tv_watch_by_name", withDevice))
	assert.Equal(t, entities.ClarificationRoom, inferKind("c4_tv_watch_by_name", withRoom))
	assert.Equal(t, entities.ClarificationRoom, inferKind("c4_room_listen_by_name", withRoom))
	assert.Equal(t, entities.ClarificationDevice, inferKind("c4_room_listen_by_name", withDevice))
	assert.Equal(t, entities.ClarificationRoom, inferKind("c4_room_lights_set", withDevice))
	assert.Equal(t, entities.ClarificationLight, inferKind("c4_light_set_by_name", withDevice))
	assert.Equal(t, entities.ClarificationScene, inferKind("c4_scene_activate_by_name", withDevice))
	assert.Equal(t, entities.ClarificationRoom, inferKind("c4_find_rooms", withRoom))
	assert.Equal(t, entities.ClarificationChoice, inferKind("c4_find_devices", withDevice))
}
