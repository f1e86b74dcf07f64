package usecase

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/payload"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// PresenceTool is the virtual tool reported for presence reports.
const PresenceTool = "c4_room_presence"

const (
	maxRoomCandidates  = 12
	maxLightDevices    = 25
	maxSampledLights   = 6
	maxNowPlayingItems = 30
)

// isPresencePlan reports whether a plan is a "which room am I in" statement.
func isPresencePlan(plan entities.Plan) bool {
	return plan.Tool == PresenceTool || plan.Tool == "c4_room_presence_report"
}

// LightSample is one sampled light level in a presence report.
type LightSample struct {
	Name     string      `json:"name"`
	DeviceID string      `json:"device_id"`
	Level    *int        `json:"level"`
	Raw      interface{} `json:"raw,omitempty"`
}

// PresenceReporter resolves rooms by name and builds read-only room reports.
type PresenceReporter struct {
	gateway repositories.Gateway
	logger  *zap.Logger
	now     func() time.Time
}

// NewPresenceReporter creates a reporter on top of the gateway
func NewPresenceReporter(gateway repositories.Gateway, logger *zap.Logger) *PresenceReporter {
	return &PresenceReporter{gateway: gateway, logger: logger, now: time.Now}
}

// FindRooms returns up to 12 room candidates matching query.
func (p *PresenceReporter) FindRooms(ctx context.Context, sessionID, query string) ([]entities.Candidate, error) {
	result, err := p.gateway.Execute(ctx, entities.Plan{
		Tool: "c4_find_rooms",
		Args: map[string]interface{}{"search": query, "limit": maxRoomCandidates, "include_raw": false},
	}, sessionID)
	if err != nil {
		return nil, err
	}
	if result.IsAmbiguous() {
		return capCandidates(result.Clarification.Candidates), nil
	}
	rooms, _ := payload.FindArray(result.Result, payload.DefaultDepth, "rooms")
	return roomCandidates(rooms), nil
}

// ListRooms returns up to 12 rooms of the home for a room question.
func (p *PresenceReporter) ListRooms(ctx context.Context, sessionID string) ([]entities.Candidate, error) {
	result, err := p.gateway.Execute(ctx, entities.Plan{Tool: "c4_list_rooms", Args: map[string]interface{}{}}, sessionID)
	if err != nil {
		return nil, err
	}
	rooms, _ := payload.FindArray(result.Result, payload.DefaultDepth, "rooms", "items")
	return roomCandidates(rooms), nil
}

func capCandidates(c []entities.Candidate) []entities.Candidate {
	if len(c) > maxRoomCandidates {
		return c[:maxRoomCandidates]
	}
	return c
}

func roomCandidates(rooms []interface{}) []entities.Candidate {
	out := make([]entities.Candidate, 0, len(rooms))
	for _, item := range rooms {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name := stringField(obj, "name", "room_name", "roomName", "title")
		if name == "" {
			continue
		}
		c := entities.Candidate{Name: name}
		for _, key := range []string{"room_id", "roomId", "id"} {
			if id, isInt := entities.IntValue(obj[key]); isInt {
				c.RoomID = entities.IntPtr(id)
				break
			}
		}
		out = append(out, c)
		if len(out) == maxRoomCandidates {
			break
		}
	}
	return out
}

type lightDevice struct {
	name     string
	deviceID string
}

// Report builds the presence report for room from parallel read-only calls.
// Individual call failures are folded into the report rather than failing it.
func (p *PresenceReporter) Report(ctx context.Context, sessionID string, room entities.Candidate) *entities.AggregateResult {
	roomIDArg := ""
	if room.RoomID != nil {
		roomIDArg = strconv.Itoa(*room.RoomID)
	}

	var watchStatus, listenStatus, nowPlaying, lightsFound interface{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watchStatus = p.readOnly(gctx, sessionID, "c4_room_watch_status", map[string]interface{}{"room_id": roomIDArg})
		return nil
	})
	g.Go(func() error {
		listenStatus = p.readOnly(gctx, sessionID, "c4_room_listen_status", map[string]interface{}{"room_id": roomIDArg})
		return nil
	})
	g.Go(func() error {
		nowPlaying = p.readOnly(gctx, sessionID, "c4_room_now_playing", map[string]interface{}{"room_id": roomIDArg, "max_sources": maxNowPlayingItems})
		return nil
	})
	g.Go(func() error {
		lightsFound = p.readOnly(gctx, sessionID, "c4_find_devices", map[string]interface{}{
			"category": "lights", "room_id": roomIDArg, "limit": maxLightDevices, "include_raw": false,
		})
		return nil
	})
	_ = g.Wait()

	devices := lightDevices(lightsFound)
	sampled := devices
	if len(sampled) > maxSampledLights {
		sampled = sampled[:maxSampledLights]
	}

	samples := make([]LightSample, len(sampled))
	sg, sctx := errgroup.WithContext(ctx)
	for i, d := range sampled {
		i, d := i, d
		sg.Go(func() error {
			raw := p.readOnly(sctx, sessionID, "c4_light_get_level", map[string]interface{}{"device_id": d.deviceID})
			sample := LightSample{Name: d.name, DeviceID: d.deviceID, Raw: raw}
			if level, ok := lightLevel(raw); ok {
				sample.Level = &level
			}
			samples[i] = sample
			return nil
		})
	}
	_ = sg.Wait()

	var on []string
	for _, s := range samples {
		if s.Level != nil && *s.Level > 0 {
			on = append(on, fmt.Sprintf("%s (%d%%)", s.Name, *s.Level))
		}
	}

	lightsSummary := "No lights found"
	if len(devices) > 0 {
		lightsSummary = fmt.Sprintf("%d light(s) on", len(on))
		if len(on) > 0 {
			lightsSummary += ": " + strings.Join(on, ", ")
		}
	}
	roomName := room.Name
	if roomName == "" {
		roomName = "Room"
	}
	summary := roomName + ": " + lightsSummary
	if np := nowPlayingSummary(nowPlaying); np != "" {
		summary += ". " + np
	}

	var roomID interface{}
	if room.RoomID != nil {
		roomID = *room.RoomID
	}

	return &entities.AggregateResult{
		Success: true,
		Message: summary,
		Aggregate: map[string]interface{}{
			"kind":           "room-presence",
			"room_name":      room.Name,
			"room_id":        roomID,
			"lights_found":   len(devices),
			"lights_sampled": len(samples),
			"lights_on":      len(on),
			"summary":        summary,
		},
		Results: map[string]interface{}{
			"lights": map[string]interface{}{
				"discovered": lightsFound,
				"sampled":    samples,
			},
			"media": map[string]interface{}{
				"watch_status":  watchStatus,
				"listen_status": listenStatus,
				"now_playing":   nowPlaying,
			},
		},
		Timestamp: p.now().UTC(),
	}
}

// readOnly runs one status call and returns its payload, or an
// {ok:false, error} object when it failed.
func (p *PresenceReporter) readOnly(ctx context.Context, sessionID, tool string, args map[string]interface{}) interface{} {
	result, err := p.gateway.Execute(ctx, entities.Plan{Tool: tool, Args: args}, sessionID)
	if err != nil {
		p.logger.Warn("Presence status call failed", zap.String("tool", tool), zap.Error(err))
		return map[string]interface{}{"ok": false, "error": domain.MessageOf(err)}
	}
	return result.Result
}

func lightDevices(found interface{}) []lightDevice {
	items, ok := payload.FindArray(found, payload.DefaultDepth, "devices", "items", "results")
	if !ok {
		items, _ = found.([]interface{})
	}
	out := make([]lightDevice, 0, len(items))
	for _, item := range items {
		obj, isObj := item.(map[string]interface{})
		if !isObj {
			continue
		}
		name := stringField(obj, "name", "device_name", "title")
		id := ""
		for _, key := range []string{"device_id", "id", "deviceId"} {
			if id = idString(obj[key]); id != "" {
				break
			}
		}
		if name == "" || id == "" {
			continue
		}
		out = append(out, lightDevice{name: name, deviceID: id})
		if len(out) == maxLightDevices {
			break
		}
	}
	return out
}

func lightLevel(raw interface{}) (int, bool) {
	obj, ok := payload.FindObject(raw, 2, func(m map[string]interface{}) bool {
		_, has := m["level"]
		return has
	})
	if !ok {
		return 0, false
	}
	switch v := obj["level"].(type) {
	case float64:
		return int(math.Round(v)), true
	default:
		return entities.IntValue(v)
	}
}

func nowPlayingSummary(nowPlaying interface{}) string {
	normalized, ok := payload.FindObject(nowPlaying, payload.DefaultDepth, func(m map[string]interface{}) bool {
		_, has := m["normalized"].(map[string]interface{})
		return has
	})
	if !ok {
		return ""
	}
	n := normalized["normalized"].(map[string]interface{})
	title := stringField(n, "title", "track", "name")
	if title == "" {
		return ""
	}
	summary := "Now playing: " + title
	if artist := stringField(n, "artist", "subtitle"); artist != "" {
		summary += " — " + artist
	}
	if source := stringField(n, "source", "source_name", "app"); source != "" {
		summary += " (" + source + ")"
	}
	return summary
}

func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
