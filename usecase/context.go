package usecase

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/payload"
)

// Tools that accept the current room implicitly, preferably by id.
var roomContextTools = map[string]bool{
	"c4_room_lights_set":                true,
	"c4_tv_watch_by_name":               true,
	"c4_tv_off":                         true,
	"c4_room_listen_by_name":            true,
	"c4_media_watch_launch_app_by_name": true,
	"c4_room_watch_status":              true,
	"c4_room_listen_status":             true,
	"c4_room_now_playing":               true,
	"c4_room_list_video_devices":        true,
	"c4_room_select_video_device":       true,
	"c4_room_select_audio_device":       true,
}

// Tools that resolve rooms by name only; an id alone is not enough.
var roomNameContextTools = map[string]bool{
	"c4_light_set_by_name":       true,
	"c4_scene_activate_by_name":  true,
	"c4_scene_set_state_by_name": true,
}

var remoteEnablingTools = map[string]bool{
	"c4_tv_watch":                       true,
	"c4_tv_watch_by_name":               true,
	"c4_media_watch_launch_app":         true,
	"c4_media_watch_launch_app_by_name": true,
	"c4_room_select_video_device":       true,
	"c4_tv_remote":                      true,
	"c4_tv_remote_last":                 true,
	"c4_media_remote":                   true,
	"c4_media_remote_sequence":          true,
}

var remoteDisablingTools = map[string]bool{
	"c4_tv_off":      true,
	"c4_tv_off_last": true,
	"c4_room_off":    true,
}

// Context reasons carried by room-context and remote-context events.
const (
	ReasonPresence      = "presence"
	ReasonClarification = "clarification"
	ReasonMood          = "mood"
	ReasonInferred      = "inferred"
	ReasonWatch         = "watch"
	ReasonOff           = "off"
)

// ApplyRoomContext fills a missing room argument from the current room. A plan
// that already names a room is returned unchanged. It never propagates failures.
func ApplyRoomContext(plan entities.Plan, room *entities.RoomContext, logger *zap.Logger) (out entities.Plan) {
	out = plan
	defer recoverBestEffort(logger, "apply room context")

	if room == nil || plan.HasRoom() {
		return plan
	}

	switch {
	case roomContextTools[plan.Tool]:
		enriched := plan.Clone()
		if room.RoomID != nil {
			enriched.Args["room_id"] = *room.RoomID
		} else if room.RoomName != "" {
			enriched.Args["room_name"] = room.RoomName
		} else {
			return plan
		}
		return enriched

	case roomNameContextTools[plan.Tool]:
		if strings.TrimSpace(room.RoomName) == "" {
			return plan
		}
		enriched := plan.Clone()
		enriched.Args["room_name"] = room.RoomName
		return enriched
	}
	return plan
}

// InferRoom looks for a single resolved room in a successful result: the
// plan's own room_id/room_name pair first, then a {room_id, room_name} object
// inside the gateway payload. It never propagates failures.
func InferRoom(plan entities.Plan, result *entities.ExecutionResult, logger *zap.Logger) (roomID *int, roomName string, ok bool) {
	defer recoverBestEffort(logger, "infer room")

	if name := plan.StringArg("room_name"); name != "" {
		if id, isInt := entities.IntValue(plan.Args["room_id"]); isInt {
			return entities.IntPtr(id), name, true
		}
	}
	if result == nil {
		return nil, "", false
	}

	obj, found := payload.FindObject(result.Result, payload.DefaultDepth, func(m map[string]interface{}) bool {
		name, isString := m["room_name"].(string)
		_, isInt := entities.IntValue(m["room_id"])
		return isString && strings.TrimSpace(name) != "" && isInt
	})
	if !found {
		return nil, "", false
	}
	id, _ := entities.IntValue(obj["room_id"])
	return entities.IntPtr(id), strings.TrimSpace(obj["room_name"].(string)), true
}

// RemoteUpdate computes the remote context after a successful plan. It returns
// false when the tool does not affect the remote.
func RemoteUpdate(plan entities.Plan, result *entities.ExecutionResult, room *entities.RoomContext, logger *zap.Logger) (remote entities.RemoteContext, reason string, ok bool) {
	defer recoverBestEffort(logger, "compute remote context")

	if remoteDisablingTools[plan.Tool] {
		return entities.RemoteContext{Active: false, Kind: "tv"}, ReasonOff, true
	}
	if !remoteEnablingTools[plan.Tool] {
		return entities.RemoteContext{}, "", false
	}

	mediaID := mediaDeviceID(plan, result)

	var parts []string
	if room != nil && room.RoomName != "" {
		parts = append(parts, room.RoomName)
	}
	device := firstNonEmpty(plan.StringArg("source_device_name"), plan.StringArg("video_device_name"), plan.StringArg("device_name"))
	if device != "" {
		parts = append(parts, device)
	}
	if app := plan.StringArg("app"); app != "" {
		parts = append(parts, app)
	}

	remote = entities.RemoteContext{
		Active:        true,
		Kind:          "tv",
		Label:         strings.Join(parts, " — "),
		Room:          room,
		Device:        device,
		MediaDeviceID: mediaID,
	}
	if mediaID != "" {
		remote.Kind = "media"
	}
	return remote, ReasonWatch, true
}

func mediaDeviceID(plan entities.Plan, result *entities.ExecutionResult) string {
	switch plan.Tool {
	case "c4_media_watch_launch_app", "c4_media_watch_launch_app_by_name", "c4_media_remote", "c4_media_remote_sequence":
		return idString(plan.Args["device_id"])
	case "c4_tv_watch":
		return idString(plan.Args["source_device_id"])
	case "c4_tv_watch_by_name":
		if result != nil {
			for _, key := range []string{"planned", "resolve_source"} {
				obj, found := payload.FindObject(result.Result, payload.DefaultDepth, func(m map[string]interface{}) bool {
					_, has := m[key].(map[string]interface{})
					return has
				})
				if !found {
					continue
				}
				inner := obj[key].(map[string]interface{})
				idKey := "source_device_id"
				if key == "resolve_source" {
					idKey = "device_id"
				}
				if id := idString(inner[idKey]); id != "" {
					return id
				}
			}
		}
		return idString(plan.Args["source_device_id"])
	}
	return ""
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case nil:
		return ""
	}
	if n, ok := entities.IntValue(v); ok {
		return strconv.Itoa(n)
	}
	return ""
}
