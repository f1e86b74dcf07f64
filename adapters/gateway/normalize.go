package gateway

import "strings"

// plannerFlagTools accept require_unique/include_candidates; every other tool
// rejects them during schema validation.
var plannerFlagTools = map[string]bool{
	"c4_tv_watch_by_name":               true,
	"c4_room_listen_by_name":            true,
	"c4_room_lights_set":                true,
	"c4_light_set_by_name":              true,
	"c4_scene_activate_by_name":         true,
	"c4_scene_set_state_by_name":        true,
	"c4_media_watch_launch_app_by_name": true,
	"c4_media_watch_launch_app":         true,
}

// NormalizeArgs returns a copy of args rewritten to the gateway's strict schemas.
func NormalizeArgs(tool string, raw map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		args[k] = v
	}

	if _, ok := args["room_name"].(string); !ok {
		if room := firstString(args, "roomName", "room"); room != "" {
			args["room_name"] = room
		}
	}
	delete(args, "room")
	delete(args, "roomName")

	if !plannerFlagTools[tool] {
		delete(args, "include_candidates")
		delete(args, "require_unique")
	}

	switch tool {
	case "c4_tv_watch_by_name", "c4_room_listen_by_name":
		if source := firstTrimmed(args, "source_device_name", "sourceDeviceName", "video_device_name", "videoDeviceName", "device_name", "deviceName"); source != "" {
			args["source_device_name"] = source
		}
		for _, k := range []string{"device_name", "deviceName", "video_device_name", "videoDeviceName", "sourceDeviceName"} {
			delete(args, k)
		}

	case "c4_media_watch_launch_app", "c4_media_watch_launch_app_by_name":
		if _, ok := args["app"].(string); !ok {
			if app := firstString(args, "app_name", "appName", "application"); app != "" {
				args["app"] = app
			}
		}
		for _, k := range []string{"app_name", "appName", "application"} {
			delete(args, k)
		}

		if tool == "c4_media_watch_launch_app_by_name" {
			if _, ok := args["device_name"].(string); !ok {
				if device := firstString(args, "deviceName", "source_device_name", "sourceDeviceName"); device != "" {
					args["device_name"] = device
				}
			}
			for _, k := range []string{"deviceName", "source_device_name", "sourceDeviceName"} {
				delete(args, k)
			}
		}
	}

	return args
}

func firstString(args map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstTrimmed(args map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
