package usecase

import (
	"strings"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// RefinePlan rewrites the original plan with the chosen candidate. The result
// always asks the gateway for a unique match and for candidates, so a refined
// call that is still ambiguous comes back as a new clarification instead of a
// guess. Tools that reject those flags have them stripped by the gateway client.
func RefinePlan(original entities.Plan, choice entities.Candidate) (entities.Plan, bool) {
	tool := strings.TrimSpace(original.Tool)
	if tool == "" || (choice.Name == "" && choice.RoomID == nil && choice.DeviceID == "") {
		return entities.Plan{}, false
	}

	refined := original.Clone()
	refined.Tool = tool
	args := refined.Args
	args["require_unique"] = true
	args["include_candidates"] = true

	setRoomID := func() bool {
		if choice.RoomID == nil {
			return false
		}
		args["room_id"] = *choice.RoomID
		return true
	}

	switch tool {
	case "c4_room_presence_report":
		delete(args, "include_candidates")
		if setRoomID() {
			if choice.Name != "" {
				args["room_name"] = choice.Name
			}
		} else if choice.Name != "" {
			args["room_name"] = choice.Name
			delete(args, "room_id")
		}

	case "c4_room_lights_set":
		if setRoomID() {
			delete(args, "room_name")
		} else if choice.Name != "" {
			args["room_name"] = choice.Name
			delete(args, "room_id")
		}

	case "c4_light_set_by_name":
		if choice.Name != "" {
			args["device_name"] = choice.Name
		}
		if !setRoomID() && choice.RoomName != "" {
			args["room_name"] = choice.RoomName
		}

	case "c4_tv_watch_by_name":
		if setRoomID() && choice.RoomName != "" {
			args["room_name"] = choice.RoomName
		}
		if choice.DeviceID != "" && choice.Name != "" {
			args["source_device_name"] = choice.Name
		}

	case "c4_tv_watch":
		if choice.DeviceID != "" {
			args["source_device_id"] = choice.DeviceID
		}

	case "c4_media_watch_launch_app_by_name":
		if choice.DeviceID != "" {
			if choice.Name != "" {
				args["device_name"] = choice.Name
			}
		} else if setRoomID() {
			args["room_name"] = firstNonEmpty(choice.Name, choice.RoomName)
		}

	case "c4_room_listen_by_name":
		if choice.DeviceID != "" {
			if choice.Name != "" {
				args["source_device_name"] = choice.Name
			}
		} else if setRoomID() && choice.Name != "" {
			args["room_name"] = choice.Name
		}

	case "c4_scene_activate_by_name", "c4_scene_set_state_by_name":
		if choice.Name != "" {
			args["scene_name"] = choice.Name
		}
	}

	return refined, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
