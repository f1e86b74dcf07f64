package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/payload"
)

const (
	maxDeviceCandidates = 12
	strongMatchScore    = 80
)

func isAmbiguousMarker(obj map[string]interface{}) bool {
	s, ok := obj["error"].(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), "ambiguous")
}

// extractAmbiguity finds an {error:"ambiguous", matches|candidates:[...]}
// payload within payload.DefaultDepth levels of the response and turns it into a
// Clarification. The marker is returned whenever one is found; a nil
// Clarification with a non-nil marker means an ambiguity without usable
// candidates.
func extractAmbiguity(tool string, args map[string]interface{}, resp interface{}) (*entities.Clarification, map[string]interface{}) {
	marker, ok := payload.FindObject(resp, payload.DefaultDepth, isAmbiguousMarker)
	if !ok {
		return nil, nil
	}
	raw, ok := payload.FindArray(marker, 2, "matches", "candidates")
	if !ok || len(raw) == 0 {
		return nil, marker
	}

	candidates := make([]entities.Candidate, 0, len(raw))
	for _, item := range raw {
		obj, isObj := item.(map[string]interface{})
		if !isObj {
			continue
		}
		if c, valid := toCandidate(obj); valid {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, marker
	}

	kind := inferKind(tool, candidates)
	query := queryFor(kind, args)

	if kind == entities.ClarificationDevice {
		candidates = labelDevices(candidates)
		candidates = filterWeakMatches(candidates, query)
		if len(candidates) > maxDeviceCandidates {
			candidates = candidates[:maxDeviceCandidates]
		}
	}
	if len(candidates) == 0 {
		return nil, marker
	}

	return &entities.Clarification{
		Kind:       kind,
		Query:      query,
		Prompt:     ambiguityMessage(marker),
		Candidates: candidates,
	}, marker
}

func toCandidate(obj map[string]interface{}) (entities.Candidate, bool) {
	roomName := firstString(obj, "room_name", "roomName")
	deviceName := firstString(obj, "device_name", "deviceName")
	name := deviceName
	if name == "" {
		name = firstString(obj, "name", "title", "label")
	}
	if name == "" {
		name = roomName
	}
	if name == "" {
		return entities.Candidate{}, false
	}

	c := entities.Candidate{
		Name:       name,
		RoomName:   roomName,
		DeviceName: deviceName,
		DeviceID:   stringID(obj["device_id"]),
	}
	for _, key := range []string{"room_id", "roomId"} {
		if id, ok := entities.IntValue(obj[key]); ok {
			c.RoomID = entities.IntPtr(id)
			break
		}
	}
	if score, ok := floatValue(obj["score"]); ok {
		c.Score = &score
	}
	return c, true
}

func inferKind(tool string, candidates []entities.Candidate) entities.ClarificationKind {
	var hasDeviceIDs, hasRoomIDs bool
	for _, c := range candidates {
		if c.DeviceID != "" {
			hasDeviceIDs = true
		}
		if c.RoomID != nil {
			hasRoomIDs = true
		}
	}

	switch {
	case tool == "c4_tv_watch_by_name" || tool == "c4_media_watch_launch_app_by_name":
		if hasDeviceIDs {
			return entities.ClarificationDevice
		}
		return entities.ClarificationRoom
	case tool == "c4_room_listen_by_name":
		if hasRoomIDs {
			return entities.ClarificationRoom
		}
		return entities.ClarificationDevice
	case strings.HasPrefix(tool, "c4_room_"):
		return entities.ClarificationRoom
	case strings.HasPrefix(tool, "c4_light_"):
		return entities.ClarificationLight
	case strings.HasPrefix(tool, "c4_scene_"):
		return entities.ClarificationScene
	case hasRoomIDs && !hasDeviceIDs:
		return entities.ClarificationRoom
	}
	return entities.ClarificationChoice
}

func queryFor(kind entities.ClarificationKind, args map[string]interface{}) string {
	switch kind {
	case entities.ClarificationRoom:
		return firstString(args, "room_name")
	case entities.ClarificationLight:
		return firstString(args, "device_name")
	case entities.ClarificationDevice:
		return firstString(args, "source_device_name", "device_name")
	case entities.ClarificationScene:
		return firstString(args, "scene_name")
	}
	return ""
}

func labelDevices(candidates []entities.Candidate) []entities.Candidate {
	out := make([]entities.Candidate, len(candidates))
	for i, c := range candidates {
		if c.RoomName != "" && c.Name != "" {
			c.Label = c.RoomName + " — " + c.Name
		}
		out[i] = c
	}
	return out
}

// filterWeakMatches drops low-score partial matches when at least one strong
// match remains. Candidates without a score are always kept.
func filterWeakMatches(candidates []entities.Candidate, query string) []entities.Candidate {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return candidates
	}

	strong := make([]entities.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score == nil ||
			strings.ToLower(c.Name) == q ||
			strings.ToLower(c.DeviceName) == q ||
			*c.Score >= strongMatchScore {
			strong = append(strong, c)
		}
	}
	if len(strong) == 0 {
		return candidates
	}
	return strong
}

func ambiguityMessage(marker map[string]interface{}) string {
	if details, ok := marker["details"].(map[string]interface{}); ok {
		if s, isString := details["details"].(string); isString && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if s, ok := marker["details"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := marker["message"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return "Multiple matches found"
}

func stringID(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(id))
	}
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
