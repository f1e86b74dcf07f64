package entities

import (
	"strconv"
	"strings"
	"time"
)

// Plan is the planner's decision for one transcript: a single gateway tool call.
type Plan struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// Clone returns a copy whose Args map can be rewritten without touching p.
func (p Plan) Clone() Plan {
	args := make(map[string]interface{}, len(p.Args))
	for k, v := range p.Args {
		args[k] = v
	}
	return Plan{Tool: p.Tool, Args: args}
}

// StringArg returns the trimmed string value of key, or "" when absent or not a string.
func (p Plan) StringArg(key string) string {
	if p.Args == nil {
		return ""
	}
	s, ok := p.Args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// HasArg reports whether key holds a non-empty value.
func (p Plan) HasArg(key string) bool {
	if p.Args == nil {
		return false
	}
	v, ok := p.Args[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// HasRoom reports whether the plan already names a room in any accepted form.
func (p Plan) HasRoom() bool {
	return p.HasArg("room_id") || p.HasArg("room_name") || p.HasArg("room") || p.HasArg("roomName")
}

// ClarificationKind names what a clarification disambiguates.
type ClarificationKind string

const (
	ClarificationRoom   ClarificationKind = "room"
	ClarificationDevice ClarificationKind = "device"
	ClarificationLight  ClarificationKind = "light"
	ClarificationScene  ClarificationKind = "scene"
	ClarificationChoice ClarificationKind = "choice"
)

// IsRoomKind covers "room" and gateway-specific variants like "source_room".
func (k ClarificationKind) IsRoomKind() bool {
	return strings.Contains(string(k), "room")
}

// Candidate is one disambiguation option. Which fields are set depends on the kind.
type Candidate struct {
	Name       string   `json:"name"`
	Label      string   `json:"label,omitempty"`
	RoomID     *int     `json:"room_id,omitempty"`
	RoomName   string   `json:"room_name,omitempty"`
	DeviceID   string   `json:"device_id,omitempty"`
	DeviceName string   `json:"device_name,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// Clarification is the gateway's "which one did you mean" descriptor.
type Clarification struct {
	Kind       ClarificationKind `json:"kind"`
	Query      string            `json:"query,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
	Candidates []Candidate       `json:"candidates"`
}

// ExecutionResult is the gateway's answer for one plan.
type ExecutionResult struct {
	Success       bool                   `json:"success"`
	Tool          string                 `json:"tool"`
	Args          map[string]interface{} `json:"args"`
	Result        interface{}            `json:"result,omitempty"`
	Clarification *Clarification         `json:"clarification,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// IsAmbiguous reports whether the result carries a surfaceable clarification.
func (r *ExecutionResult) IsAmbiguous() bool {
	return r != nil && r.Clarification != nil && len(r.Clarification.Candidates) > 0
}

// AggregateResult reports a multi-call outcome (room group fan-out, mood plan, presence report).
type AggregateResult struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message,omitempty"`
	Tool      string                 `json:"tool,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Aggregate map[string]interface{} `json:"aggregate"`
	Results   interface{}            `json:"results"`
	Warnings  []string               `json:"warnings,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RoomGroupEntry is one room's outcome inside a room-group aggregate.
type RoomGroupEntry struct {
	RoomName string           `json:"room_name"`
	RoomID   *int             `json:"room_id"`
	Plan     Plan             `json:"plan"`
	Result   *ExecutionResult `json:"result"`
}

// IntValue converts gateway/planner numbers (float64, int, numeric strings) to int.
func IntValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
