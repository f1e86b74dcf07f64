package entities

import (
	"testing"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
)

func TestSessionCreation(t *testing.T) {
	deviceID := "test-device-123"
	session := NewSession(deviceID)

	if session.DeviceID != deviceID {
		t.Errorf("Expected device ID %s, got %s", deviceID, session.DeviceID)
	}
	if session.ID == "" {
		t.Error("Expected a correlation id")
	}
	if session.ClientKey() != deviceID {
		t.Errorf("Expected client key %s, got %s", deviceID, session.ClientKey())
	}
	if session.Pending() != nil || session.CurrentRoom() != nil || session.CurrentRemote() != nil {
		t.Error("Expected a fresh session to carry no context")
	}
}

func TestAudioFinalizeConcatenatesInOrder(t *testing.T) {
	session := NewSession("device")
	session.StartAudio("ogg", 16000)
	session.AppendAudio("AAA")
	session.AppendAudio("BBB")
	session.AppendAudio("CCC")

	payload, err := session.FinalizeAudio()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload.Base64() != "AAABBBCCC" {
		t.Errorf("Expected chunks in receipt order, got %s", payload.Base64())
	}
	if payload.Format != "ogg" || payload.SampleRate != 16000 {
		t.Errorf("Unexpected format metadata %s/%d", payload.Format, payload.SampleRate)
	}
	if session.BufferedChunks() != 0 {
		t.Errorf("Expected empty buffer after finalize, got %d chunks", session.BufferedChunks())
	}
}

func TestAudioFinalizeEmpty(t *testing.T) {
	session := NewSession("device")
	session.StartAudio("", 0)

	_, err := session.FinalizeAudio()
	if domain.CodeOf(err, "") != domain.CodeNoAudioData {
		t.Errorf("Expected %s, got %v", domain.CodeNoAudioData, err)
	}
}

func TestAudioAppendWithoutStart(t *testing.T) {
	session := NewSession("device")
	session.AppendAudio("AAAA")

	payload, err := session.FinalizeAudio()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload.Format != DefaultAudioFormat {
		t.Errorf("Expected default format %s, got %s", DefaultAudioFormat, payload.Format)
	}
}

func TestAudioStartResetsBuffer(t *testing.T) {
	session := NewSession("device")
	session.AppendAudio("stale")
	session.StartAudio("webm", 48000)
	session.AppendAudio("fresh")

	payload, err := session.FinalizeAudio()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload.Base64() != "fresh" {
		t.Errorf("Expected only post-start chunks, got %s", payload.Base64())
	}
}

func TestAudioPayloadDecode(t *testing.T) {
	// "hi" and "there" encoded separately, each with its own padding.
	payload := AudioPayload{Chunks: []string{"aGk=", "dGhlcmU="}}

	raw, err := payload.Decode()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(raw) != "hithere" {
		t.Errorf("Expected hithere, got %q", raw)
	}
}

func pendingWith(names ...string) *PendingClarification {
	candidates := make([]Candidate, 0, len(names))
	for i, name := range names {
		candidates = append(candidates, Candidate{Name: name, RoomID: IntPtr(i + 1)})
	}
	return &PendingClarification{
		OriginalTranscript: "I'm in the Basement",
		OriginalPlan:       Plan{Tool: "c4_room_presence_report", Args: map[string]interface{}{"room_name": "Basement"}},
		Clarification:      Clarification{Kind: ClarificationRoom, Query: "Basement", Candidates: candidates},
	}
}

func TestTakeChoice(t *testing.T) {
	tests := []struct {
		name        string
		pending     *PendingClarification
		index       int
		wantCode    string
		wantPending bool
	}{
		{name: "idle", pending: nil, index: 0, wantCode: domain.CodeNoPendingClarify},
		{name: "negative index", pending: pendingWith("Basement Bathroom", "Basement Stairs"), index: -1, wantCode: domain.CodeInvalidChoice, wantPending: true},
		{name: "index past end", pending: pendingWith("Basement Bathroom", "Basement Stairs"), index: 2, wantCode: domain.CodeInvalidChoice, wantPending: true},
		{name: "valid", pending: pendingWith("Basement Bathroom", "Basement Stairs"), index: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := NewSession("device")
			session.SetPending(tt.pending)

			_, choice, err := session.TakeChoice(tt.index)
			if tt.wantCode != "" {
				if domain.CodeOf(err, "") != tt.wantCode {
					t.Fatalf("Expected %s, got %v", tt.wantCode, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if choice.Name != "Basement Stairs" {
					t.Errorf("Expected Basement Stairs, got %s", choice.Name)
				}
			}
			if (session.Pending() != nil) != tt.wantPending {
				t.Errorf("Expected pending=%v after choice", tt.wantPending)
			}
		})
	}
}

func TestTakeChoiceTwice(t *testing.T) {
	session := NewSession("device")
	session.SetPending(pendingWith("Basement Bathroom", "Basement Stairs"))

	if _, _, err := session.TakeChoice(0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, _, err := session.TakeChoice(0)
	if domain.CodeOf(err, "") != domain.CodeNoPendingClarify {
		t.Errorf("Expected second choice to fail with %s, got %v", domain.CodeNoPendingClarify, err)
	}
}

func TestSetPendingRejectsEmptyCandidates(t *testing.T) {
	session := NewSession("device")
	session.SetPending(&PendingClarification{Clarification: Clarification{Kind: ClarificationRoom}})

	if session.Pending() != nil {
		t.Error("Expected clarification without candidates to be ignored")
	}
}

func TestBusyFlag(t *testing.T) {
	session := NewSession("device")

	if !session.TryBeginCommand() {
		t.Fatal("Expected first command to start")
	}
	if session.TryBeginCommand() {
		t.Error("Expected overlapping command to be refused")
	}
	session.EndCommand()
	if !session.TryBeginCommand() {
		t.Error("Expected command to start after the previous one ended")
	}
}

func TestCurrentRoomIsCopied(t *testing.T) {
	session := NewSession("device")
	session.SetCurrentRoom(IntPtr(12), "Master Bedroom")

	room := session.CurrentRoom()
	room.RoomName = "mutated"

	if session.CurrentRoom().RoomName != "Master Bedroom" {
		t.Error("Expected CurrentRoom to return a copy")
	}
}

func TestPlanHelpers(t *testing.T) {
	plan := Plan{Tool: "c4_room_lights_set", Args: map[string]interface{}{"room_name": "  Kitchen ", "state": "on"}}

	if plan.StringArg("room_name") != "Kitchen" {
		t.Errorf("Expected trimmed room name, got %q", plan.StringArg("room_name"))
	}
	if !plan.HasRoom() {
		t.Error("Expected plan to have a room")
	}

	clone := plan.Clone()
	clone.Args["room_name"] = "Office"
	if plan.StringArg("room_name") != "Kitchen" {
		t.Error("Expected Clone to copy the args map")
	}

	empty := Plan{Tool: "c4_tv_off_last"}
	if empty.HasRoom() || empty.HasArg("room_id") {
		t.Error("Expected plan without args to report no room")
	}
}

func TestIntValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{in: float64(42), want: 42, ok: true},
		{in: 7, want: 7, ok: true},
		{in: " 19 ", want: 19, ok: true},
		{in: "abc", ok: false},
		{in: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := IntValue(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("IntValue(%v) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
