package entities

import (
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/randybritsch/c4-mcp-app-sub000/domain"
)

// DefaultAudioFormat is assumed when audio-start omits a format.
const DefaultAudioFormat = "webm"

// AudioPayload is one finalized utterance handed to transcription.
type AudioPayload struct {
	Chunks     []string
	Format     string
	SampleRate int
}

// Base64 concatenates the chunks in receipt order.
func (p AudioPayload) Base64() string {
	return strings.Join(p.Chunks, "")
}

// Decode returns the raw audio bytes. Chunks are decoded one by one so padded
// fragments concatenate correctly; if that fails the joined string is tried.
func (p AudioPayload) Decode() ([]byte, error) {
	var out []byte
	for _, chunk := range p.Chunks {
		b, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return base64.StdEncoding.DecodeString(p.Base64())
		}
		out = append(out, b...)
	}
	return out, nil
}

// AudioBuffer accumulates base64 fragments of one utterance.
type AudioBuffer struct {
	chunks     []string
	format     string
	sampleRate int
}

// Start clears the buffer and records the utterance format.
func (b *AudioBuffer) Start(format string, sampleRate int) {
	format = strings.TrimSpace(format)
	if format == "" {
		format = DefaultAudioFormat
	}
	b.chunks = nil
	b.format = format
	b.sampleRate = sampleRate
}

// Append adds a chunk. A buffer that was never started is started with defaults.
func (b *AudioBuffer) Append(chunk string) {
	if b.format == "" {
		b.format = DefaultAudioFormat
	}
	b.chunks = append(b.chunks, chunk)
}

// Len returns the number of buffered chunks.
func (b *AudioBuffer) Len() int {
	return len(b.chunks)
}

// Finalize hands out the buffered utterance and always leaves the buffer empty.
func (b *AudioBuffer) Finalize() (AudioPayload, error) {
	payload := AudioPayload{Chunks: b.chunks, Format: b.format, SampleRate: b.sampleRate}
	if payload.Format == "" {
		payload.Format = DefaultAudioFormat
	}
	b.chunks = nil
	b.format = ""
	b.sampleRate = 0

	if len(payload.Chunks) == 0 {
		return AudioPayload{}, domain.UserInputError(domain.CodeNoAudioData, "No audio data received")
	}
	return payload, nil
}

// RoomContext is the sticky "current room" of a connection.
type RoomContext struct {
	RoomID    *int      `json:"roomId"`
	RoomName  string    `json:"roomName"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RemoteContext describes the media device last under remote control.
type RemoteContext struct {
	Active        bool         `json:"active"`
	Kind          string       `json:"kind"`
	Label         string       `json:"label,omitempty"`
	Room          *RoomContext `json:"room,omitempty"`
	Device        string       `json:"device,omitempty"`
	MediaDeviceID string       `json:"mediaDeviceId,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// FollowUpKind names a structured plan executed after a clarification answer.
type FollowUpKind string

const (
	FollowUpMood     FollowUpKind = "mood"
	FollowUpPresence FollowUpKind = "presence"
)

// FollowUp is stashed alongside a synthetic room clarification.
type FollowUp struct {
	Kind        FollowUpKind `json:"kind"`
	Mood        string       `json:"mood,omitempty"`
	LightsLevel *int         `json:"lightsLevel,omitempty"`
	MusicSource string       `json:"musicSource,omitempty"`
	Query       string       `json:"query,omitempty"`
}

// PendingClarification exists while the session awaits a disambiguation choice.
type PendingClarification struct {
	OriginalTranscript string        `json:"originalTranscript"`
	OriginalPlan       Plan          `json:"originalPlan"`
	Clarification      Clarification `json:"clarification"`
	FollowUp           *FollowUp     `json:"followUp,omitempty"`
}

// Session is the per-connection state. All accessors are safe for concurrent use
// by the read pump and the command goroutine.
type Session struct {
	ID        string
	DeviceID  string
	CreatedAt time.Time

	mu            sync.Mutex
	audio         AudioBuffer
	currentRoom   *RoomContext
	currentRemote *RemoteContext
	pending       *PendingClarification
	busy          bool
}

// NewSession creates the state for a freshly admitted connection.
func NewSession(deviceID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		CreatedAt: time.Now(),
	}
}

// ClientKey identifies the client across connections (alias cache scope).
func (s *Session) ClientKey() string {
	return s.DeviceID
}

func (s *Session) StartAudio(format string, sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio.Start(format, sampleRate)
}

func (s *Session) AppendAudio(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio.Append(chunk)
}

func (s *Session) FinalizeAudio() (AudioPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio.Finalize()
}

// BufferedChunks returns the number of chunks waiting for audio-end.
func (s *Session) BufferedChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio.Len()
}

// CurrentRoom returns a copy of the current room, or nil.
func (s *Session) CurrentRoom() *RoomContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRoom == nil {
		return nil
	}
	room := *s.currentRoom
	return &room
}

// SetCurrentRoom overwrites the current room and returns the stored copy.
func (s *Session) SetCurrentRoom(roomID *int, roomName string) *RoomContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &RoomContext{RoomID: roomID, RoomName: roomName, UpdatedAt: time.Now()}
	s.currentRoom = room
	stored := *room
	return &stored
}

// CurrentRemote returns a copy of the remote context, or nil.
func (s *Session) CurrentRemote() *RemoteContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRemote == nil {
		return nil
	}
	remote := *s.currentRemote
	return &remote
}

// SetCurrentRemote overwrites the remote context.
func (s *Session) SetCurrentRemote(remote RemoteContext) *RemoteContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	remote.UpdatedAt = time.Now()
	s.currentRemote = &remote
	stored := remote
	return &stored
}

// DeactivateRemote marks the remote inactive after a confirmed power-off.
func (s *Session) DeactivateRemote(kind string) *RemoteContext {
	return s.SetCurrentRemote(RemoteContext{Active: false, Kind: kind})
}

// Pending returns the pending clarification, or nil when idle.
func (s *Session) Pending() *PendingClarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending replaces the pending clarification. Only clarifications with
// candidates may be stored.
func (s *Session) SetPending(p *PendingClarification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil && len(p.Clarification.Candidates) == 0 {
		return
	}
	s.pending = p
}

// ClearPending returns the session to idle.
func (s *Session) ClearPending() {
	s.SetPending(nil)
}

// TakeChoice validates index against the stored candidates and, when valid,
// atomically moves the session back to idle. An invalid index leaves the
// pending clarification untouched.
func (s *Session) TakeChoice(index int) (*PendingClarification, Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, Candidate{}, domain.UserInputError(domain.CodeNoPendingClarify, "No pending clarification. Please try again.")
	}
	if index < 0 || index >= len(s.pending.Clarification.Candidates) {
		return nil, Candidate{}, domain.UserInputError(domain.CodeInvalidChoice, "Invalid choice index")
	}

	pending := s.pending
	s.pending = nil
	return pending, pending.Clarification.Candidates[index], nil
}

// TryBeginCommand marks the session busy. It returns false when a command is
// already in flight.
func (s *Session) TryBeginCommand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// EndCommand clears the busy flag.
func (s *Session) EndCommand() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}
