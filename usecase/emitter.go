package usecase

import (
	"sync"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// Processing stages reported to the client.
const (
	StageTranscription = "transcription"
	StageIntentParsing = "intent-parsing"
	StageExecuting     = "executing"
)

// Emitter receives the outbound events of one command. Implementations must
// not block and must drop events once the connection is gone.
type Emitter interface {
	Processing(stage string)
	Transcript(text string, confidence float64)
	Intent(plan entities.Plan)
	ClarificationRequired(transcript string, plan entities.Plan, clarification entities.Clarification)
	CommandComplete(result interface{}, transcript string, plan entities.Plan)
	RoomContext(room *entities.RoomContext, reason string)
	RemoteContext(remote *entities.RemoteContext, reason string)
	Error(code, message string, details interface{})
}

// CommandError is the error event captured by a Recorder.
type CommandError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Recorder is an Emitter that keeps everything it is given. The synchronous
// HTTP endpoint uses it to build its response.
type Recorder struct {
	mu sync.Mutex

	Events        []string
	Stages        []string
	Text          string
	Confidence    float64
	Plan          *entities.Plan
	Clarification *entities.Clarification
	Result        interface{}
	Room          *entities.RoomContext
	Remote        *entities.RemoteContext
	Err           *CommandError
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) event(name string) {
	r.Events = append(r.Events, name)
}

func (r *Recorder) Processing(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("processing")
	r.Stages = append(r.Stages, stage)
}

func (r *Recorder) Transcript(text string, confidence float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("transcript")
	r.Text = text
	r.Confidence = confidence
}

func (r *Recorder) Intent(plan entities.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("intent")
	r.Plan = &plan
}

func (r *Recorder) ClarificationRequired(transcript string, plan entities.Plan, clarification entities.Clarification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("clarification-required")
	r.Text = transcript
	r.Plan = &plan
	r.Clarification = &clarification
}

func (r *Recorder) CommandComplete(result interface{}, transcript string, plan entities.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("command-complete")
	r.Text = transcript
	r.Plan = &plan
	r.Result = result
}

func (r *Recorder) RoomContext(room *entities.RoomContext, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("room-context")
	r.Room = room
}

func (r *Recorder) RemoteContext(remote *entities.RemoteContext, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("remote-context")
	r.Remote = remote
}

func (r *Recorder) Error(code, message string, details interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event("error")
	r.Err = &CommandError{Code: code, Message: message, Details: details}
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Events {
		if e == event {
			n++
		}
	}
	return n
}
