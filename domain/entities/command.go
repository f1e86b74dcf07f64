package entities

import "time"

// CommandOutcome is the terminal state of one resolved command.
type CommandOutcome string

const (
	OutcomeComplete      CommandOutcome = "complete"
	OutcomeClarification CommandOutcome = "clarification"
	OutcomeError         CommandOutcome = "error"
)

// CommandSource tells how the transcript reached the resolver.
type CommandSource string

const (
	SourceVoice         CommandSource = "voice"
	SourceText          CommandSource = "text"
	SourceClarification CommandSource = "clarification"
	SourceRemote        CommandSource = "remote"
	SourceHTTP          CommandSource = "http"
)

// CommandRecord is one entry of the per-device command history.
type CommandRecord struct {
	ID            string                 `json:"id" bson:"_id"`
	DeviceID      string                 `json:"deviceId" bson:"device_id"`
	CorrelationID string                 `json:"correlationId" bson:"correlation_id"`
	Source        CommandSource          `json:"source" bson:"source"`
	Transcript    string                 `json:"transcript" bson:"transcript"`
	Tool          string                 `json:"tool,omitempty" bson:"tool,omitempty"`
	Args          map[string]interface{} `json:"args,omitempty" bson:"args,omitempty"`
	Outcome       CommandOutcome         `json:"outcome" bson:"outcome"`
	ErrorCode     string                 `json:"errorCode,omitempty" bson:"error_code,omitempty"`
	DurationMs    int64                  `json:"durationMs" bson:"duration_ms"`
	CreatedAt     time.Time              `json:"createdAt" bson:"created_at"`
}
