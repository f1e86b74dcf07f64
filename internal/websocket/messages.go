package websocket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types
const (
	MessageTypeAudioStart          MessageType = "audio-start"
	MessageTypeAudioChunk          MessageType = "audio-chunk"
	MessageTypeAudioEnd            MessageType = "audio-end"
	MessageTypeTextCommand         MessageType = "text-command"
	MessageTypeClarificationChoice MessageType = "clarification-choice"
	MessageTypeRemoteControl       MessageType = "remote-control"
	MessageTypePing                MessageType = "ping"
)

// Outbound message types
const (
	MessageTypeConnected             MessageType = "connected"
	MessageTypeAudioReady            MessageType = "audio-ready"
	MessageTypeProcessing            MessageType = "processing"
	MessageTypeTranscript            MessageType = "transcript"
	MessageTypeIntent                MessageType = "intent"
	MessageTypeClarificationRequired MessageType = "clarification-required"
	MessageTypeCommandComplete       MessageType = "command-complete"
	MessageTypeRoomContext           MessageType = "room-context"
	MessageTypeRemoteContext         MessageType = "remote-context"
	MessageTypeError                 MessageType = "error"
	MessageTypePong                  MessageType = "pong"
)

// BaseMessage carries the discriminator every envelope has.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// InboundMessage is the union of every field a client may send. Fields that
// need type checking are kept raw.
type InboundMessage struct {
	BaseMessage
	Format          string          `json:"format,omitempty"`
	SampleRateHertz json.RawMessage `json:"sampleRateHertz,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	Transcript      json.RawMessage `json:"transcript,omitempty"`
	ChoiceIndex     json.RawMessage `json:"choiceIndex,omitempty"`
	Button          json.RawMessage `json:"button,omitempty"`
}

// ParseInbound decodes one client frame. Malformed JSON or a frame without a
// type is a MESSAGE_PARSE_ERROR.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, domain.WrapError(domain.KindUserInput, domain.CodeMessageParse, err.Error(), err)
	}
	if msg.Type == "" {
		return nil, domain.UserInputError(domain.CodeMessageParse, "message type is required")
	}
	return &msg, nil
}

// SampleRate returns the declared sample rate, or zero when absent or not numeric.
func (m *InboundMessage) SampleRate() int {
	if len(m.SampleRateHertz) == 0 {
		return 0
	}
	var v interface{}
	if err := json.Unmarshal(m.SampleRateHertz, &v); err != nil {
		return 0
	}
	n, ok := entities.IntValue(v)
	if !ok || n <= 0 {
		return 0
	}
	return n
}

// AudioData returns the base64 chunk of an audio-chunk frame.
func (m *InboundMessage) AudioData() (string, error) {
	var s string
	if len(m.Data) == 0 || json.Unmarshal(m.Data, &s) != nil {
		return "", domain.UserInputError(domain.CodeInvalidAudioChunk, "audio-chunk data must be a base64 string")
	}
	return s, nil
}

// TranscriptText returns the text of a text-command frame. Emptiness is
// checked by the resolver.
func (m *InboundMessage) TranscriptText() (string, error) {
	var s string
	if len(m.Transcript) == 0 || json.Unmarshal(m.Transcript, &s) != nil {
		return "", domain.UserInputError(domain.CodeInvalidTranscript, "transcript must be a non-empty string")
	}
	return s, nil
}

// Choice returns the integer index of a clarification-choice frame. Browsers
// sometimes send the index as a numeric string; that is accepted too.
func (m *InboundMessage) Choice() (int, error) {
	invalid := domain.UserInputError(domain.CodeInvalidChoice, "choiceIndex must be an integer")
	if len(m.ChoiceIndex) == 0 {
		return 0, invalid
	}

	var s string
	if json.Unmarshal(m.ChoiceIndex, &s) == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, invalid
		}
		return n, nil
	}

	var f float64
	if json.Unmarshal(m.ChoiceIndex, &f) != nil || f != float64(int(f)) {
		return 0, invalid
	}
	return int(f), nil
}

// ButtonName returns the button of a remote-control frame.
func (m *InboundMessage) ButtonName() string {
	var s string
	if len(m.Button) == 0 || json.Unmarshal(m.Button, &s) != nil {
		return ""
	}
	return s
}

// ConnectedMessage is sent once after admission.
type ConnectedMessage struct {
	BaseMessage
	CorrelationID string `json:"correlationId"`
	Message       string `json:"message"`
}

// AudioReadyMessage acknowledges audio-start.
type AudioReadyMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// ProcessingMessage reports the current pipeline stage.
type ProcessingMessage struct {
	BaseMessage
	Stage string `json:"stage"`
}

// TranscriptMessage carries the recognized text.
type TranscriptMessage struct {
	BaseMessage
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// IntentMessage carries the plan chosen by the planner.
type IntentMessage struct {
	BaseMessage
	Plan entities.Plan `json:"plan"`
}

// ClarificationRequiredMessage asks the user to pick a candidate.
type ClarificationRequiredMessage struct {
	BaseMessage
	Transcript    string                 `json:"transcript"`
	Plan          entities.Plan          `json:"plan"`
	Clarification entities.Clarification `json:"clarification"`
}

// CommandCompleteMessage carries the gateway result of a finished command.
type CommandCompleteMessage struct {
	BaseMessage
	Result     interface{}   `json:"result"`
	Transcript string        `json:"transcript"`
	Plan       entities.Plan `json:"plan"`
}

// RoomContextMessage reports a change of the sticky room.
type RoomContextMessage struct {
	BaseMessage
	Room   *entities.RoomContext `json:"room"`
	Reason string                `json:"reason,omitempty"`
}

// RemoteContextMessage reports a change of the remote-control target.
type RemoteContextMessage struct {
	BaseMessage
	Remote *entities.RemoteContext `json:"remote"`
	Reason string                  `json:"reason,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// PongMessage answers ping.
type PongMessage struct {
	BaseMessage
}

func CreateConnectedMessage(correlationID string) *ConnectedMessage {
	return &ConnectedMessage{
		BaseMessage:   BaseMessage{Type: MessageTypeConnected},
		CorrelationID: correlationID,
		Message:       "WebSocket connection established",
	}
}

func CreateAudioReadyMessage() *AudioReadyMessage {
	return &AudioReadyMessage{
		BaseMessage: BaseMessage{Type: MessageTypeAudioReady},
		Message:     "Ready to receive audio",
	}
}

func CreateProcessingMessage(stage string) *ProcessingMessage {
	return &ProcessingMessage{BaseMessage: BaseMessage{Type: MessageTypeProcessing}, Stage: stage}
}

func CreateTranscriptMessage(text string, confidence float64) *TranscriptMessage {
	return &TranscriptMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTranscript},
		Text:        text,
		Confidence:  confidence,
	}
}

func CreateIntentMessage(plan entities.Plan) *IntentMessage {
	return &IntentMessage{BaseMessage: BaseMessage{Type: MessageTypeIntent}, Plan: plan}
}

func CreateClarificationRequiredMessage(transcript string, plan entities.Plan, clarification entities.Clarification) *ClarificationRequiredMessage {
	return &ClarificationRequiredMessage{
		BaseMessage:   BaseMessage{Type: MessageTypeClarificationRequired},
		Transcript:    transcript,
		Plan:          plan,
		Clarification: clarification,
	}
}

func CreateCommandCompleteMessage(result interface{}, transcript string, plan entities.Plan) *CommandCompleteMessage {
	return &CommandCompleteMessage{
		BaseMessage: BaseMessage{Type: MessageTypeCommandComplete},
		Result:      result,
		Transcript:  transcript,
		Plan:        plan,
	}
}

func CreateRoomContextMessage(room *entities.RoomContext, reason string) *RoomContextMessage {
	return &RoomContextMessage{BaseMessage: BaseMessage{Type: MessageTypeRoomContext}, Room: room, Reason: reason}
}

func CreateRemoteContextMessage(remote *entities.RemoteContext, reason string) *RemoteContextMessage {
	return &RemoteContextMessage{BaseMessage: BaseMessage{Type: MessageTypeRemoteContext}, Remote: remote, Reason: reason}
}

// CreateErrorMessage creates an error message
func CreateErrorMessage(code, message string, details interface{}) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError},
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreateErrorFromErr builds an error envelope from an AppError or any error.
func CreateErrorFromErr(err error) *ErrorMessage {
	var details interface{}
	if appErr, ok := domain.AsAppError(err); ok {
		details = appErr.Details
	}
	return CreateErrorMessage(domain.CodeOf(err, domain.CodeProcessing), domain.MessageOf(err), details)
}

// CreatePongMessage creates a pong message
func CreatePongMessage() *PongMessage {
	return &PongMessage{BaseMessage: BaseMessage{Type: MessageTypePong}}
}

// UnknownTypeError is the error returned for an unrecognized inbound type.
func UnknownTypeError(t MessageType) error {
	return domain.UserInputError(domain.CodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", t))
}
