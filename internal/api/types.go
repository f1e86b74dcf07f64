package api

import (
	"time"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// TokenRequest represents the request payload for device token issuance
type TokenRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName,omitempty"`
}

// TokenResponse represents the response payload for device token issuance
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn string `json:"expiresIn"`
}

// VoiceProcessRequest carries either base64 audio or a typed transcript.
type VoiceProcessRequest struct {
	AudioData       string `json:"audioData,omitempty"`
	Format          string `json:"format,omitempty"`
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	Text            string `json:"text,omitempty"`
}

// VoiceProcessResponse is the outcome of one synchronous command. Exactly one
// of Result and Clarification is set.
type VoiceProcessResponse struct {
	CorrelationID string                  `json:"correlationId"`
	Transcript    string                  `json:"transcript"`
	Confidence    float64                 `json:"confidence"`
	Plan          *entities.Plan          `json:"plan,omitempty"`
	Result        interface{}             `json:"result,omitempty"`
	Clarification *entities.Clarification `json:"clarification,omitempty"`
	Room          *entities.RoomContext   `json:"room,omitempty"`
	Stages        []string                `json:"stages"`
}

// CommandHistoryResponse lists the caller's recent commands, newest first.
type CommandHistoryResponse struct {
	Commands []*entities.CommandRecord `json:"commands"`
	Count    int                       `json:"count"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	Uptime            float64   `json:"uptime"`
	GoVersion         string    `json:"goVersion"`
	ActiveConnections int       `json:"activeConnections"`
}

// GatewayHealth describes the tool server as seen from the relay.
type GatewayHealth struct {
	BaseURL     string   `json:"baseUrl"`
	ToolCount   *int     `json:"toolCount,omitempty"`
	SampleTools []string `json:"sampleTools,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// GatewayHealthResponse is returned by the gateway connectivity check.
type GatewayHealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	MCP       GatewayHealth `json:"mcp"`
}

// ErrorBody is the payload of ErrorResponse.
type ErrorBody struct {
	Code          string      `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Details       interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
