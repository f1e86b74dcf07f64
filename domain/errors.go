package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind groups error codes by how the resolver reacts to them.
type ErrorKind string

const (
	KindUserInput ErrorKind = "user_input"
	KindProvider  ErrorKind = "provider"
	KindTimeout   ErrorKind = "timeout"
	KindQuota     ErrorKind = "quota"
	KindInternal  ErrorKind = "internal"
)

// Error codes surfaced to clients in error envelopes.
const (
	CodeMessageParse          = "MESSAGE_PARSE_ERROR"
	CodeUnknownMessageType    = "UNKNOWN_MESSAGE_TYPE"
	CodeInvalidAudioChunk     = "INVALID_AUDIO_CHUNK"
	CodeNoAudioData           = "NO_AUDIO_DATA"
	CodeNoSpeechDetected      = "NO_SPEECH_DETECTED"
	CodeInvalidTranscript     = "INVALID_TRANSCRIPT"
	CodeTextCommandsDisabled  = "TEXT_COMMANDS_DISABLED"
	CodeNoPendingClarify      = "NO_PENDING_CLARIFICATION"
	CodeInvalidChoice         = "INVALID_CHOICE"
	CodeInvalidButton         = "INVALID_BUTTON"
	CodeClarificationBuild    = "CLARIFICATION_BUILD_FAILED"
	CodeBusy                  = "BUSY"
	CodeSTTError              = "STT_ERROR"
	CodeSTTTimeout            = "STT_TIMEOUT"
	CodeLLMError              = "LLM_ERROR"
	CodeLLMTimeout            = "LLM_TIMEOUT"
	CodeLLMQuotaExceeded      = "LLM_QUOTA_EXCEEDED"
	CodeIntentNotUnderstood   = "INTENT_NOT_UNDERSTOOD"
	CodeMCPConnection         = "MCP_CONNECTION_ERROR"
	CodeMCPCommand            = "MCP_COMMAND_ERROR"
	CodeMCPTimeout            = "MCP_TIMEOUT"
	CodeCommandFailed         = "COMMAND_FAILED"
	CodeNoRoomsFound          = "NO_ROOMS_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeInternal              = "INTERNAL_ERROR"
	CodeProcessing            = "PROCESSING_ERROR"
	CodeMissingParameter      = "MISSING_PARAMETER"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	CodePromptIntegrityFailed = "PLANNER_PROMPT_INTEGRITY_FAILED"
)

// AppError is the structured error carried from adapters up to the envelope layer.
type AppError struct {
	Code    string
	Message string
	Kind    ErrorKind
	Details interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError creates an AppError without an underlying cause.
func NewError(kind ErrorKind, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind}
}

// WrapError creates an AppError around err.
func WrapError(kind ErrorKind, code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind, Err: err}
}

// UserInputError is shorthand for a KindUserInput AppError.
func UserInputError(code, message string) *AppError {
	return NewError(KindUserInput, code, message)
}

// WithDetails attaches details and returns the same error.
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// AsAppError extracts the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or fallback when err carries none.
func CodeOf(err error, fallback string) string {
	if appErr, ok := AsAppError(err); ok && appErr.Code != "" {
		return appErr.Code
	}
	return fallback
}

// KindOf returns the kind of err. Bare context deadlines count as timeouts.
func KindOf(err error) ErrorKind {
	if appErr, ok := AsAppError(err); ok && appErr.Kind != "" {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// MessageOf returns the human readable message of err.
func MessageOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsFallbackEligible reports whether a planner failure may be retried through
// the heuristic parser: timeouts, quota/rate-limit and model-not-found.
func IsFallbackEligible(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTimeout, KindQuota:
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "model") && strings.Contains(msg, "not found")
}
