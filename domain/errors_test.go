package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("planner: %w", NewError(KindQuota, CodeLLMQuotaExceeded, "quota exceeded"))

	if got := CodeOf(wrapped, CodeProcessing); got != CodeLLMQuotaExceeded {
		t.Errorf("Expected %s, got %s", CodeLLMQuotaExceeded, got)
	}
	if got := CodeOf(errors.New("boom"), CodeProcessing); got != CodeProcessing {
		t.Errorf("Expected fallback code, got %s", got)
	}
}

func TestIsFallbackEligible(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout kind", err: NewError(KindTimeout, CodeLLMTimeout, "timeout"), want: true},
		{name: "quota kind", err: NewError(KindQuota, CodeLLMQuotaExceeded, "quota"), want: true},
		{name: "bare deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: true},
		{name: "model not found", err: NewError(KindProvider, CodeLLMError, "model gemini-x not found"), want: true},
		{name: "provider error", err: NewError(KindProvider, CodeLLMError, "bad json"), want: false},
		{name: "user input", err: UserInputError(CodeIntentNotUnderstood, "could not understand"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFallbackEligible(tt.err); got != tt.want {
				t.Errorf("IsFallbackEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WrapError(KindProvider, CodeMCPConnection, "Failed to reach MCP server", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected AppError to unwrap to its cause")
	}
	if MessageOf(err) != "Failed to reach MCP server" {
		t.Errorf("Unexpected message %q", MessageOf(err))
	}
}
