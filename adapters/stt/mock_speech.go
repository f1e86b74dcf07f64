package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// MockSpeechToText returns a fixed transcript for every utterance. It backs
// STT_PROVIDER=mock for local runs without cloud credentials.
type MockSpeechToText struct {
	logger     *zap.Logger
	transcript string
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(transcript string, logger *zap.Logger) *MockSpeechToText {
	if transcript == "" {
		transcript = "Turn on the kitchen lights"
	}
	return &MockSpeechToText{
		logger:     logger,
		transcript: transcript,
	}
}

// Transcribe implements repositories.SpeechToText
func (s *MockSpeechToText) Transcribe(ctx context.Context, audio entities.AudioPayload) (repositories.Transcript, error) {
	s.logger.Info("Processing mock speech-to-text",
		zap.Int("chunks", len(audio.Chunks)),
		zap.Int("sampleRate", audio.SampleRate),
		zap.String("format", audio.Format))

	if err := ctx.Err(); err != nil {
		return repositories.Transcript{}, err
	}
	return repositories.Transcript{Text: s.transcript, Confidence: 0.99}, nil
}
