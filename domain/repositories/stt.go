package repositories

import (
	"context"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

// Transcript is the recognizer's best alternative for one utterance.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// Transcribe converts one finalized utterance to text. An empty Text means
	// nothing was recognized.
	Transcribe(ctx context.Context, audio entities.AudioPayload) (Transcript, error)
}
