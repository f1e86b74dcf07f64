package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

const defaultSampleRate = 48000

// GoogleConfig configures the Google Cloud Speech recognizer.
type GoogleConfig struct {
	APIKey   string
	Language string
	Timeout  time.Duration
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client    *speech.Client
	recognize recognizeFunc
	config    GoogleConfig
	logger    *zap.Logger
}

// NewGoogleSpeechToText creates a recognizer backed by the Speech v1 API.
func NewGoogleSpeechToText(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	var opts []option.ClientOption
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	g := newGoogleSpeechToText(config, logger, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	})
	g.client = client
	return g, nil
}

func newGoogleSpeechToText(config GoogleConfig, logger *zap.Logger, recognize recognizeFunc) *GoogleSpeechToText {
	if config.Language == "" {
		config.Language = "en-US"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &GoogleSpeechToText{
		recognize: recognize,
		config:    config,
		logger:    logger,
	}
}

// Transcribe converts one utterance to text using Google Cloud Speech-to-Text (non-streaming)
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio entities.AudioPayload) (repositories.Transcript, error) {
	content, err := audio.Decode()
	if err != nil {
		return repositories.Transcript{}, domain.WrapError(domain.KindUserInput, domain.CodeSTTError, "Audio payload is not valid base64", err)
	}

	sampleRate := audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   getAudioEncoding(audio.Format),
			SampleRateHertz:            int32(sampleRate),
			LanguageCode:               g.config.Language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.recognize(ctx, req)
	if err != nil {
		g.logger.Error("Google STT error", zap.Error(err), zap.String("format", audio.Format))
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return repositories.Transcript{}, domain.WrapError(domain.KindTimeout, domain.CodeSTTTimeout, "Speech-to-text timed out", err)
		}
		return repositories.Transcript{}, domain.WrapError(domain.KindProvider, domain.CodeSTTError, "Speech-to-text failed: "+err.Error(), err)
	}

	transcript := bestAlternative(resp)
	g.logger.Info("Transcription complete",
		zap.Duration("duration", time.Since(start)),
		zap.Float64("confidence", transcript.Confidence),
		zap.Int("transcriptLength", len(transcript.Text)))

	return transcript, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleSpeechToText) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func bestAlternative(resp *speechpb.RecognizeResponse) repositories.Transcript {
	if resp == nil {
		return repositories.Transcript{}
	}
	var parts []string
	var confidence float32
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		if confidence == 0 {
			confidence = alts[0].GetConfidence()
		}
	}
	return repositories.Transcript{
		Text:       strings.TrimSpace(strings.Join(parts, " ")),
		Confidence: float64(confidence),
	}
}

// getAudioEncoding maps the client's container format to a Speech API encoding.
// Unknown formats fall back to WEBM_OPUS, the browser recorder default.
func getAudioEncoding(format string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "webm", "webm_opus":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "ogg", "ogg_opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "wav", "linear16", "pcm":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "mulaw":
		return speechpb.RecognitionConfig_MULAW
	case "amr":
		return speechpb.RecognitionConfig_AMR
	case "amr_wb":
		return speechpb.RecognitionConfig_AMR_WB
	default:
		return speechpb.RecognitionConfig_WEBM_OPUS
	}
}
