package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultTemperature = 0.1
	defaultMaxTokens   = 512
	defaultTimeout     = 15 * time.Second
)

// GeminiConfig configures the Gemini planner.
type GeminiConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiPlanner implements repositories.Planner using Google's Gemini API
type GeminiPlanner struct {
	generate     generateFunc
	logger       *zap.Logger
	model        string
	systemPrompt string
	timeout      time.Duration
}

// NewGeminiPlanner creates a new Gemini planner instance
func NewGeminiPlanner(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiPlanner, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_GEMINI_API_KEY is required for the gemini planner")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiPlanner(config, logger, client.Models.GenerateContent), nil
}

func newGeminiPlanner(config GeminiConfig, logger *zap.Logger, generate generateFunc) *GeminiPlanner {
	model := normalizeGeminiModel(config.Model)
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiPlanner{
		generate:     generate,
		logger:       logger,
		model:        model,
		systemPrompt: config.SystemPrompt,
		timeout:      timeout,
	}
}

// Name implements repositories.Planner
func (g *GeminiPlanner) Name() string {
	return "gemini"
}

// Plan implements repositories.Planner
func (g *GeminiPlanner) Plan(ctx context.Context, transcript string, planCtx repositories.PlanContext) (entities.Plan, error) {
	if strings.TrimSpace(transcript) == "" {
		return entities.Plan{}, domain.UserInputError(domain.CodeInvalidTranscript, "Transcript is empty")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buildUserPrompt(transcript, planCtx), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(defaultTemperature)),
		MaxOutputTokens:  int32(defaultMaxTokens),
		ResponseMIMEType: "application/json",
	}
	if g.systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	model := g.model
	response, err := g.generate(ctx, model, contents, config)
	if err != nil && isModelNotFound(err) && model != defaultGeminiModel {
		g.logger.Warn("Configured Gemini model not found, retrying with default",
			zap.String("model", model),
			zap.String("fallbackModel", defaultGeminiModel))
		model = defaultGeminiModel
		response, err = g.generate(ctx, model, contents, config)
	}
	if err != nil {
		g.logger.Error("Gemini planner call failed",
			zap.String("correlationID", planCtx.CorrelationID),
			zap.String("model", model),
			zap.Error(err))
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return entities.Plan{}, classifyProviderError("Gemini", err)
	}

	text := responseText(response)
	if text == "" {
		return entities.Plan{}, domain.NewError(domain.KindProvider, domain.CodeLLMError, "Gemini returned an empty response")
	}

	plan, err := parsePlan(text)
	if err != nil {
		g.logger.Warn("Gemini reply could not be parsed",
			zap.String("correlationID", planCtx.CorrelationID),
			zap.String("reply", text),
			zap.Error(err))
		return entities.Plan{}, err
	}

	g.logger.Info("Intent parsing complete",
		zap.String("correlationID", planCtx.CorrelationID),
		zap.String("provider", g.Name()),
		zap.String("tool", plan.Tool),
		zap.Duration("duration", time.Since(start)))
	return plan, nil
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeGeminiModel strips the "models/" resource prefix and fixes the
// common "gemeni" misspelling seen in deployment configs.
func normalizeGeminiModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return strings.ReplaceAll(model, "gemeni", "gemini")
}

func isModelNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") && (strings.Contains(msg, "model") || strings.Contains(msg, "404"))
}
