package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI planner.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

type completeFunc func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)

// OpenAIPlanner implements repositories.Planner with chat completions.
type OpenAIPlanner struct {
	complete     completeFunc
	logger       *zap.Logger
	model        string
	systemPrompt string
	timeout      time.Duration
}

// NewOpenAIPlanner creates a planner backed by the OpenAI chat API.
func NewOpenAIPlanner(config OpenAIConfig, logger *zap.Logger) (*OpenAIPlanner, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai planner")
	}
	client := openai.NewClient(option.WithAPIKey(config.APIKey))
	return newOpenAIPlanner(config, logger, func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return client.Chat.Completions.New(ctx, params)
	}), nil
}

func newOpenAIPlanner(config OpenAIConfig, logger *zap.Logger, complete completeFunc) *OpenAIPlanner {
	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAIPlanner{
		complete:     complete,
		logger:       logger,
		model:        model,
		systemPrompt: config.SystemPrompt,
		timeout:      timeout,
	}
}

// Name implements repositories.Planner
func (o *OpenAIPlanner) Name() string {
	return "openai"
}

// Plan implements repositories.Planner
func (o *OpenAIPlanner) Plan(ctx context.Context, transcript string, planCtx repositories.PlanContext) (entities.Plan, error) {
	if strings.TrimSpace(transcript) == "" {
		return entities.Plan{}, domain.UserInputError(domain.CodeInvalidTranscript, "Transcript is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.systemPrompt),
			openai.UserMessage(buildUserPrompt(transcript, planCtx)),
		},
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(defaultTemperature),
	})
	if err != nil {
		o.logger.Error("OpenAI planner call failed",
			zap.String("correlationID", planCtx.CorrelationID),
			zap.Error(err))
		return entities.Plan{}, classifyOpenAIError(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return entities.Plan{}, domain.NewError(domain.KindProvider, domain.CodeLLMError, "OpenAI returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return entities.Plan{}, domain.NewError(domain.KindProvider, domain.CodeLLMError, "OpenAI returned an empty message")
	}

	plan, err := parsePlan(content)
	if err != nil {
		o.logger.Warn("OpenAI reply could not be parsed",
			zap.String("correlationID", planCtx.CorrelationID),
			zap.String("reply", content),
			zap.Error(err))
		return entities.Plan{}, err
	}

	o.logger.Info("Intent parsing complete",
		zap.String("correlationID", planCtx.CorrelationID),
		zap.String("provider", o.Name()),
		zap.String("tool", plan.Tool))
	return plan, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return domain.WrapError(domain.KindQuota, domain.CodeLLMQuotaExceeded, "OpenAI quota exceeded", err)
		case http.StatusNotFound:
			return domain.WrapError(domain.KindProvider, domain.CodeLLMError, "OpenAI model not found", err)
		}
	}
	return classifyProviderError("OpenAI", err)
}
