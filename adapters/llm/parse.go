package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

type rawPlan struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// parsePlan extracts the {tool, args} object from a model reply. Markdown
// fences and leading prose are tolerated.
func parsePlan(text string) (entities.Plan, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return entities.Plan{}, domain.NewError(domain.KindProvider, domain.CodeLLMError, "Planner returned no JSON object")
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return entities.Plan{}, domain.WrapError(domain.KindProvider, domain.CodeLLMError, "Planner returned invalid JSON", err)
	}

	tool := strings.TrimSpace(raw.Tool)
	if tool == "" {
		return entities.Plan{}, domain.UserInputError(domain.CodeIntentNotUnderstood, "Could not understand the command")
	}
	if raw.Args == nil {
		raw.Args = map[string]interface{}{}
	}
	return entities.Plan{Tool: tool, Args: raw.Args}, nil
}

// classifyProviderError maps an LLM SDK failure onto the error taxonomy so the
// fallback policy can tell transient failures from fatal ones.
func classifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.KindTimeout, domain.CodeLLMTimeout, provider+" planner timed out", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"):
		return domain.WrapError(domain.KindQuota, domain.CodeLLMQuotaExceeded, provider+" quota exceeded", err)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return domain.WrapError(domain.KindTimeout, domain.CodeLLMTimeout, provider+" planner timed out", err)
	}
	return domain.WrapError(domain.KindProvider, domain.CodeLLMError, provider+" intent parsing failed: "+err.Error(), err)
}
