package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// LockedPromptSHA256 is the digest of prompts/planner_system_prompt.md with
// CRLF normalized to LF. Change it together with the prompt file.
const LockedPromptSHA256 = "b7b7b8e8b11a8e22d902f6a46390d7053907cffc8190d5d7a4afa199f9848153"

// PromptDigest returns the hex SHA-256 of text after line-ending normalization.
func PromptDigest(text string) string {
	sum := sha256.Sum256([]byte(normalizePrompt(text)))
	return hex.EncodeToString(sum[:])
}

func normalizePrompt(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// LoadLockedPrompt reads the planner system prompt and refuses it unless its
// digest equals expected. An empty expected digest means LockedPromptSHA256.
func LoadLockedPrompt(path, expected string) (string, error) {
	if expected == "" {
		expected = LockedPromptSHA256
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, domain.CodePromptIntegrityFailed,
			fmt.Sprintf("Planner prompt file is missing or unreadable: %s", path), err)
	}

	actual := PromptDigest(string(raw))
	if !strings.EqualFold(actual, expected) {
		return "", domain.NewError(domain.KindInternal, domain.CodePromptIntegrityFailed,
			"Planner prompt integrity check failed (SHA mismatch)").
			WithDetails(map[string]string{"path": path, "expected": expected, "actual": actual})
	}

	return normalizePrompt(string(raw)), nil
}

// buildUserPrompt renders the per-request planner input.
func buildUserPrompt(transcript string, planCtx repositories.PlanContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User command: %q\n", strings.TrimSpace(transcript))

	if room := planCtx.CurrentRoom; room != nil && room.RoomName != "" {
		current := map[string]interface{}{"room_name": room.RoomName}
		if room.RoomID != nil {
			current["room_id"] = *room.RoomID
		}
		if encoded, err := json.Marshal(current); err == nil {
			fmt.Fprintf(&b, "Current room: %s\n", encoded)
		}
	}

	if len(planCtx.ToolCatalog) > 0 {
		if encoded, err := json.Marshal(map[string]interface{}{"tools": planCtx.ToolCatalog}); err == nil {
			fmt.Fprintf(&b, "Tool catalog: %s\n", encoded)
		}
	}

	return b.String()
}
