package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/payload"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// DefaultToolAllowlist is the set of gateway tools callable when no explicit
// allowlist is configured. Scheduler tools are deliberately absent.
var DefaultToolAllowlist = []string{
	"c4_room_lights_set",
	"c4_light_set_by_name",
	"c4_lights_set_last",
	"c4_tv_watch_by_name",
	"c4_tv_watch",
	"c4_tv_off",
	"c4_tv_off_last",
	"c4_tv_remote",
	"c4_tv_remote_last",
	"c4_media_remote",
	"c4_media_remote_last",
	"c4_media_watch_launch_app",
	"c4_media_watch_launch_app_by_name",
	"c4_scene_activate_by_name",
	"c4_scene_set_state_by_name",
	"c4_room_listen_by_name",
	"c4_list_rooms",
	"c4_find_rooms",
	"c4_list_devices",
	"c4_find_devices",
	"c4_resolve_device",
	"c4_light_get_state",
	"c4_light_get_level",
	"c4_room_watch_status",
	"c4_room_listen_status",
	"c4_room_now_playing",
	"c4_room_presence_report",
	"c4_room_list_video_devices",
	"c4_room_select_video_device",
	"c4_room_select_audio_device",
	"c4_memory_get",
	"c4_memory_clear",
	"c4_lights_get_last",
	"c4_tv_get_last",
}

// Config configures the c4-mcp HTTP client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Allowlist  []string
	CatalogTTL time.Duration
}

// Client talks to the c4-mcp HTTP server.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	allow      map[string]struct{}
	catalogTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time

	catalogMu sync.Mutex
	catalog   []repositories.ToolSpec
	catalogAt time.Time
}

// NewClient creates a gateway client guarded by a circuit breaker.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 8 * time.Second
	}
	if config.CatalogTTL <= 0 {
		config.CatalogTTL = 5 * time.Minute
	}
	allowlist := config.Allowlist
	if len(allowlist) == 0 {
		allowlist = DefaultToolAllowlist
	}
	allow := make(map[string]struct{}, len(allowlist))
	for _, name := range allowlist {
		if name = strings.TrimSpace(name); name != "" {
			allow[name] = struct{}{}
		}
	}

	c := &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: &http.Client{},
		allow:      allow,
		catalogTTL: config.CatalogTTL,
		logger:     logger,
		now:        time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "c4-mcp",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// only transport-level failures should open the circuit
			return err == nil || domain.KindOf(err) == domain.KindUserInput || isClientStatus(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// Allowlist returns the sorted tool names this client may call.
func (c *Client) Allowlist() []string {
	names := make([]string, 0, len(c.allow))
	for name := range c.allow {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseURL returns the configured gateway address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) allowed(tool string) bool {
	_, ok := c.allow[tool]
	return ok
}

// Execute implements repositories.Gateway
func (c *Client) Execute(ctx context.Context, plan entities.Plan, sessionID string) (*entities.ExecutionResult, error) {
	tool := strings.TrimSpace(plan.Tool)
	if tool == "" {
		return nil, domain.UserInputError(domain.CodeIntentNotUnderstood, "Invalid intent")
	}
	args := NormalizeArgs(tool, plan.Args)

	c.logger.Info("Sending MCP tool call",
		zap.String("sessionID", sessionID),
		zap.String("tool", tool),
		zap.Any("args", args))

	resp, err := c.callTool(ctx, tool, args, sessionID)
	if err != nil {
		return nil, err
	}

	result := &entities.ExecutionResult{
		Success:   true,
		Tool:      tool,
		Args:      args,
		Result:    resp,
		Timestamp: c.now().UTC(),
	}

	clarification, marker := extractAmbiguity(tool, args, resp)
	switch {
	case clarification != nil:
		result.Success = false
		result.Clarification = clarification
		return result, nil
	case marker != nil:
		// An ambiguity nobody can choose from is a failure, wherever it sits.
		result.Success = false
		result.Error = ambiguityMessage(marker)
		return result, nil
	}

	if toolFailed(resp) {
		result.Success = false
		result.Error = toolError(resp)
	}
	return result, nil
}

// toolFailed reports the gateway's {result:{ok:false}} convention.
func toolFailed(resp interface{}) bool {
	root, ok := resp.(map[string]interface{})
	if !ok {
		return false
	}
	if okVal, isBool := root["ok"].(bool); isBool && !okVal {
		return true
	}
	inner, ok := root["result"].(map[string]interface{})
	if !ok {
		return false
	}
	okVal, isBool := inner["ok"].(bool)
	return isBool && !okVal
}

func toolError(resp interface{}) string {
	if root, ok := resp.(map[string]interface{}); ok {
		if inner, isObj := root["result"].(map[string]interface{}); isObj {
			if s, isString := inner["error"].(string); isString && s != "" {
				return s
			}
			if s, isString := inner["details"].(string); isString && s != "" {
				return s
			}
		}
	}
	if s, ok := payload.FindString(resp, 2, "error"); ok {
		return s
	}
	return ""
}

func (c *Client) callTool(ctx context.Context, tool string, args map[string]interface{}, sessionID string) (interface{}, error) {
	if !c.allowed(tool) {
		return nil, domain.NewError(domain.KindUserInput, domain.CodeForbidden, "Tool not allowed: "+tool).
			WithDetails(map[string]string{"tool": tool})
	}

	body, err := json.Marshal(map[string]interface{}{
		"kind": "tool",
		"name": tool,
		"args": args,
	})
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, domain.CodeInternal, "Failed to encode tool call", err)
	}
	return c.doJSON(ctx, http.MethodPost, "/mcp/call", body, sessionID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, sessionID string) (interface{}, error) {
	if c.baseURL == "" {
		return nil, domain.NewError(domain.KindInternal, domain.CodeMCPConnection, "C4_MCP_BASE_URL is not configured")
	}
	url := c.baseURL + path

	out, err := c.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
		if err != nil {
			return nil, domain.WrapError(domain.KindInternal, domain.CodeInternal, "Failed to build MCP request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if sessionID != "" {
			req.Header.Set("X-Session-Id", sessionID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
				return nil, domain.WrapError(domain.KindTimeout, domain.CodeMCPTimeout, "MCP request timeout", err).
					WithDetails(map[string]interface{}{"url": url, "timeoutMs": c.timeout.Milliseconds()})
			}
			return nil, domain.WrapError(domain.KindProvider, domain.CodeMCPConnection, "Failed to reach MCP server: "+err.Error(), err).
				WithDetails(map[string]interface{}{"url": url})
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, domain.WrapError(domain.KindProvider, domain.CodeMCPConnection, "Failed to read MCP response", err)
		}

		var decoded interface{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				decoded = map[string]interface{}{"raw": string(raw)}
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			appErr := domain.NewError(domain.KindProvider, domain.CodeMCPCommand,
				fmt.Sprintf("MCP HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))).
				WithDetails(map[string]interface{}{"url": url, "status": resp.StatusCode, "body": decoded})
			return nil, appErr
		}
		return decoded, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.WrapError(domain.KindProvider, domain.CodeMCPConnection, "MCP server temporarily unavailable", err)
	}
	return out, err
}

func isClientStatus(err error) bool {
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code != domain.CodeMCPCommand {
		return false
	}
	details, ok := appErr.Details.(map[string]interface{})
	if !ok {
		return false
	}
	status, ok := details["status"].(int)
	return ok && status < 500
}

// ListTools implements repositories.Gateway
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	specs, err := c.listToolSpecs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names, nil
}

func (c *Client) listToolSpecs(ctx context.Context) ([]repositories.ToolSpec, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/mcp/list", nil, "")
	if err != nil {
		return nil, err
	}
	return toolSpecsFromList(resp), nil
}

// toolSpecsFromList accepts a bare array, {tools:[...]}, {tools:{name:spec}}
// or {items:[...]}.
func toolSpecsFromList(resp interface{}) []repositories.ToolSpec {
	var items []interface{}
	switch v := resp.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		switch tools := v["tools"].(type) {
		case []interface{}:
			items = tools
		case map[string]interface{}:
			for _, name := range payload.SortedKeys(tools) {
				spec, _ := tools[name].(map[string]interface{})
				item := map[string]interface{}{"name": name}
				for k, val := range spec {
					item[k] = val
				}
				items = append(items, item)
			}
		default:
			if arr, ok := v["items"].([]interface{}); ok {
				items = arr
			}
		}
	}

	specs := make([]repositories.ToolSpec, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			specs = append(specs, repositories.ToolSpec{Name: t})
		case map[string]interface{}:
			name, _ := t["name"].(string)
			if name == "" {
				continue
			}
			spec := repositories.ToolSpec{Name: name}
			spec.Description, _ = t["description"].(string)
			if params, ok := t["parameters"].(map[string]interface{}); ok {
				spec.Parameters = params
			} else if params, ok := t["inputSchema"].(map[string]interface{}); ok {
				spec.Parameters = params
			}
			specs = append(specs, spec)
		}
	}
	return specs
}

// ToolCatalog implements repositories.Gateway. The allowlisted catalog is
// cached for the configured TTL; a failed refresh keeps the previous cache.
func (c *Client) ToolCatalog(ctx context.Context) []repositories.ToolSpec {
	c.catalogMu.Lock()
	defer c.catalogMu.Unlock()

	if c.catalog != nil && c.now().Sub(c.catalogAt) < c.catalogTTL {
		return c.catalog
	}

	specs, err := c.listToolSpecs(ctx)
	if err != nil {
		c.logger.Warn("Failed to fetch MCP tool catalog; continuing without it", zap.Error(err))
		return c.catalog
	}

	allowed := make([]repositories.ToolSpec, 0, len(specs))
	for _, spec := range specs {
		if c.allowed(spec.Name) {
			allowed = append(allowed, spec)
		}
	}
	c.catalog = allowed
	c.catalogAt = c.now()
	return c.catalog
}
