package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/auth"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/websocket"
	"github.com/randybritsch/c4-mcp-app-sub000/usecase"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	sampleToolCount     = 20
	gatewayCheckTimeout = 10 * time.Second
)

// VoiceProcessor runs one command to completion. *usecase.Resolver
// implements it.
type VoiceProcessor interface {
	ProcessUtterance(ctx context.Context, cmd usecase.Command, audio entities.AudioPayload)
	ProcessText(ctx context.Context, cmd usecase.Command, transcript string)
}

// ToolLister is the part of the gateway the health check needs.
type ToolLister interface {
	ListTools(ctx context.Context) ([]string, error)
	BaseURL() string
}

// Dependencies are the collaborators of the HTTP surface.
type Dependencies struct {
	Hub      *websocket.Hub
	Issuer   *auth.Issuer
	Voice    VoiceProcessor
	Gateway  ToolLister
	History  repositories.CommandHistory
	Gatherer prometheus.Gatherer
}

// Config tunes the routes.
type Config struct {
	// TokenExpiry is the configured JWT_EXPIRY string echoed to clients.
	TokenExpiry        string
	AllowTextCommands  bool
	RateLimitPerSecond float64
	RateLimitBurst     int
}

type handlers struct {
	deps    Dependencies
	config  Config
	started time.Time
	logger  *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, config Config, logger *zap.Logger) {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{deps: deps, config: config, started: time.Now(), logger: logger}

	// API v1 routes
	v1 := e.Group("/api/v1", rateLimiter(config.RateLimitPerSecond, config.RateLimitBurst))

	v1.GET("/health", h.health)
	v1.GET("/health/mcp", h.gatewayHealth)
	v1.POST("/auth/token", h.issueToken)

	protected := v1.Group("", bearerAuth(deps.Issuer, logger))
	protected.POST("/voice/process", h.processVoice)
	protected.GET("/commands", h.listCommands)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	// WebSocket endpoint; the token is checked by the hub after the upgrade
	e.GET("/ws", deps.Hub.HandleWebSocket)
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:            "healthy",
		Timestamp:         time.Now().UTC(),
		Uptime:            time.Since(h.started).Seconds(),
		GoVersion:         runtime.Version(),
		ActiveConnections: h.deps.Hub.ActiveConnections(),
	})
}

func (h *handlers) gatewayHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), gatewayCheckTimeout)
	defer cancel()

	tools, err := h.deps.Gateway.ListTools(ctx)
	if err != nil {
		h.logger.Warn("Gateway health check failed",
			zap.String("correlationID", correlationID(c)),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, GatewayHealthResponse{
			Status:    "degraded",
			Timestamp: time.Now().UTC(),
			MCP: GatewayHealth{
				BaseURL: h.deps.Gateway.BaseURL(),
				Error:   domain.MessageOf(err),
			},
		})
	}

	count := len(tools)
	sample := tools
	if len(sample) > sampleToolCount {
		sample = sample[:sampleToolCount]
	}
	return c.JSON(http.StatusOK, GatewayHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		MCP: GatewayHealth{
			BaseURL:     h.deps.Gateway.BaseURL(),
			ToolCount:   &count,
			SampleTools: sample,
		},
	})
}

func (h *handlers) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, domain.CodeMissingParameter, "Invalid request body")
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return errorJSON(c, http.StatusBadRequest, domain.CodeMissingParameter, "deviceId is required")
	}

	token, err := h.deps.Issuer.GenerateDeviceToken(req.DeviceID, req.DeviceName)
	if err != nil {
		h.logger.Error("Failed to generate device token",
			zap.String("correlationID", correlationID(c)),
			zap.String("deviceID", req.DeviceID),
			zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, domain.CodeInternal, "Failed to generate token")
	}

	h.logger.Info("Device token issued",
		zap.String("correlationID", correlationID(c)),
		zap.String("deviceID", req.DeviceID))

	expiresIn := h.config.TokenExpiry
	if h.deps.Issuer.Expiry() == 0 {
		expiresIn = "never"
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresIn: expiresIn})
}

// processVoice runs the pipeline for one request. Each request gets a fresh
// session, so there is no clarification loop: an ambiguity is returned in the
// body.
func (h *handlers) processVoice(c echo.Context) error {
	var req VoiceProcessRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, domain.CodeMissingParameter, "Invalid request body")
	}

	claims := deviceClaims(c)
	recorder := usecase.NewRecorder()
	cmd := usecase.Command{
		Session:       entities.NewSession(claims.DeviceID),
		CorrelationID: correlationID(c),
		Source:        entities.SourceHTTP,
		Emit:          recorder,
	}
	ctx := c.Request().Context()

	switch {
	case strings.TrimSpace(req.Text) != "":
		if !h.config.AllowTextCommands {
			return errorJSON(c, http.StatusForbidden, domain.CodeTextCommandsDisabled, "Text commands are disabled")
		}
		h.deps.Voice.ProcessText(ctx, cmd, req.Text)

	case req.AudioData != "":
		format := req.Format
		if format == "" {
			format = entities.DefaultAudioFormat
		}
		h.logger.Info("Processing voice command",
			zap.String("correlationID", cmd.CorrelationID),
			zap.String("deviceID", claims.DeviceID),
			zap.String("format", format),
			zap.Int("audioSize", len(req.AudioData)))
		h.deps.Voice.ProcessUtterance(ctx, cmd, entities.AudioPayload{
			Chunks:     []string{req.AudioData},
			Format:     format,
			SampleRate: req.SampleRateHertz,
		})

	default:
		return errorJSON(c, http.StatusBadRequest, domain.CodeMissingParameter, "audioData is required")
	}

	if recorder.Err != nil {
		return c.JSON(statusForCode(recorder.Err.Code), ErrorResponse{Error: ErrorBody{
			Code:          recorder.Err.Code,
			Message:       recorder.Err.Message,
			CorrelationID: cmd.CorrelationID,
			Details:       recorder.Err.Details,
		}})
	}

	return c.JSON(http.StatusOK, VoiceProcessResponse{
		CorrelationID: cmd.CorrelationID,
		Transcript:    recorder.Text,
		Confidence:    recorder.Confidence,
		Plan:          recorder.Plan,
		Result:        recorder.Result,
		Clarification: recorder.Clarification,
		Room:          recorder.Room,
		Stages:        recorder.Stages,
	})
}

func (h *handlers) listCommands(c echo.Context) error {
	if h.deps.History == nil {
		return c.JSON(http.StatusOK, CommandHistoryResponse{Commands: []*entities.CommandRecord{}})
	}

	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return errorJSON(c, http.StatusBadRequest, domain.CodeMissingParameter, "limit must be a positive integer")
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	claims := deviceClaims(c)
	records, err := h.deps.History.ListByDevice(c.Request().Context(), claims.DeviceID, limit)
	if err != nil {
		h.logger.Error("Failed to list commands",
			zap.String("correlationID", correlationID(c)),
			zap.String("deviceID", claims.DeviceID),
			zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, domain.CodeInternal, "Failed to load command history")
	}
	if records == nil {
		records = []*entities.CommandRecord{}
	}
	return c.JSON(http.StatusOK, CommandHistoryResponse{Commands: records, Count: len(records)})
}

// statusForCode maps an error code to the HTTP status of the synchronous endpoint.
func statusForCode(code string) int {
	switch code {
	case domain.CodeBusy:
		return http.StatusConflict
	case domain.CodeLLMQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.CodeSTTTimeout, domain.CodeLLMTimeout, domain.CodeMCPTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeSTTError, domain.CodeLLMError, domain.CodeMCPConnection, domain.CodeMCPCommand, domain.CodeCommandFailed:
		return http.StatusBadGateway
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeInternal, domain.CodeProcessing, domain.CodeClarificationBuild:
		return http.StatusInternalServerError
	}
	if userInputCodes[code] {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var userInputCodes = map[string]bool{
	domain.CodeNoAudioData:          true,
	domain.CodeNoSpeechDetected:     true,
	domain.CodeInvalidTranscript:    true,
	domain.CodeInvalidButton:        true,
	domain.CodeIntentNotUnderstood:  true,
	domain.CodeNoRoomsFound:         true,
	domain.CodeMissingParameter:     true,
	domain.CodeTextCommandsDisabled: true,
}
