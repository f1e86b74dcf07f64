package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/auth"
)

// CorrelationHeader carries the per-request correlation id.
const CorrelationHeader = "X-Correlation-ID"

const claimsKey = "deviceClaims"

// MiddlewareConfig tunes the shared HTTP middleware.
type MiddlewareConfig struct {
	// CORSOrigin is a comma-separated origin list; empty allows any origin.
	CORSOrigin string
}

// UseMiddleware installs request logging, panic recovery, CORS and
// correlation ids on every route.
func UseMiddleware(e *echo.Echo, config MiddlewareConfig, logger *zap.Logger) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:    uuid.NewString,
		TargetHeader: CorrelationHeader,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("correlationID", v.RequestID))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(config.CORSOrigin),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
}

func corsOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// rateLimiter limits requests per client IP. A non-positive rate disables it.
func rateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return errorJSON(c, http.StatusForbidden, domain.CodeForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return errorJSON(c, http.StatusTooManyRequests, domain.CodeRateLimitExceeded, "Too many requests")
		},
	})
}

// bearerAuth rejects requests without a valid device token and stores the
// claims on the context.
func bearerAuth(issuer *auth.Issuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			claims, err := issuer.ValidateToken(token)
			if err != nil {
				logger.Warn("Rejected request token",
					zap.String("correlationID", correlationID(c)),
					zap.String("path", c.Path()),
					zap.Error(err))
				return errorJSON(c, http.StatusUnauthorized, domain.CodeUnauthorized, "Invalid or expired token")
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func deviceClaims(c echo.Context) *auth.DeviceClaims {
	claims, _ := c.Get(claimsKey).(*auth.DeviceClaims)
	return claims
}

func correlationID(c echo.Context) string {
	if id := c.Response().Header().Get(CorrelationHeader); id != "" {
		return id
	}
	return c.Request().Header.Get(CorrelationHeader)
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorBody{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID(c),
	}})
}
