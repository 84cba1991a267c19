// Package middleware holds the request tracking, recovery and credential
// extraction middleware shared by every route group.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"polaris-api/internal/metrics"
	"polaris-api/internal/setup"
	"polaris-api/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
			logger := log.With(
				"request_id", "req_"+reqID,
			)

			cc := &setup.Context{Context: c, Log: logger, Reqid: reqID}
			start := time.Now()
			err := next(cc)
			duration := time.Since(start)
			cc.Log.Infow("end_of_request", "status_code", fmt.Sprintf("%d", cc.Response().Status), "duration", duration.String())
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return err
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error())
			return c.String(500, shared.ErrInternalServerError.Err.Error())
		},
	})
}

// NewCORSMiddleware attaches the permissive CORS headers to every response
// and short-circuits preflight requests with an empty 200.
func NewCORSMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			if c.Request().Method == http.MethodOptions {
				c.Response().Header().Set("Access-Control-Allow-Methods", "*")
				c.Response().Header().Set("Access-Control-Allow-Headers", "*")
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// ExtractCredential puts the bearer token on the request context. The token is
// forwarded to the upstream as-is; routes that need one reject without it.
func ExtractCredential(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*setup.Context)
		apiKey, err := shared.ExtractAPIKey(c)
		if err != nil {
			return next(c)
		}
		c.APIKey = apiKey
		return next(c)
	}
}

// RequireCredential rejects requests that never presented a bearer token.
func RequireCredential(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*setup.Context)
		if c.APIKey == "" {
			return c.JSON(http.StatusUnauthorized, shared.OpenAIError{
				Message: shared.ErrMissingAuth.Err.Error(),
				Object:  "error",
				Type:    "Unauthorized",
				Code:    http.StatusUnauthorized,
			})
		}
		return next(c)
	}
}
