// Package proxy implements the OpenAI-compatible HTTP surface: chat
// completions, embeddings and model listing, all transcoded onto the
// upstream API.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"polaris-api/internal/setup"
	"polaris-api/internal/shared"
	"polaris-api/internal/transcode"
	"polaris-api/internal/upstream"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ProxyHandler struct {
	Upstream *upstream.Client
	Images   *transcode.ImageFetcher

	// Optional model-list cache; nil when no redis was configured.
	Redis *redis.Client
	Log   *zap.SugaredLogger
}

func NewProxyHandler(up *upstream.Client, redisClient *redis.Client, log *zap.SugaredLogger) *ProxyHandler {
	return &ProxyHandler{
		Upstream: up,
		Images:   transcode.NewImageFetcher(),
		Redis:    redisClient,
		Log:      log,
	}
}

func readRequestBody(c *setup.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return nil, err
	}
	return body, nil
}

func setupSSEHeaders(c *setup.Context) {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
}

// sendError converts a RequestError chain into the JSON error body; anything
// else becomes a generic 500.
func sendError(c *setup.Context, err error) error {
	var reqErr *shared.RequestError
	if !errors.As(err, &reqErr) {
		reqErr = shared.ErrInternalServerError
	}

	message := "request failed"
	if reqErr.Err != nil {
		message = reqErr.Err.Error()
	}
	errType := "InternalError"
	if reqErr.StatusCode < 500 {
		errType = "BadRequest"
	}

	return c.JSON(reqErr.StatusCode, shared.OpenAIError{
		Message: message,
		Object:  "error",
		Type:    errType,
		Code:    reqErr.StatusCode,
	})
}

// passthrough relays an accepted-but-non-2xx upstream response verbatim.
func passthrough(c *setup.Context, res *http.Response) error {
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}
	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return c.Blob(res.StatusCode, contentType, body)
}

// MethodNotAllowed answers known suffixes hit with the wrong verb.
func (h *ProxyHandler) MethodNotAllowed(cc echo.Context) error {
	return cc.JSON(http.StatusBadRequest, shared.OpenAIError{
		Message: shared.ErrMethodNotAllowed.Err.Error(),
		Object:  "error",
		Type:    "BadRequest",
		Code:    http.StatusBadRequest,
	})
}

func apiPath(format string, args ...any) string {
	return "/" + shared.APIVersion + fmt.Sprintf(format, args...)
}
