package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"polaris-api/internal/gemini"
	"polaris-api/internal/metrics"
	"polaris-api/internal/openai"
	"polaris-api/internal/setup"
	"polaris-api/internal/shared"
	"polaris-api/internal/transcode"

	"github.com/labstack/echo/v4"
)

func (h *ProxyHandler) Embeddings(cc echo.Context) error {
	c := cc.(*setup.Context)

	body, err := readRequestBody(c)
	if err != nil {
		return sendError(c, shared.ErrBadRequest)
	}

	var req openai.EmbeddingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return sendError(c, errors.Join(shared.ErrInvalidRequest, err))
	}
	if len(req.Input) == 0 {
		return sendError(c, &shared.RequestError{StatusCode: 400, Err: errors.New("input is required for embeddings")})
	}

	fullModel, effectiveModel, err := transcode.ResolveEmbeddingsModel(req.Model)
	if err != nil {
		return sendError(c, err)
	}

	upstreamBody, err := json.Marshal(transcode.ToBatchEmbedRequest(fullModel, req.Input))
	if err != nil {
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}

	res, err := h.Upstream.Do(c.Request().Context(), http.MethodPost, apiPath("/%s:batchEmbedContents", fullModel), upstreamBody, c.APIKey)
	if err != nil {
		metrics.ErrorCount.WithLabelValues("embeddings", "upstream").Inc()
		return sendError(c, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.RequestCount.WithLabelValues(effectiveModel, "embeddings", fmt.Sprintf("%d", res.StatusCode)).Inc()
		return passthrough(c, res)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}
	var data gemini.BatchEmbedResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		c.Log.Errorw("Failed to parse upstream embeddings", "error", err.Error())
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}

	metrics.RequestCount.WithLabelValues(effectiveModel, "embeddings", "200").Inc()
	return c.JSON(http.StatusOK, transcode.ToEmbeddingsResponse(&data, effectiveModel))
}
