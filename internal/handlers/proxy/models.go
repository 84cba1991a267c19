package proxy

import (
	"context"
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

const modelListCacheKey = "v1:models:list"

func (h *ProxyHandler) ListModels(cc echo.Context) error {
	c := cc.(*setup.Context)

	if list, ok := h.cachedModelList(c.Request().Context()); ok {
		metrics.RequestCount.WithLabelValues("", "models", "200").Inc()
		return c.JSON(http.StatusOK, list)
	}

	res, err := h.Upstream.Do(c.Request().Context(), http.MethodGet, apiPath("/models"), nil, c.APIKey)
	if err != nil {
		metrics.ErrorCount.WithLabelValues("models", "upstream").Inc()
		return sendError(c, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.RequestCount.WithLabelValues("", "models", fmt.Sprintf("%d", res.StatusCode)).Inc()
		return passthrough(c, res)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}
	var data gemini.ModelsResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		c.Log.Errorw("Failed to parse upstream model list", "error", err.Error())
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}

	list := transcode.ToModelList(&data)
	h.storeModelList(list)

	metrics.RequestCount.WithLabelValues("", "models", "200").Inc()
	return c.JSON(http.StatusOK, list)
}

func (h *ProxyHandler) cachedModelList(ctx context.Context) (*openai.ModelList, bool) {
	if h.Redis == nil {
		return nil, false
	}
	cached, err := h.Redis.Get(ctx, modelListCacheKey).Result()
	if err != nil {
		return nil, false
	}
	var list openai.ModelList
	if err := json.Unmarshal([]byte(cached), &list); err != nil {
		h.Log.Errorw("Error unmarshalling model list cache", "error", err)
		return nil, false
	}
	return &list, true
}

func (h *ProxyHandler) storeModelList(list openai.ModelList) {
	if h.Redis == nil {
		return
	}
	go func() {
		encoded, err := json.Marshal(list)
		if err != nil {
			h.Log.Errorw("Error marshalling model list", "error", err)
			return
		}
		h.Redis.Set(context.Background(), modelListCacheKey, encoded, shared.ModelListCacheTTL)
	}()
}
