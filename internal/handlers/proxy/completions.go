package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"polaris-api/internal/gemini"
	"polaris-api/internal/metrics"
	"polaris-api/internal/openai"
	"polaris-api/internal/setup"
	"polaris-api/internal/shared"
	"polaris-api/internal/sse"
	"polaris-api/internal/transcode"

	"github.com/labstack/echo/v4"
)

func (h *ProxyHandler) ChatCompletions(cc echo.Context) error {
	c := cc.(*setup.Context)
	start := time.Now()

	body, err := readRequestBody(c)
	if err != nil {
		return sendError(c, shared.ErrBadRequest)
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return sendError(c, errors.Join(shared.ErrInvalidRequest, err))
	}

	model, err := transcode.ResolveModel(req.Model)
	if err != nil {
		return sendError(c, err)
	}

	generateReq, err := transcode.ToGenerateRequest(c.Request().Context(), &req, h.Images)
	if err != nil {
		c.Log.Warnw("Request transcoding failed", "model", req.Model, "error", err.Error())
		return sendError(c, err)
	}
	upstreamBody, err := json.Marshal(generateReq)
	if err != nil {
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}

	path := apiPath("/%s:generateContent", model)
	if req.Stream {
		path = apiPath("/%s:streamGenerateContent?alt=sse", model)
	}

	res, err := h.Upstream.Do(c.Request().Context(), http.MethodPost, path, upstreamBody, c.APIKey)
	if err != nil {
		metrics.ErrorCount.WithLabelValues("chat", "upstream").Inc()
		return sendError(c, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.RequestCount.WithLabelValues(req.Model, "chat", fmt.Sprintf("%d", res.StatusCode)).Inc()
		return passthrough(c, res)
	}

	id := transcode.NewCompletionID()
	defer func() {
		metrics.RequestDuration.WithLabelValues(req.Model, "chat").Observe(time.Since(start).Seconds())
	}()

	if req.Stream {
		includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
		return h.streamCompletion(c, res.Body, id, req.Model, includeUsage, start)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}
	var data gemini.GenerateContentResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		c.Log.Errorw("Failed to parse upstream response", "error", err.Error())
		return sendError(c, errors.Join(shared.ErrInternalServerError, err))
	}

	metrics.RequestCount.WithLabelValues(req.Model, "chat", "200").Inc()
	return c.JSON(http.StatusOK, transcode.ToChatCompletion(&data, req.Model, id))
}

// streamCompletion relays the upstream SSE stream, reframing every event into
// OpenAI-compatible chunks. The response is never aborted mid-stream: parse
// failures degrade into error chunks and the stream always closes with the
// [DONE] control line.
func (h *ProxyHandler) streamCompletion(c *setup.Context, upstream io.Reader, id, model string, includeUsage bool, start time.Time) error {
	setupSSEHeaders(c)

	reassembler := sse.NewReassembler()
	emitter := sse.NewEmitter(id, model, includeUsage)

	clientGone := false
	writeFrames := func(frames []string) {
		for _, frame := range frames {
			if clientGone {
				return
			}
			if c.Request().Context().Err() != nil {
				clientGone = true
				return
			}
			if _, err := io.WriteString(c.Response(), frame); err != nil {
				clientGone = true
				return
			}
			c.Response().Flush()
			metrics.StreamChunks.WithLabelValues(model).Inc()
		}
	}

	firstChunk := true
	buf := make([]byte, 4096)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			for _, payload := range reassembler.Feed(string(buf[:n])) {
				if firstChunk {
					metrics.TimeToFirstChunk.WithLabelValues(model, "chat").Observe(time.Since(start).Seconds())
					firstChunk = false
				}
				writeFrames(emitter.Event(payload))
			}
		}
		if err != nil {
			if err != io.EOF {
				c.Log.Warnw("Upstream stream read failed", "model", model, "error", err.Error())
			}
			break
		}
	}

	if residue, ok := reassembler.Flush(); ok {
		c.Log.Warnw("Upstream stream ended mid-event", "model", model, "buffered_bytes", len(residue))
		writeFrames(emitter.Event(residue))
	}
	writeFrames(emitter.Flush())

	status := "200"
	if clientGone {
		status = "client_closed"
	}
	metrics.RequestCount.WithLabelValues(model, "chat", status).Inc()
	return nil
}
