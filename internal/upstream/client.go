package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"polaris-api/internal/metrics"
	"polaris-api/internal/shared"

	"go.uber.org/zap"
)

type Client struct {
	// Failover order, primary first. Read-only after construction.
	Candidates []string
	HTTP       *http.Client
	Log        *zap.SugaredLogger
}

func NewClient(base string, fallbacks []string, log *zap.SugaredLogger) *Client {
	// No overall client timeout: streamed completion bodies stay open for as
	// long as the upstream keeps generating. Connection setup is bounded so a
	// dead candidate still fails over promptly.
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: shared.DefaultDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout: shared.DefaultDialTimeout,
		DisableKeepAlives:   false,
	}
	return &Client{
		Candidates: Candidates(base, fallbacks),
		HTTP:       &http.Client{Transport: tr},
		Log:        log,
	}
}

// Do tries path against every candidate in order. A response is accepted when
// its status is below 500, which makes 4xx a terminal outcome: only network
// failures and 5xx move on to the next candidate. The caller owns the
// returned body.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, apiKey string) (*http.Response, error) {
	for _, base := range c.Candidates {
		url := base + path

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader(body))
		if err != nil {
			return nil, errors.Join(shared.ErrInternalServerError, err)
		}
		c.setHeaders(req, apiKey, body != nil)

		res, err := c.HTTP.Do(req)
		if err != nil {
			c.Log.Warnw("Upstream attempt failed", "url", url, "error", err.Error())
			metrics.FailoverAttempts.WithLabelValues("network_error").Inc()
			continue
		}

		if res.StatusCode < http.StatusInternalServerError {
			metrics.FailoverAttempts.WithLabelValues("accepted").Inc()
			return res, nil
		}

		c.Log.Warnw("Upstream attempt failed", "url", url, "status", res.StatusCode)
		metrics.FailoverAttempts.WithLabelValues("upstream_5xx").Inc()
		drain(res)
	}

	metrics.FailoverAttempts.WithLabelValues("exhausted").Inc()
	return nil, shared.ErrAllEndpointsFailed
}

func (c *Client) setHeaders(req *http.Request, apiKey string, hasBody bool) {
	req.Header.Set("x-goog-api-client", shared.APIClient)
	if apiKey != "" {
		req.Header.Set("x-goog-api-key", apiKey)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	_ = res.Body.Close()
}
