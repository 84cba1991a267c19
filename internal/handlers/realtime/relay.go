// Package realtime relays a bidirectional realtime session between a client
// websocket and one of several candidate upstream endpoints.
package realtime

import (
	"net/http"
	"time"

	"polaris-api/internal/metrics"
	"polaris-api/internal/setup"
	"polaris-api/internal/shared"
	"polaris-api/internal/upstream"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type RelayHandler struct {
	// WebSocket-scheme failover list, primary first.
	Candidates []string
	Log        *zap.SugaredLogger

	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

func NewRelayHandler(httpCandidates []string, log *zap.SugaredLogger) *RelayHandler {
	return &RelayHandler{
		Candidates: upstream.WebSocketCandidates(httpCandidates),
		Log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The proxy is origin-agnostic, moderation lives with the caller.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{HandshakeTimeout: shared.WSDialTimeout},
	}
}

// Intercept routes websocket upgrade requests into the relay before normal
// routing happens; everything else passes through.
func (h *RelayHandler) Intercept(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		if !websocket.IsWebSocketUpgrade(cc.Request()) {
			return next(cc)
		}
		c, ok := cc.(*setup.Context)
		if !ok {
			c = &setup.Context{Context: cc, Log: h.Log}
		}
		return h.Relay(c)
	}
}

// Relay upgrades the client connection, establishes exactly one upstream
// connection by walking the candidate list, and forwards frames both ways
// until either side closes. The client-side path and query are forwarded to
// the upstream verbatim, including the credential query parameter.
func (h *RelayHandler) Relay(c *setup.Context) error {
	req := c.Request()

	apiKey := req.URL.Query().Get("key")
	if apiKey == "" {
		// Some deployments put the credential on the Authorization header
		// instead of the query string.
		apiKey, _ = shared.ExtractAPIKey(c)
	}
	if apiKey == "" {
		return c.JSON(http.StatusBadRequest, shared.OpenAIError{
			Message: "missing API key for realtime session",
			Object:  "error",
			Type:    "BadRequest",
			Code:    http.StatusBadRequest,
		})
	}

	pathAndQuery := req.URL.RequestURI()
	if req.URL.Query().Get("key") == "" {
		// Hand the header credential to the upstream the way its realtime
		// endpoint expects it.
		sep := "?"
		if req.URL.RawQuery != "" {
			sep = "&"
		}
		pathAndQuery += sep + "key=" + apiKey
	}

	clientWs, err := h.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		c.Log.Warnw("WebSocket upgrade failed", "error", err.Error())
		return nil
	}

	metrics.WSSessions.Inc()
	defer metrics.WSSessions.Dec()

	s := &session{
		client: clientWs,
		log:    c.Log,
	}
	defer s.closeBoth()

	go s.connect(h.dialer, h.Candidates, pathAndQuery)
	s.readClient()
	return nil
}

func closeDeadline() time.Time {
	return time.Now().Add(5 * time.Second)
}
