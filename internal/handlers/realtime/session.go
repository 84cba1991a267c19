package realtime

import (
	"sync"

	"polaris-api/internal/metrics"
	"polaris-api/internal/shared"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type frame struct {
	messageType int
	data        []byte
}

// session is the per-connection relay state. Frames the client sends before
// the upstream socket opens are buffered and flushed, in order, exactly once.
// There is no reconnect: once either side goes away the session is over.
type session struct {
	mu      sync.Mutex
	client  *websocket.Conn
	target  *websocket.Conn
	pending []frame

	// Set once the session is torn down; a dial that completes afterwards
	// must not be adopted.
	closed bool

	log *zap.SugaredLogger
}

// connect walks the candidate list until one upstream socket opens, then
// drains the pending queue and keeps pumping upstream frames to the client.
// Runs in its own goroutine for the life of the session.
func (s *session) connect(dialer *websocket.Dialer, candidates []string, pathAndQuery string) {
	for _, base := range candidates {
		url := base + pathAndQuery
		conn, res, err := dialer.Dial(url, nil)
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		if err != nil {
			s.log.Warnw("WebSocket candidate failed", "url", base, "error", err.Error())
			continue
		}

		if !s.adopt(conn) {
			// Client went away while we were dialing.
			_ = conn.Close()
			return
		}
		s.log.Infow("WebSocket upstream connected", "url", base)
		s.readTarget(conn)
		return
	}

	s.log.Errorw("All WebSocket candidates failed")
	s.closeClient(websocket.CloseInternalServerErr, shared.ExhaustedReason)
}

// adopt installs the upstream socket and flushes the buffered frames in
// arrival order. Send failures are logged, they do not abort the session.
// Returns false when the session was already torn down, in which case the
// socket is not installed and the caller must close it.
func (s *session) adopt(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.target = conn
	for _, f := range s.pending {
		if err := conn.WriteMessage(f.messageType, f.data); err != nil {
			s.log.Warnw("Failed to flush buffered message", "error", err.Error())
			metrics.WSBufferedMessages.WithLabelValues("send_failed").Inc()
			continue
		}
		metrics.WSBufferedMessages.WithLabelValues("sent").Inc()
	}
	s.pending = nil
	return true
}

// readClient pumps client frames to the upstream, buffering while no upstream
// socket exists yet. Blocks until the client side ends.
func (s *session) readClient() {
	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			code, reason := closeCode(err)
			s.closeTarget(code, reason)
			return
		}
		s.forwardToTarget(frame{messageType: messageType, data: data})
	}
}

func (s *session) forwardToTarget(f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Not connected yet (or never will be): queue rather than drop. The
	// post-drain requeue branch is defensive only, nothing ever reconnects.
	if s.target == nil {
		s.pending = append(s.pending, f)
		metrics.WSBufferedMessages.WithLabelValues("queued").Inc()
		return
	}
	if err := s.target.WriteMessage(f.messageType, f.data); err != nil {
		s.log.Warnw("Failed to forward client message", "error", err.Error())
	}
}

// readTarget pumps upstream frames to the client. Blocks until the upstream
// side ends.
func (s *session) readTarget(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeCode(err)
			if reason == "" && code == websocket.CloseInternalServerErr {
				reason = "Upstream WebSocket error"
			}
			s.closeClient(code, reason)
			return
		}
		if err := s.client.WriteMessage(messageType, data); err != nil {
			s.log.Warnw("Failed to forward upstream message", "error", err.Error())
		}
	}
}

// closeCode maps a read error to the code/reason propagated to the peer.
func closeCode(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		code := ce.Code
		// 1005/1006 are synthetic, they must not appear in a close frame.
		if code == websocket.CloseNoStatusReceived || code == websocket.CloseAbnormalClosure {
			code = websocket.CloseNormalClosure
		}
		return code, ce.Text
	}
	return websocket.CloseInternalServerErr, ""
}

func (s *session) closeTarget(code int, reason string) {
	s.mu.Lock()
	s.closed = true
	conn := s.target
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if reason == "" && code == websocket.CloseInternalServerErr {
		reason = "Client WebSocket error"
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), closeDeadline())
	_ = conn.Close()
}

func (s *session) closeClient(code int, reason string) {
	_ = s.client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), closeDeadline())
	_ = s.client.Close()
}

func (s *session) closeBoth() {
	s.mu.Lock()
	s.closed = true
	conn := s.target
	s.mu.Unlock()
	_ = s.client.Close()
	if conn != nil {
		_ = conn.Close()
	}
}
