package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingPeriod   = (wsPongTimeout * 9) / 10
	wsReadLimit    = 1 << 12

	defaultStreamInterval = time.Second
	maxStreamInterval     = 10 * time.Second
)

// wsFrame is the JSON envelope for every message pushed to a client.
type wsFrame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// wsUpgrader accepts any origin. The stream is read-only and carries the
// same payload the REST status endpoint serves.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConnect upgrades the request and pushes status frames at the client's
// requested cadence until either side goes away.
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	if h.metrics != nil {
		h.metrics.WSConnected()
		defer h.metrics.WSDisconnected()
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	// The read side only services control frames; its exit is the signal
	// that the client went away.
	readerGone := make(chan struct{})
	go h.readLoop(conn, readerGone)

	// First frame goes out immediately so a client never waits a full
	// interval for its initial picture.
	if err := h.writeStatus(conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	push := time.NewTicker(interval)
	defer push.Stop()
	keepalive := time.NewTicker(wsPingPeriod)
	defer keepalive.Stop()

	for {
		select {
		case <-readerGone:
			return
		case <-c.Request.Context().Done():
			return
		case <-keepalive.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-push.C:
			if err := h.writeStatus(conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads the push cadence from ?interval (a Go duration) or
// ?interval_ms (an integer), in that order of preference. Out-of-range or
// unparsable values fall back to the default cadence.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxStreamInterval {
			return d
		}
	}
	if s := c.Query("interval_ms"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil {
			if d := time.Duration(ms) * time.Millisecond; d > 0 && d <= maxStreamInterval {
				return d
			}
		}
	}
	return defaultStreamInterval
}

// readLoop discards inbound frames until the connection errors out, which
// covers both orderly client closes and peers dead past the pong deadline.
func (h *Handler) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// writeStatus pushes one status frame under the write deadline.
func (h *Handler) writeStatus(conn *websocket.Conn) error {
	st := h.services.Monitoring.Status()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(wsFrame{Type: "status", Data: st})
}
