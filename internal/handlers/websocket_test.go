package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"boilerctl/internal/models"
	"boilerctl/internal/service"
)

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil, nil)

	cases := []struct {
		name  string
		query string
		want  time.Duration
	}{
		{"no params means default", "", time.Second},
		{"duration form", "interval=200ms", 200 * time.Millisecond},
		{"millisecond form", "interval_ms=150", 150 * time.Millisecond},
		{"duration above cap rejected", "interval=20s", time.Second},
		{"milliseconds above cap rejected", "interval_ms=20000", time.Second},
		{"zero rejected", "interval=0s", time.Second},
		{"garbage duration rejected", "interval=soon", time.Second},
		{"garbage milliseconds rejected", "interval_ms=NaN", time.Second},
		{"duration wins over milliseconds", "interval=2s&interval_ms=150", 2 * time.Second},
		{"bad duration falls back to milliseconds", "interval=soon&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/ws"
			if tc.query != "" {
				target += "?" + tc.query
			}
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, target, nil)
			if got := h.parseInterval(c); got != tc.want {
				t.Fatalf("parseInterval(%q) = %v, want %v", tc.query, got, tc.want)
			}
		})
	}
}

// dialStream spins up the handler behind a test server and opens a client
// connection to its /ws route.
func dialStream(t *testing.T, svc *service.Service, query string) *websocket.Conn {
	t.Helper()

	r := gin.New()
	h := NewHandler(svc, nil, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		wsURL += "?" + query
	}
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame.Type, frame.Data
}

func TestWebSocket_StatusStream(t *testing.T) {
	mon := &mockMonitoring{status: models.BoilerStatus{
		Enabled:     true,
		State:       "RUNNING_LOW",
		Mode:        "HEATING",
		BoilerTempC: 61.5,
		TargetTempC: 65,
		Modulation:  40,
	}}
	conn := dialStream(t, &service.Service{Monitoring: mon}, "interval_ms=20")

	// The first frame arrives without waiting out an interval.
	typ, data := readFrame(t, conn)
	if typ != "status" || len(data) == 0 {
		t.Fatalf("initial frame type=%q data=%q", typ, data)
	}
	var st models.BoilerStatus
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.State != "RUNNING_LOW" || st.BoilerTempC != 61.5 || !st.Enabled {
		t.Fatalf("unexpected status: %+v", st)
	}

	// Then the ticker keeps frames coming.
	if typ, _ := readFrame(t, conn); typ != "status" {
		t.Fatalf("second frame type=%q", typ)
	}
}

func TestWebSocket_ClientCloseEndsHandler(t *testing.T) {
	mon := &mockMonitoring{status: models.BoilerStatus{State: "IDLE"}}
	conn := dialStream(t, &service.Service{Monitoring: mon}, "")

	// Take the initial frame, then hang up from the client side. The
	// handler's read loop must notice and end the writer; the test only
	// has to not hang.
	readFrame(t, conn)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
