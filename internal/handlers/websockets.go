package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
)

// Message types exchanged over the stream.
const (
	msgState      = "state"
	msgVisibility = "visibility"
)

// Envelope used for server -> viewer WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// wsInbound is a viewer -> server message, e.g. {"type":"visibility","visible":false}.
type wsInbound struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary      Dashboard stream
// @Description  Pushes {"type":"state","data":DashboardState} every interval. The viewer reports page visibility with {"type":"visibility","visible":bool}; polling pauses while no viewer is visible.
// @Tags         stream
// @Param        interval     query  string  false  "Push interval, e.g. 500ms (max 10s)"
// @Param        interval_ms  query  int     false  "Push interval in ms (max 10000)"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// A viewer counts as visible from connect until it reports otherwise.
	viewerID := uuid.NewString()
	h.reportVisibility(viewerID, true)
	defer h.leave(viewerID)

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine handles visibility reports and detects disconnects.
	done := make(chan struct{})
	go h.startReader(conn, viewerID, done)

	// Prepare periodic writers: state updates and pings.
	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	// Send initial state immediately.
	if err := h.sendState(conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err, "viewer", viewerID)
		}
		return
	}

	// Writer/select loop.
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err, "viewer", viewerID)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendState(conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err, "viewer", viewerID)
				}
				return
			}
		}
	}
}

// Helper: parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	interval := h.streamInterval
	if interval <= 0 {
		interval = defaultInterval
	}

	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return interval
}

// Helper: startReader applies visibility reports until the connection closes.
func (h *Handler) startReader(conn *websocket.Conn, viewerID string, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err, "viewer", viewerID)
			}
			return
		}
		h.handleInbound(viewerID, data)
	}
}

func (h *Handler) handleInbound(viewerID string, data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		if h.log != nil {
			h.log.Debugw("ws_bad_message", "err", err, "viewer", viewerID)
		}
		return
	}
	switch msg.Type {
	case msgVisibility:
		if msg.Visible == nil {
			return
		}
		h.reportVisibility(viewerID, *msg.Visible)
	default:
		if h.log != nil {
			h.log.Debugw("ws_unknown_message", "type", msg.Type, "viewer", viewerID)
		}
	}
}

func (h *Handler) reportVisibility(viewerID string, visible bool) {
	if h.services.Viewers == nil {
		return
	}
	h.services.Viewers.Report(viewerID, visible)
	if h.log != nil {
		h.log.Debugw("ws_visibility", "viewer", viewerID, "visible", visible)
	}
}

func (h *Handler) leave(viewerID string) {
	if h.services.Viewers == nil {
		return
	}
	h.services.Viewers.Leave(viewerID)
}

// Helper: sendState writes the current state with a write deadline.
func (h *Handler) sendState(conn *websocket.Conn) error {
	st := h.services.Monitoring.State()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: msgState, Data: st})
}
