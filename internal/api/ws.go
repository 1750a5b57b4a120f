package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/broadcast"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsHistorySize  = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamEvent is the websocket envelope. Type is "history" once after
// connect, then "record" per reading. Gap marks that the subscriber fell
// behind and records were dropped before this one.
type streamEvent struct {
	Type string      `json:"type"`
	Gap  bool        `json:"gap,omitempty"`
	Data interface{} `json:"data"`
}

// HandleWebSocket upgrades the connection and streams live records. The
// client first receives the recent history, then every new reading as it
// is processed.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.bus.Subscribe()
	h.logger.Info("websocket client connected",
		zap.String("subscriber_id", sub.ID()),
		zap.String("remote", conn.RemoteAddr().String()))

	// Read pump: drains control frames and detects disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go h.writePump(conn, sub, done)
}

func (h *Handler) writePump(conn *websocket.Conn, sub *broadcast.Subscriber, done <-chan struct{}) {
	defer func() {
		h.bus.Unsubscribe(sub)
		conn.Close()
		h.logger.Info("websocket client disconnected",
			zap.String("subscriber_id", sub.ID()))
	}()

	if recent := h.bus.Recent(wsHistorySize); len(recent) > 0 {
		if err := h.writeEvent(conn, streamEvent{Type: "history", Data: recent}); err != nil {
			return
		}
	}

	for {
		select {
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			ev := streamEvent{Type: "record", Gap: sub.Gap(), Data: rec}
			if err := h.writeEvent(conn, ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, ev streamEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
