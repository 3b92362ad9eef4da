package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/services"
	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameHost,
}

// sameHost accepts requests without an Origin header and those whose origin
// matches the requested host.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// EventHandler streams session events to the UI over a websocket.
type EventHandler struct {
	ctl    *session.Controller
	hub    *services.EventHub
	logger *zap.Logger
}

// NewEventHandler creates a new EventHandler instance.
func NewEventHandler(ctl *session.Controller, hub *services.EventHub, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{ctl: ctl, hub: hub, logger: logger}
}

// HandleWebSocket sends the session state, then every event published after
// the connection was made. Client messages are ignored.
// GET /api/events
func (h *EventHandler) HandleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	id, events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)
	h.logger.Debug("event client connected", zap.String("id", id))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("event client read failed", zap.String("id", id), zap.Error(err))
				}
				return
			}
		}
	}()

	hello := session.Event{Time: time.Now(), Kind: session.EventSession, Message: "state", Data: h.ctl.Info()}
	if err := h.write(ws, hello); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(ws, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *EventHandler) write(ws *websocket.Conn, ev session.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(ev)
}
