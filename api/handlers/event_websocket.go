package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
)

const (
	eventStreamBuffer = 128
	pingInterval      = 30 * time.Second
	writeTimeout      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventSource hands out pipeline event subscriptions
type EventSource interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// EventWebSocketHandler streams pipeline events to WebSocket clients
type EventWebSocketHandler struct {
	source EventSource
	logger *zap.Logger
}

// NewEventWebSocketHandler creates a new WebSocket handler
func NewEventWebSocketHandler(source EventSource, log *zap.Logger) *EventWebSocketHandler {
	return &EventWebSocketHandler{
		source: source,
		logger: log,
	}
}

// HandleWebSocket handles GET /api/v1/events.
// The optional package query parameter limits the stream to one package.
func (h *EventWebSocketHandler) HandleWebSocket(c *gin.Context) {
	packageName := c.Query("package")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.source.Subscribe(eventStreamBuffer)
	defer unsubscribe()

	h.logger.Info("Event stream client connected",
		zap.String("package", packageName),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// the reader notices client close frames
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			if packageName != "" && ev.PackageName != packageName {
				continue
			}

			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("Event stream client gone", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
