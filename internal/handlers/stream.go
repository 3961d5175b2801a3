package handlers

import (
	"net/http"
	"time"

	"task-planner/backend/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type StreamHandler struct {
	hub          *stream.Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
}

func NewStreamHandler(hub *stream.Hub, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Cross-origin access is governed by the CORS layer and
			// the bearer token; the websocket handshake does not add
			// its own origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Stream upgrades the request and delivers full task snapshots until
// the client disconnects. The first frame is the current snapshot, so
// clients can drop their loading state as soon as it arrives.
func (h *StreamHandler) Stream(c *gin.Context) {
	userID := currentUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sub, err := h.hub.Subscribe(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open task stream"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Cancel()
		return
	}

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub, userID)
}

// readLoop discards inbound frames; its job is detecting disconnect
// and releasing the subscription so no stale listener leaks.
func (h *StreamHandler) readLoop(conn *websocket.Conn, sub *stream.Subscription) {
	defer sub.Cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, sub *stream.Subscription, userID uuid.UUID) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		sub.Cancel()
		conn.Close()
	}()

	for {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debug("snapshot write failed",
					zap.String("user_id", userID.String()),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
