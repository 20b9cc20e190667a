package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// Websocket timings.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (s *Server) listNotifications(c *gin.Context) {
	list, err := s.svc.Notify.List(c.Request.Context(), caller(c).UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) unreadCount(c *gin.Context) {
	n, err := s.svc.Notify.UnreadCount(c.Request.Context(), caller(c).UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"count": n})
}

func (s *Server) markRead(c *gin.Context) {
	id, ok := idParam(c, "id", "notification")
	if !ok {
		return
	}
	if err := s.svc.Notify.MarkRead(c.Request.Context(), caller(c).UserID, id); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Notification marked as read"})
}

func (s *Server) markAllRead(c *gin.Context) {
	n, err := s.svc.Notify.MarkAllRead(c.Request.Context(), caller(c).UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"updated": n})
}

// notificationStream relays the caller's new notifications over a
// websocket. Browsers pass the session token as ?token= since they cannot
// set headers on the upgrade request.
func (s *Server) notificationStream(c *gin.Context) {
	if !s.svc.Push.Enabled() {
		httpx.Error(c, http.StatusServiceUnavailable, "realtime notifications are disabled")
		return
	}
	userID := caller(c).UserID
	log := httpx.Logger(c).With(zap.String("user_id", userID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	sub, err := s.svc.Push.Subscribe(ctx, userID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	log.Debug("notification stream opened")

	go readPump(conn, cancel)
	writePump(ctx, conn, sub.C, log)
	log.Debug("notification stream closed")
}

// readPump discards client frames and cancels the stream once the peer is
// gone or stops answering pings.
func readPump(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, in <-chan models.Notification, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case n, ok := <-in:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				log.Debug("notification write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
