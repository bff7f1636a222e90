package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const wsPongWait = 60 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events - WebSocket endpoint for feed, notifications, messages and toasts
func (h *Handlers) Events(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "Events", "user_id": sess.UserID, "error": err.Error()}).
			Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.WS.Add(sess.UserID, conn)
	defer h.WS.Remove(sess.UserID, conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"connected","payload":{"message":"WebSocket connected"}}`))

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{"user_id": sess.UserID, "error": err.Error()}).Debug("WebSocket read error")
			}
			break
		}
		// clients only send keepalives
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}
