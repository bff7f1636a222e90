package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WSConnManager keeps the open WebSocket connections of every user
type WSConnManager struct {
	mu    sync.RWMutex
	users map[string][]*wsConn
}

func NewWSConnManager() *WSConnManager {
	return &WSConnManager{
		users: make(map[string][]*wsConn),
	}
}

func (m *WSConnManager) Add(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = append(m.users[userID], &wsConn{conn: conn})
}

func (m *WSConnManager) Remove(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := m.users[userID]
	for i, c := range conns {
		if c.conn == conn {
			m.users[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(m.users[userID]) == 0 {
		delete(m.users, userID)
	}
}

// Connected reports whether userID has at least one open connection
func (m *WSConnManager) Connected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userID]) > 0
}

// Send writes message to every connection of userID and returns how many got it
func (m *WSConnManager) Send(userID string, message []byte) int {
	m.mu.RLock()
	conns := append([]*wsConn(nil), m.users[userID]...)
	m.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, message)
		c.mu.Unlock()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Send",
				"user_id":  userID,
				"error":    err.Error(),
			}).Debug("WebSocket write failed")
			continue
		}
		delivered++
	}
	return delivered
}
