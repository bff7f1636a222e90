package services

import (
	"encoding/json"
	"time"
)

// WSEvent - envelope of everything pushed over the WebSocket
type WSEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// PushEvent serializes an event and sends it to all connections of userID
func PushEvent(manager *WSConnManager, userID, event string, payload interface{}) (int, error) {
	if manager == nil || userID == "" {
		return 0, nil
	}
	data, err := json.Marshal(WSEvent{Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	return manager.Send(userID, data), nil
}
