package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusWithoutConnection(t *testing.T) {
	var bus *EventBus
	err := bus.Publish(context.Background(), "u-1", "toast", nil)
	assert.True(t, errors.Is(err, ErrBusUnavailable))
	assert.True(t, errors.Is(bus.StartConsumer(context.Background(), "q"), ErrBusUnavailable))
}

func TestRealtimeFallsBackToWebSocket(t *testing.T) {
	ws := NewWSConnManager()
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Add("u-1", conn)
		close(registered)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("socket was not registered")
	}

	realtime := &Realtime{WS: ws}
	realtime.Deliver(context.Background(), "u-1", "toast", map[string]string{"message": "hello"})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var event WSEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "toast", event.Event)
	assert.Equal(t, map[string]interface{}{"message": "hello"}, event.Payload)
}
