package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*NotificationHub, string, context.CancelFunc) {
	t.Helper()
	hub := NewNotificationHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, 7)
	}))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcastsToEverySession(t *testing.T) {
	hub, url, _ := startHub(t)
	a := dialHub(t, url)
	b := dialHub(t, url)
	assert.Eventually(t, func() bool { return hub.SessionCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("exam-submitted", map[string]interface{}{"examId": 3})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "exam-submitted", msg.Type)
		assert.Equal(t, map[string]interface{}{"examId": float64(3)}, msg.Data)
		assert.False(t, msg.At.IsZero())
	}
}

func TestHubAnswersPing(t *testing.T) {
	hub, url, _ := startHub(t)
	conn := dialHub(t, url)
	assert.Eventually(t, func() bool { return hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)
}

func TestHubDropsSessionsOnClose(t *testing.T) {
	hub, url, _ := startHub(t)
	conn := dialHub(t, url)
	assert.Eventually(t, func() bool { return hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubStopsWithContext(t *testing.T) {
	hub, url, cancel := startHub(t)
	conn := dialHub(t, url)
	assert.Eventually(t, func() bool { return hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewNotificationHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < outboundBuffer*2; i++ {
			hub.Publish("exam-created", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}
