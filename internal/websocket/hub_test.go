package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callowcreation/sfs-api/pkg/logging"
)

func testLogger() logging.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{
		Action:   "subscribe",
		Channels: channels,
	}))

	var confirmation map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&confirmation))
	assert.Equal(t, "subscribe_confirmed", confirmation["type"])
}

func TestSubscribeAndReceive(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	conn := dialHub(t, hub)
	subscribe(t, conn, "chan-1")

	require.NoError(t, hub.Send(context.Background(), "chan-1", map[string]string{"action": "shoutout"}))

	var received map[string]string
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "shoutout", received["action"])
}

func TestSendSkipsOtherChannels(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	conn := dialHub(t, hub)
	subscribe(t, conn, "chan-1")

	require.NoError(t, hub.Send(context.Background(), "other-chan", "ignored"))
	require.NoError(t, hub.Send(context.Background(), "chan-1", "wanted"))

	var received string
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "wanted", received)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	conn := dialHub(t, hub)
	subscribe(t, conn, "chan-1", "chan-2")

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{
		Action:   "unsubscribe",
		Channels: []string{"chan-1"},
	}))
	var confirmation map[string]interface{}
	require.NoError(t, conn.ReadJSON(&confirmation))
	assert.Equal(t, "unsubscribe_confirmed", confirmation["type"])

	require.NoError(t, hub.Send(context.Background(), "chan-1", "dropped"))
	require.NoError(t, hub.Send(context.Background(), "chan-2", "kept"))

	var received string
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "kept", received)
}

func TestSendUnmarshalableMessage(t *testing.T) {
	hub := NewHub(testLogger())
	err := hub.Send(context.Background(), "chan-1", make(chan int))
	assert.Error(t, err)
}

func TestSendMarshalsRawMessage(t *testing.T) {
	hub := NewHub(testLogger())
	err := hub.Send(context.Background(), "chan-1", json.RawMessage(`{"k":"v"}`))
	assert.NoError(t, err)
}

func TestStatsEmptyHub(t *testing.T) {
	hub := NewHub(testLogger())
	stats := hub.Stats()
	assert.Equal(t, 0, stats["total_clients"])
}
