package transport

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
	"go.uber.org/zap"
)

// fakeCDPServer accepts one WebSocket connection and passes every
// request it reads to handle, which writes whatever response it wants.
func fakeCDPServer(t *testing.T, handle func(conn *websocket.Conn, msg wireMessage)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wireMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			handle(conn, msg)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestTransportCallRoundTrips(t *testing.T) {
	srv := fakeCDPServer(t, func(conn *websocket.Conn, msg wireMessage) {
		resp := wireMessage{ID: msg.ID, Result: json.RawMessage(`{"ok":true}`)}
		payload, _ := json.Marshal(resp)
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	})

	tr, err := Connect(context.Background(), wsURL(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	result, err := tr.Call(context.Background(), "Page.navigate", map[string]string{"url": "about:blank"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestTransportCallReturnsProtocolError(t *testing.T) {
	srv := fakeCDPServer(t, func(conn *websocket.Conn, msg wireMessage) {
		resp := wireMessage{ID: msg.ID, Error: &wireError{Code: -32000, Message: "boom"}}
		payload, _ := json.Marshal(resp)
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	})

	tr, err := Connect(context.Background(), wsURL(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Call(context.Background(), "Page.navigate", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTransportCallTimesOutOnContextCancel(t *testing.T) {
	srv := fakeCDPServer(t, func(conn *websocket.Conn, msg wireMessage) {
		// never responds
	})

	tr, err := Connect(context.Background(), wsURL(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Call(ctx, "Page.navigate", nil)
	assert.Error(t, err)
}

func TestTransportWaitEventMatchesBufferedFrame(t *testing.T) {
	srv := fakeCDPServer(t, func(conn *websocket.Conn, msg wireMessage) {})

	tr, err := Connect(context.Background(), wsURL(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	tr.pushEvent(Event{Method: "Page.loadEventFired"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := tr.WaitEvent(ctx, func(e Event) bool { return e.Method == "Page.loadEventFired" })
	require.NoError(t, err)
	assert.Equal(t, "Page.loadEventFired", ev.Method)
}

func TestApplyNetworkEventTracksPendingRequests(t *testing.T) {
	pending := make(map[string]struct{})

	changed := applyNetworkEvent(pending, Event{Method: eventRequestWillBeSent, Params: json.RawMessage(`{"requestId":"1"}`)})
	assert.True(t, changed)
	assert.Len(t, pending, 1)

	changed = applyNetworkEvent(pending, Event{Method: eventLoadingFinished, Params: json.RawMessage(`{"requestId":"1"}`)})
	assert.True(t, changed)
	assert.Len(t, pending, 0)

	changed = applyNetworkEvent(pending, Event{Method: eventLoadingFailed, Params: json.RawMessage(`{"requestId":"missing"}`)})
	assert.False(t, changed)

	changed = applyNetworkEvent(pending, Event{Method: "Page.loadEventFired"})
	assert.False(t, changed)
}

func TestTransportWaitNetworkIdleReturnsAfterQuietWindow(t *testing.T) {
	srv := fakeCDPServer(t, func(conn *websocket.Conn, msg wireMessage) {})

	tr, err := Connect(context.Background(), wsURL(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	start := time.Now()
	err = tr.WaitNetworkIdle(context.Background(), 30*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestTransportWaitNetworkIdleWaitsForPendingRequestToFinish(t *testing.T) {
	srv := fakeCDPServer(t, func(conn *websocket.Conn, msg wireMessage) {})

	tr, err := Connect(context.Background(), wsURL(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	tr.pushEvent(Event{Method: eventRequestWillBeSent, Params: json.RawMessage(`{"requestId":"pending-1"}`)})

	start := time.Now()
	err = tr.WaitNetworkIdle(context.Background(), 20*time.Millisecond, 80*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
