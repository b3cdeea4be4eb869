package wsgateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiprovidergw/gateway/internal/provider"
)

func newTestServer(t *testing.T, g *Gateway) (string, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := g.Upgrade(w, r, "")
		require.NoError(t, err)
		defer g.Close(c)

		// Keep the handler alive until the connection closes so reads
		// still pump.
		<-c.done
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	return url, srv.Close
}

func TestUpgrade_TracksConnectionAndRespondsToPing(t *testing.T) {
	g := New()
	url, closeSrv := newTestServer(t, g)
	defer closeSrv()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the connection.
	require.Eventually(t, func() bool { return g.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 42}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var pong pongFrame
	require.NoError(t, json.Unmarshal(raw, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.EqualValues(t, 42, pong.Timestamp)
}

func TestUpgrade_UnregistersOnClose(t *testing.T) {
	g := New()
	url, closeSrv := newTestServer(t, g)
	defer closeSrv()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return g.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return g.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBindStream_EmitsStartDeltaAndEndFrames(t *testing.T) {
	g := New()
	url, closeSrv := newTestServer(t, g)
	defer closeSrv()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return g.Count() == 1 }, time.Second, 10*time.Millisecond)

	var c *Conn
	g.mu.RLock()
	for _, cc := range g.conns {
		c = cc
	}
	g.mu.RUnlock()
	require.NotNil(t, c)

	chunks := make(chan provider.StreamChunk, 3)
	chunks <- provider.StreamChunk{Delta: "hi", Model: "m", Provider: provider.Claude}
	chunks <- provider.StreamChunk{Finished: true, Usage: &provider.Usage{TotalTokens: 9}}
	close(chunks)

	go BindStream(g, c, "stream-1", chunks)

	conn.SetReadDeadline(time.Now().Add(time.Second))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var start streamStartFrame
	require.NoError(t, json.Unmarshal(raw, &start))
	assert.Equal(t, "stream_start", start.Type)
	assert.Equal(t, "stream-1", start.ID)

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	var delta chatDeltaFrame
	require.NoError(t, json.Unmarshal(raw, &delta))
	assert.Equal(t, "chat_delta", delta.Type)
	assert.Equal(t, "hi", delta.Delta)

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	var end streamEndFrame
	require.NoError(t, json.Unmarshal(raw, &end))
	assert.Equal(t, "stream_end", end.Type)
	require.NotNil(t, end.TotalTokens)
	assert.Equal(t, 9, *end.TotalTokens)
}
