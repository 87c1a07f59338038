package ws

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
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverConns upgrades every request and hands the server side conn to the test.
func serverConns(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHub_AddReplacesExisting(t *testing.T) {
	srv, conns := serverConns(t)
	hub := NewConnHub(logger.New(io.Discard, "test", logger.LevelError))

	client1 := dial(t, srv)
	first := NewConn(context.Background(), "trip-1:rider", <-conns)
	require.NoError(t, hub.Add(first))

	_ = dial(t, srv)
	second := NewConn(context.Background(), "trip-1:rider", <-conns)
	require.NoError(t, hub.Add(second))

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced connection was not closed")
	}
	assert.Equal(t, 1, hub.Len())

	got, err := hub.GetConn("trip-1:rider")
	require.NoError(t, err)
	assert.Same(t, second, got)

	// the old client observes the close frame
	_ = client1.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = client1.ReadMessage()
	assert.Error(t, err)

	// removing the stale conn must not drop the new one
	hub.Remove(first)
	assert.Equal(t, 1, hub.Len())
}

func TestHub_SendTo(t *testing.T) {
	srv, conns := serverConns(t)
	hub := NewConnHub(logger.New(io.Discard, "test", logger.LevelError))

	client := dial(t, srv)
	require.NoError(t, hub.Add(NewConn(context.Background(), "k", <-conns)))

	require.NoError(t, hub.SendTo("k", map[string]any{"type": "peer_position"}))

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "peer_position", msg["type"])

	assert.ErrorIs(t, hub.SendTo("missing", nil), ErrConnIsNotFound)
	assert.ErrorIs(t, hub.Delete("missing"), ErrConnIsNotFound)

	hub.Close()
	assert.Zero(t, hub.Len())
}

func TestConn_CloseIdempotent(t *testing.T) {
	srv, conns := serverConns(t)
	_ = dial(t, srv)

	c := NewConn(context.Background(), "k", <-conns)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send("x"), ErrConnClosed)
}
