package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	ws "github.com/horaciolidity/viaja-easy-sub002/pkg/wsHub"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// clients are mobile apps authenticated by token, not browsers on our origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// keepAlive pings conn until it closes and closes it when a ping fails.
func keepAlive(conn *ws.Conn, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case <-t.C:
			if err := conn.Ping(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func wsError(conn *ws.Conn, message any) error {
	return conn.Send(envelope{"type": "error", "error": message})
}
