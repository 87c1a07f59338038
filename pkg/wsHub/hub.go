package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub keeps one websocket connection per key.
type ConnectionHub struct {
	clients map[string]*Conn
	l       logger.Logger
	mu      sync.Mutex
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[string]*Conn),
		l:       l,
	}
}

// Add registers newConn. An existing connection under the same key is closed and replaced.
func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	existing, ok := h.clients[newConn.key]
	h.clients[newConn.key] = newConn
	h.mu.Unlock()

	if ok && existing != newConn {
		ctx := wrap.WithAction(context.Background(), "ws_connection_replace")
		h.l.Warn(ctx, "replacing existing connection", "key", existing.key)
		if err := existing.Close(); err != nil {
			h.l.Warn(ctx, "failed to close existing conn", "key", existing.key, "error", err.Error())
		}
	}
	return nil
}

// Remove closes conn and drops it only if it is still the registered one for its key.
func (h *ConnectionHub) Remove(conn *Conn) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	if cur, ok := h.clients[conn.key]; ok && cur == conn {
		delete(h.clients, conn.key)
	}
	h.mu.Unlock()

	_ = conn.Close()
}

// Delete closes and drops the connection registered under key.
func (h *ConnectionHub) Delete(key string) error {
	h.mu.Lock()
	conn, ok := h.clients[key]
	delete(h.clients, key)
	h.mu.Unlock()

	if !ok {
		return ErrConnIsNotFound
	}
	return conn.Close()
}

// SendTo sends msg to the connection registered under key.
func (h *ConnectionHub) SendTo(key string, msg any) error {
	conn, err := h.GetConn(key)
	if err != nil {
		return err
	}
	return conn.Send(msg)
}

func (h *ConnectionHub) GetConn(key string) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[key]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}

func (h *ConnectionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every websocket connection.
func (h *ConnectionHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Conn)
	h.mu.Unlock()

	for _, conn := range clients {
		_ = conn.Close()
	}

	h.l.Info(wrap.WithAction(context.Background(), "hub_close"), "all websocket connections closed")
}
