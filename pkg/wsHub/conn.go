package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var ErrConnClosed = errors.New("connection closed")

// Conn is a keyed websocket connection safe for concurrent writers.
type Conn struct {
	conn    *websocket.Conn
	key     string
	doneCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex // serializes writes
	once    sync.Once
}

func NewConn(ctx context.Context, key string, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		conn:    conn,
		key:     key,
		doneCtx: ctx,
		cancel:  cancel,
	}
}

func (c *Conn) Key() string {
	return c.key
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCtx.Done()
}

func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doneCtx.Err() != nil {
		return ErrConnClosed
	}
	if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Send writes msg as a JSON text frame.
func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doneCtx.Err() != nil {
		return ErrConnClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// Listen reads frames until the peer goes away, the connection is closed or handler fails.
func (c *Conn) Listen(handler func(msg json.RawMessage) error) error {
	for {
		var msg json.RawMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if c.doneCtx.Err() != nil {
				return ErrConnClosed
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if err := handler(msg); err != nil {
			return fmt.Errorf("handler failed: %w", err)
		}
	}
}

// Close is idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()

		c.mu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.mu.Unlock()

		err = c.conn.Close()
	})
	return err
}
