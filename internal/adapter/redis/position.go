package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

// PositionTransport relays trip position messages over Redis pub/sub.
type PositionTransport struct {
	client *goredis.Client
	buffer int
}

func NewPositionTransport(client *goredis.Client) *PositionTransport {
	return &PositionTransport{client: client, buffer: 64}
}

func positionChannel(tripID uuid.UUID, role types.Role) string {
	return fmt.Sprintf("trip:%s:position:%s", tripID, role)
}

func (t *PositionTransport) Publish(ctx context.Context, tripID uuid.UUID, role types.Role, payload []byte) error {
	err := t.client.Publish(ctx, positionChannel(tripID, role), payload).Err()
	metrics.RecordPublish("redis_position", err)
	return err
}

// Subscribe returns once Redis confirmed the subscription.
func (t *PositionTransport) Subscribe(ctx context.Context, tripID uuid.UUID, role types.Role) (<-chan []byte, func(), error) {
	name := positionChannel(tripID, role)
	ps := t.client.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	out := make(chan []byte, t.buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ps.Channel():
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
