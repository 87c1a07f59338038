package rabbit

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

// PositionTransport relays trip position messages through trip_position
// with key trip.position.{trip_id}.{role}.
type PositionTransport struct {
	client client
	buffer int
}

func NewPositionTransport(c client) (*PositionTransport, error) {
	if err := declareAll(c, PositionExchange); err != nil {
		return nil, err
	}
	return &PositionTransport{client: c, buffer: 64}, nil
}

func positionKey(tripID uuid.UUID, role types.Role) string {
	return fmt.Sprintf("trip.position.%s.%s", tripID, role)
}

func (t *PositionTransport) Publish(ctx context.Context, tripID uuid.UUID, role types.Role, payload []byte) error {
	err := t.client.Publish(ctx, PositionExchange, positionKey(tripID, role), payload)
	metrics.RecordPublish(PositionExchange, err)
	return err
}

func (t *PositionTransport) Subscribe(ctx context.Context, tripID uuid.UUID, role types.Role) (<-chan []byte, func(), error) {
	deliveries, stop, err := t.client.Subscribe(ctx, PositionExchange, positionKey(tripID, role))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan []byte, t.buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- d.Body:
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
			stop()
		})
	}
	return out, cancel, nil
}
