package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

// PositionBus is an in-process transport for trip position messages.
// Delivery to a slow subscriber is dropped rather than blocking the sender.
type PositionBus struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan []byte
	nextID int
	buffer int
}

func NewPositionBus(buffer int) *PositionBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &PositionBus{subs: make(map[string]map[int]chan []byte), buffer: buffer}
}

func topic(tripID uuid.UUID, role types.Role) string {
	return tripID.String() + "/" + string(role)
}

func (b *PositionBus) Publish(_ context.Context, tripID uuid.UUID, role types.Role, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[topic(tripID, role)] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *PositionBus) Subscribe(_ context.Context, tripID uuid.UUID, role types.Role) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := topic(tripID, role)
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan []byte)
	}
	b.nextID++
	id := b.nextID
	ch := make(chan []byte, b.buffer)
	b.subs[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[key][id]; ok {
				close(sub)
				delete(b.subs[key], id)
			}
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
	return ch, cancel, nil
}

// Subscribers returns the number of live subscriptions for a topic.
func (b *PositionBus) Subscribers(tripID uuid.UUID, role types.Role) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic(tripID, role)])
}
