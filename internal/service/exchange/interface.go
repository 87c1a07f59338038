package exchange

import (
	"context"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

// Transport moves encoded position messages between the two roles of a trip.
// Subscribe(trip, role) receives what role publishes on that trip; the
// returned channel is closed after cancel.
type Transport interface {
	Publish(ctx context.Context, tripID uuid.UUID, role types.Role, payload []byte) error
	Subscribe(ctx context.Context, tripID uuid.UUID, role types.Role) (<-chan []byte, func(), error)
}
