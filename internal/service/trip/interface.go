package trip

import (
	"context"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

/*=====================Trip Repository============================*/

type TripRepo interface {
	Create(ctx context.Context, trip *models.Trip) error
	Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	// Transition applies tr.Next only when the stored trip still matches
	// tr.ExpectedStatus and tr.ExpectedVersion; otherwise it returns *types.ConflictError.
	Transition(ctx context.Context, tr models.Transition) (*models.Trip, error)
	// FindActiveForUser returns nil, nil when the user has no active trip.
	FindActiveForUser(ctx context.Context, userID uuid.UUID, role types.Role) (*models.Trip, error)
}

/*=====================Presence===================================*/

type PresenceReader interface {
	GetPresence(ctx context.Context, driverID uuid.UUID) (*models.PresenceRecord, error)
}

/*=====================Side effects===============================*/

// ChannelController opens and tears down the realtime position channel of a trip.
type ChannelController interface {
	OpenTrip(ctx context.Context, tripID uuid.UUID) error
	CloseTrip(ctx context.Context, tripID uuid.UUID) error
}

type Publisher interface {
	PublishStatus(ctx context.Context, evt models.TripStatusEvent) error
	PublishStopAppended(ctx context.Context, evt models.StopAppendedEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n models.Notification) error
}
