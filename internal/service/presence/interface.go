package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
)

type Store interface {
	UpsertPresence(ctx context.Context, driverID uuid.UUID, sample models.PositionSample, at time.Time) error
	SetOperationalStatus(ctx context.Context, driverID uuid.UUID, status types.DriverStatus, at time.Time) error
	GetPresence(ctx context.Context, driverID uuid.UUID) (*models.PresenceRecord, error)
	// QueryActivePresence returns non-offline records updated at or after staleBefore.
	QueryActivePresence(ctx context.Context, staleBefore time.Time) ([]models.PresenceRecord, error)
}

// NearbyFinder is implemented by stores with a spatial index.
type NearbyFinder interface {
	Nearby(ctx context.Context, center geo.Point, radiusMeters float64, staleBefore time.Time) ([]models.PresenceRecord, error)
}

// LocationStream receives every persisted sample for downstream consumers.
type LocationStream interface {
	PublishLocation(ctx context.Context, driverID uuid.UUID, sample models.PositionSample) error
}
