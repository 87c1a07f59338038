package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/exchange"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
)

type TripService interface {
	Create(ctx context.Context, req models.CreateTripRequest) (*models.Trip, error)
	Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	RequestTransition(ctx context.Context, tripID uuid.UUID, target types.TripStatus, actor models.Actor, extra models.TransitionExtra) (*models.Trip, error)
	Cancel(ctx context.Context, tripID uuid.UUID, actor models.Actor, reason string) (*models.Trip, error)
	AppendStop(ctx context.Context, tripID uuid.UUID, actor models.Actor, point models.Point) (*models.Trip, error)
	FindActiveForUser(ctx context.Context, userID uuid.UUID, role types.Role) (*models.Trip, error)
}

type PositionExchange interface {
	OpenTrip(ctx context.Context, tripID uuid.UUID) error
	Open(ctx context.Context, tripID uuid.UUID, role types.Role, onPeerUpdate func(models.PositionSample)) (*exchange.Channel, error)
}

type PresenceService interface {
	StartTracking(ctx context.Context, driverID uuid.UUID)
	StopTracking(ctx context.Context, driverID uuid.UUID)
	Ingest(ctx context.Context, driverID uuid.UUID, sample models.PositionSample) error
	ReportError(ctx context.Context, driverID uuid.UUID, err error) error
	UpdateOperationalStatus(ctx context.Context, driverID uuid.UUID, status types.DriverStatus) error
	Get(ctx context.Context, driverID uuid.UUID) (*models.PresenceRecord, error)
	ActiveDrivers(ctx context.Context, now time.Time) ([]models.PresenceRecord, error)
	Nearby(ctx context.Context, center geo.Point, radiusMeters float64, now time.Time) ([]models.PresenceRecord, error)
}
