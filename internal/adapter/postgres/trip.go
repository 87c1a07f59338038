package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
	pgutil "github.com/horaciolidity/viaja-easy-sub002/pkg/postgres"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/trm"
)

const tripColumns = `
	id, kind, status, rider_id, driver_id,
	origin_lat, origin_lng, origin_address,
	dest_lat, dest_lng, dest_address,
	stops, fare_estimate, fare_final,
	cancellation_reason, cancelled_by,
	created_at, assigned_at, arrived_at, started_at, completed_at, cancelled_at,
	version, details`

type TripRepo struct {
	db     Querier
	tx     trm.TxManager
	events *TripEventRepo
}

func NewTripRepo(db Querier, tx trm.TxManager) *TripRepo {
	return &TripRepo{db: db, tx: tx, events: NewTripEventRepo(db)}
}

// Create inserts the trip at version 1 together with its created event.
func (r *TripRepo) Create(ctx context.Context, trip *models.Trip) error {
	const op = "TripRepo.Create"
	start := time.Now()

	stops, err := json.Marshal(nonNilStops(trip.Stops))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	details, err := models.EncodeDetails(trip.Details)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, 1, $23)`

	err = r.tx.Do(ctx, func(ctx context.Context) error {
		if _, err := TxorDB(ctx, r.db).Exec(ctx, query,
			trip.ID, trip.Kind, trip.Status, trip.RiderID, trip.DriverID,
			trip.Origin.Lat, trip.Origin.Lng, trip.Origin.Address,
			trip.Destination.Lat, trip.Destination.Lng, trip.Destination.Address,
			stops, trip.FareEstimate, trip.FareFinal,
			trip.CancellationReason, trip.CancelledBy,
			trip.CreatedAt, trip.AssignedAt, trip.ArrivedAt, trip.StartedAt, trip.CompletedAt, trip.CancelledAt,
			details,
		); err != nil {
			if pgutil.IsUniqueViolation(err) {
				return &types.ConflictError{TripID: trip.ID.String(), Expected: trip.Status}
			}
			return err
		}
		return r.events.Create(ctx, models.Transition{
			TripID:  trip.ID,
			Next:    trip,
			Event:   types.EventTripCreated,
			ActorID: trip.RiderID,
		}, "")
	})
	metrics.RecordDatabaseQuery("trip_create", err, start)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	trip.Version = 1
	return nil
}

func (r *TripRepo) Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	const op = "TripRepo.Get"
	start := time.Now()

	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	trip, err := scanTrip(TxorDB(ctx, r.db).QueryRow(ctx, query, tripID))
	metrics.RecordDatabaseQuery("trip_get", ignoreNoRows(err), start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrTripNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return trip, nil
}

// Transition applies tr.Next only while the row still has the expected status
// and version, and records the audit event in the same transaction.
func (r *TripRepo) Transition(ctx context.Context, tr models.Transition) (*models.Trip, error) {
	const op = "TripRepo.Transition"
	start := time.Now()

	next := tr.Next.Clone()
	stops, err := json.Marshal(nonNilStops(next.Stops))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		UPDATE trips SET
			status = $4,
			driver_id = $5,
			stops = $6,
			fare_final = $7,
			cancellation_reason = $8,
			cancelled_by = $9,
			assigned_at = $10,
			arrived_at = $11,
			started_at = $12,
			completed_at = $13,
			cancelled_at = $14,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND status = $2 AND version = $3
		RETURNING version`

	err = r.tx.Do(ctx, func(ctx context.Context) error {
		q := TxorDB(ctx, r.db)

		err := q.QueryRow(ctx, query,
			tr.TripID, tr.ExpectedStatus, tr.ExpectedVersion,
			next.Status, next.DriverID, stops, next.FareFinal,
			next.CancellationReason, next.CancelledBy,
			next.AssignedAt, next.ArrivedAt, next.StartedAt, next.CompletedAt, next.CancelledAt,
		).Scan(&next.Version)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, q, tr)
		}
		if err != nil {
			return err
		}

		return r.events.Create(ctx, tr, string(tr.ExpectedStatus))
	})
	metrics.RecordDatabaseQuery("trip_transition", err, start)
	if err != nil {
		if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return next, nil
}

func (r *TripRepo) missOrConflict(ctx context.Context, q Querier, tr models.Transition) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`, tr.TripID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return types.ErrTripNotFound
	}
	return &types.ConflictError{TripID: tr.TripID.String(), Expected: tr.ExpectedStatus}
}

// FindActiveForUser returns the newest non-terminal trip of the user, or nil.
func (r *TripRepo) FindActiveForUser(ctx context.Context, userID uuid.UUID, role types.Role) (*models.Trip, error) {
	const op = "TripRepo.FindActiveForUser"
	start := time.Now()

	column := "rider_id"
	switch role {
	case types.RoleRider:
	case types.RoleDriver:
		column = "driver_id"
	default:
		return nil, nil
	}

	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE ` + column + ` = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`

	trip, err := scanTrip(TxorDB(ctx, r.db).QueryRow(ctx, query, userID, types.StatusCompleted, types.StatusCancelled))
	metrics.RecordDatabaseQuery("trip_find_active", ignoreNoRows(err), start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return trip, nil
}

func scanTrip(row pgx.Row) (*models.Trip, error) {
	var (
		t              models.Trip
		kind, status   string
		stops, details []byte
	)
	err := row.Scan(
		&t.ID, &kind, &status, &t.RiderID, &t.DriverID,
		&t.Origin.Lat, &t.Origin.Lng, &t.Origin.Address,
		&t.Destination.Lat, &t.Destination.Lng, &t.Destination.Address,
		&stops, &t.FareEstimate, &t.FareFinal,
		&t.CancellationReason, &t.CancelledBy,
		&t.CreatedAt, &t.AssignedAt, &t.ArrivedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt,
		&t.Version, &details,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = types.TripKind(kind)
	t.Status = types.TripStatus(status)
	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &t.Stops); err != nil {
			return nil, fmt.Errorf("decode stops: %w", err)
		}
	}
	if t.Details, err = models.DecodeDetails(t.Kind, details); err != nil {
		return nil, err
	}
	return &t, nil
}

func nonNilStops(stops []models.Point) []models.Point {
	if stops == nil {
		return []models.Point{}
	}
	return stops
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
