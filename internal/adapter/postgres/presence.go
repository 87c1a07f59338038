package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mmcloughlin/geohash"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

// geohashPrecision of 7 characters is a cell of roughly 150 m.
const geohashPrecision = 7

const presenceColumns = `
	driver_id, lat, lng, heading, accuracy_m, speed_kmh, captured_at,
	last_updated_at, operational_status, geohash`

type PresenceRepo struct {
	db Querier
}

func NewPresenceRepo(db Querier) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// UpsertPresence writes the latest position. A new row starts as available;
// an existing row keeps its operational status.
func (r *PresenceRepo) UpsertPresence(ctx context.Context, driverID uuid.UUID, sample models.PositionSample, at time.Time) error {
	const op = "PresenceRepo.UpsertPresence"
	start := time.Now()

	query := `
		INSERT INTO driver_presence (` + presenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (driver_id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			heading = EXCLUDED.heading,
			accuracy_m = EXCLUDED.accuracy_m,
			speed_kmh = EXCLUDED.speed_kmh,
			captured_at = EXCLUDED.captured_at,
			last_updated_at = EXCLUDED.last_updated_at,
			geohash = EXCLUDED.geohash`

	_, err := TxorDB(ctx, r.db).Exec(ctx, query,
		driverID, sample.Lat, sample.Lng, sample.HeadingDegrees, sample.AccuracyMeters, sample.SpeedKmh, sample.CapturedAt,
		at, types.DriverAvailable, geohash.EncodeWithPrecision(sample.Lat, sample.Lng, geohashPrecision),
	)
	metrics.RecordDatabaseQuery("presence_upsert", err, start)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (r *PresenceRepo) SetOperationalStatus(ctx context.Context, driverID uuid.UUID, status types.DriverStatus, at time.Time) error {
	const op = "PresenceRepo.SetOperationalStatus"
	start := time.Now()

	query := `
		INSERT INTO driver_presence (driver_id, last_updated_at, operational_status)
		VALUES ($1, $2, $3)
		ON CONFLICT (driver_id) DO UPDATE SET
			operational_status = EXCLUDED.operational_status,
			last_updated_at = EXCLUDED.last_updated_at`

	_, err := TxorDB(ctx, r.db).Exec(ctx, query, driverID, at, status)
	metrics.RecordDatabaseQuery("presence_status", err, start)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (r *PresenceRepo) GetPresence(ctx context.Context, driverID uuid.UUID) (*models.PresenceRecord, error) {
	const op = "PresenceRepo.GetPresence"

	query := `SELECT ` + presenceColumns + ` FROM driver_presence WHERE driver_id = $1`

	rec, err := scanPresence(TxorDB(ctx, r.db).QueryRow(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrPresenceNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

// QueryActivePresence returns non-offline drivers updated at or after staleBefore, freshest first.
func (r *PresenceRepo) QueryActivePresence(ctx context.Context, staleBefore time.Time) ([]models.PresenceRecord, error) {
	const op = "PresenceRepo.QueryActivePresence"
	start := time.Now()

	query := `
		SELECT ` + presenceColumns + `
		FROM driver_presence
		WHERE operational_status <> $1 AND last_updated_at >= $2
		ORDER BY last_updated_at DESC`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, types.DriverOffline, staleBefore)
	if err != nil {
		metrics.RecordDatabaseQuery("presence_active", err, start)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.PresenceRecord
	for rows.Next() {
		rec, err := scanPresence(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	err = rows.Err()
	metrics.RecordDatabaseQuery("presence_active", err, start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func scanPresence(row pgx.Row) (models.PresenceRecord, error) {
	var (
		rec        models.PresenceRecord
		status     string
		capturedAt *time.Time
		hash       *string
	)
	err := row.Scan(
		&rec.DriverID, &rec.LastPosition.Lat, &rec.LastPosition.Lng, &rec.LastPosition.HeadingDegrees,
		&rec.LastPosition.AccuracyMeters, &rec.LastPosition.SpeedKmh, &capturedAt,
		&rec.LastUpdatedAt, &status, &hash,
	)
	if err != nil {
		return models.PresenceRecord{}, err
	}
	rec.OperationalStatus = types.DriverStatus(status)
	if capturedAt != nil {
		rec.LastPosition.CapturedAt = *capturedAt
	}
	if hash != nil {
		rec.Geohash = *hash
	}
	return rec, nil
}
