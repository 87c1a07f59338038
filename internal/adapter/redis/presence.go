package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	goredis "github.com/redis/go-redis/v9"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

const (
	activeKey = "presence:active"
	geoKey    = "presence:geo"

	geohashPrecision = 7

	fieldLat        = "lat"
	fieldLng        = "lng"
	fieldHeading    = "heading"
	fieldAccuracy   = "accuracy_m"
	fieldSpeed      = "speed_kmh"
	fieldCapturedAt = "captured_at"
	fieldUpdatedAt  = "last_updated_at"
	fieldStatus     = "status"
	fieldGeohash    = "geohash"
)

func presenceKey(driverID uuid.UUID) string {
	return "presence:" + driverID.String()
}

/*
PresenceStore keeps presence in Redis:
  - presence:<driver_id>  hash with the last sample and status
  - presence:active       sorted set of driver ids scored by last update (unix ms)
  - presence:geo          geo set of the last known positions of non-offline drivers
*/
type PresenceStore struct {
	client *goredis.Client
}

func NewPresenceStore(client *goredis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func (s *PresenceStore) UpsertPresence(ctx context.Context, driverID uuid.UUID, sample models.PositionSample, at time.Time) error {
	const op = "PresenceStore.UpsertPresence"
	start := time.Now()

	key := presenceKey(driverID)
	fields := map[string]any{
		fieldLat:        strconv.FormatFloat(sample.Lat, 'f', -1, 64),
		fieldLng:        strconv.FormatFloat(sample.Lng, 'f', -1, 64),
		fieldAccuracy:   strconv.FormatFloat(sample.AccuracyMeters, 'f', -1, 64),
		fieldSpeed:      strconv.FormatFloat(sample.SpeedKmh, 'f', -1, 64),
		fieldCapturedAt: sample.CapturedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:  at.UnixMilli(),
		fieldGeohash:    geohash.EncodeWithPrecision(sample.Lat, sample.Lng, geohashPrecision),
	}

	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSetNX(ctx, key, fieldStatus, string(types.DriverAvailable))
		p.HSet(ctx, key, fields)
		if sample.HeadingDegrees != nil {
			p.HSet(ctx, key, fieldHeading, strconv.FormatFloat(*sample.HeadingDegrees, 'f', -1, 64))
		} else {
			p.HDel(ctx, key, fieldHeading)
		}
		p.ZAdd(ctx, activeKey, goredis.Z{Score: float64(at.UnixMilli()), Member: driverID.String()})
		p.GeoAdd(ctx, geoKey, &goredis.GeoLocation{Name: driverID.String(), Longitude: sample.Lng, Latitude: sample.Lat})
		return nil
	})
	metrics.RecordDatabaseQuery("redis_presence_upsert", err, start)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// SetOperationalStatus updates the status. Offline drivers leave the active and geo sets.
func (s *PresenceStore) SetOperationalStatus(ctx context.Context, driverID uuid.UUID, status types.DriverStatus, at time.Time) error {
	const op = "PresenceStore.SetOperationalStatus"
	start := time.Now()

	key := presenceKey(driverID)
	member := driverID.String()

	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, fieldStatus, string(status), fieldUpdatedAt, at.UnixMilli())
		if status == types.DriverOffline {
			p.ZRem(ctx, activeKey, member)
			p.ZRem(ctx, geoKey, member)
			return nil
		}
		p.ZAdd(ctx, activeKey, goredis.Z{Score: float64(at.UnixMilli()), Member: member})
		return nil
	})
	metrics.RecordDatabaseQuery("redis_presence_status", err, start)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (s *PresenceStore) GetPresence(ctx context.Context, driverID uuid.UUID) (*models.PresenceRecord, error) {
	const op = "PresenceStore.GetPresence"

	vals, err := s.client.HGetAll(ctx, presenceKey(driverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(vals) == 0 {
		return nil, types.ErrPresenceNotFound
	}

	rec, err := decodePresence(driverID, vals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

// QueryActivePresence returns non-offline drivers updated at or after staleBefore, freshest first.
func (s *PresenceStore) QueryActivePresence(ctx context.Context, staleBefore time.Time) ([]models.PresenceRecord, error) {
	const op = "PresenceStore.QueryActivePresence"
	start := time.Now()

	ids, err := s.client.ZRevRangeByScore(ctx, activeKey, &goredis.ZRangeBy{
		Min: strconv.FormatInt(staleBefore.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		metrics.RecordDatabaseQuery("redis_presence_active", err, start)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	recs, err := s.load(ctx, ids)
	metrics.RecordDatabaseQuery("redis_presence_active", err, start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := recs[:0]
	for _, rec := range recs {
		if rec.OperationalStatus != types.DriverOffline && rec.Active(staleBefore) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Nearby returns fresh, non-offline drivers within radiusMeters of center, closest first.
func (s *PresenceStore) Nearby(ctx context.Context, center geo.Point, radiusMeters float64, staleBefore time.Time) ([]models.PresenceRecord, error) {
	const op = "PresenceStore.Nearby"

	hits, err := s.client.GeoRadius(ctx, geoKey, center.Lng, center.Lat, &goredis.GeoRadiusQuery{
		Radius: radiusMeters,
		Unit:   "m",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Name)
	}
	recs, err := s.load(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := recs[:0]
	for _, rec := range recs {
		if rec.OperationalStatus != types.DriverOffline && rec.Active(staleBefore) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// load fetches the hashes of ids in order, skipping ids whose hash is gone.
func (s *PresenceStore) load(ctx context.Context, ids []string) ([]models.PresenceRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, "presence:"+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.PresenceRecord, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		driverID, err := uuid.Parse(ids[i])
		if err != nil {
			continue
		}
		rec, err := decodePresence(driverID, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodePresence(driverID uuid.UUID, vals map[string]string) (models.PresenceRecord, error) {
	rec := models.PresenceRecord{
		DriverID:          driverID,
		OperationalStatus: types.DriverStatus(vals[fieldStatus]),
		Geohash:           vals[fieldGeohash],
	}

	var errs []error
	parse := func(field string, dst *float64) {
		if v, ok := vals[field]; ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %s: %w", field, err))
				return
			}
			*dst = f
		}
	}
	parse(fieldLat, &rec.LastPosition.Lat)
	parse(fieldLng, &rec.LastPosition.Lng)
	parse(fieldAccuracy, &rec.LastPosition.AccuracyMeters)
	parse(fieldSpeed, &rec.LastPosition.SpeedKmh)
	if _, ok := vals[fieldHeading]; ok {
		var h float64
		parse(fieldHeading, &h)
		rec.LastPosition.HeadingDegrees = &h
	}

	if v := vals[fieldCapturedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", fieldCapturedAt, err))
		}
		rec.LastPosition.CapturedAt = t
	}
	if v := vals[fieldUpdatedAt]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", fieldUpdatedAt, err))
		}
		rec.LastUpdatedAt = time.UnixMilli(ms)
	}
	return rec, errors.Join(errs...)
}
