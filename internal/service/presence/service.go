package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/sensor"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

var ErrNotTracking = errors.New("driver is not being tracked")

// session is one tracked driver: the feed its readings arrive on and the tracker consuming it.
type session struct {
	device  *sensor.FeedDevice
	tracker *Tracker
}

// Service keeps driver presence for the whole process. Each tracked driver
// gets its own feed device, sensor adapter and tracker.
type Service struct {
	store     Store
	stream    LocationStream
	cfg       Config
	sensorCfg sensor.Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	l logger.Logger
}

func NewService(store Store, stream LocationStream, cfg Config, sensorCfg sensor.Config, l logger.Logger) *Service {
	return &Service{
		store:     store,
		stream:    stream,
		cfg:       cfg.withDefaults(),
		sensorCfg: sensorCfg,
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*session),
		l:         l,
	}
}

// StartTracking begins consuming readings for the driver. Idempotent.
func (s *Service) StartTracking(ctx context.Context, driverID uuid.UUID) {
	s.startSession(ctx, driverID)
}

func (s *Service) startSession(ctx context.Context, driverID uuid.UUID) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[driverID]; ok {
		return sess
	}

	device := sensor.NewFeedDevice()
	adapter := sensor.NewAdapter(device, s.sensorCfg, s.l)
	tracker := NewTracker(driverID, adapter, s.store, s.stream, s.cfg, s.l)
	tracker.now = s.now
	sess := &session{device: device, tracker: tracker}
	s.sessions[driverID] = sess

	tracker.Start(ctx, func(err error) {
		if !sensor.Ends(err) {
			return
		}
		// the watch has already exited; stopping from here would wait on ourselves
		go s.endSession(driverID, sess)
	})

	s.l.Info(wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionPresenceTrack, DriverID: driverID.String()}), "tracking started")
	return sess
}

// StopTracking ends the driver's session and clears its last-known state. Idempotent.
func (s *Service) StopTracking(ctx context.Context, driverID uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[driverID]
	delete(s.sessions, driverID)
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.tracker.Stop()
	s.l.Info(wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionPresenceTrack, DriverID: driverID.String()}), "tracking stopped")
}

func (s *Service) endSession(driverID uuid.UUID, sess *session) {
	s.mu.Lock()
	if s.sessions[driverID] == sess {
		delete(s.sessions, driverID)
	}
	s.mu.Unlock()
	sess.tracker.Stop()
}

// Tracking reports whether the driver has a live session.
func (s *Service) Tracking(driverID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[driverID]
	return ok
}

// Ingest feeds one reading reported by the driver's client, starting tracking if needed.
func (s *Service) Ingest(ctx context.Context, driverID uuid.UUID, sample models.PositionSample) error {
	if err := sample.Validate(); err != nil {
		return wrap.Error(wrap.WithDriverID(ctx, driverID.String()), err)
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = s.now().UTC()
	}
	s.startSession(ctx, driverID).device.Feed(sample)
	return nil
}

// ReportError forwards a client-side sensor failure to the driver's watch.
func (s *Service) ReportError(ctx context.Context, driverID uuid.UUID, err error) error {
	s.mu.Lock()
	sess, ok := s.sessions[driverID]
	s.mu.Unlock()
	if !ok {
		return ErrNotTracking
	}
	s.l.Warn(wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionSensorWatch, DriverID: driverID.String()}), "client reported sensor error", "error", err)
	sess.device.Fail(err)
	return nil
}

// UpdateOperationalStatus writes the driver's status. Going offline also stops tracking.
func (s *Service) UpdateOperationalStatus(ctx context.Context, driverID uuid.UUID, status types.DriverStatus) error {
	const op = "Service.UpdateOperationalStatus"
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionPresenceStatus, DriverID: driverID.String()})

	if !status.Valid() {
		v := types.NewValidationError()
		v.Check(false, "status", "must be one of offline, available, onTrip")
		return wrap.Error(ctx, v)
	}

	if err := s.store.SetOperationalStatus(ctx, driverID, status, s.now().UTC()); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if status == types.DriverOffline {
		s.StopTracking(ctx, driverID)
	}

	s.l.Info(ctx, "operational status updated", "status", status)
	return nil
}

// Get returns the stored presence of a driver.
func (s *Service) Get(ctx context.Context, driverID uuid.UUID) (*models.PresenceRecord, error) {
	rec, err := s.store.GetPresence(ctx, driverID)
	if err != nil {
		return nil, wrap.Error(wrap.WithDriverID(ctx, driverID.String()), err)
	}
	return rec, nil
}

// ActiveDrivers returns drivers that reported within the staleness window before now.
func (s *Service) ActiveDrivers(ctx context.Context, now time.Time) ([]models.PresenceRecord, error) {
	const op = "Service.ActiveDrivers"
	recs, err := s.store.QueryActivePresence(ctx, now.Add(-s.cfg.Staleness))
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return recs, nil
}

// Nearby returns available, fresh drivers within radius meters of center, closest first.
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusMeters float64, now time.Time) ([]models.PresenceRecord, error) {
	const op = "Service.Nearby"

	v := types.NewValidationError()
	v.Check(center.Valid(), "center", "lat/lng out of range")
	v.Check(radiusMeters > 0, "radius", "must be positive")
	if err := v.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	staleBefore := now.Add(-s.cfg.Staleness)

	var (
		recs []models.PresenceRecord
		err  error
	)
	if finder, ok := s.store.(NearbyFinder); ok {
		recs, err = finder.Nearby(ctx, center, radiusMeters, staleBefore)
	} else {
		recs, err = s.store.QueryActivePresence(ctx, staleBefore)
	}
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	out := recs[:0]
	for _, rec := range recs {
		if rec.OperationalStatus != types.DriverAvailable || !rec.Active(staleBefore) {
			continue
		}
		if !geo.WithinRadius(center, rec.LastPosition.Geo(), radiusMeters) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return geo.HaversineMeters(center, out[i].LastPosition.Geo()) < geo.HaversineMeters(center, out[j].LastPosition.Geo())
	})
	return out, nil
}

// Close stops every session.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.StopTracking(ctx, id)
	}
}

// Wait blocks until background presence writes of live sessions finish.
func (s *Service) Wait() {
	s.mu.Lock()
	trackers := make([]*Tracker, 0, len(s.sessions))
	for _, sess := range s.sessions {
		trackers = append(trackers, sess.tracker)
	}
	s.mu.Unlock()

	for _, t := range trackers {
		t.Wait()
	}
}
