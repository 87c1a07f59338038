package presence

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/memory"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/sensor"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = logger.New(io.Discard, "test", "error")

// slowStore blocks every upsert until release is closed.
type slowStore struct {
	*memory.PresenceStore
	release chan struct{}
}

func (s *slowStore) UpsertPresence(ctx context.Context, id uuid.UUID, sample models.PositionSample, at time.Time) error {
	<-s.release
	return s.PresenceStore.UpsertPresence(ctx, id, sample, at)
}

type failingStore struct {
	*memory.PresenceStore
}

func (failingStore) UpsertPresence(context.Context, uuid.UUID, models.PositionSample, time.Time) error {
	return errors.New("connection refused")
}

type recordingStream struct {
	mu      sync.Mutex
	samples []models.PositionSample
}

func (r *recordingStream) PublishLocation(_ context.Context, _ uuid.UUID, s models.PositionSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

type idleWatcher struct{}

func (idleWatcher) Watch(context.Context, func(models.PositionSample), func(error)) func() {
	return func() {}
}

func sample(lat, lng float64) models.PositionSample {
	return models.PositionSample{Lat: lat, Lng: lng}
}

func TestShouldPersist(t *testing.T) {
	tr := NewTracker(uuid.New(), idleWatcher{}, memory.NewPresenceStore(), nil, Config{}, testLogger)
	t0 := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	base := sample(-34.6000, -58.38)
	far := sample(-34.6002, -58.38) // about 22 m

	assert.True(t, tr.ShouldPersist(base, t0))

	tr.now = func() time.Time { return t0 }
	tr.Handle(context.Background(), base)
	tr.Wait()

	tests := []struct {
		name   string
		sample models.PositionSample
		at     time.Time
		want   bool
	}{
		{"too soon and too close", base, t0.Add(time.Second), false},
		{"too soon but far", far, t0.Add(2 * time.Second), false},
		{"late but close", sample(-34.60005, -58.38), t0.Add(10 * time.Second), false},
		{"late and far", far, t0.Add(3 * time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.ShouldPersist(tt.sample, tt.at))
		})
	}

	tr.Stop()
	assert.True(t, tr.ShouldPersist(base, t0), "stop clears last-known state")
}

func TestHandleWritesThrottled(t *testing.T) {
	store := memory.NewPresenceStore()
	stream := &recordingStream{}
	driverID := uuid.New()
	tr := NewTracker(driverID, idleWatcher{}, store, stream, Config{}, testLogger)

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	ctx := context.Background()
	tr.Handle(ctx, sample(-34.6000, -58.38))
	tr.Handle(ctx, sample(-34.6005, -58.38))
	tr.Wait()
	now = now.Add(5 * time.Second)
	tr.Handle(ctx, sample(-34.6005, -58.38))
	tr.Wait()

	rec, err := store.GetPresence(ctx, driverID)
	require.NoError(t, err)
	assert.Equal(t, -34.6005, rec.LastPosition.Lat)
	assert.Equal(t, now, rec.LastUpdatedAt)
	assert.Equal(t, types.DriverAvailable, rec.OperationalStatus)

	stream.mu.Lock()
	defer stream.mu.Unlock()
	require.Len(t, stream.samples, 2)
	assert.Nil(t, stream.samples[0].HeadingDegrees)
	// the second write moved due south of the first
	require.NotNil(t, rec.LastPosition.HeadingDegrees)
	assert.InDelta(t, 180, *rec.LastPosition.HeadingDegrees, 0.01)
}

func TestSlowWriteDoesNotBlockStream(t *testing.T) {
	store := &slowStore{PresenceStore: memory.NewPresenceStore(), release: make(chan struct{})}
	tr := NewTracker(uuid.New(), idleWatcher{}, store, nil, Config{}, testLogger)

	done := make(chan struct{})
	go func() {
		tr.Handle(context.Background(), sample(-34.60, -58.38))
		tr.Handle(context.Background(), sample(-34.61, -58.38))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle blocked on a slow write")
	}
	close(store.release)
	tr.Wait()
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	tr := NewTracker(uuid.New(), idleWatcher{}, failingStore{memory.NewPresenceStore()}, nil, Config{}, testLogger)
	tr.Handle(context.Background(), sample(-34.60, -58.38))
	tr.Wait()
	assert.False(t, tr.ShouldPersist(sample(-34.60, -58.38), time.Now()))
}

func TestActiveDriversStaleness(t *testing.T) {
	store := memory.NewPresenceStore()
	svc := NewService(store, nil, Config{}, sensor.Config{}, testLogger)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	stale, fresh := uuid.New(), uuid.New()
	require.NoError(t, store.UpsertPresence(ctx, stale, sample(-34.60, -58.38), now.Add(-61*time.Second)))
	require.NoError(t, store.UpsertPresence(ctx, fresh, sample(-34.61, -58.38), now.Add(-59*time.Second)))

	active, err := svc.ActiveDrivers(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh, active[0].DriverID)
}

func TestNearby(t *testing.T) {
	store := memory.NewPresenceStore()
	svc := NewService(store, nil, Config{}, sensor.Config{}, testLogger)
	ctx := context.Background()
	now := time.Now()

	near, nearer, busy, farAway := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, store.UpsertPresence(ctx, near, sample(-34.605, -58.38), now))
	require.NoError(t, store.UpsertPresence(ctx, nearer, sample(-34.601, -58.38), now))
	require.NoError(t, store.UpsertPresence(ctx, busy, sample(-34.601, -58.38), now))
	require.NoError(t, store.SetOperationalStatus(ctx, busy, types.DriverOnTrip, now))
	require.NoError(t, store.UpsertPresence(ctx, farAway, sample(-31.42, -64.18), now))

	got, err := svc.Nearby(ctx, geo.Point{Lat: -34.60, Lng: -58.38}, 2000, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, nearer, got[0].DriverID)
	assert.Equal(t, near, got[1].DriverID)

	_, err = svc.Nearby(ctx, geo.Point{Lat: -34.60, Lng: -58.38}, 0, now)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestIngestStartsTrackingAndPersists(t *testing.T) {
	store := memory.NewPresenceStore()
	svc := NewService(store, nil, Config{}, sensor.Config{}, testLogger)
	ctx := context.Background()
	driverID := uuid.New()

	require.NoError(t, svc.Ingest(ctx, driverID, sample(-34.60, -58.38)))
	assert.True(t, svc.Tracking(driverID))

	assert.Eventually(t, func() bool {
		_, err := store.GetPresence(ctx, driverID)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, svc.Ingest(ctx, driverID, sample(100, 0)), types.ErrValidation)

	svc.StopTracking(ctx, driverID)
	svc.StopTracking(ctx, driverID)
	assert.False(t, svc.Tracking(driverID))
	assert.ErrorIs(t, svc.ReportError(ctx, driverID, types.ErrPermissionDenied), ErrNotTracking)
}

func TestPermissionDeniedEndsSession(t *testing.T) {
	svc := NewService(memory.NewPresenceStore(), nil, Config{}, sensor.Config{}, testLogger)
	ctx := context.Background()
	driverID := uuid.New()

	svc.StartTracking(ctx, driverID)
	require.NoError(t, svc.ReportError(ctx, driverID, types.ErrPermissionDenied))

	assert.Eventually(t, func() bool { return !svc.Tracking(driverID) }, time.Second, 5*time.Millisecond)
}

func TestTransientSensorErrorKeepsSession(t *testing.T) {
	store := memory.NewPresenceStore()
	svc := NewService(store, nil, Config{}, sensor.Config{}, testLogger)
	ctx := context.Background()
	driverID := uuid.New()

	require.NoError(t, svc.Ingest(ctx, driverID, sample(-34.60, -58.38)))
	require.NoError(t, svc.ReportError(ctx, driverID, types.ErrPositionUnavailable))

	assert.Never(t, func() bool { return !svc.Tracking(driverID) }, 100*time.Millisecond, 5*time.Millisecond)
	svc.StopTracking(ctx, driverID)
}

func TestUpdateOperationalStatus(t *testing.T) {
	store := memory.NewPresenceStore()
	svc := NewService(store, nil, Config{}, sensor.Config{}, testLogger)
	ctx := context.Background()
	driverID := uuid.New()

	svc.StartTracking(ctx, driverID)
	require.NoError(t, svc.UpdateOperationalStatus(ctx, driverID, types.DriverOnTrip))
	rec, err := svc.Get(ctx, driverID)
	require.NoError(t, err)
	assert.Equal(t, types.DriverOnTrip, rec.OperationalStatus)
	assert.True(t, svc.Tracking(driverID))

	require.NoError(t, svc.UpdateOperationalStatus(ctx, driverID, types.DriverOffline))
	assert.False(t, svc.Tracking(driverID))

	assert.ErrorIs(t, svc.UpdateOperationalStatus(ctx, driverID, "parked"), types.ErrValidation)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, types.ErrNotFound)
}
