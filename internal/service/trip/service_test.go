package trip

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/memory"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannels struct {
	mu     sync.Mutex
	opened []uuid.UUID
	closed []uuid.UUID
	fail   int32
}

func (f *fakeChannels) OpenTrip(_ context.Context, id uuid.UUID) error {
	if atomic.AddInt32(&f.fail, -1) >= 0 {
		return errors.New("broker unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, id)
	return nil
}

func (f *fakeChannels) CloseTrip(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	status []models.TripStatusEvent
	stops  []models.StopAppendedEvent
}

func (f *fakePublisher) PublishStatus(_ context.Context, evt models.TripStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, evt)
	return nil
}

func (f *fakePublisher) PublishStopAppended(_ context.Context, evt models.StopAppendedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, evt)
	return nil
}

type failingNotifier struct{ calls atomic.Int32 }

func (f *failingNotifier) Notify(context.Context, uuid.UUID, models.Notification) error {
	f.calls.Add(1)
	return errors.New("push gateway down")
}

type env struct {
	svc       *Service
	store     *memory.TripStore
	presence  *memory.PresenceStore
	channels  *fakeChannels
	publisher *fakePublisher
	notifier  *failingNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:     memory.NewTripStore(),
		presence:  memory.NewPresenceStore(),
		channels:  &fakeChannels{},
		publisher: &fakePublisher{},
		notifier:  &failingNotifier{},
	}
	e.svc = New(Deps{
		Repo:      e.store,
		Presence:  e.presence,
		Channels:  e.channels,
		Publisher: e.publisher,
		Notifier:  e.notifier,
	}, Config{EffectAttempts: 2, EffectBackoff: time.Millisecond, EffectMaxDelay: time.Millisecond}, logger.New(io.Discard, "test", "error"))
	return e
}

func (e *env) driver(t *testing.T) models.Actor {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.presence.UpsertPresence(context.Background(), id, models.PositionSample{Lat: -34.60, Lng: -58.38}, time.Now()))
	return models.Actor{ID: id, Role: types.RoleDriver}
}

func immediateRequest(rider uuid.UUID) models.CreateTripRequest {
	return models.CreateTripRequest{
		Kind:        types.KindImmediate,
		RiderID:     rider,
		Origin:      &models.Point{Lat: -34.60, Lng: -58.38},
		Destination: &models.Point{Lat: -34.61, Lng: -58.40},
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rider := uuid.New()

	trip, err := e.svc.Create(ctx, immediateRequest(rider))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSearching, trip.Status)
	assert.Nil(t, trip.DriverID)
	assert.Equal(t, int64(1), trip.Version)

	scheduled := immediateRequest(rider)
	scheduled.Kind = types.KindScheduled
	scheduled.Details = models.ScheduledDetails{ScheduledFor: time.Now().Add(2 * time.Hour)}
	trip, err = e.svc.Create(ctx, scheduled)
	require.NoError(t, err)
	assert.Equal(t, types.StatusScheduled, trip.Status)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := immediateRequest(uuid.New())
	req.Destination = nil
	_, err := e.svc.Create(ctx, req)
	require.ErrorIs(t, err, types.ErrValidation)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "destination")

	req = immediateRequest(uuid.New())
	req.Origin = &models.Point{Lat: 91, Lng: 0}
	_, err = e.svc.Create(ctx, req)
	assert.ErrorIs(t, err, types.ErrValidation)

	req = immediateRequest(uuid.New())
	req.Kind = types.KindHourly
	_, err = e.svc.Create(ctx, req)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestAssignThenSecondDriverConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)

	d := e.driver(t)
	assigned, err := e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, d, models.TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, assigned.Status)
	require.NotNil(t, assigned.DriverID)
	assert.Equal(t, d.ID, *assigned.DriverID)
	require.NotNil(t, assigned.AssignedAt)

	other := e.driver(t)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, other, models.TransitionExtra{})
	require.ErrorIs(t, err, types.ErrConflict)

	e.svc.Wait()
	e.channels.mu.Lock()
	assert.Equal(t, []uuid.UUID{trip.ID}, e.channels.opened)
	e.channels.mu.Unlock()
}

func TestLateAcceptAfterTripMovedOnConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)

	winner := e.driver(t)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, winner, models.TransitionExtra{})
	require.NoError(t, err)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusArriving, winner, models.TransitionExtra{})
	require.NoError(t, err)

	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, e.driver(t), models.TransitionExtra{})
	require.ErrorIs(t, err, types.ErrConflict)
	assert.NotErrorIs(t, err, types.ErrInvalidTransition)

	stored, err := e.svc.Get(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusArriving, stored.Status)
	assert.Equal(t, winner.ID, *stored.DriverID)
}

func TestConcurrentAssignOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)

	const n = 16
	drivers := make([]models.Actor, n)
	for i := range drivers {
		drivers[i] = e.driver(t)
	}

	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for _, d := range drivers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, d, models.TransitionExtra{})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, types.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())

	stored, err := e.svc.Get(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)
	d := e.driver(t)

	for _, target := range []types.TripStatus{
		types.StatusAssigned, types.StatusArriving, types.StatusArrived, types.StatusInProgress,
	} {
		trip, err = e.svc.RequestTransition(ctx, trip.ID, target, d, models.TransitionExtra{})
		require.NoError(t, err, target)
		assert.Equal(t, target, trip.Status)
	}

	fare := 1830.5
	trip, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusCompleted, d, models.TransitionExtra{FareFinal: &fare})
	require.NoError(t, err)
	require.NotNil(t, trip.FareFinal)
	assert.Equal(t, fare, *trip.FareFinal)

	assert.False(t, trip.AssignedAt.After(*trip.ArrivedAt))
	assert.False(t, trip.ArrivedAt.After(*trip.StartedAt))
	assert.False(t, trip.StartedAt.After(*trip.CompletedAt))

	e.svc.Wait()
	assert.Equal(t, []uuid.UUID{trip.ID}, e.channels.closed)
	// created + five transitions
	assert.Len(t, e.publisher.status, 6)
	assert.Len(t, e.store.Events(trip.ID), 6)
	assert.Positive(t, e.notifier.calls.Load())
}

func TestInvalidTransitionsLeaveTripUnchanged(t *testing.T) {
	ctx := context.Background()

	for _, target := range []types.TripStatus{
		types.StatusArriving, types.StatusArrived, types.StatusInProgress, types.StatusCompleted, types.StatusScheduled,
	} {
		t.Run(string(target), func(t *testing.T) {
			e := newEnv(t)
			trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
			require.NoError(t, err)

			_, err = e.svc.RequestTransition(ctx, trip.ID, target, e.driver(t), models.TransitionExtra{})
			require.ErrorIs(t, err, types.ErrInvalidTransition)

			var terr *types.InvalidTransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, types.StatusSearching, terr.From)
			assert.Equal(t, target, terr.To)

			stored, err := e.svc.Get(ctx, trip.ID)
			require.NoError(t, err)
			assert.Equal(t, types.StatusSearching, stored.Status)
			assert.Equal(t, int64(1), stored.Version)
		})
	}
}

func TestRoleAndParticipantChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rider := models.Actor{ID: uuid.New(), Role: types.RoleRider}

	trip, err := e.svc.Create(ctx, immediateRequest(rider.ID))
	require.NoError(t, err)

	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, rider, models.TransitionExtra{})
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	d := e.driver(t)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, d, models.TransitionExtra{})
	require.NoError(t, err)

	stranger := e.driver(t)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusArriving, stranger, models.TransitionExtra{})
	require.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestAssignRequiresAvailableDriver(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)

	unknown := models.Actor{ID: uuid.New(), Role: types.RoleDriver}
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, unknown, models.TransitionExtra{})
	require.ErrorIs(t, err, types.ErrDriverNotFree)

	busy := e.driver(t)
	require.NoError(t, e.presence.SetOperationalStatus(ctx, busy.ID, types.DriverOnTrip, time.Now()))
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, busy, models.TransitionExtra{})
	require.ErrorIs(t, err, types.ErrDriverNotFree)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.RequestTransition(context.Background(), uuid.New(), types.StatusAssigned, e.driver(t), models.TransitionExtra{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rider := models.Actor{ID: uuid.New(), Role: types.RoleRider}

	trip, err := e.svc.Create(ctx, immediateRequest(rider.ID))
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, trip.ID, rider, "  ")
	require.ErrorIs(t, err, types.ErrValidation)

	cancelled, err := e.svc.Cancel(ctx, trip.ID, rider, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, rider.ID, *cancelled.CancelledBy)

	again, err := e.svc.Cancel(ctx, trip.ID, rider, "second try")
	require.NoError(t, err)
	assert.Equal(t, cancelled.Version, again.Version)
	assert.Equal(t, "changed my mind", again.CancellationReason)

	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, e.driver(t), models.TransitionExtra{})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	e.svc.Wait()
	assert.Equal(t, []uuid.UUID{trip.ID}, e.channels.closed)
}

func TestCancelCompletedTripFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)
	d := e.driver(t)
	for _, target := range []types.TripStatus{
		types.StatusAssigned, types.StatusArriving, types.StatusArrived, types.StatusInProgress, types.StatusCompleted,
	} {
		_, err = e.svc.RequestTransition(ctx, trip.ID, target, d, models.TransitionExtra{})
		require.NoError(t, err)
	}

	operator := models.Actor{ID: uuid.New(), Role: types.RoleOperator}
	_, err = e.svc.Cancel(ctx, trip.ID, operator, "late")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestCancelThroughRequestTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)
	d := e.driver(t)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, d, models.TransitionExtra{})
	require.NoError(t, err)

	got, err := e.svc.RequestTransition(ctx, trip.ID, types.StatusCancelled, d, models.TransitionExtra{Reason: "vehicle issue"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, got.Status)
}

func TestAppendStop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rider := models.Actor{ID: uuid.New(), Role: types.RoleRider}
	stop := models.Point{Lat: -34.605, Lng: -58.39, Address: "Corrientes 1234"}

	trip, err := e.svc.Create(ctx, immediateRequest(rider.ID))
	require.NoError(t, err)

	_, err = e.svc.AppendStop(ctx, trip.ID, rider, stop)
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	d := e.driver(t)
	for _, target := range []types.TripStatus{types.StatusAssigned, types.StatusArriving, types.StatusArrived} {
		_, err = e.svc.RequestTransition(ctx, trip.ID, target, d, models.TransitionExtra{})
		require.NoError(t, err)
	}

	updated, err := e.svc.AppendStop(ctx, trip.ID, rider, stop)
	require.NoError(t, err)
	assert.Equal(t, types.StatusArrived, updated.Status)
	assert.Equal(t, []models.Point{stop}, updated.Stops)

	_, err = e.svc.AppendStop(ctx, trip.ID, rider, models.Point{Lat: 200})
	require.ErrorIs(t, err, types.ErrValidation)

	e.svc.Wait()
	require.Len(t, e.publisher.stops, 1)
	assert.Equal(t, stop, e.publisher.stops[0].Stop)
}

func TestFindActiveForUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rider := uuid.New()

	got, err := e.svc.FindActiveForUser(ctx, rider, types.RoleRider)
	require.NoError(t, err)
	assert.Nil(t, got)

	trip, err := e.svc.Create(ctx, immediateRequest(rider))
	require.NoError(t, err)

	got, err = e.svc.FindActiveForUser(ctx, rider, types.RoleRider)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, trip.ID, got.ID)

	_, err = e.svc.FindActiveForUser(ctx, rider, types.RoleOperator)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSideEffectFailureDoesNotFailTransition(t *testing.T) {
	e := newEnv(t)
	e.channels.fail = 5
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)

	got, err := e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, e.driver(t), models.TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, got.Status)

	e.svc.Wait()
	assert.Empty(t, e.channels.opened)
}

func TestSideEffectRetried(t *testing.T) {
	e := newEnv(t)
	e.channels.fail = 1
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, e.driver(t), models.TransitionExtra{})
	require.NoError(t, err)

	e.svc.Wait()
	assert.Equal(t, []uuid.UUID{trip.ID}, e.channels.opened)
}

func TestSubscribe(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rider := models.Actor{ID: uuid.New(), Role: types.RoleRider}

	trip, err := e.svc.Create(ctx, immediateRequest(rider.ID))
	require.NoError(t, err)

	updates, cancel := e.svc.Subscribe(trip.ID)
	defer cancel()

	first := <-updates
	assert.Equal(t, types.StatusSearching, first.Status)

	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, e.driver(t), models.TransitionExtra{})
	require.NoError(t, err)
	second := <-updates
	assert.Equal(t, types.StatusAssigned, second.Status)

	_, err = e.svc.Cancel(ctx, trip.ID, rider, "no longer needed")
	require.NoError(t, err)
	last := <-updates
	assert.Equal(t, types.StatusCancelled, last.Status)

	_, open := <-updates
	assert.False(t, open)

	_, cached := e.svc.Cached(trip.ID)
	assert.False(t, cached)
}

func TestEntryTimeIsMonotonic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	trip, err := e.svc.Create(ctx, immediateRequest(uuid.New()))
	require.NoError(t, err)
	d := e.driver(t)
	_, err = e.svc.RequestTransition(ctx, trip.ID, types.StatusAssigned, d, models.TransitionExtra{})
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	e.svc.now = func() time.Time { return past }

	got, err := e.svc.RequestTransition(ctx, trip.ID, types.StatusArriving, d, models.TransitionExtra{})
	require.NoError(t, err)
	got, err = e.svc.RequestTransition(ctx, got.ID, types.StatusArrived, d, models.TransitionExtra{})
	require.NoError(t, err)
	assert.False(t, got.ArrivedAt.Before(*got.AssignedAt))
}
