package sensor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	sample models.PositionSample
	err    error
}

// scriptedDevice plays back steps, then blocks until ctx ends.
type scriptedDevice struct {
	mu    sync.Mutex
	steps []step
}

func (d *scriptedDevice) Read(ctx context.Context, _ Options) (models.PositionSample, error) {
	d.mu.Lock()
	if len(d.steps) > 0 {
		s := d.steps[0]
		d.steps = d.steps[1:]
		d.mu.Unlock()
		return s.sample, s.err
	}
	d.mu.Unlock()
	<-ctx.Done()
	return models.PositionSample{}, ctx.Err()
}

func at(lat float64) step {
	return step{sample: models.PositionSample{Lat: lat, Lng: -58.38}}
}

func fail(err error) step { return step{err: err} }

type recorder struct {
	mu      sync.Mutex
	samples []models.PositionSample
	errs    []error
	delays  []time.Duration
}

func (r *recorder) onPosition(s models.PositionSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func newAdapter(d Device, r *recorder) *Adapter {
	a := NewAdapter(d, Config{}, logger.New(io.Discard, "test", "error"))
	a.sleep = r.sleep
	return a
}

func TestWatchResetsRetryCounterAfterSuccess(t *testing.T) {
	dev := &scriptedDevice{steps: []step{
		fail(types.ErrTimeout),
		fail(types.ErrTimeout),
		at(-34.60),
		fail(types.ErrTimeout),
		at(-34.61),
	}}
	r := &recorder{}
	a := newAdapter(dev, r)

	stop := a.Watch(context.Background(), r.onPosition, r.onError)
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.samples) == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 2 * time.Second}, r.delays)
	assert.Empty(t, r.errs)
}

func TestWatchGivesUpAfterMaxRetries(t *testing.T) {
	dev := &scriptedDevice{steps: []step{
		fail(types.ErrTimeout),
		fail(types.ErrTimeout),
		fail(types.ErrTimeout),
		fail(types.ErrTimeout),
		at(-34.60),
	}}
	r := &recorder{}
	a := newAdapter(dev, r)

	stop := a.Watch(context.Background(), r.onPosition, r.onError)
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.errs) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ErrorIs(t, r.errs[0], types.ErrTimeout)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, r.delays)
	assert.Empty(t, r.samples)
}

func TestWatchStopsOnPermissionDenied(t *testing.T) {
	dev := &scriptedDevice{steps: []step{
		at(-34.60),
		fail(types.ErrPermissionDenied),
		at(-34.61),
	}}
	r := &recorder{}
	a := newAdapter(dev, r)

	stop := a.Watch(context.Background(), r.onPosition, r.onError)
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.errs) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ErrorIs(t, r.errs[0], types.ErrPermissionDenied)
	assert.Len(t, r.samples, 1)
}

func TestWatchSurfacesUnavailableAndContinues(t *testing.T) {
	dev := &scriptedDevice{steps: []step{
		fail(errors.New("no satellites")),
		at(-34.60),
	}}
	r := &recorder{}
	a := newAdapter(dev, r)

	stop := a.Watch(context.Background(), r.onPosition, r.onError)
	defer stop()
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.samples) == 1
	}, time.Second, 5*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.errs, 1)
	assert.ErrorIs(t, r.errs[0], types.ErrPositionUnavailable)
}

func TestSingleActiveWatch(t *testing.T) {
	a := newAdapter(&scriptedDevice{}, &recorder{})

	firstStopped := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Watch(ctx, func(models.PositionSample) {}, nil)
	a.mu.Lock()
	firstDone := a.watchDone
	a.mu.Unlock()
	go func() {
		<-firstDone
		close(firstStopped)
	}()

	stop := a.Watch(ctx, func(models.PositionSample) {}, nil)
	select {
	case <-firstStopped:
	case <-time.After(time.Second):
		t.Fatal("first watch still running")
	}
	stop()
	stop()
}

func TestGetCurrentPosition(t *testing.T) {
	dev := NewFeedDevice()
	a := NewAdapter(dev, Config{}, logger.New(io.Discard, "test", "error"))
	ctx := context.Background()

	_, err := a.GetCurrentPosition(ctx, Options{Timeout: 10 * time.Millisecond})
	require.ErrorIs(t, err, types.ErrTimeout)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.Feed(models.PositionSample{Lat: -34.60, Lng: -58.38})
	}()
	got, err := a.GetCurrentPosition(ctx, Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, -34.60, got.Lat)

	cached, err := a.GetCurrentPosition(ctx, Options{Timeout: 10 * time.Millisecond, MaximumAge: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, got, cached)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.Fail(types.ErrPermissionDenied)
	}()
	_, err = a.GetCurrentPosition(ctx, Options{Timeout: time.Second})
	require.ErrorIs(t, err, types.ErrPermissionDenied)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.Feed(models.PositionSample{Lat: 120, Lng: 0})
	}()
	_, err = a.GetCurrentPosition(ctx, Options{Timeout: time.Second})
	assert.ErrorIs(t, err, types.ErrPositionUnavailable)
}

func TestWatchDeliversCachedReadingOnce(t *testing.T) {
	dev := NewFeedDevice()
	dev.Feed(models.PositionSample{Lat: -34.60, Lng: -58.38})
	// drain the pending flag so the first watch read comes from the cache
	_, err := dev.Read(context.Background(), Options{Timeout: time.Millisecond})
	require.NoError(t, err)

	a := NewAdapter(dev, Config{Options: Options{Timeout: time.Second, MaximumAge: time.Minute}}, logger.New(io.Discard, "test", "error"))
	r := &recorder{}
	stop := a.Watch(context.Background(), r.onPosition, r.onError)

	time.Sleep(50 * time.Millisecond)
	r.mu.Lock()
	assert.Len(t, r.samples, 1)
	r.mu.Unlock()

	dev.Feed(models.PositionSample{Lat: -34.61, Lng: -58.38})
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.samples) == 2
	}, time.Second, 5*time.Millisecond)

	stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.samples, 2)
	assert.Empty(t, r.errs)
}

func TestEnds(t *testing.T) {
	assert.True(t, Ends(types.ErrPermissionDenied))
	assert.True(t, Ends(types.ErrTimeout))
	assert.False(t, Ends(types.ErrPositionUnavailable))
	assert.False(t, Ends(errors.New("no satellites")))
}
