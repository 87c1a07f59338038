package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/sensor"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

// Watcher is the continuous position source a tracker consumes.
type Watcher interface {
	Watch(ctx context.Context, onPosition func(models.PositionSample), onError func(error)) (stop func())
}

var _ Watcher = (*sensor.Adapter)(nil)

type Config struct {
	MinInterval     time.Duration
	MinDisplacement float64 // meters
	Staleness       time.Duration
	WriteTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = 3 * time.Second
	}
	if c.MinDisplacement <= 0 {
		c.MinDisplacement = 10
	}
	if c.Staleness <= 0 {
		c.Staleness = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

type persisted struct {
	sample models.PositionSample
	at     time.Time
}

/*
Tracker turns the reading stream of one driver into throttled presence
writes. Writes run on their own goroutine so a slow store never holds up
the stream.
*/
type Tracker struct {
	driverID uuid.UUID
	source   Watcher
	store    Store
	stream   LocationStream
	cfg      Config
	now      func() time.Time

	mu   sync.Mutex
	last *persisted
	stop func()

	writes sync.WaitGroup
	l      logger.Logger
}

func NewTracker(driverID uuid.UUID, source Watcher, store Store, stream LocationStream, cfg Config, l logger.Logger) *Tracker {
	return &Tracker{
		driverID: driverID,
		source:   source,
		store:    store,
		stream:   stream,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		l:        l,
	}
}

// Start begins watching. onError receives every error the watch reports,
// including the one that ends it.
func (t *Tracker) Start(ctx context.Context, onError func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}

	ctx = wrap.WithLogCtx(context.WithoutCancel(ctx), wrap.LogCtx{
		Action:   types.ActionPresenceTrack,
		DriverID: t.driverID.String(),
	})
	t.stop = t.source.Watch(ctx, func(s models.PositionSample) { t.Handle(ctx, s) }, func(err error) {
		t.l.Warn(ctx, "position watch error", "error", err)
		if onError != nil {
			onError(err)
		}
	})
}

// Stop cancels the watch and forgets the last persisted sample. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.last = nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// ShouldPersist is true with no prior sample, or when both the minimum
// interval and the minimum displacement have passed since the last write.
func (t *Tracker) ShouldPersist(sample models.PositionSample, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldPersist(sample, now)
}

func (t *Tracker) shouldPersist(sample models.PositionSample, now time.Time) bool {
	if t.last == nil {
		return true
	}
	if now.Sub(t.last.at) < t.cfg.MinInterval {
		return false
	}
	return geo.HaversineMeters(t.last.sample.Geo(), sample.Geo()) >= t.cfg.MinDisplacement
}

// Handle evaluates one reading and, if it passes, writes it in the background.
// A passing sample without a heading takes the bearing from the last persisted one.
func (t *Tracker) Handle(ctx context.Context, sample models.PositionSample) {
	now := t.now()

	t.mu.Lock()
	if !t.shouldPersist(sample, now) {
		t.mu.Unlock()
		metrics.PresenceWritesTotal.WithLabelValues("skipped").Inc()
		return
	}
	if sample.HeadingDegrees == nil && t.last != nil {
		heading := geo.BearingDegrees(t.last.sample.Geo(), sample.Geo())
		sample.HeadingDegrees = &heading
	}
	t.last = &persisted{sample: sample, at: now}
	t.mu.Unlock()

	t.writes.Add(1)
	go func() {
		defer t.writes.Done()
		t.write(wrap.WithAction(ctx, types.ActionPresenceWrite), sample, now)
	}()
}

func (t *Tracker) write(ctx context.Context, sample models.PositionSample, at time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.WriteTimeout)
	defer cancel()

	if err := t.store.UpsertPresence(ctx, t.driverID, sample, at); err != nil {
		metrics.PresenceWritesTotal.WithLabelValues("failed").Inc()
		t.l.Error(ctx, "failed to persist presence", err)
		return
	}
	metrics.PresenceWritesTotal.WithLabelValues("stored").Inc()

	if t.stream == nil {
		return
	}
	if err := t.stream.PublishLocation(ctx, t.driverID, sample); err != nil {
		t.l.Warn(ctx, "failed to stream location", "error", err)
	}
}

// Wait blocks until background writes finish.
func (t *Tracker) Wait() {
	t.writes.Wait()
}
