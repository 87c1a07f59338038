package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

// Options mirror the knobs of a single position request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Device produces position readings. Read blocks until a reading is available,
// opts.Timeout elapses or ctx is done.
type Device interface {
	Read(ctx context.Context, opts Options) (models.PositionSample, error)
}

/*
FeedDevice is a Device fed from outside the process: the ingest endpoint
pushes each reading a driver client reports, and readers wait for the next
one. Client-side failures (permission revoked, no fix) are forwarded with Fail.
*/
type FeedDevice struct {
	mu     sync.Mutex
	last   *models.PositionSample
	lastAt time.Time
	err    error
	next   chan struct{}
	now    func() time.Time

	// pending is set by Feed or Fail until a reader consumes it
	pending bool
}

func NewFeedDevice() *FeedDevice {
	return &FeedDevice{next: make(chan struct{}), now: time.Now}
}

// Feed publishes a new reading to every waiting reader.
func (d *FeedDevice) Feed(sample models.PositionSample) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := sample
	d.last = &s
	d.lastAt = d.now()
	d.err = nil
	d.pending = true
	close(d.next)
	d.next = make(chan struct{})
}

// Fail delivers err to every waiting reader.
func (d *FeedDevice) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.err = err
	d.pending = true
	close(d.next)
	d.next = make(chan struct{})
}

// Last returns the most recent reading and when it was fed.
func (d *FeedDevice) Last() (models.PositionSample, time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return models.PositionSample{}, time.Time{}, false
	}
	return *d.last, d.lastAt, true
}

func (d *FeedDevice) Read(ctx context.Context, opts Options) (models.PositionSample, error) {
	d.mu.Lock()
	if d.pending {
		defer d.mu.Unlock()
		return d.consume()
	}
	if opts.MaximumAge > 0 && d.last != nil && d.now().Sub(d.lastAt) <= opts.MaximumAge {
		s := *d.last
		d.mu.Unlock()
		return s, nil
	}
	wait := d.next
	d.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return models.PositionSample{}, ctx.Err()
	case <-timer.C:
		return models.PositionSample{}, types.ErrTimeout
	case <-wait:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consume()
}

func (d *FeedDevice) consume() (models.PositionSample, error) {
	d.pending = false
	if d.err != nil {
		err := d.err
		d.err = nil
		return models.PositionSample{}, err
	}
	if d.last == nil {
		return models.PositionSample{}, types.ErrPositionUnavailable
	}
	return *d.last, nil
}
