package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/retry"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	Options    Options
	RetryBase  time.Duration // delay before restart n is RetryBase × n
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.Options.Timeout <= 0 {
		c.Options.Timeout = defaultTimeout
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// Adapter turns a Device into single reads and a continuous watch.
// Only one watch is active at a time.
type Adapter struct {
	device  Device
	cfg     Config
	backoff retry.Backoff
	sleep   func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	stopWatch context.CancelFunc
	watchDone chan struct{}

	l logger.Logger
}

func NewAdapter(device Device, cfg Config, l logger.Logger) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		device:  device,
		cfg:     cfg,
		backoff: retry.Linear(cfg.RetryBase),
		sleep:   sleep,
		l:       l,
	}
}

// GetCurrentPosition performs a single read. Errors are one of
// ErrPermissionDenied, ErrPositionUnavailable or ErrTimeout.
func (a *Adapter) GetCurrentPosition(ctx context.Context, opts Options) (models.PositionSample, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = a.cfg.Options.Timeout
	}
	sample, err := a.device.Read(ctx, opts)
	if err != nil {
		return models.PositionSample{}, classify(ctx, err)
	}
	if err := sample.Validate(); err != nil {
		return models.PositionSample{}, fmt.Errorf("%w: %w", types.ErrPositionUnavailable, err)
	}
	return sample, nil
}

// Watch streams readings to onPosition until stop is called or ctx ends.
// Timeouts restart the read after RetryBase × attempt, at most MaxRetries
// times in a row; a successful reading resets the count. Exhausted retries
// and permission denial end the watch after onError. Other errors are
// reported and the watch continues. MaximumAge only applies to the first
// read; later reads wait for a fresh reading.
func (a *Adapter) Watch(ctx context.Context, onPosition func(models.PositionSample), onError func(error)) (stop func()) {
	a.stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.stopWatch = cancel
	a.watchDone = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		a.watch(ctx, onPosition, onError)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Stop ends the active watch, if any, and waits for it to exit.
func (a *Adapter) Stop() {
	a.stop()
}

func (a *Adapter) stop() {
	a.mu.Lock()
	cancel, done := a.stopWatch, a.watchDone
	a.stopWatch, a.watchDone = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (a *Adapter) watch(ctx context.Context, onPosition func(models.PositionSample), onError func(error)) {
	ctx = wrap.WithAction(ctx, types.ActionSensorWatch)
	opts := a.cfg.Options
	attempt := 0

	for {
		sample, err := a.GetCurrentPosition(ctx, opts)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			attempt = 0
			opts.MaximumAge = 0
			onPosition(sample)
			continue

		case errors.Is(err, types.ErrTimeout):
			attempt++
			if attempt > a.cfg.MaxRetries {
				a.l.Warn(ctx, "position watch gave up", "attempts", a.cfg.MaxRetries)
				if onError != nil {
					onError(err)
				}
				return
			}
			metrics.SensorRetriesTotal.Inc()
			a.l.Debug(ctx, "position timeout, restarting watch", "attempt", attempt)
			if a.sleep(ctx, a.backoff(attempt)) != nil {
				return
			}

		case errors.Is(err, types.ErrPermissionDenied):
			if onError != nil {
				onError(err)
			}
			return

		default:
			if onError != nil {
				onError(err)
			}
			if a.sleep(ctx, a.cfg.RetryBase) != nil {
				return
			}
		}
	}
}

// Ends reports whether a watch stops after reporting err. Timeouts only reach
// onError once retries are exhausted.
func Ends(err error) bool {
	return errors.Is(err, types.ErrPermissionDenied) || errors.Is(err, types.ErrTimeout)
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, types.ErrPermissionDenied),
		errors.Is(err, types.ErrPositionUnavailable),
		errors.Is(err, types.ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return types.ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", types.ErrPositionUnavailable, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
