package trip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/retry"
)

// Config tunes the best-effort side effects that follow a stored transition.
type Config struct {
	EffectAttempts int
	EffectBackoff  time.Duration
	EffectMaxDelay time.Duration
	EffectTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.EffectAttempts <= 0 {
		c.EffectAttempts = 3
	}
	if c.EffectBackoff <= 0 {
		c.EffectBackoff = 200 * time.Millisecond
	}
	if c.EffectMaxDelay <= 0 {
		c.EffectMaxDelay = 2 * time.Second
	}
	if c.EffectTimeout <= 0 {
		c.EffectTimeout = 10 * time.Second
	}
	return c
}

// effects runs side effects detached from the caller; failures are logged and
// counted, never returned.
type effects struct {
	channels  ChannelController
	publisher Publisher
	notifier  Notifier
	cfg       Config
	wg        *sync.WaitGroup
	l         logger.Logger
}

func (e *effects) afterCreate(ctx context.Context, trip *models.Trip) {
	evt := models.TripStatusEvent{
		TripID:     trip.ID,
		Kind:       trip.Kind,
		To:         trip.Status,
		ActorID:    trip.RiderID,
		RiderID:    trip.RiderID,
		OccurredAt: trip.CreatedAt,
	}
	if e.publisher != nil {
		e.run(ctx, "publish_status", func(ctx context.Context) error {
			return e.publisher.PublishStatus(ctx, evt)
		})
	}
}

func (e *effects) afterTransition(ctx context.Context, from types.TripStatus, trip *models.Trip, actor models.Actor, reason string) {
	switch {
	case trip.Status == types.StatusAssigned && e.channels != nil:
		e.run(ctx, "channel_open", func(ctx context.Context) error {
			return e.channels.OpenTrip(ctx, trip.ID)
		})
	case trip.Status.IsTerminal() && e.channels != nil:
		e.run(ctx, "channel_close", func(ctx context.Context) error {
			return e.channels.CloseTrip(ctx, trip.ID)
		})
	}

	if e.publisher != nil {
		evt := models.TripStatusEvent{
			TripID:     trip.ID,
			Kind:       trip.Kind,
			From:       from,
			To:         trip.Status,
			ActorID:    actor.ID,
			RiderID:    trip.RiderID,
			DriverID:   trip.DriverID,
			Reason:     reason,
			OccurredAt: stateEnteredAt(trip),
		}
		e.run(ctx, "publish_status", func(ctx context.Context) error {
			return e.publisher.PublishStatus(ctx, evt)
		})
	}

	if e.notifier == nil {
		return
	}
	n := statusNotification(trip)
	for _, userID := range counterparts(trip, actor) {
		e.run(ctx, "notify", func(ctx context.Context) error {
			return e.notifier.Notify(ctx, userID, n)
		})
	}
}

func (e *effects) afterStopAppended(ctx context.Context, trip *models.Trip, stop models.Point) {
	if e.publisher == nil {
		return
	}
	evt := models.StopAppendedEvent{
		TripID:     trip.ID,
		Stop:       stop,
		Stops:      append([]models.Point(nil), trip.Stops...),
		OccurredAt: time.Now().UTC(),
	}
	e.run(ctx, "publish_stop", func(ctx context.Context) error {
		return e.publisher.PublishStopAppended(ctx, evt)
	})
}

func (e *effects) run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = wrap.WithAction(context.WithoutCancel(ctx), types.ActionTripSideEffect)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, e.cfg.EffectTimeout)
		defer cancel()

		err := retry.Do(ctx, retry.Config{
			Attempts: e.cfg.EffectAttempts,
			Backoff:  retry.Exponential(e.cfg.EffectBackoff, e.cfg.EffectMaxDelay),
		}, fn)
		if err != nil {
			metrics.SideEffectFailuresTotal.WithLabelValues(name).Inc()
			e.l.Error(ctx, "side effect failed", wrap.Error(ctx, fmt.Errorf("%s: %w", name, err)), "effect", name)
			return
		}
		e.l.Debug(ctx, "side effect done", "effect", name)
	}()
}

// counterparts are the participants other than the actor who should hear about a change.
func counterparts(trip *models.Trip, actor models.Actor) []uuid.UUID {
	var out []uuid.UUID
	if trip.RiderID != actor.ID {
		out = append(out, trip.RiderID)
	}
	if trip.DriverID != nil && *trip.DriverID != actor.ID {
		out = append(out, *trip.DriverID)
	}
	return out
}

func statusNotification(trip *models.Trip) models.Notification {
	title := "Trip update"
	body := "Your trip is now " + string(trip.Status)
	switch trip.Status {
	case types.StatusAssigned:
		title, body = "Driver assigned", "A driver accepted your trip"
	case types.StatusArriving:
		title, body = "Driver on the way", "Your driver is heading to the pickup point"
	case types.StatusArrived:
		title, body = "Driver arrived", "Your driver is waiting at the pickup point"
	case types.StatusInProgress:
		title, body = "Trip started", "Enjoy your trip"
	case types.StatusCompleted:
		title, body = "Trip completed", "You have arrived at your destination"
	case types.StatusCancelled:
		title = "Trip cancelled"
		if trip.CancellationReason != "" {
			body = trip.CancellationReason
		}
	}
	return models.Notification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"trip_id": trip.ID.String(),
			"status":  string(trip.Status),
		},
	}
}

func stateEnteredAt(trip *models.Trip) time.Time {
	var ts *time.Time
	switch trip.Status {
	case types.StatusAssigned:
		ts = trip.AssignedAt
	case types.StatusArrived:
		ts = trip.ArrivedAt
	case types.StatusInProgress:
		ts = trip.StartedAt
	case types.StatusCompleted:
		ts = trip.CompletedAt
	case types.StatusCancelled:
		ts = trip.CancelledAt
	}
	if ts == nil {
		return time.Now().UTC()
	}
	return *ts
}
