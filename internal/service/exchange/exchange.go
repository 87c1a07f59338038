package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

var (
	ErrInvalidRole = errors.New("channel role must be rider or driver")
	ErrTripNotOpen = errors.New("trip exchange is not open")
	ErrTripClosed  = errors.New("trip exchange is closed")
)

// closedRetention is how long a closed trip keeps refusing channels.
const closedRetention = 30 * time.Minute

type Config struct {
	MinDistanceMeters float64
	TickInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinDistanceMeters <= 0 {
		c.MinDistanceMeters = 5
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	return c
}

// tripState tracks whether channels may be opened for a trip.
type tripState struct {
	open bool
	at   time.Time
}

type channelKey struct {
	tripID uuid.UUID
	role   types.Role
}

// Exchange is the process-wide registry of trip position channels.
// At most one channel exists per (trip, role); opening again replaces it.
type Exchange struct {
	transport Transport
	cfg       Config
	instance  string

	mu       sync.Mutex
	channels map[channelKey]*Channel
	trips    map[uuid.UUID]tripState
	now      func() time.Time

	l logger.Logger
}

func New(t Transport, cfg Config, l logger.Logger) *Exchange {
	return &Exchange{
		transport: t,
		cfg:       cfg.withDefaults(),
		instance:  uuid.NewString(),
		channels:  make(map[channelKey]*Channel),
		trips:     make(map[uuid.UUID]tripState),
		now:       time.Now,
		l:         l,
	}
}

// Open subscribes to the peer of role on the trip. The trip must have been
// opened with OpenTrip and not closed since. Subscription failures are returned.
func (x *Exchange) Open(ctx context.Context, tripID uuid.UUID, role types.Role, onPeerUpdate func(models.PositionSample)) (*Channel, error) {
	const op = "Exchange.Open"
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionChannelOpen, TripID: tripID.String()})

	if role != types.RoleRider && role != types.RoleDriver {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, ErrInvalidRole))
	}
	if err := x.checkOpen(tripID); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	chCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	msgs, unsubscribe, err := x.transport.Subscribe(chCtx, tripID, role.Peer())
	if err != nil {
		cancel()
		return nil, wrap.Error(ctx, fmt.Errorf("%s: failed to subscribe: %w", op, err))
	}

	c := &Channel{
		x:           x,
		key:         channelKey{tripID: tripID, role: role},
		senderID:    x.instance + "/" + uuid.NewString(),
		onPeer:      onPeerUpdate,
		ctx:         chCtx,
		cancel:      cancel,
		unsubscribe: unsubscribe,
		lastSeq:     make(map[string]uint64),
		done:        make(chan struct{}),
		l:           x.l,
	}

	x.mu.Lock()
	prev := x.channels[c.key]
	x.channels[c.key] = c
	x.mu.Unlock()

	if prev != nil {
		prev.Close()
		x.l.Debug(ctx, "replaced previous channel", "role", role)
	}

	metrics.OpenChannelsGauge.Inc()
	go c.receive(msgs)

	x.l.Info(ctx, "position channel opened", "role", role)
	return c, nil
}

// OpenTrip lets channels be opened for the trip. Idempotent. A trip closed
// by CloseTrip stays closed, so a late open racing a cancel is a no-op.
func (x *Exchange) OpenTrip(ctx context.Context, tripID uuid.UUID) error {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionChannelOpen, TripID: tripID.String()})

	x.mu.Lock()
	st, ok := x.trips[tripID]
	if !ok {
		x.trips[tripID] = tripState{open: true, at: x.now()}
	}
	x.mu.Unlock()

	switch {
	case !ok:
		x.l.Info(ctx, "trip exchange opened")
	case !st.open:
		x.l.Debug(ctx, "trip exchange already closed")
	}
	return nil
}

// markClosed records that the trip ended, as announced by a peer instance.
func (x *Exchange) markClosed(tripID uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.markClosedLocked(tripID)
}

func (x *Exchange) markClosedLocked(tripID uuid.UUID) {
	now := x.now()
	for id, st := range x.trips {
		if !st.open && now.Sub(st.at) > closedRetention {
			delete(x.trips, id)
		}
	}
	x.trips[tripID] = tripState{open: false, at: now}
}

func (x *Exchange) checkOpen(tripID uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	st, ok := x.trips[tripID]
	switch {
	case !ok:
		return ErrTripNotOpen
	case !st.open:
		return ErrTripClosed
	}
	return nil
}

// CloseTrip closes every local channel of the trip and tells remote peers to do the same.
func (x *Exchange) CloseTrip(ctx context.Context, tripID uuid.UUID) error {
	const op = "Exchange.CloseTrip"
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionChannelClose, TripID: tripID.String()})

	x.mu.Lock()
	x.markClosedLocked(tripID)
	var local []*Channel
	for key, c := range x.channels {
		if key.tripID == tripID {
			local = append(local, c)
		}
	}
	x.mu.Unlock()

	for _, c := range local {
		c.Close()
	}

	var errs []error
	for _, role := range []types.Role{types.RoleDriver, types.RoleRider} {
		payload, err := json.Marshal(models.PositionMessage{
			Type:     models.MessageClosed,
			TripID:   tripID,
			Role:     role,
			SenderID: x.instance,
		})
		if err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		if err := x.transport.Publish(ctx, tripID, role, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to notify peers: %w", op, err))
	}

	x.l.Info(ctx, "trip exchange closed", "local_channels", len(local))
	return nil
}

// IsOpen reports whether OpenTrip ran for the trip and CloseTrip did not.
func (x *Exchange) IsOpen(tripID uuid.UUID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.trips[tripID].open
}

// Channel returns the current channel for (trip, role), if any.
func (x *Exchange) Channel(tripID uuid.UUID, role types.Role) (*Channel, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.channels[channelKey{tripID: tripID, role: role}]
	return c, ok
}

// Close releases every open channel.
func (x *Exchange) Close() {
	x.mu.Lock()
	all := make([]*Channel, 0, len(x.channels))
	for _, c := range x.channels {
		all = append(all, c)
	}
	x.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

func (x *Exchange) release(c *Channel) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.channels[c.key] == c {
		delete(x.channels, c.key)
	}
}
