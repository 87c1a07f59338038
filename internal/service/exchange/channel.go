package exchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

// Channel is one role's side of a trip position exchange.
type Channel struct {
	x        *Exchange
	key      channelKey
	senderID string
	onPeer   func(models.PositionSample)

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	done        chan struct{}

	sendMu   sync.Mutex
	seq      uint64
	lastSent *models.PositionSample

	peerMu  sync.RWMutex
	peer    *models.PositionSample
	lastSeq map[string]uint64

	tickMu   sync.Mutex
	stopTick context.CancelFunc

	l logger.Logger
}

func (c *Channel) TripID() uuid.UUID { return c.key.tripID }
func (c *Channel) Role() types.Role  { return c.key.role }

// Done is closed once the channel is closed locally or by the peer side.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Publish sends sample to the peer unless it is within the movement threshold
// of the last transmitted sample. Transport failures are logged and dropped.
func (c *Channel) Publish(ctx context.Context, sample models.PositionSample) error {
	if c == nil || c.ctx.Err() != nil {
		return nil
	}
	if err := sample.Validate(); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.ctx.Err() != nil {
		return nil
	}

	role := string(c.key.role)
	if c.lastSent != nil && geo.HaversineMeters(c.lastSent.Geo(), sample.Geo()) < c.x.cfg.MinDistanceMeters {
		metrics.PositionPublishesTotal.WithLabelValues(role, "filtered").Inc()
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	payload, err := json.Marshal(models.PositionMessage{
		Type:     models.MessagePosition,
		TripID:   c.key.tripID,
		Role:     c.key.role,
		SenderID: c.senderID,
		Seq:      c.seq + 1,
		Sample:   sample,
	})
	if err != nil {
		return err
	}

	if err := c.x.transport.Publish(ctx, c.key.tripID, c.key.role, payload); err != nil {
		metrics.PositionPublishesTotal.WithLabelValues(role, "failed").Inc()
		if c.ctx.Err() == nil {
			c.l.Warn(c.logCtx(ctx, types.ActionChannelPublish), "position publish failed", "error", err)
		}
		return nil
	}

	c.seq++
	s := sample
	c.lastSent = &s
	metrics.PositionPublishesTotal.WithLabelValues(role, "sent").Inc()
	return nil
}

// Start publishes source's sample on every tick until the channel closes.
// Calling Start again replaces the previous source.
func (c *Channel) Start(source func() (models.PositionSample, bool)) {
	if c == nil || c.ctx.Err() != nil {
		return
	}

	c.tickMu.Lock()
	if c.stopTick != nil {
		c.stopTick()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopTick = cancel
	c.tickMu.Unlock()

	go func() {
		ticker := time.NewTicker(c.x.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if sample, ok := source(); ok {
					if err := c.Publish(ctx, sample); err != nil {
						c.l.Debug(c.logCtx(ctx, types.ActionChannelPublish), "tick sample rejected", "error", err)
					}
				}
			}
		}
	}()
}

// Peer returns the last sample received from the counterpart, if any.
func (c *Channel) Peer() (models.PositionSample, bool) {
	if c == nil {
		return models.PositionSample{}, false
	}
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	if c.peer == nil {
		return models.PositionSample{}, false
	}
	return *c.peer, true
}

// Close releases the subscription. Safe to call repeatedly and on a nil channel.
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.cancel()
		c.unsubscribe()
		c.x.release(c)
		close(c.done)
		metrics.OpenChannelsGauge.Dec()
		c.l.Info(c.logCtx(context.Background(), types.ActionChannelClose), "position channel closed", "role", c.key.role)
	})
}

// receive delivers peer messages one at a time in arrival order.
func (c *Channel) receive(msgs <-chan []byte) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			c.handle(raw)
		}
	}
}

func (c *Channel) handle(raw []byte) {
	var msg models.PositionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.l.Warn(c.logCtx(c.ctx, types.ActionChannelPublish), "dropping malformed position message", "error", err)
		return
	}
	if msg.TripID != c.key.tripID {
		return
	}

	switch msg.Type {
	case models.MessageClosed:
		c.x.markClosed(c.key.tripID)
		go c.Close()
		return
	case models.MessagePosition:
	default:
		return
	}

	if msg.Sample.Validate() != nil {
		return
	}

	c.peerMu.Lock()
	if last, seen := c.lastSeq[msg.SenderID]; seen && msg.Seq <= last {
		c.peerMu.Unlock()
		return
	}
	c.lastSeq[msg.SenderID] = msg.Seq
	sample := msg.Sample
	c.peer = &sample
	c.peerMu.Unlock()

	if c.onPeer != nil && c.ctx.Err() == nil {
		c.onPeer(sample)
	}
}

func (c *Channel) logCtx(ctx context.Context, action string) context.Context {
	return wrap.WithLogCtx(ctx, wrap.LogCtx{Action: action, TripID: c.key.tripID.String()})
}
