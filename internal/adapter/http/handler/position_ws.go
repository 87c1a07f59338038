package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/handler/dto"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/exchange"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
	ws "github.com/horaciolidity/viaja-easy-sub002/pkg/wsHub"
)

// Position relays realtime samples between the rider and driver of a trip.
type Position struct {
	trips    TripService
	exchange PositionExchange
	hub      *ws.ConnectionHub
	service  string
	l        logger.Logger
}

func NewPosition(trips TripService, x PositionExchange, hub *ws.ConnectionHub, service string, l logger.Logger) *Position {
	return &Position{
		trips:    trips,
		exchange: x,
		hub:      hub,
		service:  service,
		l:        l,
	}
}

// HandleWS - GET /ws/trips/{trip_id}/position
//
// The client sends {"type":"position","sample":{...}} frames and receives its
// peer's samples in the same shape; {"type":"closed"} ends the trip channel.
// Only trips with an assigned driver that have not ended accept connections.
// The latest client sample is also offered to the channel on every tick.
func (h *Position) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "trip_position_ws")

	tripID, err := pathUUID(r, "trip_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	ctx = wrap.WithTripID(ctx, tripID.String())

	actor := actorFrom(r)
	if actor.Role != types.RoleRider && actor.Role != types.RoleDriver {
		errorResponse(w, http.StatusForbidden, "only trip participants can exchange positions")
		return
	}

	trip, err := h.trips.Get(ctx, tripID)
	if err != nil {
		logFailure(ctx, h.l, "failed to load trip", err)
		serviceErrorResponse(w, err)
		return
	}
	if !trip.Participant(actor.ID, actor.Role) {
		serviceErrorResponse(w, types.ErrForbidden)
		return
	}
	if !trip.Status.HasDriver() {
		errorResponse(w, http.StatusConflict, "trip is "+trip.Status.String())
		return
	}
	// the assignment may have been handled by another instance or before a restart
	if err := h.exchange.OpenTrip(ctx, tripID); err != nil {
		logFailure(ctx, h.l, "failed to open trip exchange", err)
		serviceErrorResponse(w, err)
		return
	}

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	conn := ws.NewConn(ctx, tripID.String()+":"+actor.Role.String(), c)
	if err := h.hub.Add(conn); err != nil {
		h.l.Error(ctx, "failed to register connection", err)
		_ = conn.Close()
		return
	}
	defer h.hub.Remove(conn)

	metrics.WebSocketConnectionsGauge.WithLabelValues(h.service).Inc()
	defer metrics.WebSocketConnectionsGauge.WithLabelValues(h.service).Dec()

	ch, err := h.exchange.Open(ctx, tripID, actor.Role, func(s models.PositionSample) {
		_ = conn.Send(dto.PositionFrame{Type: models.MessagePosition, Sample: &s})
	})
	if errors.Is(err, exchange.ErrTripClosed) {
		_ = conn.Send(dto.PositionFrame{Type: models.MessageClosed})
		return
	}
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to open position channel", err)
		_ = wsError(conn, "position channel unavailable")
		return
	}
	defer ch.Close()

	var (
		latestMu sync.Mutex
		latest   *models.PositionSample
	)
	ch.Start(func() (models.PositionSample, bool) {
		latestMu.Lock()
		defer latestMu.Unlock()
		if latest == nil {
			return models.PositionSample{}, false
		}
		return *latest, true
	})

	go func() {
		select {
		case <-ch.Done():
			_ = conn.Send(dto.PositionFrame{Type: models.MessageClosed})
			_ = conn.Close()
		case <-conn.Done():
		}
	}()
	go keepAlive(conn, pingInterval)

	err = conn.Listen(func(raw json.RawMessage) error {
		var f dto.PositionFrame
		if err := json.Unmarshal(raw, &f); err != nil || f.Type != models.MessagePosition || f.Sample == nil {
			return wsError(conn, "expected a position frame")
		}
		if f.Sample.CapturedAt.IsZero() {
			f.Sample.CapturedAt = time.Now().UTC()
		}
		if err := ch.Publish(ctx, *f.Sample); err != nil {
			return wsError(conn, err.Error())
		}
		latestMu.Lock()
		latest = f.Sample
		latestMu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, ws.ErrConnClosed) {
		h.l.Debug(ctx, "position connection ended", "error", err.Error())
	}
}
