package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/handler/dto"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
	ws "github.com/horaciolidity/viaja-easy-sub002/pkg/wsHub"
)

const defaultNearbyRadius = 3000.0

type Presence struct {
	service PresenceService
	hub     *ws.ConnectionHub
	name    string
	now     func() time.Time
	l       logger.Logger
}

func NewPresence(service PresenceService, hub *ws.ConnectionHub, name string, l logger.Logger) *Presence {
	return &Presence{
		service: service,
		hub:     hub,
		name:    name,
		now:     time.Now,
		l:       l,
	}
}

// driverFromPath returns the driver id when the actor is that driver or an operator.
func (h *Presence) driverFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	driverID, err := pathUUID(r, "driver_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return uuid.Nil, false
	}
	actor := actorFrom(r)
	if actor.Role != types.RoleOperator && actor.ID != driverID {
		errorResponse(w, http.StatusForbidden, "forbidden: not your driver account")
		return uuid.Nil, false
	}
	return driverID, true
}

// UpdateStatus - POST /drivers/{driver_id}/status
func (h *Presence) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionPresenceStatus)

	driverID, ok := h.driverFromPath(w, r)
	if !ok {
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID.String())

	var req dto.StatusRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		serviceErrorResponse(w, err)
		return
	}

	if err := h.service.UpdateOperationalStatus(ctx, driverID, req.Status); err != nil {
		logFailure(ctx, h.l, "failed to update driver status", err)
		serviceErrorResponse(w, err)
		return
	}
	if req.Status == types.DriverAvailable {
		h.service.StartTracking(context.WithoutCancel(ctx), driverID)
	}

	if err := writeJSON(w, http.StatusOK, envelope{"driver_id": driverID, "status": req.Status}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Ingest - POST /drivers/{driver_id}/location
func (h *Presence) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionPresenceTrack)

	driverID, ok := h.driverFromPath(w, r)
	if !ok {
		return
	}

	var sample models.PositionSample
	if err := readJSON(w, r, &sample); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if err := h.service.Ingest(context.WithoutCancel(ctx), driverID, sample); err != nil {
		logFailure(ctx, h.l, "failed to ingest position", err)
		serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ReportSensorError - POST /drivers/{driver_id}/sensor-error
func (h *Presence) ReportSensorError(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionSensorWatch)

	driverID, ok := h.driverFromPath(w, r)
	if !ok {
		return
	}

	var req dto.SensorErrorRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	cause, ok := dto.SensorError(req.Error)
	if !ok {
		failedValidationResponse(w, map[string]string{"error": "must be one of permission_denied, unavailable, timeout"})
		return
	}

	if err := h.service.ReportError(ctx, driverID, cause); err != nil {
		errorResponse(w, http.StatusConflict, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Get - GET /drivers/{driver_id}/presence
func (h *Presence) Get(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "presence_get")

	driverID, ok := h.driverFromPath(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Get(ctx, driverID)
	if err != nil {
		logFailure(ctx, h.l, "failed to get presence", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"presence": rec}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Active - GET /presence/active
func (h *Presence) Active(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "presence_active")

	now := h.now()
	recs, err := h.service.ActiveDrivers(ctx, now)
	if err != nil {
		logFailure(ctx, h.l, "failed to query active drivers", err)
		serviceErrorResponse(w, err)
		return
	}

	views, bounds := dto.NewDriverViews(recs, nil, now)
	if err := writeJSON(w, http.StatusOK, envelope{"drivers": views, "count": len(views), "bounds": bounds}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Nearby - GET /presence/nearby?lat=..&lng=..&radius=..
func (h *Presence) Nearby(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "presence_nearby")

	q := r.URL.Query()
	v := types.NewValidationError()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	v.Check(latErr == nil, "lat", "must be a number")
	v.Check(lngErr == nil, "lng", "must be a number")

	radius := defaultNearbyRadius
	if raw := q.Get("radius"); raw != "" {
		var err error
		radius, err = strconv.ParseFloat(raw, 64)
		v.Check(err == nil && radius > 0, "radius", "must be a positive number of meters")
	}

	center := geo.Point{Lat: lat, Lng: lng}
	v.Check(center.Valid(), "position", "lat/lng out of range")
	if err := v.Err(); err != nil {
		serviceErrorResponse(w, err)
		return
	}

	now := h.now()
	recs, err := h.service.Nearby(ctx, center, radius, now)
	if err != nil {
		logFailure(ctx, h.l, "failed to query nearby drivers", err)
		serviceErrorResponse(w, err)
		return
	}

	views, bounds := dto.NewDriverViews(recs, &center, now)
	if err := writeJSON(w, http.StatusOK, envelope{"drivers": views, "count": len(views), "bounds": bounds}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// HandleWS - GET /ws/drivers/{driver_id}/location
//
// Streams sensor readings from the driver app: {"type":"position","sample":{...}}
// or {"type":"error","error":"permission_denied"}.
func (h *Presence) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_location_ws")

	driverID, ok := h.driverFromPath(w, r)
	if !ok {
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID.String())

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	conn := ws.NewConn(ctx, driverID.String(), c)
	if err := h.hub.Add(conn); err != nil {
		h.l.Error(ctx, "failed to register connection", err)
		_ = conn.Close()
		return
	}
	defer h.hub.Remove(conn)

	metrics.WebSocketConnectionsGauge.WithLabelValues(h.name).Inc()
	defer metrics.WebSocketConnectionsGauge.WithLabelValues(h.name).Dec()

	go keepAlive(conn, pingInterval)

	// tracking outlives this connection; the watch ends on its own when readings stop
	trackCtx := context.WithoutCancel(ctx)
	h.service.StartTracking(trackCtx, driverID)

	err = conn.Listen(func(raw json.RawMessage) error {
		var f dto.LocationFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return wsError(conn, "malformed frame")
		}

		switch f.Type {
		case models.MessagePosition:
			if f.Sample == nil {
				return wsError(conn, "sample is required")
			}
			if err := h.service.Ingest(trackCtx, driverID, *f.Sample); err != nil {
				var verr *types.ValidationError
				if errors.As(err, &verr) {
					return wsError(conn, verr.Fields)
				}
				return wsError(conn, err.Error())
			}
		case "error":
			cause, ok := dto.SensorError(f.Error)
			if !ok {
				return wsError(conn, "unknown sensor error")
			}
			if err := h.service.ReportError(ctx, driverID, cause); err != nil {
				return wsError(conn, err.Error())
			}
		default:
			return wsError(conn, "unknown frame type")
		}
		return nil
	})
	if err != nil && !errors.Is(err, ws.ErrConnClosed) {
		h.l.Debug(ctx, "driver location connection ended", "error", err.Error())
	}
}
