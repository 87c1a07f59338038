package handler

import (
	"net/http"

	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/handler/dto"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

type Trip struct {
	service TripService
	l       logger.Logger
}

func NewTrip(service TripService, l logger.Logger) *Trip {
	return &Trip{
		service: service,
		l:       l,
	}
}

// Create - POST /trips
func (h *Trip) Create(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionTripCreate)
	actor := actorFrom(r)

	var req dto.CreateTripRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err)
		badRequestResponse(w, err.Error())
		return
	}

	in, err := req.ToModel(actor.ID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}

	trip, err := h.service.Create(ctx, in)
	if err != nil {
		logFailure(ctx, h.l, "failed to create trip", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Get - GET /trips/{trip_id}
func (h *Trip) Get(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "trip_get")

	tripID, err := pathUUID(r, "trip_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	trip, err := h.service.Get(ctx, tripID)
	if err != nil {
		logFailure(ctx, h.l, "failed to get trip", err)
		serviceErrorResponse(w, err)
		return
	}

	actor := actorFrom(r)
	if !trip.Participant(actor.ID, actor.Role) {
		serviceErrorResponse(w, types.ErrForbidden)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Transition - POST /trips/{trip_id}/transitions
func (h *Trip) Transition(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionTripTransition)

	tripID, err := pathUUID(r, "trip_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req dto.TransitionRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		serviceErrorResponse(w, err)
		return
	}

	trip, err := h.service.RequestTransition(ctx, tripID, req.Status, actorFrom(r), req.Extra())
	if err != nil {
		logFailure(ctx, h.l, "failed to transition trip", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Cancel - POST /trips/{trip_id}/cancel
func (h *Trip) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionTripCancel)

	tripID, err := pathUUID(r, "trip_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req dto.CancelRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	trip, err := h.service.Cancel(ctx, tripID, actorFrom(r), req.Reason)
	if err != nil {
		logFailure(ctx, h.l, "failed to cancel trip", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// AppendStop - POST /trips/{trip_id}/stops
func (h *Trip) AppendStop(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionTripAppendStop)

	tripID, err := pathUUID(r, "trip_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req struct {
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
		Address string  `json:"address,omitempty"`
	}
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	trip, err := h.service.AppendStop(ctx, tripID, actorFrom(r), models.Point{Lat: req.Lat, Lng: req.Lng, Address: req.Address})
	if err != nil {
		logFailure(ctx, h.l, "failed to append stop", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

// Active - GET /trips/active returns the caller's newest non-terminal trip or null.
func (h *Trip) Active(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "trip_find_active")
	actor := actorFrom(r)

	trip, err := h.service.FindActiveForUser(ctx, actor.ID, actor.Role)
	if err != nil {
		logFailure(ctx, h.l, "failed to find active trip", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}
