package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
)

type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (p Point) Geo() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

// Trip is the shared core of every trip kind; Details carries the kind-specific payload.
type Trip struct {
	ID       uuid.UUID        `json:"id"`
	Kind     types.TripKind   `json:"kind"`
	Status   types.TripStatus `json:"status"`
	RiderID  uuid.UUID        `json:"rider_id"`
	DriverID *uuid.UUID       `json:"driver_id,omitempty"`

	Origin      Point   `json:"origin"`
	Destination Point   `json:"destination"`
	Stops       []Point `json:"stops"`

	FareEstimate *float64 `json:"fare_estimate,omitempty"`
	FareFinal    *float64 `json:"fare_final,omitempty"`

	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// Version increases on every stored write; it backs the check-and-set.
	Version int64 `json:"version"`

	Details KindDetails `json:"details,omitempty"`
}

// Clone returns a deep copy so cached trips are never shared mutably.
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	c := *t
	c.Stops = append([]Point(nil), t.Stops...)
	c.DriverID = clonePtr(t.DriverID)
	c.CancelledBy = clonePtr(t.CancelledBy)
	c.FareEstimate = clonePtr(t.FareEstimate)
	c.FareFinal = clonePtr(t.FareFinal)
	c.AssignedAt = clonePtr(t.AssignedAt)
	c.ArrivedAt = clonePtr(t.ArrivedAt)
	c.StartedAt = clonePtr(t.StartedAt)
	c.CompletedAt = clonePtr(t.CompletedAt)
	c.CancelledAt = clonePtr(t.CancelledAt)
	return &c
}

// Participant reports whether userID takes part in the trip under role.
func (t *Trip) Participant(userID uuid.UUID, role types.Role) bool {
	switch role {
	case types.RoleRider:
		return t.RiderID == userID
	case types.RoleDriver:
		return t.DriverID != nil && *t.DriverID == userID
	case types.RoleOperator:
		return true
	}
	return false
}

// Points returns origin, stops and destination in travel order.
func (t *Trip) Points() []Point {
	pts := make([]Point, 0, len(t.Stops)+2)
	pts = append(pts, t.Origin)
	pts = append(pts, t.Stops...)
	return append(pts, t.Destination)
}

// CreateTripRequest is the input of trip creation.
type CreateTripRequest struct {
	Kind         types.TripKind
	RiderID      uuid.UUID
	Origin       *Point
	Destination  *Point
	Stops        []Point
	FareEstimate *float64
	Details      KindDetails
}

// Actor is the user requesting a command.
type Actor struct {
	ID   uuid.UUID
	Role types.Role
}

// TransitionExtra carries optional data attached to a transition.
type TransitionExtra struct {
	FareFinal *float64
	Reason    string
}

// Transition is the check-and-set handed to the store: apply Next only if the
// stored trip is still at ExpectedStatus and ExpectedVersion.
type Transition struct {
	TripID          uuid.UUID
	ExpectedStatus  types.TripStatus
	ExpectedVersion int64
	Next            *Trip
	Event           types.TripEvent
	ActorID         uuid.UUID
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
