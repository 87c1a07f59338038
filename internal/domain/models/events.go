package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

// TripStatusEvent is published on every status change: trip_topic -> trip.status.<status>
type TripStatusEvent struct {
	TripID     uuid.UUID        `json:"trip_id"`
	Kind       types.TripKind   `json:"kind"`
	From       types.TripStatus `json:"from,omitempty"`
	To         types.TripStatus `json:"to"`
	ActorID    uuid.UUID        `json:"actor_id"`
	RiderID    uuid.UUID        `json:"rider_id"`
	DriverID   *uuid.UUID       `json:"driver_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// StopAppendedEvent asks downstream routing to recalculate: trip_topic -> trip.stops.<trip_id>
type StopAppendedEvent struct {
	TripID     uuid.UUID `json:"trip_id"`
	Stop       Point     `json:"stop"`
	Stops      []Point   `json:"stops"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notification is a fire-and-forget push for one user.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}
