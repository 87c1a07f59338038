package types

// TripEvent is the event type stored in trip_events and published on the broker.
type TripEvent string

func (e TripEvent) String() string {
	return string(e)
}

const (
	EventTripCreated       TripEvent = "TRIP_CREATED"
	EventTripStatusChanged TripEvent = "TRIP_STATUS_CHANGED"
	EventTripCancelled     TripEvent = "TRIP_CANCELLED"
	EventStopAppended      TripEvent = "STOP_APPENDED"
)
