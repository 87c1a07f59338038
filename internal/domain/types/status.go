package types

// TripStatus is the single authoritative status of a trip.
type TripStatus string

func (s TripStatus) String() string {
	return string(s)
}

const (
	StatusSearching  TripStatus = "searching"
	StatusScheduled  TripStatus = "scheduled"
	StatusAssigned   TripStatus = "assigned"
	StatusArriving   TripStatus = "arriving"
	StatusArrived    TripStatus = "arrived"
	StatusInProgress TripStatus = "inProgress"
	StatusCompleted  TripStatus = "completed"
	StatusCancelled  TripStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TripStatus{
	StatusSearching, StatusScheduled, StatusAssigned, StatusArriving,
	StatusArrived, StatusInProgress, StatusCompleted, StatusCancelled,
}

func (s TripStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s TripStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasDriver is true from assignment until the trip ends, the span in which
// rider and driver exchange positions.
func (s TripStatus) HasDriver() bool {
	switch s {
	case StatusAssigned, StatusArriving, StatusArrived, StatusInProgress:
		return true
	}
	return false
}

// forward holds every non-cancel edge and the single role allowed to request it.
var forward = map[TripStatus]map[TripStatus]Role{
	StatusSearching:  {StatusAssigned: RoleDriver},
	StatusScheduled:  {StatusAssigned: RoleDriver},
	StatusAssigned:   {StatusArriving: RoleDriver},
	StatusArriving:   {StatusArrived: RoleDriver},
	StatusArrived:    {StatusInProgress: RoleDriver},
	StatusInProgress: {StatusCompleted: RoleDriver},
}

// CanTransition reports whether from -> to is an edge of the trip state machine.
// Cancellation is an edge from every non-terminal status.
func CanTransition(from, to TripStatus) bool {
	if to == StatusCancelled {
		return from.Valid() && !from.IsTerminal()
	}
	_, ok := forward[from][to]
	return ok
}

// CanRequest reports whether role may request the from -> to edge.
func CanRequest(role Role, from, to TripStatus) bool {
	if !CanTransition(from, to) {
		return false
	}
	if to == StatusCancelled {
		return role.Valid()
	}
	return forward[from][to] == role
}
