package types

type ServiceMode string

// Trip Service - owns the trip state machine and relays realtime positions between trip participants
// Presence Service - ingests driver sensor readings and maintains driver presence
const (
	TripService     ServiceMode = "trip-service"
	PresenceService ServiceMode = "presence-service"
)

// TripKind selects the kind-specific payload of a trip.
type TripKind string

const (
	KindImmediate TripKind = "immediate"
	KindScheduled TripKind = "scheduled"
	KindHourly    TripKind = "hourly"
	KindPackage   TripKind = "package"
	KindPooled    TripKind = "pooled"
)

func (k TripKind) Valid() bool {
	switch k {
	case KindImmediate, KindScheduled, KindHourly, KindPackage, KindPooled:
		return true
	}
	return false
}

// Role of a trip participant or acting user.
type Role string

func (r Role) String() string {
	return string(r)
}

const (
	RoleRider    Role = "rider"
	RoleDriver   Role = "driver"
	RoleOperator Role = "operator"
)

func (r Role) Valid() bool {
	return r == RoleRider || r == RoleDriver || r == RoleOperator
}

// Peer returns the counterpart role on a trip channel.
func (r Role) Peer() Role {
	if r == RoleDriver {
		return RoleRider
	}
	return RoleDriver
}

// DriverStatus is the operational status of a driver presence record.
type DriverStatus string

const (
	DriverOffline   DriverStatus = "offline"
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "onTrip"
)

func (s DriverStatus) Valid() bool {
	return s == DriverOffline || s == DriverAvailable || s == DriverOnTrip
}
