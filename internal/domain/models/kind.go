package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

// KindDetails is the kind-specific part of a trip.
type KindDetails interface {
	Kind() types.TripKind
	validate(v *types.ValidationError, now time.Time)
}

type ImmediateDetails struct{}

type ScheduledDetails struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

type HourlyDetails struct {
	Hours int `json:"hours"`
}

type PackageDetails struct {
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	Note           string `json:"note,omitempty"`
}

type PooledDetails struct {
	Seats int `json:"seats"`
}

func (ImmediateDetails) Kind() types.TripKind { return types.KindImmediate }
func (ScheduledDetails) Kind() types.TripKind { return types.KindScheduled }
func (HourlyDetails) Kind() types.TripKind    { return types.KindHourly }
func (PackageDetails) Kind() types.TripKind   { return types.KindPackage }
func (PooledDetails) Kind() types.TripKind    { return types.KindPooled }

func (ImmediateDetails) validate(*types.ValidationError, time.Time) {}

func (d ScheduledDetails) validate(v *types.ValidationError, now time.Time) {
	v.Check(!d.ScheduledFor.IsZero(), "details.scheduled_for", "must be provided")
	v.Check(d.ScheduledFor.After(now), "details.scheduled_for", "must be in the future")
}

func (d HourlyDetails) validate(v *types.ValidationError, _ time.Time) {
	v.Check(d.Hours >= 1 && d.Hours <= 12, "details.hours", "must be between 1 and 12")
}

func (d PackageDetails) validate(v *types.ValidationError, _ time.Time) {
	v.Check(strings.TrimSpace(d.RecipientName) != "", "details.recipient_name", "must be provided")
	v.Check(strings.TrimSpace(d.RecipientPhone) != "", "details.recipient_phone", "must be provided")
}

func (d PooledDetails) validate(v *types.ValidationError, _ time.Time) {
	v.Check(d.Seats >= 1 && d.Seats <= 4, "details.seats", "must be between 1 and 4")
}

// ValidateDetails checks that d matches kind and is internally consistent.
func ValidateDetails(v *types.ValidationError, kind types.TripKind, d KindDetails, now time.Time) {
	if d == nil {
		v.Check(kind == types.KindImmediate, "details", "must be provided for "+string(kind))
		return
	}
	if d.Kind() != kind {
		v.Check(false, "details", fmt.Sprintf("payload is %s, trip kind is %s", d.Kind(), kind))
		return
	}
	d.validate(v, now)
}

// InitialStatus is the status a trip of kind starts in.
func InitialStatus(kind types.TripKind) types.TripStatus {
	if kind == types.KindScheduled {
		return types.StatusScheduled
	}
	return types.StatusSearching
}

// DecodeDetails is the single place mapping a kind to its payload type.
func DecodeDetails(kind types.TripKind, raw []byte) (KindDetails, error) {
	switch kind {
	case types.KindImmediate:
		return ImmediateDetails{}, nil
	case types.KindScheduled:
		var x ScheduledDetails
		if err := unmarshal(raw, &x); err != nil {
			return nil, err
		}
		return x, nil
	case types.KindHourly:
		var x HourlyDetails
		if err := unmarshal(raw, &x); err != nil {
			return nil, err
		}
		return x, nil
	case types.KindPackage:
		var x PackageDetails
		if err := unmarshal(raw, &x); err != nil {
			return nil, err
		}
		return x, nil
	case types.KindPooled:
		var x PooledDetails
		if err := unmarshal(raw, &x); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, fmt.Errorf("unknown trip kind %q", kind)
}

// EncodeDetails serializes the payload for storage. Immediate trips store "{}".
func EncodeDetails(d KindDetails) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func unmarshal(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode details: %w", err)
	}
	return nil
}
