package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
)

// PositionSample is one sensor reading. Receivers treat it as immutable.
type PositionSample struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	SpeedKmh       float64   `json:"speed_kmh,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (s PositionSample) Geo() geo.Point {
	return geo.Point{Lat: s.Lat, Lng: s.Lng}
}

// Validate rejects non-finite or out-of-range coordinates and headings.
func (s PositionSample) Validate() error {
	v := types.NewValidationError()
	v.Check(s.Geo().Valid(), "position", "lat/lng out of range")
	if s.HeadingDegrees != nil {
		h := *s.HeadingDegrees
		v.Check(h >= 0 && h < 360, "heading_degrees", "must be in [0, 360)")
	}
	return v.Err()
}

// PositionMessage is the wire form of a sample on a trip channel.
type PositionMessage struct {
	Type     string         `json:"type"` // "position" or "closed"
	TripID   uuid.UUID      `json:"trip_id"`
	Role     types.Role     `json:"role"`
	SenderID string         `json:"sender_id"`
	Seq      uint64         `json:"seq"`
	Sample   PositionSample `json:"sample"`
}

const (
	MessagePosition = "position"
	MessageClosed   = "closed"
)
