package dto

import (
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/geo"
)

type StatusRequest struct {
	Status types.DriverStatus `json:"status"`
}

func (r StatusRequest) Validate() error {
	v := types.NewValidationError()
	v.Check(r.Status.Valid(), "status", "must be one of offline, available, onTrip")
	return v.Err()
}

// SensorErrorRequest reports a failure of the driver's device sensor.
type SensorErrorRequest struct {
	Error string `json:"error"` // permission_denied, unavailable or timeout
}

var sensorErrors = map[string]error{
	"permission_denied": types.ErrPermissionDenied,
	"unavailable":       types.ErrPositionUnavailable,
	"timeout":           types.ErrTimeout,
}

// SensorError maps a client error code to the sensor failure it stands for.
func SensorError(code string) (error, bool) {
	err, ok := sensorErrors[code]
	return err, ok
}

// LocationFrame is one message on the driver sensor websocket.
type LocationFrame struct {
	Type   string                 `json:"type"` // "position" or "error"
	Sample *models.PositionSample `json:"sample,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// PositionFrame is one message on the trip position websocket, in both directions.
type PositionFrame struct {
	Type   string                 `json:"type"` // "position" or "closed"
	Sample *models.PositionSample `json:"sample,omitempty"`
}

// DriverView is a presence record with the labels shown on the operator map.
type DriverView struct {
	models.PresenceRecord
	Distance string `json:"distance,omitempty"`
	LastSeen string `json:"last_seen"`
}

// NewDriverViews labels recs relative to now and, when given, center. The box
// frames center and every driver position; nil when there is nothing to frame.
func NewDriverViews(recs []models.PresenceRecord, center *geo.Point, now time.Time) ([]DriverView, *geo.Box) {
	views := make([]DriverView, 0, len(recs))
	points := make([]geo.Point, 0, len(recs)+1)
	if center != nil {
		points = append(points, *center)
	}

	for _, rec := range recs {
		v := DriverView{
			PresenceRecord: rec,
			LastSeen:       geo.FormatDuration(max(0, now.Sub(rec.LastUpdatedAt).Seconds())),
		}
		if center != nil {
			v.Distance = geo.FormatDistance(geo.HaversineMeters(*center, rec.LastPosition.Geo()) / 1000)
		}
		views = append(views, v)
		points = append(points, rec.LastPosition.Geo())
	}
	return views, geo.BoundingBox(points)
}
