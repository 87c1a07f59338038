package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

type PresenceRecord struct {
	DriverID          uuid.UUID          `json:"driver_id"`
	LastPosition      PositionSample     `json:"last_position"`
	LastUpdatedAt     time.Time          `json:"last_updated_at"`
	OperationalStatus types.DriverStatus `json:"operational_status"`
	Geohash           string             `json:"geohash,omitempty"`
}

// Active reports whether the record is fresh relative to staleBefore.
func (p PresenceRecord) Active(staleBefore time.Time) bool {
	return !p.LastUpdatedAt.Before(staleBefore)
}
