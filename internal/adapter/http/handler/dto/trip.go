package dto

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

type CreateTripRequest struct {
	Kind         types.TripKind  `json:"kind"`
	Origin       *models.Point   `json:"origin"`
	Destination  *models.Point   `json:"destination"`
	Stops        []models.Point  `json:"stops,omitempty"`
	FareEstimate *float64        `json:"fare_estimate,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// ToModel decodes the kind payload; the rest is validated by the trip service.
func (r CreateTripRequest) ToModel(riderID uuid.UUID) (models.CreateTripRequest, error) {
	v := types.NewValidationError()
	v.Check(r.Kind.Valid(), "kind", "must be one of immediate, scheduled, hourly, package, pooled")
	if err := v.Err(); err != nil {
		return models.CreateTripRequest{}, err
	}

	details, err := models.DecodeDetails(r.Kind, r.Details)
	if err != nil {
		v.Check(false, "details", err.Error())
		return models.CreateTripRequest{}, v.Err()
	}

	return models.CreateTripRequest{
		Kind:         r.Kind,
		RiderID:      riderID,
		Origin:       r.Origin,
		Destination:  r.Destination,
		Stops:        r.Stops,
		FareEstimate: r.FareEstimate,
		Details:      details,
	}, nil
}

type TransitionRequest struct {
	Status    types.TripStatus `json:"status"`
	FareFinal *float64         `json:"fare_final,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

func (r TransitionRequest) Validate() error {
	v := types.NewValidationError()
	v.Check(r.Status.Valid(), "status", "unknown trip status")
	v.Check(r.FareFinal == nil || *r.FareFinal >= 0, "fare_final", "must not be negative")
	return v.Err()
}

func (r TransitionRequest) Extra() models.TransitionExtra {
	return models.TransitionExtra{FareFinal: r.FareFinal, Reason: r.Reason}
}

type CancelRequest struct {
	Reason string `json:"reason"`
}
