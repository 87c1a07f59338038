package postgres

import (
	"context"
	"encoding/json"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
)

type TripEventRepo struct {
	db Querier
}

func NewTripEventRepo(db Querier) *TripEventRepo {
	return &TripEventRepo{db: db}
}

type eventData struct {
	Status   string        `json:"status"`
	DriverID *string       `json:"driver_id,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Stops    int           `json:"stops"`
	Point    *models.Point `json:"point,omitempty"`
}

// Create appends one audit row for tr. It joins the transaction in ctx, if any.
func (r *TripEventRepo) Create(ctx context.Context, tr models.Transition, fromStatus string) error {
	data := eventData{
		Status: string(tr.Next.Status),
		Reason: tr.Next.CancellationReason,
		Stops:  len(tr.Next.Stops),
	}
	if tr.Next.DriverID != nil {
		id := tr.Next.DriverID.String()
		data.DriverID = &id
	}
	if n := len(tr.Next.Stops); n > 0 {
		data.Point = &tr.Next.Stops[n-1]
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trip_events (trip_id, event_type, actor_id, from_status, to_status, event_data)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`

	_, err = TxorDB(ctx, r.db).Exec(ctx, query, tr.TripID, tr.Event.String(), tr.ActorID, fromStatus, tr.Next.Status, payload)
	return err
}
