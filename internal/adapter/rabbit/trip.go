package rabbit

import (
	"context"
	"fmt"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

// TripBroker publishes trip lifecycle events for downstream consumers
// (matching, routing, billing).
type TripBroker struct {
	client   client
	exchange string

	l logger.Logger
}

func NewTripBroker(c client, log logger.Logger) (*TripBroker, error) {
	if err := declareAll(c, TripExchange); err != nil {
		return nil, err
	}
	return &TripBroker{client: c, exchange: TripExchange, l: log}, nil
}

// PublishStatus sends to trip_topic with key trip.status.{status}.
func (b *TripBroker) PublishStatus(ctx context.Context, evt models.TripStatusEvent) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_trip_status")

	key := fmt.Sprintf("trip.status.%s", evt.To)
	if err := publishJSON(ctx, b.client, b.exchange, key, evt); err != nil {
		return wrap.Error(ctx, err)
	}

	b.l.Debug(ctx, "trip status published", "trip_id", evt.TripID, "status", evt.To)
	return nil
}

// PublishStopAppended sends to trip_topic with key trip.stops.{trip_id}.
func (b *TripBroker) PublishStopAppended(ctx context.Context, evt models.StopAppendedEvent) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_trip_stop")

	key := fmt.Sprintf("trip.stops.%s", evt.TripID)
	if err := publishJSON(ctx, b.client, b.exchange, key, evt); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}
