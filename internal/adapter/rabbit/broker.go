package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

const (
	TripExchange         = "trip_topic"
	NotificationExchange = "notifications_topic"
	PositionExchange     = "trip_position"
)

// client is the subset of *rabbit.RabbitMQ the adapters use.
type client interface {
	DeclareTopic(name string) error
	Publish(ctx context.Context, exchange, key string, body []byte) error
	Subscribe(ctx context.Context, exchange, key string) (<-chan amqp.Delivery, func(), error)
}

func publishJSON(ctx context.Context, c client, exchange, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.Publish(ctx, exchange, key, body)
	metrics.RecordPublish(exchange, err)
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", exchange, key, err)
	}
	return nil
}

func declareAll(c client, exchanges ...string) error {
	for _, name := range exchanges {
		if err := c.DeclareTopic(name); err != nil {
			return err
		}
	}
	return nil
}
