package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// LocationEvent is the value of every message on the driver location topic.
type LocationEvent struct {
	DriverID uuid.UUID             `json:"driver_id"`
	Geohash  string                `json:"geohash"`
	Sample   models.PositionSample `json:"sample"`
	SentAt   time.Time             `json:"sent_at"`
}

// LocationStream publishes persisted driver samples keyed by driver id,
// so every driver's samples land on one partition in order.
type LocationStream struct {
	w     messageWriter
	topic string
}

func NewLocationStream(brokers []string, topic string) *LocationStream {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &LocationStream{w: w, topic: topic}
}

func (s *LocationStream) PublishLocation(ctx context.Context, driverID uuid.UUID, sample models.PositionSample) error {
	b, err := json.Marshal(LocationEvent{
		DriverID: driverID,
		Geohash:  geohash.EncodeWithPrecision(sample.Lat, sample.Lng, 7),
		Sample:   sample,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	err = s.w.WriteMessages(ctx, kafkago.Message{Key: []byte(driverID.String()), Value: b})
	metrics.RecordPublish(s.topic, err)
	if err != nil {
		return fmt.Errorf("write location to %s: %w", s.topic, err)
	}
	return nil
}

func (s *LocationStream) Close() error {
	if s.w == nil {
		return nil
	}
	return s.w.Close()
}
