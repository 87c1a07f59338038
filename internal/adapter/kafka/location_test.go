package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishLocation(t *testing.T) {
	w := &fakeWriter{}
	s := &LocationStream{w: w, topic: "driver-locations"}
	driverID := uuid.New()

	require.NoError(t, s.PublishLocation(context.Background(), driverID, models.PositionSample{Lat: -34.60, Lng: -58.38}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, driverID.String(), string(w.msgs[0].Key))

	var evt LocationEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
	assert.Equal(t, driverID, evt.DriverID)
	assert.Equal(t, -34.60, evt.Sample.Lat)
	assert.Len(t, evt.Geohash, 7)
}

func TestPublishLocationError(t *testing.T) {
	s := &LocationStream{w: &fakeWriter{err: errors.New("leader not available")}, topic: "driver-locations"}
	err := s.PublishLocation(context.Background(), uuid.New(), models.PositionSample{})
	assert.ErrorContains(t, err, "leader not available")
}
