package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
)

type published struct {
	exchange, key string
	body          []byte
}

type fakeClient struct {
	mu        sync.Mutex
	declared  []string
	published []published
	subs      map[string]chan amqp.Delivery
	err       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]chan amqp.Delivery)}
}

func (f *fakeClient) DeclareTopic(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	return nil
}

func (f *fakeClient) Publish(_ context.Context, exchange, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{exchange, key, body})
	if ch, ok := f.subs[exchange+"/"+key]; ok {
		ch <- amqp.Delivery{Body: body}
	}
	return nil
}

func (f *fakeClient) Subscribe(_ context.Context, exchange, key string) (<-chan amqp.Delivery, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan amqp.Delivery, 8)
	f.subs[exchange+"/"+key] = ch
	return ch, func() {}, nil
}

func TestTripBrokerRoutingKeys(t *testing.T) {
	c := newFakeClient()
	b, err := NewTripBroker(c, logger.New(io.Discard, "test", "error"))
	require.NoError(t, err)
	assert.Equal(t, []string{TripExchange}, c.declared)

	tripID := uuid.New()
	require.NoError(t, b.PublishStatus(context.Background(), models.TripStatusEvent{TripID: tripID, To: types.StatusAssigned}))
	require.NoError(t, b.PublishStopAppended(context.Background(), models.StopAppendedEvent{TripID: tripID}))

	require.Len(t, c.published, 2)
	assert.Equal(t, "trip.status.assigned", c.published[0].key)
	assert.Equal(t, "trip.stops."+tripID.String(), c.published[1].key)

	var evt models.TripStatusEvent
	require.NoError(t, json.Unmarshal(c.published[0].body, &evt))
	assert.Equal(t, tripID, evt.TripID)
}

func TestTripBrokerPublishError(t *testing.T) {
	c := newFakeClient()
	c.err = errors.New("channel closed")
	b, err := NewTripBroker(c, logger.New(io.Discard, "test", "error"))
	require.NoError(t, err)

	err = b.PublishStatus(context.Background(), models.TripStatusEvent{To: types.StatusCompleted})
	assert.ErrorContains(t, err, "channel closed")
}

func TestNotifier(t *testing.T) {
	c := newFakeClient()
	n, err := NewNotifier(c)
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, n.Notify(context.Background(), userID, models.Notification{Title: "Driver arrived"}))
	require.Len(t, c.published, 1)
	assert.Equal(t, NotificationExchange, c.published[0].exchange)
	assert.Equal(t, "notify.user."+userID.String(), c.published[0].key)

	var msg notificationMessage
	require.NoError(t, json.Unmarshal(c.published[0].body, &msg))
	assert.Equal(t, userID, msg.UserID)
	assert.Equal(t, "Driver arrived", msg.Title)
}

func TestPositionTransport(t *testing.T) {
	c := newFakeClient()
	tr, err := NewPositionTransport(c)
	require.NoError(t, err)

	tripID := uuid.New()
	ch, cancel, err := tr.Subscribe(context.Background(), tripID, types.RoleDriver)
	require.NoError(t, err)

	require.NoError(t, tr.Publish(context.Background(), tripID, types.RoleDriver, []byte(`{"seq":1}`)))
	select {
	case got := <-ch:
		assert.JSONEq(t, `{"seq":1}`, string(got))
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
