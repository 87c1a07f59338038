package rabbit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

type notificationMessage struct {
	UserID uuid.UUID `json:"user_id"`
	models.Notification
	SentAt time.Time `json:"sent_at"`
}

// Notifier hands user notifications to the push gateway through
// notifications_topic with key notify.user.{user_id}.
type Notifier struct {
	client client
}

func NewNotifier(c client) (*Notifier, error) {
	if err := declareAll(c, NotificationExchange); err != nil {
		return nil, err
	}
	return &Notifier{client: c}, nil
}

func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, msg models.Notification) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_notification")

	key := fmt.Sprintf("notify.user.%s", userID)
	if err := publishJSON(ctx, n.client, NotificationExchange, key, notificationMessage{
		UserID:       userID,
		Notification: msg,
		SentAt:       time.Now().UTC(),
	}); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}
