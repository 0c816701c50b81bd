package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// Consumer is the receiving side of the notification queue.
type Consumer interface {
	Consume(ctx context.Context, handler func(message []byte) error) error
}

// Deliverer sends one notification to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, n entity.Notification) error
}

// NotificationWorker drains queued notifications.
type NotificationWorker struct {
	queue     Consumer
	deliverer Deliverer
}

func NewNotificationWorker(queue Consumer, deliverer Deliverer) *NotificationWorker {
	return &NotificationWorker{queue: queue, deliverer: deliverer}
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	if err := w.queue.Consume(ctx, func(message []byte) error {
		return w.Handle(ctx, message)
	}); err != nil {
		return fmt.Errorf("failed to start notification consumer: %w", err)
	}
	logrus.Info("Notification worker started")
	return nil
}

// Handle decodes and delivers one message. Undecodable messages are dropped.
func (w *NotificationWorker) Handle(ctx context.Context, message []byte) error {
	var n entity.Notification
	if err := json.Unmarshal(message, &n); err != nil {
		logrus.WithError(err).Error("Dropping malformed notification")
		return nil
	}
	return w.deliverer.Deliver(ctx, n)
}
