package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// ChatSender delivers a text message to a chat, e.g. a Telegram bot.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// NotificationPublisher hands notifications to a queue for asynchronous delivery.
type NotificationPublisher interface {
	Publish(ctx context.Context, message interface{}) error
}

// NotificationService queues notifications when a queue is configured and
// delivers them inline otherwise.
type NotificationService struct {
	users repository.UserRepository
	queue NotificationPublisher
	chat  ChatSender
	now   Clock
}

func NewNotificationService(users repository.UserRepository, queue NotificationPublisher, chat ChatSender, clock Clock) *NotificationService {
	return &NotificationService{users: users, queue: queue, chat: chat, now: orSystemClock(clock)}
}

func (s *NotificationService) Notify(ctx context.Context, userID, title, body string, metadata map[string]string) bool {
	n := entity.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   body,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}

	if s.queue != nil {
		err := s.queue.Publish(ctx, n)
		if err == nil {
			return true
		}
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to queue notification, delivering inline")
	}

	if err := s.Deliver(ctx, n); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to deliver notification")
		return false
	}
	return true
}

// Deliver sends n over the user's chat when linked and logs it otherwise.
func (s *NotificationService) Deliver(ctx context.Context, n entity.Notification) error {
	user, err := s.users.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to load recipient: %w", err)
	}

	if s.chat != nil && user.TelegramID != "" {
		text := fmt.Sprintf("%s\n\n%s", n.Title, n.Message)
		if err := s.chat.SendMessage(ctx, user.TelegramID, text); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         user.ID,
		"email":           user.Email,
		"title":           n.Title,
	}).Info(n.Message)
	return nil
}
