package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/sirupsen/logrus"
)

type Notification struct {
	RecipientId   int
	Title         string
	Body          string
	Level         models.NotificationLevel
	Link          string
	CorrelationId string
}

// Notifier delivers one message. Each call may fail independently; callers treat
// failures as *models.NotificationDeliveryError and never roll back state for them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// PubSubNotifier hands notifications to the delivery service over NOTIFICATION_TOPIC.
type PubSubNotifier struct {
	publish func(ctx context.Context, msg config.NotificationMessage) (string, error)
}

func NewPubSubNotifier() *PubSubNotifier {
	return &PubSubNotifier{publish: config.PublishNotification}
}

func (p *PubSubNotifier) Notify(ctx context.Context, n Notification) error {
	_, err := p.publish(ctx, config.NotificationMessage{
		RecipientId:   n.RecipientId,
		Title:         n.Title,
		Body:          n.Body,
		Level:         string(n.Level),
		Link:          n.Link,
		CorrelationId: n.CorrelationId,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return &models.NotificationDeliveryError{RecipientId: n.RecipientId, Title: n.Title, Err: err}
	}
	return nil
}

// LogNotifier writes notifications to the structured log. Used when Pub/Sub is not configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	if l.Logger == nil {
		return nil
	}
	l.Logger.WithFields(logrus.Fields{
		"field":          "Notification",
		"recipient_id":   n.RecipientId,
		"level":          n.Level,
		"link":           n.Link,
		"correlation_id": n.CorrelationId,
	}).Info(n.Title + ": " + n.Body)
	return nil
}

// MultiNotifier fans out to every notifier and joins their failures.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
