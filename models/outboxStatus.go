package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// OutboxStatus is an operator-facing view of one order's outbox rows.
type OutboxStatus struct {
	EventId          int        `json:"event_id"`
	OrderId          int        `json:"order_id"`
	Kind             string     `json:"kind"`
	PublishStatus    string     `json:"publish_status"`
	PublishAttempts  int        `json:"publish_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LastPublishError *string    `json:"last_publish_error"`
	CreatedAt        time.Time  `json:"created_at"`
	PublishedAt      *time.Time `json:"published_at"`
}

func toOutboxStatus(evt OutboxEvent) OutboxStatus {
	return OutboxStatus{
		EventId:          evt.ID,
		OrderId:          evt.OrderId,
		Kind:             evt.Kind,
		PublishStatus:    evt.PublishStatus,
		PublishAttempts:  evt.PublishAttempts,
		NextAttemptAt:    evt.NextAttemptAt,
		LastPublishError: evt.LastPublishError,
		CreatedAt:        evt.CreatedAt,
		PublishedAt:      evt.PublishedAt,
	}
}

// ListOutboxStatus returns every event of an order, oldest first.
func ListOutboxStatus(ctx context.Context, db *gorm.DB, orderID int) ([]OutboxStatus, error) {
	var rows []OutboxEvent
	if err := db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]OutboxStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, toOutboxStatus(r))
	}
	return out, nil
}

// ReviveOutbox puts an order's unsent events (FAILED or DEAD) back to PENDING with a fresh
// attempt budget. Returns gorm.ErrRecordNotFound when there is nothing to revive.
func ReviveOutbox(ctx context.Context, db *gorm.DB, orderID int) ([]OutboxStatus, error) {
	res := db.WithContext(ctx).
		Model(&OutboxEvent{}).
		Where("order_id = ? AND publish_status IN ?", orderID, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
			"locked_at":        nil,
			"locked_by":        nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return ListOutboxStatus(ctx, db, orderID)
}
