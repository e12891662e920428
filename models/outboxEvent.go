package models

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/exchange_backend/config"
	"gorm.io/gorm"
)

// OutboxEvent is written in the same transaction as the state change it announces
// and published after commit by the dispatcher.
type OutboxEvent struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	ConfigId         int        `gorm:"not null;index" json:"config_id"`
	OrderId          int        `gorm:"not null;index" json:"order_id"`
	Kind             string     `gorm:"size:64;not null" json:"kind"`
	Payload          []byte     `gorm:"type:blob" json:"payload"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueOutboxEvent must be called with the transaction that performs the state change.
func EnqueueOutboxEvent(tx *gorm.DB, configID, orderID int, kind string, payload any, correlationID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	evt := OutboxEvent{
		ConfigId:      configID,
		OrderId:       orderID,
		Kind:          kind,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationID,
	}
	return tx.Create(&evt).Error
}

func ConvertToExchangeEventMessage(evt OutboxEvent) config.ExchangeEventMessage {
	return config.ExchangeEventMessage{
		ID:            evt.ID,
		ConfigId:      evt.ConfigId,
		OrderId:       evt.OrderId,
		Kind:          evt.Kind,
		Payload:       evt.Payload,
		CorrelationId: evt.CorrelationId,
		OccurredAt:    evt.CreatedAt,
	}
}
