package models

// Outbox publish statuses for OutboxEvent.PublishStatus.
// Keep these as strings (DB values).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Outbox event kinds published to EXCHANGE_EVENTS_TOPIC.
const (
	OutboxKindOrderValidated = "order.validated"
	OutboxKindOrderCompleted = "order.completed"
)
