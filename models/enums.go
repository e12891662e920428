package models

import (
	"encoding/json"
	"errors"
)

type OrderDirection string

const (
	// OrderDirectionSell: a member sells materials to the hub.
	OrderDirectionSell OrderDirection = "sell"
	// OrderDirectionBuy: a member buys materials from the hub.
	OrderDirectionBuy OrderDirection = "buy"
)

func (d OrderDirection) IsValid() bool {
	return d == OrderDirectionSell || d == OrderDirectionBuy
}

// convert input to enum type
func (d *OrderDirection) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("order direction must be string")
	}
	switch OrderDirection(str) {
	case OrderDirectionSell, OrderDirectionBuy:
		*d = OrderDirection(str)
	default:
		return errors.New("invalid order direction")
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusDraft             OrderStatus = "DRAFT"
	OrderStatusPendingValidation OrderStatus = "PENDING_VALIDATION"
	OrderStatusValidated         OrderStatus = "VALIDATED"
	OrderStatusAnomaly           OrderStatus = "ANOMALY"
	OrderStatusAnomalyRejected   OrderStatus = "ANOMALY_REJECTED"
	OrderStatusRejected          OrderStatus = "REJECTED"
	OrderStatusPaid              OrderStatus = "PAID"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
)

// ActionableStatuses are the statuses a reconciliation pass picks up.
var ActionableStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusPendingValidation,
	OrderStatusAnomaly,
	OrderStatusAnomalyRejected,
}

func (s OrderStatus) IsActionable() bool {
	for _, a := range ActionableStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusRejected || s == OrderStatusCompleted
}

type ContractType string

const (
	ContractTypeItemExchange ContractType = "item_exchange"
	ContractTypeCourier      ContractType = "courier"
	ContractTypeAuction      ContractType = "auction"
	ContractTypeUnknown      ContractType = "unknown"
)

type ContractStatus string

const (
	ContractStatusOutstanding        ContractStatus = "outstanding"
	ContractStatusInProgress         ContractStatus = "in_progress"
	ContractStatusFinished           ContractStatus = "finished"
	ContractStatusFinishedIssuer     ContractStatus = "finished_issuer"
	ContractStatusFinishedContractor ContractStatus = "finished_contractor"
	ContractStatusRejected           ContractStatus = "rejected"
	ContractStatusFailed             ContractStatus = "failed"
	ContractStatusDeleted            ContractStatus = "deleted"
	ContractStatusReversed           ContractStatus = "reversed"
	ContractStatusExpired            ContractStatus = "expired"
)

// IsFinished reports whether both parties consummated the contract in-game.
func (s ContractStatus) IsFinished() bool {
	return s == ContractStatusFinished
}

func (s ContractStatus) IsRejected() bool {
	return s == ContractStatusRejected
}

// IsLive reports whether the contract can still back an order.
func (s ContractStatus) IsLive() bool {
	switch s {
	case ContractStatusOutstanding, ContractStatusInProgress, ContractStatusFinished:
		return true
	default:
		return false
	}
}

type UserRole string

const (
	UserRoleAdmin  UserRole = "A"
	UserRoleMember UserRole = "M"
)

// NotificationLevel mirrors the delivery service's severity levels.
type NotificationLevel string

const (
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelSuccess NotificationLevel = "success"
	NotificationLevelWarning NotificationLevel = "warning"
	NotificationLevelDanger  NotificationLevel = "danger"
)

type MarkupBase string

const (
	MarkupBaseBuy  MarkupBase = "buy"
	MarkupBaseSell MarkupBase = "sell"
)
