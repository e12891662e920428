package models

import "fmt"

// OrderState is the slice of an order that reconciliation owns.
type OrderState struct {
	Status            OrderStatus
	Notes             string
	ExternalRecordId  *int64
	AnomalyContractId *int64
	LastOutcome       OutcomeKind
}

func (o Order) State() OrderState {
	return OrderState{
		Status:            o.Status,
		Notes:             o.Notes,
		ExternalRecordId:  o.ExternalRecordId,
		AnomalyContractId: o.AnomalyContractId,
		LastOutcome:       o.LastOutcome,
	}
}

func (s OrderState) Equal(other OrderState) bool {
	return s.Status == other.Status &&
		s.Notes == other.Notes &&
		s.LastOutcome == other.LastOutcome &&
		int64PtrEqual(s.ExternalRecordId, other.ExternalRecordId) &&
		int64PtrEqual(s.AnomalyContractId, other.AnomalyContractId)
}

// NextState folds a reconciliation outcome into the order's current state.
// no_match keeps the pre-pass status; every other kind fixes the status.
// Re-validating an already VALIDATED order against the contract it holds is a no-op.
func NextState(current OrderState, outcome ReconciliationOutcome) (OrderState, error) {
	if current.Status == OrderStatusValidated && outcome.IsValidation() &&
		current.ExternalRecordId != nil && *current.ExternalRecordId == outcome.MatchedContractId {
		return current, nil
	}
	if !current.Status.IsActionable() {
		return current, fmt.Errorf("%w: %s is not reconcilable", ErrInvalidTransition, current.Status)
	}
	next := current
	next.Notes = outcome.Notes
	next.LastOutcome = outcome.Kind

	contractID := outcome.MatchedContractId
	switch outcome.Kind {
	case OutcomeExactMatch, OutcomeForceValidated:
		next.Status = OrderStatusValidated
		next.ExternalRecordId = &contractID
		next.AnomalyContractId = nil
	case OutcomeAnomalyWrongPrice, OutcomeAnomalyWrongReference, OutcomeAnomalyItemsMismatch:
		next.Status = OrderStatusAnomaly
		next.AnomalyContractId = &contractID
	case OutcomeAnomalyRejected:
		if current.Status != OrderStatusAnomaly && current.Status != OrderStatusAnomalyRejected {
			return current, fmt.Errorf("%w: anomaly_rejected requires ANOMALY, got %s", ErrInvalidTransition, current.Status)
		}
		next.Status = OrderStatusAnomalyRejected
		next.AnomalyContractId = &contractID
	case OutcomeNoMatch:
		// status stays where it was: the counterparty contract may not exist yet
	default:
		return current, fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}
	return next, nil
}

// adminTransitions lists the statuses each admin action may start from, per direction.
var adminTransitions = map[OrderDirection]map[OrderStatus][]OrderStatus{
	OrderDirectionSell: {
		OrderStatusRejected:  {OrderStatusDraft, OrderStatusPendingValidation, OrderStatusAnomaly, OrderStatusAnomalyRejected, OrderStatusValidated},
		OrderStatusPaid:      {OrderStatusValidated},
		OrderStatusCompleted: {OrderStatusPaid},
	},
	OrderDirectionBuy: {
		OrderStatusRejected:  {OrderStatusDraft, OrderStatusPendingValidation, OrderStatusAnomaly, OrderStatusAnomalyRejected, OrderStatusValidated},
		OrderStatusPaid:      {OrderStatusValidated},
		OrderStatusDelivered: {OrderStatusPaid},
		OrderStatusCompleted: {OrderStatusDelivered},
	},
}

// CanTransition reports whether an admin action may move an order from -> to.
func CanTransition(direction OrderDirection, from, to OrderStatus) bool {
	byTarget, ok := adminTransitions[direction]
	if !ok {
		return false
	}
	for _, s := range byTarget[to] {
		if s == from {
			return true
		}
	}
	return false
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
