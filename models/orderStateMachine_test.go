package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNextState(t *testing.T) {
	cid := int64(55)
	tests := []struct {
		name       string
		from       OrderStatus
		kind       OutcomeKind
		wantStatus OrderStatus
		wantRecord bool
		wantErr    bool
	}{
		{"exact from pending", OrderStatusPendingValidation, OutcomeExactMatch, OrderStatusValidated, true, false},
		{"force from anomaly", OrderStatusAnomaly, OutcomeForceValidated, OrderStatusValidated, true, false},
		{"price anomaly", OrderStatusPendingValidation, OutcomeAnomalyWrongPrice, OrderStatusAnomaly, false, false},
		{"reference anomaly from draft", OrderStatusDraft, OutcomeAnomalyWrongReference, OrderStatusAnomaly, false, false},
		{"rejected from anomaly", OrderStatusAnomaly, OutcomeAnomalyRejected, OrderStatusAnomalyRejected, false, false},
		{"rejected stays rejected", OrderStatusAnomalyRejected, OutcomeAnomalyRejected, OrderStatusAnomalyRejected, false, false},
		{"rejected needs anomaly", OrderStatusPendingValidation, OutcomeAnomalyRejected, "", false, true},
		{"no match keeps anomaly", OrderStatusAnomaly, OutcomeNoMatch, OrderStatusAnomaly, false, false},
		{"no match keeps pending", OrderStatusPendingValidation, OutcomeNoMatch, OrderStatusPendingValidation, false, false},
		{"validated is not reconcilable", OrderStatusValidated, OutcomeExactMatch, "", false, true},
		{"completed is not reconcilable", OrderStatusCompleted, OutcomeExactMatch, "", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cur := OrderState{Status: tc.from}
			next, err := NextState(cur, ReconciliationOutcome{Kind: tc.kind, MatchedContractId: cid, Notes: "n", PriceDelta: decimal.Zero})
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next.Status != tc.wantStatus {
				t.Fatalf("status=%s want %s", next.Status, tc.wantStatus)
			}
			if tc.wantRecord != (next.ExternalRecordId != nil) {
				t.Fatalf("external record set=%v want %v", next.ExternalRecordId != nil, tc.wantRecord)
			}
			if next.Notes != "n" || next.LastOutcome != tc.kind {
				t.Fatalf("notes/outcome not recorded: %+v", next)
			}
		})
	}
}

func TestNextStateRevalidationIsNoop(t *testing.T) {
	held := int64(55)
	cur := OrderState{Status: OrderStatusValidated, Notes: "Contract validated", ExternalRecordId: &held, LastOutcome: OutcomeExactMatch}
	for _, kind := range []OutcomeKind{OutcomeExactMatch, OutcomeForceValidated} {
		next, err := NextState(cur, ReconciliationOutcome{Kind: kind, MatchedContractId: 55, Notes: "other"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		if !next.Equal(cur) {
			t.Fatalf("%s: state changed: %+v", kind, next)
		}
	}
	if _, err := NextState(cur, ReconciliationOutcome{Kind: OutcomeExactMatch, MatchedContractId: 56}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("different contract: expected ErrInvalidTransition, got %v", err)
	}
}

func TestNextStateValidationClearsAnomalyContract(t *testing.T) {
	prev := int64(9)
	next, err := NextState(OrderState{Status: OrderStatusAnomaly, AnomalyContractId: &prev}, ReconciliationOutcome{Kind: OutcomeExactMatch, MatchedContractId: 10})
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if next.AnomalyContractId != nil || *next.ExternalRecordId != 10 {
		t.Fatalf("unexpected state: %+v", next)
	}
}

func TestNextStateRepeatedOutcomeIsEqual(t *testing.T) {
	outcome := ReconciliationOutcome{Kind: OutcomeAnomalyWrongPrice, MatchedContractId: 3, Notes: "price off"}
	first, err := NextState(OrderState{Status: OrderStatusPendingValidation}, outcome)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NextState(first, outcome)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("repeated outcome must be a no-op: %+v vs %+v", first, second)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		dir      OrderDirection
		from, to OrderStatus
		want     bool
	}{
		{OrderDirectionSell, OrderStatusValidated, OrderStatusPaid, true},
		{OrderDirectionSell, OrderStatusPaid, OrderStatusCompleted, true},
		{OrderDirectionSell, OrderStatusPaid, OrderStatusDelivered, false},
		{OrderDirectionBuy, OrderStatusPaid, OrderStatusDelivered, true},
		{OrderDirectionBuy, OrderStatusPaid, OrderStatusCompleted, false},
		{OrderDirectionBuy, OrderStatusDelivered, OrderStatusCompleted, true},
		{OrderDirectionBuy, OrderStatusAnomalyRejected, OrderStatusRejected, true},
		{OrderDirectionSell, OrderStatusCompleted, OrderStatusRejected, false},
		{OrderDirection("swap"), OrderStatusValidated, OrderStatusPaid, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.dir, tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s, %s)=%v want %v", tc.dir, tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNewOrderTotals(t *testing.T) {
	order, err := NewOrder(1, OrderDirectionSell, 2, []OrderLine{
		{TypeId: 34, Quantity: 3, UnitPrice: decimal.RequireFromString("1.005")},
		{TypeId: 35, Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
	})
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if !order.TotalPrice.Equal(decimal.RequireFromString("23.03")) {
		t.Fatalf("total=%s want 23.03", order.TotalPrice)
	}
	if err := order.BeforeSave(nil); err != nil {
		t.Fatalf("BeforeSave: %v", err)
	}

	if _, err := NewOrder(1, OrderDirectionSell, 2, []OrderLine{{TypeId: 34, Quantity: 0}}); err == nil {
		t.Fatalf("zero quantity must be rejected")
	}
	if _, err := NewOrder(1, OrderDirectionSell, 2, []OrderLine{{TypeId: 34, Quantity: 1}, {TypeId: 34, Quantity: 2}}); err == nil {
		t.Fatalf("duplicate type must be rejected")
	}
	if _, err := NewOrder(1, "swap", 2, []OrderLine{{TypeId: 34, Quantity: 1}}); err == nil {
		t.Fatalf("invalid direction must be rejected")
	}
}
