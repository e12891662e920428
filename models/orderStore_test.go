package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/shopspring/decimal"
)

func exactOutcome(contractID int64) models.ReconciliationOutcome {
	return models.ReconciliationOutcome{
		Kind:              models.OutcomeExactMatch,
		MatchedContractId: contractID,
		ContractStatus:    models.ContractStatusOutstanding,
		Notes:             "Contract validated",
	}
}

func TestCreateOrderAssignsReference(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")

	order := seedOrder(t, store, cfg, models.OrderDirectionSell)
	if order.Reference != models.FormatReference("INDY", order.ID) {
		t.Fatalf("reference=%q, want INDY-%d", order.Reference, order.ID)
	}

	got, err := store.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Reference != order.Reference || got.Status != models.OrderStatusPendingValidation {
		t.Fatalf("unexpected stored order: ref=%q status=%s", got.Reference, got.Status)
	}
	if len(got.Items) != 1 || !got.TotalPrice.Equal(decimal.RequireFromString("5500")) {
		t.Fatalf("unexpected items/total: %d items, total %s", len(got.Items), got.TotalPrice)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	db := newTestDB(t)
	store := models.NewOrderStore(db, "INDY")
	if _, err := store.GetOrder(context.Background(), 404); !errors.Is(err, models.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestApplyOutcomeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	ctx := context.Background()
	order := seedOrder(t, store, cfg, models.OrderDirectionSell)

	changed, err := store.ApplyOutcome(ctx, order, exactOutcome(501), "corr-1")
	if err != nil || !changed {
		t.Fatalf("first apply: changed=%v err=%v", changed, err)
	}
	if order.Status != models.OrderStatusValidated || order.ExternalRecordId == nil || *order.ExternalRecordId != 501 {
		t.Fatalf("in-memory order not updated: %+v", order.State())
	}

	changed, err = store.ApplyOutcome(ctx, order, exactOutcome(501), "corr-2")
	if err != nil || changed {
		t.Fatalf("second apply: changed=%v err=%v", changed, err)
	}

	var events []models.OutboxEvent
	if err := db.Where("order_id = ?", order.ID).Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.OutboxKindOrderValidated {
		t.Fatalf("expected exactly one order.validated event, got %+v", events)
	}
}

func TestApplyOutcomeNoMatchKeepsStatus(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	order := seedOrder(t, store, cfg, models.OrderDirectionBuy)

	changed, err := store.ApplyOutcome(context.Background(), order, models.ReconciliationOutcome{
		Kind:  models.OutcomeNoMatch,
		Notes: "Waiting for matching contract",
	}, "")
	if err != nil || !changed {
		t.Fatalf("apply no_match: changed=%v err=%v", changed, err)
	}
	got, _ := store.GetOrder(context.Background(), order.ID)
	if got.Status != models.OrderStatusPendingValidation || got.Notes != "Waiting for matching contract" {
		t.Fatalf("unexpected state after no_match: %+v", got.State())
	}
}

func TestApplyOutcomeStaleCopyIsConcurrentUpdate(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	ctx := context.Background()
	order := seedOrder(t, store, cfg, models.OrderDirectionSell)

	stale, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if _, err := store.ApplyOutcome(ctx, order, exactOutcome(900), ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, err = store.ApplyOutcome(ctx, stale, models.ReconciliationOutcome{
		Kind:              models.OutcomeAnomalyWrongPrice,
		MatchedContractId: 901,
		Notes:             "price",
	}, "")
	if !errors.Is(err, models.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestApplyOutcomeRejectsSecondClaimOnContract(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	ctx := context.Background()
	first := seedOrder(t, store, cfg, models.OrderDirectionSell)
	second := seedOrder(t, store, cfg, models.OrderDirectionSell)

	if _, err := store.ApplyOutcome(ctx, first, exactOutcome(777), ""); err != nil {
		t.Fatalf("apply first: %v", err)
	}
	_, err := store.ApplyOutcome(ctx, second, exactOutcome(777), "")
	if !errors.Is(err, models.ErrContractAlreadyClaimed) {
		t.Fatalf("expected ErrContractAlreadyClaimed, got %v", err)
	}
	if models.IsPersistenceError(err) {
		t.Fatalf("a duplicate claim must not be reported as a persistence error")
	}
	if second.Status != models.OrderStatusPendingValidation {
		t.Fatalf("in-memory order mutated on failure: %s", second.Status)
	}

	claimed, err := store.ClaimedContracts(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("ClaimedContracts: %v", err)
	}
	if len(claimed) != 1 || claimed[777] != first.ID {
		t.Fatalf("unexpected claimed map: %v", claimed)
	}
}

func TestApplyOutcomeRefusesTerminalOrders(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	order := seedOrder(t, store, cfg, models.OrderDirectionSell)
	order.Status = models.OrderStatusCompleted

	if _, err := store.ApplyOutcome(context.Background(), order, exactOutcome(1), ""); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListActionableFiltersStatusAndConfig(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	other := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	ctx := context.Background()

	open := seedOrder(t, store, cfg, models.OrderDirectionSell)
	done := seedOrder(t, store, cfg, models.OrderDirectionBuy)
	seedOrder(t, store, other, models.OrderDirectionSell)
	if err := db.Model(&models.Order{}).Where("id = ?", done.ID).Update("status", models.OrderStatusCompleted).Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	orders, err := store.ListActionable(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("ListActionable: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != open.ID {
		t.Fatalf("expected only order %d, got %+v", open.ID, orders)
	}
	if len(orders[0].Items) != 1 {
		t.Fatalf("items not preloaded")
	}
}

func TestTransitionTxGuardsStatus(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewOrderStore(db, "INDY")
	order := seedOrder(t, store, cfg, models.OrderDirectionSell)

	err := models.TransitionTx(db, order, models.OrderStatusPaid, "", nil)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("PENDING_VALIDATION -> PAID should be invalid, got %v", err)
	}
	if err := models.TransitionTx(db, order, models.OrderStatusRejected, "Rejected by admin", nil); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := store.GetOrder(context.Background(), order.ID)
	if got.Status != models.OrderStatusRejected || got.Notes != "Rejected by admin" {
		t.Fatalf("unexpected state: %+v", got.State())
	}
}
