package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/exchange_backend/models"
)

func TestStockLedgerAdjust(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	ledger := models.NewStockLedger(db)
	ctx := context.Background()

	if q, err := ledger.GetStock(ctx, cfg.ID, 34); err != nil || q != 0 {
		t.Fatalf("unknown type should read 0, got %d err=%v", q, err)
	}

	after, err := ledger.AdjustStock(ctx, cfg.ID, 34, "Tritanium", 1000)
	if err != nil || after != 1000 {
		t.Fatalf("add: after=%d err=%v", after, err)
	}
	after, err = ledger.AdjustStock(ctx, cfg.ID, 34, "Tritanium", 500)
	if err != nil || after != 1500 {
		t.Fatalf("add again: after=%d err=%v", after, err)
	}
	after, err = ledger.AdjustStock(ctx, cfg.ID, 34, "Tritanium", -1200)
	if err != nil || after != 300 {
		t.Fatalf("subtract: after=%d err=%v", after, err)
	}

	entries, err := ledger.ListStock(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("ListStock: %v", err)
	}
	if len(entries) != 1 || entries[0].Quantity != 300 || entries[0].TypeName != "Tritanium" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestStockLedgerUnderflow(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	ledger := models.NewStockLedger(db)
	ctx := context.Background()

	if _, err := ledger.AdjustStock(ctx, cfg.ID, 35, "Pyerite", 10); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := ledger.AdjustStock(ctx, cfg.ID, 35, "Pyerite", -11)
	var under *models.LedgerUnderflowError
	if !errors.As(err, &under) {
		t.Fatalf("expected LedgerUnderflowError, got %v", err)
	}
	if under.Available != 10 || under.Requested != 11 {
		t.Fatalf("unexpected underflow detail: %+v", under)
	}
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("underflow should unwrap to ErrInsufficientStock")
	}
	if q, _ := ledger.GetStock(ctx, cfg.ID, 35); q != 10 {
		t.Fatalf("failed adjustment must not change stock, got %d", q)
	}

	// never-held type
	if _, err := ledger.AdjustStock(ctx, cfg.ID, 36, "Mexallon", -1); !errors.As(err, &under) {
		t.Fatalf("expected underflow on empty type, got %v", err)
	}
}

func TestStockLedgerIsolatedPerConfig(t *testing.T) {
	db := newTestDB(t)
	a := seedConfig(t, db)
	b := seedConfig(t, db)
	ledger := models.NewStockLedger(db)
	ctx := context.Background()

	if _, err := ledger.AdjustStock(ctx, a.ID, 34, "Tritanium", 5); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if q, _ := ledger.GetStock(ctx, b.ID, 34); q != 0 {
		t.Fatalf("stock leaked across configs: %d", q)
	}
}
