package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/shopspring/decimal"
)

const (
	testCharacter      int64 = 2112000001
	testOtherCharacter int64 = 2112000002
)

func snapshot(cfg *models.ExchangeConfig, id int64, mutate func(*models.ContractSnapshot)) models.ContractSnapshot {
	s := models.ContractSnapshot{
		ContractId:      id,
		CorporationId:   cfg.CorporationId,
		IssuerId:        testCharacter,
		AssigneeId:      cfg.CorporationId,
		Type:            models.ContractTypeItemExchange,
		Status:          models.ContractStatusOutstanding,
		Title:           "INDY-1",
		StartLocationId: cfg.StructureId,
		EndLocationId:   cfg.StructureId,
		Price:           decimal.RequireFromString("5500"),
		DateIssued:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Items: []models.ContractItem{
			{RecordId: 1, TypeId: 34, Quantity: 1000, IsIncluded: true},
		},
	}
	if mutate != nil {
		mutate(&s)
	}
	return s
}

func TestFindCandidatesSellDirection(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewContractSnapshotStore(db)
	ctx := context.Background()

	snaps := []models.ContractSnapshot{
		snapshot(cfg, 10, nil),
		snapshot(cfg, 11, func(s *models.ContractSnapshot) { s.Type = models.ContractTypeCourier }),
		snapshot(cfg, 12, func(s *models.ContractSnapshot) { s.StartLocationId, s.EndLocationId = 60003760, 60003760 }),
		snapshot(cfg, 13, func(s *models.ContractSnapshot) { s.IssuerId = testOtherCharacter }),
		snapshot(cfg, 14, func(s *models.ContractSnapshot) { s.AssigneeId = 0; s.AcceptorId = cfg.CorporationId }),
		snapshot(cfg, 15, func(s *models.ContractSnapshot) { s.AssigneeId = 424242 }),
	}
	if err := store.UpsertSnapshots(ctx, snaps); err != nil {
		t.Fatalf("UpsertSnapshots: %v", err)
	}

	got, err := store.FindCandidates(ctx, *cfg, models.OrderDirectionSell, []int64{testCharacter})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 2 || got[0].ContractId != 10 || got[1].ContractId != 14 {
		t.Fatalf("expected contracts [10 14], got %+v", contractIDs(got))
	}
	if len(got[0].Items) != 1 || got[0].Items[0].Quantity != 1000 {
		t.Fatalf("items not preloaded: %+v", got[0].Items)
	}
}

func TestFindCandidatesBuyDirection(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewContractSnapshotStore(db)
	ctx := context.Background()

	buy := func(s *models.ContractSnapshot) {
		s.IssuerId = 90000001
		s.IssuerCorporationId = cfg.CorporationId
		s.AssigneeId = testCharacter
	}
	snaps := []models.ContractSnapshot{
		snapshot(cfg, 20, buy),
		snapshot(cfg, 21, func(s *models.ContractSnapshot) { buy(s); s.IssuerCorporationId = 1 }),
		snapshot(cfg, 22, func(s *models.ContractSnapshot) { buy(s); s.AssigneeId = testOtherCharacter }),
	}
	if err := store.UpsertSnapshots(ctx, snaps); err != nil {
		t.Fatalf("UpsertSnapshots: %v", err)
	}

	got, err := store.FindCandidates(ctx, *cfg, models.OrderDirectionBuy, []int64{testCharacter})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if ids := contractIDs(got); len(ids) != 1 || ids[0] != 20 {
		t.Fatalf("expected [20], got %v", ids)
	}
}

func TestFindCandidatesNoIdentitiesIsEmpty(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	got, err := models.NewContractSnapshotStore(db).FindCandidates(context.Background(), *cfg, models.OrderDirectionSell, nil)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestUpsertSnapshotsReplacesItems(t *testing.T) {
	db := newTestDB(t)
	cfg := seedConfig(t, db)
	store := models.NewContractSnapshotStore(db)
	ctx := context.Background()

	if err := store.UpsertSnapshots(ctx, []models.ContractSnapshot{snapshot(cfg, 30, nil)}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	updated := snapshot(cfg, 30, func(s *models.ContractSnapshot) {
		s.Status = models.ContractStatusFinished
		s.Items = []models.ContractItem{
			{RecordId: 1, TypeId: 34, Quantity: 400, IsIncluded: true},
			{RecordId: 2, TypeId: 35, Quantity: 50, IsIncluded: true},
		}
	})
	if err := store.UpsertSnapshots(ctx, []models.ContractSnapshot{updated}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetSnapshot(ctx, 30)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got.Status != models.ContractStatusFinished {
		t.Fatalf("status not updated: %s", got.Status)
	}
	qty := got.IncludedQuantities()
	if len(got.Items) != 2 || qty[34] != 400 || qty[35] != 50 {
		t.Fatalf("items not replaced: %+v", got.Items)
	}
	if len(updated.Items) != 2 || updated.Items[0].ContractId != 0 {
		t.Fatalf("caller's items were mutated: %+v", updated.Items)
	}
}

func contractIDs(snaps []models.ContractSnapshot) []int64 {
	out := make([]int64, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.ContractId)
	}
	return out
}
