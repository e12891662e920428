package workflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var workflowDBSeq int64

// storeFixture wires the real GORM stores over an in-memory SQLite database.
type storeFixture struct {
	db         *gorm.DB
	cfg        models.ExchangeConfig
	orders     *models.OrderStore
	ledger     *models.StockLedger
	snapshots  *models.ContractSnapshotStore
	identities *models.IdentityStore
	notifier   *recordingNotifier
	settlement *SettlementService
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	n := atomic.AddInt64(&workflowDBSeq, 1)
	db, err := config.OpenSQLite(fmt.Sprintf("file:workflow_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := models.ExchangeConfig{CorporationId: tCorp, StructureId: tStructure, StructureName: "Hub Keepstar", HangarDivision: 1, IsActive: true}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("create config: %v", err)
	}
	f := &storeFixture{
		db:         db,
		cfg:        cfg,
		orders:     models.NewOrderStore(db, "INDY"),
		ledger:     models.NewStockLedger(db),
		snapshots:  models.NewContractSnapshotStore(db),
		identities: models.NewIdentityStore(db),
		notifier:   &recordingNotifier{},
	}
	admins := AdminDirectoryFunc(func(ctx context.Context) ([]int, error) { return []int{1}, nil })
	f.settlement = NewSettlementService(f.orders, f.notifier, admins, nil)
	return f
}

func line(typeID int, name string, qty int64, unit string) models.OrderLine {
	return models.OrderLine{TypeId: typeID, TypeName: name, Quantity: qty, UnitPrice: decimal.RequireFromString(unit)}
}

func (f *storeFixture) createOrder(t *testing.T, direction models.OrderDirection, lines ...models.OrderLine) *models.Order {
	t.Helper()
	order, err := models.NewOrder(f.cfg.ID, direction, 7, lines)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if err := f.orders.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

func (f *storeFixture) validate(t *testing.T, order *models.Order, contractID int64) {
	t.Helper()
	outcome := models.ReconciliationOutcome{
		Kind:              models.OutcomeExactMatch,
		MatchedContractId: contractID,
		Notes:             fmt.Sprintf("Contract validated: %d", contractID),
	}
	changed, err := f.orders.ApplyOutcome(context.Background(), order, outcome, "test")
	if err != nil || !changed {
		t.Fatalf("ApplyOutcome: changed=%v err=%v", changed, err)
	}
}

func (f *storeFixture) reload(t *testing.T, id int) *models.Order {
	t.Helper()
	o, err := f.orders.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder(%d): %v", id, err)
	}
	return o
}

func (f *storeFixture) stock(t *testing.T, typeID int) int64 {
	t.Helper()
	q, err := f.ledger.GetStock(context.Background(), f.cfg.ID, typeID)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	return q
}

func (f *storeFixture) outboxKinds(t *testing.T) []string {
	t.Helper()
	var kinds []string
	if err := f.db.Model(&models.OutboxEvent{}).Order("id ASC").Pluck("kind", &kinds).Error; err != nil {
		t.Fatalf("outbox: %v", err)
	}
	return kinds
}

func (f *storeFixture) putContract(t *testing.T, c models.ContractSnapshot) {
	t.Helper()
	if err := f.snapshots.UpsertSnapshots(context.Background(), []models.ContractSnapshot{c}); err != nil {
		t.Fatalf("UpsertSnapshots: %v", err)
	}
}
