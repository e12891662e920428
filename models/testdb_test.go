package models_test

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

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	n := atomic.AddInt64(&testDBSeq, 1)
	dsn := fmt.Sprintf("file:models_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n)
	db, err := config.OpenSQLite(dsn)
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
	return db
}

func seedConfig(t *testing.T, db *gorm.DB) *models.ExchangeConfig {
	t.Helper()
	cfg := &models.ExchangeConfig{
		CorporationId:  98000001,
		StructureId:    1035466617946,
		StructureName:  "Hub Keepstar",
		HangarDivision: 1,
		IsActive:       true,
	}
	if err := db.Create(cfg).Error; err != nil {
		t.Fatalf("create config: %v", err)
	}
	return cfg
}

func seedOrder(t *testing.T, store *models.OrderStore, cfg *models.ExchangeConfig, direction models.OrderDirection, lines ...models.OrderLine) *models.Order {
	t.Helper()
	if len(lines) == 0 {
		lines = []models.OrderLine{{TypeId: 34, TypeName: "Tritanium", Quantity: 1000, UnitPrice: decimal.RequireFromString("5.5")}}
	}
	order, err := models.NewOrder(cfg.ID, direction, 7, lines)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if err := store.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}
