package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockEntry is the hub's available quantity of one item type.
// Unique constraint: (config_id, type_id). Quantity is never negative.
type StockEntry struct {
	ID        int       `gorm:"primary_key" json:"id"`
	ConfigId  int       `gorm:"not null;index:uniq_stock_config_type,unique" json:"config_id"`
	TypeId    int       `gorm:"not null;index:uniq_stock_config_type,unique" json:"type_id"`
	TypeName  string    `gorm:"size:255" json:"type_name"`
	Quantity  int64     `gorm:"not null;default:0" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *StockEntry) BeforeSave(tx *gorm.DB) error {
	if e.Quantity < 0 {
		return &LedgerUnderflowError{ConfigId: e.ConfigId, TypeId: e.TypeId, Available: 0, Requested: -e.Quantity}
	}
	return nil
}

// StockLedger tracks available quantity per item type and exchange config.
type StockLedger struct {
	db *gorm.DB
}

func NewStockLedger(db *gorm.DB) *StockLedger {
	return &StockLedger{db: db}
}

// GetStock returns 0 for a type the hub has never held.
func (l *StockLedger) GetStock(ctx context.Context, configID int, typeID int) (int64, error) {
	return stockQuantity(l.db.WithContext(ctx), configID, typeID)
}

func (l *StockLedger) ListStock(ctx context.Context, configID int) ([]StockEntry, error) {
	entries := []StockEntry{}
	if err := l.db.WithContext(ctx).
		Where("config_id = ? AND quantity > 0", configID).
		Order("type_id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// AdjustStock applies delta in its own transaction and returns the new quantity.
func (l *StockLedger) AdjustStock(ctx context.Context, configID int, typeID int, typeName string, delta int64) (int64, error) {
	var after int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		after, err = AdjustStockTx(tx, configID, typeID, typeName, delta)
		return err
	})
	return after, err
}

// AdjustStockTx applies delta inside tx. A decrement is a single conditional UPDATE
// (quantity >= requested), so concurrent settlements can never drive stock negative;
// when it matches no row the result is a *LedgerUnderflowError.
func AdjustStockTx(tx *gorm.DB, configID int, typeID int, typeName string, delta int64) (int64, error) {
	if delta == 0 {
		return stockQuantity(tx, configID, typeID)
	}
	if delta > 0 {
		entry := StockEntry{ConfigId: configID, TypeId: typeID, TypeName: typeName}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
			return 0, err
		}
		if err := tx.Model(&StockEntry{}).
			Where("config_id = ? AND type_id = ?", configID, typeID).
			Update("quantity", gorm.Expr("quantity + ?", delta)).Error; err != nil {
			return 0, err
		}
		return stockQuantity(tx, configID, typeID)
	}

	requested := -delta
	res := tx.Model(&StockEntry{}).
		Where("config_id = ? AND type_id = ? AND quantity >= ?", configID, typeID, requested).
		Update("quantity", gorm.Expr("quantity - ?", requested))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		available, err := stockQuantity(tx, configID, typeID)
		if err != nil {
			return 0, err
		}
		return available, &LedgerUnderflowError{ConfigId: configID, TypeId: typeID, Available: available, Requested: requested}
	}
	return stockQuantity(tx, configID, typeID)
}

func stockQuantity(db *gorm.DB, configID int, typeID int) (int64, error) {
	var entry StockEntry
	err := db.Where("config_id = ? AND type_id = ?", configID, typeID).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return entry.Quantity, nil
}
