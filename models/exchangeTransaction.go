package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExchangeTransaction is the settlement log: one row per order line at completion.
type ExchangeTransaction struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ConfigId    int             `gorm:"not null;index:idx_exchange_tx_config_date,priority:1" json:"config_id"`
	OrderId     int             `gorm:"not null;index" json:"order_id"`
	Reference   string          `gorm:"size:64" json:"reference"`
	Direction   OrderDirection  `gorm:"size:10;not null" json:"direction"`
	OwnerId     int             `gorm:"not null;index" json:"owner_id"`
	TypeId      int             `gorm:"not null" json:"type_id"`
	TypeName    string          `gorm:"size:255" json:"type_name"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"`
	StockAfter  int64           `gorm:"not null" json:"stock_after"`
	ContractId  *int64          `json:"contract_id"`
	CompletedAt time.Time       `gorm:"not null;index:idx_exchange_tx_config_date,priority:2" json:"completed_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ListExchangeTransactions returns settlement rows in [from, to), oldest first.
// Zero times leave that bound open.
func ListExchangeTransactions(ctx context.Context, db *gorm.DB, configID int, from, to time.Time) ([]ExchangeTransaction, error) {
	rows := []ExchangeTransaction{}
	q := db.WithContext(ctx).Where("config_id = ?", configID)
	if !from.IsZero() {
		q = q.Where("completed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("completed_at < ?", to)
	}
	if err := q.Order("completed_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
