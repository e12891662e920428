package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is a member's intent to sell materials to, or buy materials from, the hub.
// Sell and buy orders share this shape and differ only by Direction.
type Order struct {
	ID        int            `gorm:"primary_key" json:"id"`
	ConfigId  int            `gorm:"not null;index:idx_order_config_status,priority:1" json:"config_id"`
	Direction OrderDirection `gorm:"size:10;not null" json:"direction"`
	OwnerId   int            `gorm:"not null;index" json:"owner_id"`
	// Reference is derived from ID once the row exists and never changes afterwards.
	Reference string      `gorm:"size:64;index" json:"reference"`
	Status    OrderStatus `gorm:"size:32;not null;index:idx_order_config_status,priority:2" json:"status"`
	Notes     string      `gorm:"type:text" json:"notes"`
	// ExternalRecordId is the accepted contract. Unique: one contract backs at most one order.
	ExternalRecordId *int64 `gorm:"uniqueIndex:uniq_order_external_record" json:"external_record_id"`
	// AnomalyContractId remembers the near-match contract behind an ANOMALY status.
	AnomalyContractId *int64          `gorm:"index" json:"anomaly_contract_id"`
	LastOutcome       OutcomeKind     `gorm:"size:40" json:"last_outcome"`
	TotalPrice        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"`
	ApprovedBy        *int            `json:"approved_by"`
	ApprovedAt        *time.Time      `json:"approved_at"`
	PaymentVerifiedAt *time.Time      `json:"payment_verified_at"`
	DeliveredAt       *time.Time      `json:"delivered_at"`
	CompletedAt       *time.Time      `json:"completed_at"`
	Items             []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem is one line of an order.
// Unique constraint: (order_id, type_id).
type OrderItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OrderId   int             `gorm:"not null;index:uniq_order_item_type,unique" json:"order_id"`
	TypeId    int             `gorm:"not null;index:uniq_order_item_type,unique" json:"type_id"`
	TypeName  string          `gorm:"size:255" json:"type_name"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"line_total"`
	// StockAfter is settlement bookkeeping: ledger quantity right after this line settled.
	StockAfter *int64    `json:"stock_after"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// OrderLine is the priced input for one order line.
type OrderLine struct {
	TypeId    int
	TypeName  string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// NewOrder validates lines and computes line totals and the order total.
func NewOrder(configID int, direction OrderDirection, ownerID int, lines []OrderLine) (*Order, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("invalid order direction %q", direction)
	}
	if len(lines) == 0 {
		return nil, errors.New("order requires at least one line")
	}
	seen := make(map[int]bool, len(lines))
	order := &Order{
		ConfigId:   configID,
		Direction:  direction,
		OwnerId:    ownerID,
		Status:     OrderStatusPendingValidation,
		TotalPrice: decimal.Zero,
	}
	for _, l := range lines {
		if l.TypeId <= 0 {
			return nil, fmt.Errorf("invalid type id %d", l.TypeId)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("quantity for type %d must be positive", l.TypeId)
		}
		if seen[l.TypeId] {
			return nil, fmt.Errorf("duplicate type id %d", l.TypeId)
		}
		if l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("unit price for type %d must not be negative", l.TypeId)
		}
		seen[l.TypeId] = true
		unit := l.UnitPrice.Round(2)
		lineTotal := unit.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
		order.Items = append(order.Items, OrderItem{
			TypeId:    l.TypeId,
			TypeName:  l.TypeName,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
		order.TotalPrice = order.TotalPrice.Add(lineTotal)
	}
	return order, nil
}

// FormatReference builds the contract-title token for an order id, e.g. INDY-42.
func FormatReference(prefix string, id int) string {
	return fmt.Sprintf("%s-%d", prefix, id)
}

// BeforeSave enforces TotalPrice == sum(LineTotal) whenever the items are loaded.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	if len(o.Items) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal)
	}
	if !sum.Round(2).Equal(o.TotalPrice.Round(2)) {
		return fmt.Errorf("order total %s does not match line totals %s", o.TotalPrice.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

func (it *OrderItem) BeforeSave(tx *gorm.DB) error {
	if it.Quantity <= 0 {
		return fmt.Errorf("quantity for type %d must be positive", it.TypeId)
	}
	return nil
}

// ItemQuantities returns requested quantity per type id.
func (o Order) ItemQuantities() map[int]int64 {
	out := make(map[int]int64, len(o.Items))
	for _, it := range o.Items {
		out[it.TypeId] += it.Quantity
	}
	return out
}

// ItemNames returns type names per type id, for human-readable notes.
func (o Order) ItemNames() map[int]string {
	out := make(map[int]string, len(o.Items))
	for _, it := range o.Items {
		out[it.TypeId] = it.TypeName
	}
	return out
}
