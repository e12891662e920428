package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/mmdatafocus/exchange_backend/models"
)

// PlannedChange is one order update a dry-run pass would have written.
type PlannedChange struct {
	OrderId    int                `json:"order_id"`
	Reference  string             `json:"reference"`
	From       models.OrderStatus `json:"from"`
	To         models.OrderStatus `json:"to"`
	Outcome    models.OutcomeKind `json:"outcome"`
	ContractId int64              `json:"contract_id,omitempty"`
	Notes      string             `json:"notes"`
}

// DryRunOrders wraps an OrderRepository so ApplyOutcome only records the change.
// Reads still go to the wrapped store.
type DryRunOrders struct {
	OrderRepository

	mu      sync.Mutex
	planned []PlannedChange
}

func NewDryRunOrders(inner OrderRepository) *DryRunOrders {
	return &DryRunOrders{OrderRepository: inner}
}

func (d *DryRunOrders) ApplyOutcome(ctx context.Context, order *models.Order, outcome models.ReconciliationOutcome, correlationID string) (bool, error) {
	before := order.State()
	next, err := models.NextState(before, outcome)
	if err != nil {
		return false, err
	}
	if next.Equal(before) {
		return false, nil
	}
	d.mu.Lock()
	d.planned = append(d.planned, PlannedChange{
		OrderId:    order.ID,
		Reference:  order.Reference,
		From:       before.Status,
		To:         next.Status,
		Outcome:    outcome.Kind,
		ContractId: outcome.MatchedContractId,
		Notes:      next.Notes,
	})
	d.mu.Unlock()

	order.Status = next.Status
	order.Notes = next.Notes
	order.ExternalRecordId = next.ExternalRecordId
	order.AnomalyContractId = next.AnomalyContractId
	order.LastOutcome = next.LastOutcome
	return true, nil
}

// Planned returns the recorded changes ordered by order id.
func (d *DryRunOrders) Planned() []PlannedChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]PlannedChange(nil), d.planned...)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderId < out[j].OrderId })
	return out
}

// DryRun returns a copy of r that plans instead of writing and sends no notifications.
func (r *Reconciler) DryRun() (*Reconciler, *DryRunOrders) {
	orders := NewDryRunOrders(r.Orders)
	cp := *r
	cp.Orders = orders
	cp.Notifier = nil
	return &cp, orders
}
