package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SnapshotReader loads one cached contract by id.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, contractID int64) (*models.ContractSnapshot, error)
}

// PaymentSummary counts what one verification sweep did.
type PaymentSummary struct {
	ConfigId int `json:"config_id"`
	Checked  int `json:"checked"`
	Paid     int `json:"paid"`
}

// VerifyPayments moves VALIDATED sell orders to PAID once their accepted contract
// has finished in-game. Orders whose contract is still open are left alone.
func (s *SettlementService) VerifyPayments(ctx context.Context, cfg models.ExchangeConfig, snapshots SnapshotReader) (PaymentSummary, error) {
	summary := PaymentSummary{ConfigId: cfg.ID}
	orders, err := s.Orders.ListByStatus(ctx, cfg.ID, models.OrderDirectionSell, models.OrderStatusValidated)
	if err != nil {
		return summary, &models.PersistenceError{Op: fmt.Sprintf("list validated sell orders for config %d", cfg.ID), Err: err}
	}
	for _, order := range orders {
		if order.ExternalRecordId == nil {
			continue
		}
		summary.Checked++
		snap, err := snapshots.GetSnapshot(ctx, *order.ExternalRecordId)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logSweep(order, &models.CandidateLookupError{OrderId: order.ID, Err: err})
			}
			continue
		}
		if !snap.Status.IsFinished() {
			continue
		}
		if _, err := s.transition(ctx, order.ID, models.OrderStatusPaid, "",
			map[string]interface{}{"payment_verified_at": s.clock()}); err != nil {
			if errors.Is(err, models.ErrConcurrentUpdate) || errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			return summary, &models.PersistenceError{Op: fmt.Sprintf("mark order %d paid", order.ID), Err: err}
		}
		summary.Paid++
		s.notifyOwner(ctx, order, "Sell Order Accepted", models.NotificationLevelSuccess,
			fmt.Sprintf("Contract #%d for %s was accepted. Payment of %s will be processed.",
				*order.ExternalRecordId, order.Reference, FormatISK(order.TotalPrice)))
	}
	return summary, nil
}

func (s *SettlementService) logSweep(order models.Order, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"field":     "SettlementService",
		"step":      "verifyPayments",
		"config_id": order.ConfigId,
		"order_id":  order.ID,
	}).Warn(err.Error())
}
