package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/exchange_backend/appctx"
	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const settlementHandler = "settlement"

// SettlementService runs the admin half of the lifecycle: approval, rejection,
// payment, delivery and stock settlement. Every action is one status-guarded transaction.
type SettlementService struct {
	DB       *gorm.DB
	Orders   *models.OrderStore
	Notifier Notifier
	Admins   AdminDirectory
	Logger   *logrus.Logger
	now      func() time.Time
}

func NewSettlementService(orders *models.OrderStore, notifier Notifier, admins AdminDirectory, logger *logrus.Logger) *SettlementService {
	return &SettlementService{
		DB:       orders.DB(),
		Orders:   orders,
		Notifier: notifier,
		Admins:   admins,
		Logger:   logger,
		now:      time.Now,
	}
}

func (s *SettlementService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// Approve records an admin's sign-off on a VALIDATED order. Buy orders must still be
// coverable by current stock. Approving twice is a no-op.
func (s *SettlementService) Approve(ctx context.Context, orderID, actorID int) (*models.Order, error) {
	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = models.LockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusValidated {
			return fmt.Errorf("%w: %s order %d cannot be approved from %s", models.ErrInvalidTransition, order.Direction, order.ID, order.Status)
		}
		if order.ApprovedAt != nil {
			return nil
		}
		if order.Direction == models.OrderDirectionBuy {
			if err := checkStockTx(tx, *order); err != nil {
				return err
			}
		}
		now := s.clock()
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{"approved_by": actorID, "approved_at": now}).Error; err != nil {
			return err
		}
		order.ApprovedBy = &actorID
		order.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Reject moves a not-yet-paid order into terminal REJECTED and tells the owner why.
func (s *SettlementService) Reject(ctx context.Context, orderID, actorID int, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	notes := fmt.Sprintf("Rejected by admin %d", actorID)
	if reason != "" {
		notes += ": " + reason
	}
	order, err := s.transition(ctx, orderID, models.OrderStatusRejected, notes, nil)
	if err != nil {
		return nil, err
	}
	s.notifyOwner(ctx, *order, "Order Rejected", models.NotificationLevelDanger,
		fmt.Sprintf("Your %s order %s was rejected.\n%s", order.Direction, order.Reference, notes))
	return order, nil
}

// MarkPaid records that the ISK side of a VALIDATED order has been settled.
func (s *SettlementService) MarkPaid(ctx context.Context, orderID int) (*models.Order, error) {
	now := s.clock()
	order, err := s.transition(ctx, orderID, models.OrderStatusPaid, "",
		map[string]interface{}{"payment_verified_at": now})
	if err != nil {
		return nil, err
	}
	order.PaymentVerifiedAt = &now
	s.notifyOwner(ctx, *order, "Payment Verified", models.NotificationLevelSuccess,
		fmt.Sprintf("Payment for order %s (%s) has been verified.", order.Reference, FormatISK(order.TotalPrice)))
	return order, nil
}

// MarkDelivered records hand-over of the goods for a PAID buy order.
func (s *SettlementService) MarkDelivered(ctx context.Context, orderID int) (*models.Order, error) {
	now := s.clock()
	order, err := s.transition(ctx, orderID, models.OrderStatusDelivered, "",
		map[string]interface{}{"delivered_at": now})
	if err != nil {
		return nil, err
	}
	order.DeliveredAt = &now
	s.notifyOwner(ctx, *order, "Buy Order Delivered", models.NotificationLevelSuccess,
		fmt.Sprintf("The items of order %s have been delivered.\n%s", order.Reference, itemsSummary(*order)))
	return order, nil
}

func (s *SettlementService) transition(ctx context.Context, orderID int, to models.OrderStatus, notes string, extra map[string]interface{}) (*models.Order, error) {
	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = models.LockOrder(tx, orderID)
		if err != nil {
			return err
		}
		return models.TransitionTx(tx, order, to, notes, extra)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Complete settles the order against the stock ledger: a sell adds every line, a buy
// removes it. Ledger rows, transaction log, status and the order.completed event commit
// together or not at all. A buy that would overdraw stock fails with
// *models.LedgerUnderflowError, leaves the order DELIVERED and alerts admins.
func (s *SettlementService) Complete(ctx context.Context, orderID int) (*models.Order, error) {
	correlationID, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	messageID := "settle:" + strconv.Itoa(orderID)

	var order *models.Order
	settled := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = models.LockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusCompleted {
			return nil
		}
		if !models.CanTransition(order.Direction, order.Status, models.OrderStatusCompleted) {
			return fmt.Errorf("%w: %s order %d cannot move from %s to %s",
				models.ErrInvalidTransition, order.Direction, order.ID, order.Status, models.OrderStatusCompleted)
		}
		skip, err := BeginIdempotency(tx, order.ConfigId, settlementHandler, messageID)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		now := s.clock()
		for i := range order.Items {
			it := &order.Items[i]
			delta := it.Quantity
			if order.Direction == models.OrderDirectionBuy {
				delta = -it.Quantity
			}
			after, err := models.AdjustStockTx(tx, order.ConfigId, it.TypeId, it.TypeName, delta)
			if err != nil {
				return err
			}
			if err := tx.Model(it).Update("stock_after", after).Error; err != nil {
				return err
			}
			it.StockAfter = &after
			row := models.ExchangeTransaction{
				ConfigId:    order.ConfigId,
				OrderId:     order.ID,
				Reference:   order.Reference,
				Direction:   order.Direction,
				OwnerId:     order.OwnerId,
				TypeId:      it.TypeId,
				TypeName:    it.TypeName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				TotalPrice:  it.LineTotal,
				StockAfter:  after,
				ContractId:  order.ExternalRecordId,
				CompletedAt: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if err := models.TransitionTx(tx, order, models.OrderStatusCompleted, "",
			map[string]interface{}{"completed_at": now}); err != nil {
			return err
		}
		order.CompletedAt = &now
		payload := map[string]interface{}{
			"order_id":    order.ID,
			"reference":   order.Reference,
			"direction":   order.Direction,
			"owner_id":    order.OwnerId,
			"total_price": order.TotalPrice.StringFixed(2),
			"lines":       len(order.Items),
		}
		if err := models.EnqueueOutboxEvent(tx, order.ConfigId, order.ID, models.OutboxKindOrderCompleted, payload, correlationID); err != nil {
			return err
		}
		if err := MarkIdempotencySucceeded(tx, order.ConfigId, settlementHandler, messageID); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		var underflow *models.LedgerUnderflowError
		if errors.As(err, &underflow) {
			s.alertUnderflow(ctx, orderID, underflow)
		}
		return nil, err
	}

	if settled {
		s.notifyOwner(ctx, *order, "Order Completed", models.NotificationLevelSuccess,
			fmt.Sprintf("Order %s is complete.\n%s\nTotal: %s", order.Reference, itemsSummary(*order), FormatISK(order.TotalPrice)))
	}
	return order, nil
}

// checkStockTx verifies every buy line is coverable by current stock.
func checkStockTx(tx *gorm.DB, order models.Order) error {
	var short []string
	for _, it := range order.Items {
		var entry models.StockEntry
		err := tx.Where("config_id = ? AND type_id = ?", order.ConfigId, it.TypeId).Take(&entry).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if entry.Quantity < it.Quantity {
			short = append(short, fmt.Sprintf("%s: available %d, required %d", it.TypeName, entry.Quantity, it.Quantity))
		}
	}
	if len(short) > 0 {
		return fmt.Errorf("%w: %s", models.ErrInsufficientStock, strings.Join(short, "; "))
	}
	return nil
}

func (s *SettlementService) alertUnderflow(ctx context.Context, orderID int, underflow *models.LedgerUnderflowError) {
	if s.Logger != nil {
		config.LogError(s.Logger, "SettlementService", "Complete", "stock underflow", map[string]interface{}{
			"order_id":  orderID,
			"config_id": underflow.ConfigId,
			"type_id":   underflow.TypeId,
		}, underflow)
	}
	if s.Admins == nil || s.Notifier == nil {
		return
	}
	admins, err := s.Admins.ListAdminUserIDs(ctx)
	if err != nil {
		s.logNotifyError(orderID, err)
		return
	}
	for _, id := range admins {
		s.send(ctx, orderID, Notification{
			RecipientId: id,
			Title:       "Stock underflow blocked completion",
			Body:        fmt.Sprintf("Order %d could not be completed: %s", orderID, underflow.Error()),
			Level:       models.NotificationLevelDanger,
		})
	}
}

func (s *SettlementService) notifyOwner(ctx context.Context, order models.Order, title string, level models.NotificationLevel, body string) {
	s.send(ctx, order.ID, Notification{
		RecipientId: order.OwnerId,
		Title:       title,
		Body:        body,
		Level:       level,
		Link:        orderLink(order),
	})
}

func (s *SettlementService) send(ctx context.Context, orderID int, n Notification) {
	if s.Notifier == nil {
		return
	}
	n.CorrelationId, _ = appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.logNotifyError(orderID, err)
	}
}

func (s *SettlementService) logNotifyError(orderID int, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"field":    "SettlementService",
		"order_id": orderID,
	}).Warn(err.Error())
}
