package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/pricing"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNoMarketPrice = errors.New("no market price")
	ErrInvalidOrder  = errors.New("invalid order")
)

// IntakeLine is one requested line before pricing.
type IntakeLine struct {
	TypeId   int    `json:"type_id" binding:"required,gt=0"`
	TypeName string `json:"type_name" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

// OrderIntake prices and records new member orders.
type OrderIntake struct {
	Orders   *models.OrderStore
	Prices   pricing.PriceSource
	Admins   AdminDirectory
	Notifier Notifier
	Throttle Throttle
	Logger   *logrus.Logger
}

func NewOrderIntake(orders *models.OrderStore, prices pricing.PriceSource, admins AdminDirectory, notifier Notifier, throttle Throttle, logger *logrus.Logger) *OrderIntake {
	return &OrderIntake{Orders: orders, Prices: prices, Admins: admins, Notifier: notifier, Throttle: throttle, Logger: logger}
}

// PlaceOrder prices every line from the market with the config's markup and creates the
// order in PENDING_VALIDATION. Buy orders must be coverable by current stock.
func (s *OrderIntake) PlaceOrder(ctx context.Context, cfg models.ExchangeConfig, ownerID int, direction models.OrderDirection, lines []IntakeLine) (*models.Order, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidOrder, direction)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidOrder)
	}
	typeIDs := make([]int, 0, len(lines))
	seen := make(map[int]bool, len(lines))
	for _, l := range lines {
		if l.TypeId <= 0 {
			return nil, fmt.Errorf("%w: type id %d", ErrInvalidOrder, l.TypeId)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for type %d must be positive", ErrInvalidOrder, l.TypeId)
		}
		if seen[l.TypeId] {
			return nil, fmt.Errorf("%w: duplicate type id %d", ErrInvalidOrder, l.TypeId)
		}
		seen[l.TypeId] = true
		typeIDs = append(typeIDs, l.TypeId)
	}

	quotes, err := s.Prices.Prices(ctx, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch market prices: %w", err)
	}
	priced := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		unit := pricing.UnitPrice(cfg, direction, quotes[l.TypeId])
		if !unit.IsPositive() {
			return nil, fmt.Errorf("%w for %s (type %d)", ErrNoMarketPrice, l.TypeName, l.TypeId)
		}
		priced = append(priced, models.OrderLine{TypeId: l.TypeId, TypeName: l.TypeName, Quantity: l.Quantity, UnitPrice: unit})
	}

	order, err := models.NewOrder(cfg.ID, direction, ownerID, priced)
	if err != nil {
		return nil, err
	}
	err = s.Orders.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if direction == models.OrderDirectionBuy {
			if err := checkStockTx(tx, *order); err != nil {
				return err
			}
		}
		return s.Orders.CreateOrderTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":     "OrderIntake",
			"config_id": cfg.ID,
			"order_id":  order.ID,
			"reference": order.Reference,
			"direction": order.Direction,
			"total":     order.TotalPrice.StringFixed(2),
		}).Info("order placed")
	}
	if direction == models.OrderDirectionBuy {
		s.notifyAdmins(ctx, *order)
	}
	return order, nil
}

func (s *OrderIntake) notifyAdmins(ctx context.Context, order models.Order) {
	if s.Admins == nil || s.Notifier == nil {
		return
	}
	admins, err := s.Admins.ListAdminUserIDs(ctx)
	if err != nil {
		s.warn(order, err)
		return
	}
	n := Notification{
		Title: fmt.Sprintf("New buy order %s", order.Reference),
		Body:  fmt.Sprintf("%s\nTotal: %s", itemsSummary(order), FormatISK(order.TotalPrice)),
		Level: models.NotificationLevelInfo,
		Link:  orderLink(order),
	}
	for _, id := range admins {
		if s.Throttle != nil {
			ok, err := s.Throttle.ShouldNotify(ctx, ThrottleKey(order.ID, fmt.Sprintf("admin:%d", id), "created"))
			if err == nil && !ok {
				continue
			}
		}
		n.RecipientId = id
		if err := s.Notifier.Notify(ctx, n); err != nil {
			s.warn(order, err)
		}
	}
}

func (s *OrderIntake) warn(order models.Order, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"field":    "OrderIntake",
		"order_id": order.ID,
	}).Warn(err.Error())
}
