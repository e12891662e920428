package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderStore owns the authoritative order lifecycle.
type OrderStore struct {
	db              *gorm.DB
	referencePrefix string
}

func NewOrderStore(db *gorm.DB, referencePrefix string) *OrderStore {
	return &OrderStore{db: db, referencePrefix: referencePrefix}
}

func (s *OrderStore) DB() *gorm.DB {
	return s.db
}

// CreateOrder inserts the order with its lines and assigns the reference, atomically.
func (s *OrderStore) CreateOrder(ctx context.Context, order *Order) error {
	return s.CreateOrderTx(s.db.WithContext(ctx), order)
}

func (s *OrderStore) CreateOrderTx(db *gorm.DB, order *Order) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if order.Status == "" {
			order.Status = OrderStatusPendingValidation
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		order.Reference = FormatReference(s.referencePrefix, order.ID)
		return tx.Model(&Order{}).Where("id = ?", order.ID).Update("reference", order.Reference).Error
	})
}

func (s *OrderStore) GetOrder(ctx context.Context, id int) (*Order, error) {
	return getOrder(s.db.WithContext(ctx), id)
}

func getOrder(db *gorm.DB, id int) (*Order, error) {
	var order Order
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("type_id ASC")
	}).Where("id = ?", id).Take(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListActionable loads every order a reconciliation pass must look at, oldest first.
func (s *OrderStore) ListActionable(ctx context.Context, configID int) ([]Order, error) {
	return s.ListByStatus(ctx, configID, "", ActionableStatuses...)
}

// ListByStatus filters by config and status; an empty direction matches both.
func (s *OrderStore) ListByStatus(ctx context.Context, configID int, direction OrderDirection, statuses ...OrderStatus) ([]Order, error) {
	orders := []Order{}
	q := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("type_id ASC")
		}).
		Where("config_id = ? AND status IN ?", configID, statuses)
	if direction != "" {
		q = q.Where("direction = ?", direction)
	}
	if err := q.Order("id ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ClaimedContracts maps accepted contract ids to the order that holds them.
func (s *OrderStore) ClaimedContracts(ctx context.Context, configID int) (map[int64]int, error) {
	var rows []struct {
		ID               int
		ExternalRecordId int64
	}
	if err := s.db.WithContext(ctx).Model(&Order{}).
		Select("id, external_record_id").
		Where("config_id = ? AND external_record_id IS NOT NULL", configID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(rows))
	for _, r := range rows {
		out[r.ExternalRecordId] = r.ID
	}
	return out, nil
}

// ApplyOutcome is the only mutator of Status/Notes/ExternalRecordId for the reconciliation
// segment of the lifecycle. It writes nothing when the outcome leaves the order unchanged,
// so calling it every pass is safe. On a first transition into VALIDATED it enqueues the
// settlement hook event in the same transaction.
func (s *OrderStore) ApplyOutcome(ctx context.Context, order *Order, outcome ReconciliationOutcome, correlationID string) (bool, error) {
	before := order.State()
	next, err := NextState(before, outcome)
	if err != nil {
		return false, err
	}
	if next.Equal(before) {
		return false, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Order{}).
			Where("id = ? AND status = ?", order.ID, before.Status).
			Updates(map[string]interface{}{
				"status":              next.Status,
				"notes":               next.Notes,
				"external_record_id":  next.ExternalRecordId,
				"anomaly_contract_id": next.AnomalyContractId,
				"last_outcome":        next.LastOutcome,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		if next.Status == OrderStatusValidated && before.Status != OrderStatusValidated {
			payload := map[string]interface{}{
				"order_id":    order.ID,
				"reference":   order.Reference,
				"direction":   order.Direction,
				"owner_id":    order.OwnerId,
				"contract_id": outcome.MatchedContractId,
				"outcome":     outcome.Kind,
				"total_price": order.TotalPrice.StringFixed(2),
			}
			if err := EnqueueOutboxEvent(tx, order.ConfigId, order.ID, OutboxKindOrderValidated, payload, correlationID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrConcurrentUpdate):
			return false, err
		case isDuplicateKeyError(err):
			return false, fmt.Errorf("%w: contract %d", ErrContractAlreadyClaimed, outcome.MatchedContractId)
		default:
			return false, &PersistenceError{Op: fmt.Sprintf("apply outcome to order %d", order.ID), Err: err}
		}
	}

	order.Status = next.Status
	order.Notes = next.Notes
	order.ExternalRecordId = next.ExternalRecordId
	order.AnomalyContractId = next.AnomalyContractId
	order.LastOutcome = next.LastOutcome
	return true, nil
}

// LockOrder re-reads the order FOR UPDATE inside tx.
func LockOrder(tx *gorm.DB, id int) (*Order, error) {
	return getOrder(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// TransitionTx applies an admin status change inside tx, guarded by the current status.
func TransitionTx(tx *gorm.DB, order *Order, to OrderStatus, notes string, extra map[string]interface{}) error {
	if !CanTransition(order.Direction, order.Status, to) {
		return fmt.Errorf("%w: %s order %d cannot move from %s to %s", ErrInvalidTransition, order.Direction, order.ID, order.Status, to)
	}
	fields := map[string]interface{}{"status": to}
	if notes != "" {
		fields["notes"] = notes
	}
	for k, v := range extra {
		fields[k] = v
	}
	res := tx.Model(&Order{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	order.Status = to
	if notes != "" {
		order.Notes = notes
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
