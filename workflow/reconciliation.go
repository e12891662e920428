package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/exchange_backend/appctx"
	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// OrderRepository is the slice of the order store a pass needs.
type OrderRepository interface {
	ListActionable(ctx context.Context, configID int) ([]models.Order, error)
	ClaimedContracts(ctx context.Context, configID int) (map[int64]int, error)
	ApplyOutcome(ctx context.Context, order *models.Order, outcome models.ReconciliationOutcome, correlationID string) (bool, error)
	GetOrder(ctx context.Context, id int) (*models.Order, error)
}

type CandidateSource interface {
	FindCandidates(ctx context.Context, cfg models.ExchangeConfig, direction models.OrderDirection, identityIDs []int64) ([]models.ContractSnapshot, error)
}

type IdentityResolver interface {
	ListOwnedIdentities(ctx context.Context, userID int) ([]int64, error)
}

type AdminDirectory interface {
	ListAdminUserIDs(ctx context.Context) ([]int, error)
}

// AdminDirectoryFunc adapts a plain function to AdminDirectory.
type AdminDirectoryFunc func(ctx context.Context) ([]int, error)

func (f AdminDirectoryFunc) ListAdminUserIDs(ctx context.Context) ([]int, error) { return f(ctx) }

// PassSummary counts what one pass did. Processed = Validated + Anomalies + Waiting + Unchanged + Skipped.
type PassSummary struct {
	RunId     string `json:"run_id"`
	ConfigId  int    `json:"config_id"`
	Processed int    `json:"processed"`
	Validated int    `json:"validated"`
	Anomalies int    `json:"anomalies"`
	Waiting   int    `json:"waiting"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
}

type Reconciler struct {
	Orders     OrderRepository
	Candidates CandidateSource
	Identities IdentityResolver
	Admins     AdminDirectory
	Throttle   Throttle
	Notifier   Notifier
	Locker     PassLocker
	Logger     *logrus.Logger

	Workers int
	Lookup  RetryPolicy
}

func NewReconciler(orders OrderRepository, candidates CandidateSource, identities IdentityResolver, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		Orders:     orders,
		Candidates: candidates,
		Identities: identities,
		Throttle:   NewMemoryThrottle(config.NotifyThrottleWindow()),
		Notifier:   LogNotifier{Logger: logger},
		Locker:     NewLocalPassLocker(),
		Logger:     logger,
		Workers:    config.ReconcileWorkers(),
		Lookup: RetryPolicy{
			Attempts: config.ReconcileLookupAttempts(),
			Timeout:  config.ReconcileLookupTimeout(),
			Backoff:  DefaultLookupBackoff,
		},
	}
}

// GetOrder exposes the current order state across the service boundary.
func (r *Reconciler) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	return r.Orders.GetOrder(ctx, id)
}

// RunPass reconciles every actionable order of one exchange config. Per-order failures
// are logged and skipped; only a *models.PersistenceError is returned. Re-running a pass
// with no new contract data writes nothing and notifies nobody.
func (r *Reconciler) RunPass(ctx context.Context, cfg models.ExchangeConfig) (PassSummary, error) {
	summary := PassSummary{RunId: uuid.NewString(), ConfigId: cfg.ID}
	ctx = appctx.Set(ctx, appctx.ContextKeyRunId, summary.RunId)
	if corr, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); corr == "" {
		ctx = appctx.Set(ctx, appctx.ContextKeyCorrelationId, summary.RunId)
	}
	ctx = appctx.Set(ctx, appctx.ContextKeyConfigId, cfg.ID)

	ctx, span := otel.Tracer("exchange/reconcile").Start(ctx, "RunPass")
	span.SetAttributes(attribute.Int("config_id", cfg.ID), attribute.String("run_id", summary.RunId))
	defer span.End()

	locker := r.Locker
	if locker == nil {
		locker = NewLocalPassLocker()
	}
	err := locker.WithLock(ctx, cfg.ID, func(ctx context.Context) error {
		var err error
		summary, err = r.runPass(ctx, cfg, summary)
		return err
	})
	if err != nil && !errors.Is(err, ErrPassInProgress) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("processed", summary.Processed),
		attribute.Int("validated", summary.Validated),
		attribute.Int("anomalies", summary.Anomalies),
		attribute.Int("unchanged", summary.Unchanged),
	)
	return summary, err
}

type orderResult struct {
	changed bool
	skipped bool
	status  models.OrderStatus
}

func (r *Reconciler) runPass(ctx context.Context, cfg models.ExchangeConfig, summary PassSummary) (PassSummary, error) {
	start := time.Now()
	orders, err := r.Orders.ListActionable(ctx, cfg.ID)
	if err != nil {
		return summary, &models.PersistenceError{Op: fmt.Sprintf("list actionable orders for config %d", cfg.ID), Err: err}
	}
	claimedRows, err := r.Orders.ClaimedContracts(ctx, cfg.ID)
	if err != nil {
		return summary, &models.PersistenceError{Op: fmt.Sprintf("list claimed contracts for config %d", cfg.ID), Err: err}
	}
	claims := newClaimRegistry(claimedRows)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i := range orders {
		order := orders[i]
		g.Go(func() error {
			res, err := r.processOrder(gctx, cfg, &order, claims)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch {
			case res.skipped:
				summary.Skipped++
			case !res.changed:
				summary.Unchanged++
			case res.status == models.OrderStatusValidated:
				summary.Validated++
			case res.status == models.OrderStatusAnomaly || res.status == models.OrderStatusAnomalyRejected:
				summary.Anomalies++
			default:
				summary.Waiting++
			}
			return nil
		})
	}
	err = g.Wait()

	if r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"field":       "Reconciler",
			"config_id":   cfg.ID,
			"run_id":      summary.RunId,
			"orders":      len(orders),
			"processed":   summary.Processed,
			"validated":   summary.Validated,
			"anomalies":   summary.Anomalies,
			"waiting":     summary.Waiting,
			"unchanged":   summary.Unchanged,
			"skipped":     summary.Skipped,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("reconciliation pass finished")
	}
	return summary, err
}

// processOrder never lets a per-order problem escape; only persistence errors are returned.
func (r *Reconciler) processOrder(ctx context.Context, cfg models.ExchangeConfig, order *models.Order, claims *claimRegistry) (orderResult, error) {
	identities, err := r.resolveIdentities(ctx, order)
	if err != nil {
		r.logSkip(ctx, order, "resolveIdentities", err)
		return orderResult{skipped: true}, nil
	}

	var candidates []models.ContractSnapshot
	err = r.Lookup.Do(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = r.Candidates.FindCandidates(ctx, cfg, order.Direction, identities)
		return err
	})
	if err != nil {
		r.logSkip(ctx, order, "findCandidates", &models.CandidateLookupError{OrderId: order.ID, Err: err})
		return orderResult{skipped: true}, nil
	}

	before := order.State()
	req := MatchRequest{Order: *order, Config: cfg, Identities: identities, Candidates: candidates, Claimed: claims.snapshot()}
	outcome := Match(req)
	for attempt := 0; attempt < 3 && outcome.IsValidation() && !claims.reserve(outcome.MatchedContractId, order.ID); attempt++ {
		// another order of this pass took the contract first
		req.Claimed = claims.snapshot()
		outcome = Match(req)
	}

	correlationID, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	changed, err := r.Orders.ApplyOutcome(ctx, order, outcome, correlationID)
	if err != nil {
		if outcome.IsValidation() {
			claims.release(outcome.MatchedContractId, order.ID)
		}
		if models.IsPersistenceError(err) {
			return orderResult{}, err
		}
		r.logSkip(ctx, order, "applyOutcome", err)
		return orderResult{skipped: true}, nil
	}
	if !changed {
		return orderResult{status: order.Status}, nil
	}

	if r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"field":       "Reconciler",
			"config_id":   cfg.ID,
			"order_id":    order.ID,
			"reference":   order.Reference,
			"outcome":     outcome.Kind,
			"contract_id": outcome.MatchedContractId,
			"from_status": before.Status,
			"to_status":   order.Status,
		}).Info("order reconciled")
	}
	r.notifyChange(ctx, cfg, *order, outcome)
	return orderResult{changed: true, status: order.Status}, nil
}

func (r *Reconciler) resolveIdentities(ctx context.Context, order *models.Order) ([]int64, error) {
	var ids []int64
	err := r.Lookup.Do(ctx, func(ctx context.Context) error {
		var err error
		ids, err = r.Identities.ListOwnedIdentities(ctx, order.OwnerId)
		return err
	})
	if err != nil {
		return nil, &models.IdentityResolutionError{OrderId: order.ID, OwnerId: order.OwnerId, Err: err}
	}
	if len(ids) == 0 {
		return nil, &models.IdentityResolutionError{OrderId: order.ID, OwnerId: order.OwnerId, Err: models.ErrNoLinkedIdentity}
	}
	return ids, nil
}

func (r *Reconciler) logSkip(ctx context.Context, order *models.Order, step string, err error) {
	if r.Logger == nil {
		return
	}
	runID, _ := appctx.GetString(ctx, appctx.ContextKeyRunId)
	r.Logger.WithFields(logrus.Fields{
		"field":     "Reconciler",
		"step":      step,
		"config_id": order.ConfigId,
		"order_id":  order.ID,
		"run_id":    runID,
	}).Warn("order skipped this pass: " + err.Error())
}

// claimRegistry tracks contract ownership for the duration of one pass.
type claimRegistry struct {
	mu     sync.Mutex
	claims map[int64]int
}

func newClaimRegistry(initial map[int64]int) *claimRegistry {
	c := &claimRegistry{claims: make(map[int64]int, len(initial))}
	for k, v := range initial {
		c.claims[k] = v
	}
	return c
}

func (c *claimRegistry) snapshot() map[int64]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]int, len(c.claims))
	for k, v := range c.claims {
		out[k] = v
	}
	return out
}

func (c *claimRegistry) reserve(contractID int64, orderID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.claims[contractID]; ok && owner != orderID {
		return false
	}
	c.claims[contractID] = orderID
	return true
}

func (c *claimRegistry) release(contractID int64, orderID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[contractID] == orderID {
		delete(c.claims, contractID)
	}
}
