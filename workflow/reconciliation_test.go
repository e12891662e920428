package workflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/exchange_backend/models"
)

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[int]*models.Order
	writes   int
	applyErr error
	listErr  error
}

func newFakeOrders(orders ...models.Order) *fakeOrders {
	f := &fakeOrders{orders: map[int]*models.Order{}}
	for i := range orders {
		o := orders[i]
		f.orders[o.ID] = &o
	}
	return f
}

func (f *fakeOrders) ListActionable(ctx context.Context, configID int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Order
	for _, o := range f.orders {
		if o.ConfigId == configID && o.Status.IsActionable() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrders) ClaimedContracts(ctx context.Context, configID int) (map[int64]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]int{}
	for _, o := range f.orders {
		if o.ExternalRecordId != nil {
			out[*o.ExternalRecordId] = o.ID
		}
	}
	return out, nil
}

func (f *fakeOrders) ApplyOutcome(ctx context.Context, order *models.Order, outcome models.ReconciliationOutcome, correlationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return false, f.applyErr
	}
	before := order.State()
	next, err := models.NextState(before, outcome)
	if err != nil {
		return false, err
	}
	if next.Equal(before) {
		return false, nil
	}
	if next.ExternalRecordId != nil {
		for _, o := range f.orders {
			if o.ID != order.ID && o.ExternalRecordId != nil && *o.ExternalRecordId == *next.ExternalRecordId {
				return false, models.ErrContractAlreadyClaimed
			}
		}
	}
	stored := f.orders[order.ID]
	for _, o := range []*models.Order{stored, order} {
		o.Status = next.Status
		o.Notes = next.Notes
		o.ExternalRecordId = next.ExternalRecordId
		o.AnomalyContractId = next.AnomalyContractId
		o.LastOutcome = next.LastOutcome
	}
	f.writes++
	return true, nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

type fakeCandidates struct {
	mu        sync.Mutex
	contracts []models.ContractSnapshot
	err       error
}

func (f *fakeCandidates) set(contracts ...models.ContractSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contracts = contracts
}

func (f *fakeCandidates) FindCandidates(ctx context.Context, cfg models.ExchangeConfig, direction models.OrderDirection, identityIDs []int64) ([]models.ContractSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.ContractSnapshot(nil), f.contracts...), nil
}

type fakeIdentities struct {
	mu       sync.Mutex
	byOwner  map[int][]int64
	failures map[int]int
}

func (f *fakeIdentities) ListOwnedIdentities(ctx context.Context, userID int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[userID] > 0 {
		f.failures[userID]--
		return nil, errors.New("identity service unavailable")
	}
	return f.byOwner[userID], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type reconcileFixture struct {
	orders     *fakeOrders
	candidates *fakeCandidates
	identities *fakeIdentities
	notifier   *recordingNotifier
	r          *Reconciler
}

func newReconcileFixture(orders ...models.Order) *reconcileFixture {
	f := &reconcileFixture{
		orders:     newFakeOrders(orders...),
		candidates: &fakeCandidates{},
		identities: &fakeIdentities{byOwner: map[int][]int64{7: {tSeller}}, failures: map[int]int{}},
		notifier:   &recordingNotifier{},
	}
	f.r = &Reconciler{
		Orders:     f.orders,
		Candidates: f.candidates,
		Identities: f.identities,
		Admins:     AdminDirectoryFunc(func(ctx context.Context) ([]int, error) { return []int{1}, nil }),
		Throttle:   NewMemoryThrottle(24 * time.Hour),
		Notifier:   f.notifier,
		Locker:     NewLocalPassLocker(),
		Workers:    4,
		Lookup:     RetryPolicy{Attempts: 2},
	}
	return f
}

func (f *reconcileFixture) pass(t *testing.T) PassSummary {
	t.Helper()
	s, err := f.r.RunPass(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	return s
}

func (f *reconcileFixture) order(t *testing.T, id int) models.Order {
	t.Helper()
	o, err := f.r.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder(%d): %v", id, err)
	}
	return *o
}

func TestRunPassIsIdempotent(t *testing.T) {
	f := newReconcileFixture(
		testOrder(1, "5500", map[int]int64{tTrit: 1000}),
		testOrder(2, "300", map[int]int64{tPye: 30}),
		testOrder(3, "10", map[int]int64{tMex: 1}),
	)
	f.candidates.set(
		sellContract(100, "INDY-1", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}),
		sellContract(200, "INDY-2", "301", models.ContractStatusOutstanding, map[int]int64{tPye: 30}),
	)

	first := f.pass(t)
	if first.Processed != 3 || first.Validated != 1 || first.Anomalies != 1 || first.Waiting != 1 {
		t.Fatalf("unexpected first summary: %+v", first)
	}
	states := map[int]models.OrderState{}
	for _, id := range []int{1, 2, 3} {
		states[id] = f.order(t, id).State()
	}
	sent, writes := f.notifier.count(), f.orders.writes

	second := f.pass(t)
	if second.Processed != 2 || second.Unchanged != 2 || second.Validated != 0 || second.Anomalies != 0 {
		t.Fatalf("second pass should change nothing: %+v", second)
	}
	for id, before := range states {
		if after := f.order(t, id).State(); !after.Equal(before) {
			t.Fatalf("order %d changed on re-run: %+v -> %+v", id, before, after)
		}
	}
	if f.notifier.count() != sent || f.orders.writes != writes {
		t.Fatalf("re-run produced side effects: notifications %d -> %d, writes %d -> %d", sent, f.notifier.count(), writes, f.orders.writes)
	}
	if got := f.order(t, 3); got.Status != models.OrderStatusPendingValidation || got.Notes != NotesWaitingForContract {
		t.Fatalf("unmatched order must stay open: %+v", got.State())
	}
}

func TestRunPassRejectedInGameRecovery(t *testing.T) {
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}))
	f.candidates.set(sellContract(100, "INDY-1", "6000", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))
	f.pass(t)
	if got := f.order(t, 1); got.Status != models.OrderStatusAnomaly || got.LastOutcome != models.OutcomeAnomalyWrongPrice {
		t.Fatalf("expected ANOMALY, got %+v", got.State())
	}

	f.candidates.set(sellContract(100, "INDY-1", "6000", models.ContractStatusRejected, map[int]int64{tTrit: 1000}))
	f.pass(t)
	got := f.order(t, 1)
	if got.Status != models.OrderStatusAnomalyRejected || !strings.Contains(got.Notes, "remains open") {
		t.Fatalf("expected ANOMALY_REJECTED with remains open, got %+v", got.State())
	}
	if s := f.pass(t); s.Unchanged != 1 {
		t.Fatalf("rejected state should be stable: %+v", s)
	}

	f.candidates.set(
		sellContract(100, "INDY-1", "6000", models.ContractStatusRejected, map[int]int64{tTrit: 1000}),
		sellContract(101, "INDY-1", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}),
	)
	f.pass(t)
	got = f.order(t, 1)
	if got.Status != models.OrderStatusValidated || got.ExternalRecordId == nil || *got.ExternalRecordId != 101 {
		t.Fatalf("corrected contract should validate: %+v", got.State())
	}
}

func TestRunPassSkipsOrdersWithLookupFailures(t *testing.T) {
	unlinked := testOrder(2, "5500", map[int]int64{tTrit: 1000})
	unlinked.OwnerId = 8
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}), unlinked)
	f.identities.failures[7] = 1 // recovered by the retry
	f.candidates.set(sellContract(100, "INDY-1", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))

	s := f.pass(t)
	if s.Processed != 2 || s.Validated != 1 || s.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if got := f.order(t, 2); got.Status != models.OrderStatusPendingValidation || got.Notes != "" {
		t.Fatalf("skipped order must keep prior state: %+v", got.State())
	}

	f.candidates.err = errors.New("snapshot cache down")
	f.orders.orders[1].Status = models.OrderStatusPendingValidation
	f.orders.orders[1].ExternalRecordId = nil
	s = f.pass(t)
	if s.Skipped != 2 {
		t.Fatalf("candidate lookup failures should skip orders: %+v", s)
	}
}

func TestRunPassSurfacesPersistenceErrors(t *testing.T) {
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}))
	f.orders.applyErr = &models.PersistenceError{Op: "apply", Err: errors.New("deadlock")}

	_, err := f.r.RunPass(context.Background(), testConfig())
	if !models.IsPersistenceError(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	f.orders.applyErr = nil
	f.orders.listErr = errors.New("connection refused")
	_, err = f.r.RunPass(context.Background(), testConfig())
	if !models.IsPersistenceError(err) {
		t.Fatalf("expected persistence error from listing, got %v", err)
	}
}

func TestRunPassNotificationFailureKeepsState(t *testing.T) {
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}))
	f.notifier.err = errors.New("pubsub down")
	f.candidates.set(sellContract(100, "INDY-1", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))

	if s := f.pass(t); s.Validated != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if got := f.order(t, 1); got.Status != models.OrderStatusValidated {
		t.Fatalf("delivery failure must not undo the transition: %+v", got.State())
	}
}

func TestRunPassNotifiesOwnerAndAdminsOnce(t *testing.T) {
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}))
	f.candidates.set(sellContract(100, "INDY-1", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))
	f.pass(t)
	f.pass(t)

	if f.notifier.count() != 2 {
		t.Fatalf("expected owner + admin notification, got %d: %+v", f.notifier.count(), f.notifier.sent)
	}
	recipients := map[int]bool{}
	for _, n := range f.notifier.sent {
		recipients[n.RecipientId] = true
	}
	if !recipients[7] || !recipients[1] {
		t.Fatalf("unexpected recipients: %v", recipients)
	}
}

func TestRunPassSameContractValidatesOneOrder(t *testing.T) {
	f := newReconcileFixture(
		testOrder(1, "5500", map[int]int64{tTrit: 1000}),
		testOrder(2, "5500", map[int]int64{tTrit: 1000}),
	)
	f.candidates.set(sellContract(100, "INDY-1 INDY-2", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))

	s := f.pass(t)
	if s.Validated != 1 {
		t.Fatalf("a contract backs at most one order: %+v", s)
	}
	claimed, _ := f.orders.ClaimedContracts(context.Background(), 1)
	if len(claimed) != 1 {
		t.Fatalf("unexpected claims: %v", claimed)
	}
}

func TestRunPassSerializedPerConfig(t *testing.T) {
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}))
	err := f.r.Locker.WithLock(context.Background(), testConfig().ID, func(ctx context.Context) error {
		_, err := f.r.RunPass(ctx, testConfig())
		return err
	})
	if !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("expected ErrPassInProgress, got %v", err)
	}
	if f.orders.writes != 0 {
		t.Fatalf("a skipped pass must not write")
	}
}

// stuckCandidates never answers buy-side lookups until the caller gives up.
type stuckCandidates struct {
	*fakeCandidates
}

func (s stuckCandidates) FindCandidates(ctx context.Context, cfg models.ExchangeConfig, direction models.OrderDirection, identityIDs []int64) ([]models.ContractSnapshot, error) {
	if direction == models.OrderDirectionBuy {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.fakeCandidates.FindCandidates(ctx, cfg, direction, identityIDs)
}

func TestRunPassCutsOffStuckLookup(t *testing.T) {
	stuck := testOrder(2, "5500", map[int]int64{tTrit: 1000})
	stuck.Direction = models.OrderDirectionBuy
	f := newReconcileFixture(testOrder(1, "5500", map[int]int64{tTrit: 1000}), stuck)
	f.candidates.set(sellContract(100, "INDY-1", "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))
	f.r.Candidates = stuckCandidates{f.candidates}
	f.r.Lookup = RetryPolicy{Attempts: 1, Timeout: 50 * time.Millisecond}

	start := time.Now()
	s := f.pass(t)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("pass took %s with a 50ms lookup timeout", elapsed)
	}
	if s.Skipped != 1 || s.Validated != 1 || s.Processed != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if got := f.order(t, 1).Status; got != models.OrderStatusValidated {
		t.Fatalf("healthy order status = %s", got)
	}
	if got := f.order(t, 2); got.Status != models.OrderStatusPendingValidation || got.Notes != "" {
		t.Fatalf("stuck order must keep its state, got %s %q", got.Status, got.Notes)
	}
}
