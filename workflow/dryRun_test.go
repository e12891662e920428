package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/exchange_backend/models"
)

func TestDryRunPlansWithoutWriting(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	if err := f.identities.LinkCharacter(ctx, 7, tSeller, "Seller Alt"); err != nil {
		t.Fatalf("LinkCharacter: %v", err)
	}
	good := f.createOrder(t, models.OrderDirectionSell, line(tTrit, "Tritanium", 1000, "5.5"))
	f.putContract(t, sellContract(1001, "hub "+good.Reference, "5500", models.ContractStatusOutstanding, map[int]int64{tTrit: 1000}))

	r := NewReconciler(f.orders, f.snapshots, f.identities, nil)
	r.Notifier = f.notifier
	r.Throttle = NewMemoryThrottle(time.Hour)
	r.Lookup = RetryPolicy{Attempts: 1}

	dry, planned := r.DryRun()
	summary, err := dry.RunPass(ctx, f.cfg)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Validated != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	changes := planned.Planned()
	if len(changes) != 1 || changes[0].OrderId != good.ID || changes[0].To != models.OrderStatusValidated || changes[0].ContractId != 1001 {
		t.Fatalf("planned = %+v", changes)
	}
	if got := f.reload(t, good.ID); got.Status != models.OrderStatusPendingValidation {
		t.Fatalf("dry run wrote status %s", got.Status)
	}
	if kinds := f.outboxKinds(t); len(kinds) != 0 {
		t.Fatalf("dry run enqueued %v", kinds)
	}
	if f.notifier.count() != 0 {
		t.Fatalf("dry run sent %d notifications", f.notifier.count())
	}
	if r.Notifier == nil {
		t.Fatalf("DryRun must not modify the original reconciler")
	}
}
