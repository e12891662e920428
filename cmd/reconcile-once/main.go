// reconcile-once runs a single reconciliation pass for one exchange config and prints
// the pass summary. With --dry-run nothing is written and nobody is notified; the
// planned order changes are printed instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/workflow"
)

func main() {
	configID := flag.Int("config-id", 0, "Required: exchange config id")
	dryRun := flag.Bool("dry-run", false, "Plan changes without writing or notifying")
	withPayments := flag.Bool("verify-payments", false, "Also run the payment verification sweep (ignored with --dry-run)")
	flag.Parse()

	if *configID <= 0 {
		fmt.Fprintln(os.Stderr, "--config-id is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	cfg, err := models.GetExchangeConfig(ctx, db, *configID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %d: %v\n", *configID, err)
		os.Exit(1)
	}

	orders := models.NewOrderStore(db, config.OrderReferencePrefix())
	snapshots := models.NewContractSnapshotStore(db)
	r := workflow.NewReconciler(orders, snapshots, models.NewIdentityStore(db), logger)
	// local pass lock only; order updates are status-conditional
	admins := workflow.AdminDirectoryFunc(func(ctx context.Context) ([]int, error) {
		return models.ListAdminUserIDs(ctx, db)
	})
	r.Admins = admins

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *dryRun {
		dry, planned := r.DryRun()
		summary, err := dry.RunPass(ctx, *cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dry run failed: %v\n", err)
			os.Exit(1)
		}
		_ = enc.Encode(map[string]any{"summary": summary, "planned": planned.Planned()})
		return
	}

	summary, err := r.RunPass(ctx, *cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pass failed: %v\n", err)
		os.Exit(1)
	}
	result := map[string]any{"summary": summary}
	if *withPayments {
		settlement := workflow.NewSettlementService(orders, r.Notifier, admins, logger)
		payments, err := settlement.VerifyPayments(ctx, *cfg, snapshots)
		if err != nil {
			fmt.Fprintf(os.Stderr, "payment sweep failed: %v\n", err)
			os.Exit(1)
		}
		result["payments"] = payments
	}
	_ = enc.Encode(result)
}
