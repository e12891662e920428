package main

import (
	"context"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/pricing"
	"github.com/mmdatafocus/exchange_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the wired services behind the HTTP handlers and background workers.
type App struct {
	DB         *gorm.DB
	Logger     *logrus.Logger
	Orders     *models.OrderStore
	Ledger     *models.StockLedger
	Snapshots  *models.ContractSnapshotStore
	Identities *models.IdentityStore
	Reconciler *workflow.Reconciler
	Settlement *workflow.SettlementService
	Intake     *workflow.OrderIntake
	Scheduler  *workflow.Scheduler
}

type appDeps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Locker   *redislock.Client
	Prices   pricing.PriceSource
	Notifier workflow.Notifier
	Logger   *logrus.Logger
}

func newApp(deps appDeps) *App {
	db := deps.DB
	logger := deps.Logger

	var throttle workflow.Throttle = workflow.NewMemoryThrottle(config.NotifyThrottleWindow())
	if deps.Redis != nil {
		throttle = workflow.NewRedisThrottle(deps.Redis, config.NotifyThrottleWindow())
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = workflow.LogNotifier{Logger: logger}
	}
	admins := workflow.AdminDirectoryFunc(func(ctx context.Context) ([]int, error) {
		return models.ListAdminUserIDs(ctx, db)
	})

	a := &App{
		DB:         db,
		Logger:     logger,
		Orders:     models.NewOrderStore(db, config.OrderReferencePrefix()),
		Ledger:     models.NewStockLedger(db),
		Snapshots:  models.NewContractSnapshotStore(db),
		Identities: models.NewIdentityStore(db),
	}

	r := workflow.NewReconciler(a.Orders, a.Snapshots, a.Identities, logger)
	r.Admins = admins
	r.Throttle = throttle
	r.Notifier = notifier
	r.Locker = workflow.NewPassLocker(config.PassLockBackend(), db, deps.Locker)
	a.Reconciler = r

	a.Settlement = workflow.NewSettlementService(a.Orders, notifier, admins, logger)
	a.Intake = workflow.NewOrderIntake(a.Orders, deps.Prices, admins, notifier, throttle, logger)
	a.Scheduler = workflow.NewScheduler(func(ctx context.Context) ([]models.ExchangeConfig, error) {
		return models.ListActiveExchangeConfigs(ctx, db)
	}, r, a.Settlement, a.Snapshots, logger)
	return a
}

// defaultPriceSource reads Fuzzwork through Redis when available, an in-process cache otherwise.
func defaultPriceSource(rdb *redis.Client, logger *logrus.Logger) pricing.PriceSource {
	var cache pricing.QuoteCache = pricing.NewMemoryQuoteCache(config.PriceCacheTTL())
	if rdb != nil {
		cache = pricing.NewRedisQuoteCache(rdb, config.PriceCacheTTL())
	}
	return pricing.NewCachedPriceSource(pricing.NewFuzzworkClient(), cache, logger)
}

// defaultNotifier publishes to Pub/Sub when NOTIFICATION_TOPIC is set and always logs.
func defaultNotifier(logger *logrus.Logger, pubsubEnabled bool) workflow.Notifier {
	logged := workflow.LogNotifier{Logger: logger}
	if !pubsubEnabled {
		return logged
	}
	return workflow.MultiNotifier{logged, workflow.NewPubSubNotifier()}
}
