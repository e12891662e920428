package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/sirupsen/logrus"
)

// ConfigLister returns the exchange configs a tick must cover.
type ConfigLister func(ctx context.Context) ([]models.ExchangeConfig, error)

// Scheduler drives periodic reconciliation followed by the payment sweep for every
// active config. A config whose pass is still running is skipped for the tick.
type Scheduler struct {
	Configs    ConfigLister
	Reconciler *Reconciler
	Settlement *SettlementService
	Snapshots  SnapshotReader
	Logger     *logrus.Logger
	Interval   time.Duration
}

func NewScheduler(configs ConfigLister, reconciler *Reconciler, settlement *SettlementService, snapshots SnapshotReader, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		Configs:    configs,
		Reconciler: reconciler,
		Settlement: settlement,
		Snapshots:  snapshots,
		Logger:     logger,
		Interval:   config.ReconcileInterval(),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.Reconciler == nil || s.Configs == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one round over every active config.
func (s *Scheduler) Tick(ctx context.Context) {
	cfgs, err := s.Configs(ctx)
	if err != nil {
		config.LogError(s.Logger, "Scheduler", "Tick", "list active configs", nil, err)
		return
	}
	for _, cfg := range cfgs {
		if ctx.Err() != nil {
			return
		}
		_, err := s.Reconciler.RunPass(ctx, cfg)
		switch {
		case errors.Is(err, ErrPassInProgress):
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{"field": "Scheduler", "config_id": cfg.ID}).Info("pass already running, skipping tick")
			}
			continue
		case err != nil:
			config.LogError(s.Logger, "Scheduler", "RunPass", "reconciliation pass", map[string]interface{}{"config_id": cfg.ID}, err)
			continue
		}
		if s.Settlement == nil || s.Snapshots == nil {
			continue
		}
		if _, err := s.Settlement.VerifyPayments(ctx, cfg, s.Snapshots); err != nil {
			config.LogError(s.Logger, "Scheduler", "VerifyPayments", "payment sweep", map[string]interface{}{"config_id": cfg.ID}, err)
		}
	}
}
