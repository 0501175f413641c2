package projectstate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/famousjsons/projectstate/internal/scheduler"
	"github.com/hazyhaar/famousjsons/projectstate/internal/store"
)

// Service wires the SQLite store, the Updater and the refresh triggers.
type Service struct {
	store     *store.Store
	updater   *Updater
	scheduler *scheduler.Scheduler
	config    *Config
	logger    *slog.Logger
}

// Open opens the state database at cfg.DBPath and builds the Updater over it.
func Open(cfg *Config, ch Chain, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("projectstate: open store: %w", err)
	}
	svc, err := newService(cfg, ch, s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return svc, nil
}

func newService(cfg *Config, ch Chain, s *store.Store, logger *slog.Logger) (*Service, error) {
	u, err := NewUpdater(cfg, ch, s, logger)
	if err != nil {
		return nil, err
	}
	u.recorder = s

	svc := &Service{
		store:   s,
		updater: u,
		config:  cfg,
		logger:  logger,
	}
	svc.scheduler = scheduler.New([]scheduler.Task{
		{
			Name:     "fast",
			Interval: cfg.Scheduler.FastInterval,
			Run: func(ctx context.Context) error {
				_, err := u.RefreshIfNearDiscount(WithTrigger(ctx, "fast"))
				return err
			},
		},
		{
			Name:      "slow",
			Interval:  cfg.Scheduler.SlowInterval,
			Immediate: true,
			Run: func(ctx context.Context) error {
				_, err := u.Refresh(WithTrigger(ctx, "slow"))
				return err
			},
		},
		{
			Name:     "prune",
			Interval: cfg.Scheduler.PruneInterval,
			Run:      svc.pruneRefreshLog,
		},
	}, logger)
	return svc, nil
}

// Start launches the refresh triggers unless they are disabled.
func (s *Service) Start(ctx context.Context) {
	if s.config.Scheduler.Disabled {
		s.logger.Info("projectstate: scheduler disabled", "db", s.config.DBPath)
		return
	}
	go s.scheduler.Run(ctx)
	s.logger.Info("projectstate: started",
		"db", s.config.DBPath,
		"fast", s.config.Scheduler.FastInterval,
		"slow", s.config.Scheduler.SlowInterval,
	)
}

// Close closes the database.
func (s *Service) Close() error {
	return s.store.Close()
}

// Updater returns the state updater.
func (s *Service) Updater() *Updater {
	return s.updater
}

// RecentRefreshes returns the newest refresh log rows.
func (s *Service) RecentRefreshes(ctx context.Context, limit int) ([]*store.RefreshRecord, error) {
	return s.store.RecentRefreshes(ctx, limit)
}

func (s *Service) pruneRefreshLog(ctx context.Context) error {
	n, err := s.store.PruneRefreshes(ctx, time.Now().Add(-s.config.RefreshLogRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug("projectstate: refresh log pruned", "rows", n)
	}
	return nil
}
