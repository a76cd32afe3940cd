package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iago/market-analysis-back/internal/logging"
)

// Pruner drops terminal jobs finished before the cutoff and reports how
// many were removed.
type Pruner interface {
	PruneTerminal(cutoff time.Time) int
}

type SweeperConfig struct {
	Schedule  string
	Retention time.Duration
	Pruner    Pruner
	Logger    *logging.ContextLogger
	Now       func() time.Time
}

// Sweeper periodically removes finished jobs older than the retention.
type Sweeper struct {
	cron      *cron.Cron
	schedule  string
	retention time.Duration
	pruner    Pruner
	logger    *logging.ContextLogger
	now       func() time.Time
}

func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Pruner == nil {
		return nil, errors.New("sweeper requires a pruner")
	}
	if cfg.Retention <= 0 {
		return nil, errors.New("sweeper retention must be positive")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	sweeper := &Sweeper{
		cron:      cron.New(),
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
		pruner:    cfg.Pruner,
		logger:    cfg.Logger.With("component", "sweeper"),
		now:       cfg.Now,
	}
	if _, err := sweeper.cron.AddFunc(cfg.Schedule, func() { sweeper.RunOnce() }); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cfg.Schedule, err)
	}
	return sweeper, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("job sweeper started", "schedule", s.schedule, "retention_ms", s.retention)
}

// Stop halts the schedule and waits for a running sweep up to ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("job sweeper stopped")
}

// RunOnce prunes immediately and returns the number of removed jobs.
func (s *Sweeper) RunOnce() int {
	cutoff := s.now().Add(-s.retention)
	removed := s.pruner.PruneTerminal(cutoff)
	if removed > 0 {
		s.logger.Info("terminal jobs pruned", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	} else {
		s.logger.Debug("no terminal jobs to prune", "cutoff", cutoff.Format(time.RFC3339))
	}
	return removed
}
