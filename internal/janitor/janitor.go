package janitor

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper is the registry's expiry hook.
type Sweeper interface {
	Sweep(now time.Time, idleTTL, finishedTTL time.Duration) []string
}

type Config struct {
	Interval    time.Duration
	IdleTTL     time.Duration
	FinishedTTL time.Duration
}

// Janitor periodically drops expired matches.
type Janitor struct {
	sweeper Sweeper
	cfg     Config
	logger  *zap.Logger
	sched   gocron.Scheduler
	now     func() time.Time
}

// Start schedules the sweep. With both TTLs zero nothing expires, and Start returns nil, nil.
func Start(s Sweeper, cfg Config, logger *zap.Logger) (*Janitor, error) {
	if cfg.IdleTTL <= 0 && cfg.FinishedTTL <= 0 {
		return nil, nil
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("janitor: interval must be positive, got %s", cfg.Interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("janitor: new scheduler: %w", err)
	}
	j := &Janitor{sweeper: s, cfg: cfg, logger: logger, sched: sched, now: time.Now}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(func() { j.RunOnce() }),
		gocron.WithName("match-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("janitor: schedule sweep: %w", err)
	}
	sched.Start()
	logger.Info("janitor_start",
		zap.Duration("interval", cfg.Interval),
		zap.Duration("idle_ttl", cfg.IdleTTL),
		zap.Duration("finished_ttl", cfg.FinishedTTL),
	)
	return j, nil
}

// RunOnce sweeps immediately and returns the removed match ids.
func (j *Janitor) RunOnce() []string {
	if j == nil {
		return nil
	}
	removed := j.sweeper.Sweep(j.now(), j.cfg.IdleTTL, j.cfg.FinishedTTL)
	if len(removed) > 0 {
		j.logger.Info("janitor_sweep", zap.Int("removed", len(removed)), zap.Strings("match_ids", removed))
	}
	return removed
}

// Stop shuts the scheduler down. Safe on a nil Janitor.
func (j *Janitor) Stop() error {
	if j == nil {
		return nil
	}
	return j.sched.Shutdown()
}
