// Package scheduler runs the periodic cleanup sweep over the token store.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/logging"
)

// CleanupFunc removes tokens expired longer than grace ago and reports how
// many were removed.
type CleanupFunc func(ctx context.Context, grace time.Duration) (int, error)

// Config holds sweep timing.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// Grace keeps expired tokens visible for this long before removal.
	Grace time.Duration
	// SweepTimeout bounds a single sweep.
	SweepTimeout time.Duration
}

// DefaultConfig returns the standard sweep settings.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Minute,
		Grace:        5 * time.Minute,
		SweepTimeout: time.Minute,
	}
}

// Scheduler triggers the cleanup sweep on a fixed interval.
type Scheduler struct {
	config  Config
	cleanup CleanupFunc
	cron    *cron.Cron
	logger  logging.Logger

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	lastSize int
}

// New creates a Scheduler around the cleanup function.
func New(config Config, cleanup CleanupFunc, logger logging.Logger) (*Scheduler, error) {
	if config.Interval <= 0 {
		return nil, apperrors.ValidationError(fmt.Sprintf("cleanup interval must be positive, got %v", config.Interval))
	}
	if config.Grace < 0 {
		config.Grace = 0
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = time.Minute
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Scheduler{
		config:  config,
		cleanup: cleanup,
		logger:  logger,
	}, nil
}

// Start begins the periodic sweep. Starting a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return apperrors.ValidationError("cleanup scheduler already running")
	}

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.config.Interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return apperrors.InternalError("failed to schedule cleanup sweep", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("cleanup scheduler started",
		logging.Duration("interval", s.config.Interval),
		logging.Duration("grace", s.config.Grace))
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
// The wait happens outside the mutex so a sweep recording its result
// can still acquire it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

// RunNow triggers one sweep immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	return s.runCleanup(ctx)
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SweepTimeout)
	defer cancel()

	if _, err := s.runCleanup(ctx); err != nil {
		s.logger.Error("cleanup sweep failed", err)
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) (int, error) {
	removed, err := s.cleanup(ctx, s.config.Grace)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastSize = removed
	s.mu.Unlock()

	s.logger.Debug("cleanup sweep finished", logging.Int("removed", removed))
	return removed, nil
}

// Stats reports the last sweep for the management surface.
func (s *Scheduler) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"running":  s.running,
		"interval": s.config.Interval.String(),
		"grace":    s.config.Grace.String(),
	}
	if !s.lastRun.IsZero() {
		stats["last_run"] = s.lastRun.Format(time.RFC3339)
		stats["last_removed"] = s.lastSize
	}
	return stats
}
