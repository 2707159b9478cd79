// Package ratelimit enforces the upstream service's call budget locally so
// this process never exhausts the allowance the provider grants per account.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	apperrors "locate-gateway/internal/common/errors"
)

// Config describes the call budget: Budget calls allowed per Window. In
// blocking mode callers wait for capacity; otherwise they fail fast with a
// rate-limited error.
type Config struct {
	Enabled  bool          `json:"enabled"`
	Budget   int           `json:"budget"`
	Window   time.Duration `json:"window"`
	Blocking bool          `json:"blocking"`
}

// DefaultConfig returns the standard budget of 10 calls per minute, blocking.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Budget:   10,
		Window:   time.Minute,
		Blocking: true,
	}
}

// Validate checks config consistency.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Budget <= 0 {
		return fmt.Errorf("rate limit budget must be positive, got %d", c.Budget)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %v", c.Window)
	}
	return nil
}

// Limiter gates upstream calls against the configured budget using a token
// bucket that refills at Budget per Window, with burst capacity of one full
// budget.
type Limiter struct {
	config  Config
	limiter *rate.Limiter
}

// NewLimiter creates a Limiter from the config.
func NewLimiter(config Config) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{config: config}
	if config.Enabled {
		perSecond := rate.Limit(float64(config.Budget) / config.Window.Seconds())
		l.limiter = rate.NewLimiter(perSecond, config.Budget)
	}
	return l, nil
}

// Acquire consumes one call from the budget. In blocking mode it waits for
// capacity, honoring ctx; in non-blocking mode it returns a rate-limited
// error when the budget is exhausted.
func (l *Limiter) Acquire(ctx context.Context, resource string) error {
	if !l.config.Enabled {
		return nil
	}

	if l.config.Blocking {
		if err := l.limiter.Wait(ctx); err != nil {
			return apperrors.TimeoutError(fmt.Sprintf("waiting for rate limit capacity for %s", resource))
		}
		return nil
	}

	if !l.limiter.Allow() {
		return apperrors.RateLimitedError(resource)
	}
	return nil
}

// TryAcquire attempts to consume one call without blocking.
func (l *Limiter) TryAcquire() bool {
	if !l.config.Enabled {
		return true
	}
	return l.limiter.Allow()
}

// Wait blocks until one call is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.config.Enabled {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Stats returns current limiter state for the management surface.
func (l *Limiter) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"enabled":  l.config.Enabled,
		"budget":   l.config.Budget,
		"window":   l.config.Window.String(),
		"blocking": l.config.Blocking,
	}
	if l.config.Enabled {
		stats["available_tokens"] = l.limiter.Tokens()
		stats["burst"] = l.limiter.Burst()
	}
	return stats
}
