package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "locate-gateway/internal/common/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"disabled skips checks", Config{Enabled: false}, false},
		{"zero budget", Config{Enabled: true, Budget: 0, Window: time.Minute}, true},
		{"negative budget", Config{Enabled: true, Budget: -1, Window: time.Minute}, true},
		{"zero window", Config{Enabled: true, Budget: 10, Window: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLimiter_NonBlockingExhaustsBudget(t *testing.T) {
	limiter, err := NewLimiter(Config{
		Enabled:  true,
		Budget:   3,
		Window:   time.Hour,
		Blocking: false,
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(ctx, "locate-api"), "call %d should fit the budget", i+1)
	}

	err = limiter.Acquire(ctx, "locate-api")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeRateLimited))
}

func TestLimiter_TryAcquire(t *testing.T) {
	limiter, err := NewLimiter(Config{Enabled: true, Budget: 1, Window: time.Hour, Blocking: true})
	require.NoError(t, err)

	assert.True(t, limiter.TryAcquire())
	assert.False(t, limiter.TryAcquire())
}

func TestLimiter_DisabledPassesThrough(t *testing.T) {
	limiter, err := NewLimiter(Config{Enabled: false})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Acquire(ctx, "locate-api"))
		assert.True(t, limiter.TryAcquire())
	}
}

func TestLimiter_BlockingHonorsContext(t *testing.T) {
	limiter, err := NewLimiter(Config{Enabled: true, Budget: 1, Window: time.Hour, Blocking: true})
	require.NoError(t, err)

	require.NoError(t, limiter.Acquire(context.Background(), "locate-api"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = limiter.Acquire(ctx, "locate-api")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))
}

func TestLimiter_Stats(t *testing.T) {
	limiter, err := NewLimiter(DefaultConfig())
	require.NoError(t, err)

	stats := limiter.Stats()
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 10, stats["budget"])
	assert.Contains(t, stats, "available_tokens")
}
