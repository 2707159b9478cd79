package token

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/logging"
)

// Authenticator obtains a fresh token from the upstream service. A zero
// expiresAt means the upstream did not report one and the Manager applies its
// configured TTL.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (token string, expiresAt time.Time, err error)
}

// ManagerConfig holds Manager tuning knobs.
type ManagerConfig struct {
	// TokenTTL is the assumed token lifetime when the upstream does not
	// report an expiry.
	TokenTTL time.Duration
	// RefreshBuffer is how long before expiry a cached token is refreshed
	// instead of reused.
	RefreshBuffer time.Duration
	// AuthTimeout bounds a refresh flight end to end.
	AuthTimeout time.Duration
}

// DefaultManagerConfig returns the standard Manager settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TokenTTL:      time.Hour,
		RefreshBuffer: 5 * time.Minute,
		AuthTimeout:   30 * time.Second,
	}
}

// Manager caches tokens per tenant and deduplicates concurrent refreshes, so
// a burst of callers for one tenant costs a single upstream authentication.
type Manager struct {
	store   Store
	auth    Authenticator
	config  ManagerConfig
	flights singleflight.Group
	logger  logging.Logger
	now     func() time.Time
}

// NewManager creates a Manager over the given store and authenticator.
func NewManager(store Store, auth Authenticator, config ManagerConfig, logger logging.Logger) *Manager {
	if config.TokenTTL <= 0 {
		config.TokenTTL = time.Hour
	}
	if config.RefreshBuffer < 0 {
		config.RefreshBuffer = 0
	}
	if config.AuthTimeout <= 0 {
		config.AuthTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		store:  store,
		auth:   auth,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrRefresh returns a token for the tenant that is valid for at least the
// refresh buffer, authenticating upstream only on a cache miss or a token
// near expiry. Store read failures are logged and treated as a miss.
func (m *Manager) GetOrRefresh(ctx context.Context, tenantID string, creds Credentials) (string, error) {
	if tenantID == "" {
		return "", apperrors.ValidationError("tenant id is required")
	}

	record, err := m.store.Get(ctx, tenantID)
	if err != nil {
		m.logger.Warn("token store read failed, falling back to fresh authentication",
			logging.String("tenant_id", tenantID), logging.Err(err))
	} else if record != nil && record.IsFresh(m.now(), m.config.RefreshBuffer) {
		return record.Token, nil
	}

	return m.refresh(ctx, tenantID, creds, false)
}

// ForceRefresh discards any cached token for the tenant and authenticates
// upstream, still deduplicated with other in-flight refreshes for the tenant.
func (m *Manager) ForceRefresh(ctx context.Context, tenantID string, creds Credentials) (string, error) {
	if tenantID == "" {
		return "", apperrors.ValidationError("tenant id is required")
	}
	return m.refresh(ctx, tenantID, creds, true)
}

// refresh runs the shared per-tenant flight. The flight itself is detached
// from the triggering caller's context: cancelling one waiter must not kill
// the authentication other waiters share. Each waiter still honors its own
// context while waiting.
func (m *Manager) refresh(ctx context.Context, tenantID string, creds Credentials, force bool) (string, error) {
	ch := m.flights.DoChan(tenantID, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.Background(), m.config.AuthTimeout)
		defer cancel()

		if !force {
			// Another flight may have refreshed between the caller's
			// cache check and this one winning the flight slot.
			if record, err := m.store.Get(flightCtx, tenantID); err == nil &&
				record != nil && record.IsFresh(m.now(), m.config.RefreshBuffer) {
				return record.Token, nil
			}
		}

		tokenValue, expiresAt, err := m.auth.Authenticate(flightCtx, creds)
		if err != nil {
			return nil, err
		}

		now := m.now()
		if expiresAt.IsZero() {
			expiresAt = now.Add(m.config.TokenTTL)
		}
		record := &CachedToken{
			TenantID:  tenantID,
			Token:     tokenValue,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}
		if err := m.store.Put(flightCtx, record); err != nil {
			m.logger.Warn("failed to cache refreshed token",
				logging.String("tenant_id", tenantID), logging.Err(err))
		}

		m.logger.Debug("token refreshed",
			logging.String("tenant_id", tenantID),
			logging.Time("expires_at", expiresAt),
			logging.Bool("forced", force))
		return tokenValue, nil
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	case <-ctx.Done():
		if ctx.Err() == context.Canceled {
			// The caller abandoned the wait; the flight itself keeps
			// running for other waiters.
			return "", fmt.Errorf("token refresh abandoned for tenant %s: %w", tenantID, ctx.Err())
		}
		return "", apperrors.TimeoutError(fmt.Sprintf("waiting for token refresh for tenant %s", tenantID))
	}
}

// StoreToken caches an externally obtained token for the tenant. A
// non-positive ttl falls back to the configured token lifetime.
func (m *Manager) StoreToken(ctx context.Context, tenantID, tokenValue string, ttl time.Duration) error {
	if tenantID == "" {
		return apperrors.ValidationError("tenant id is required")
	}
	if tokenValue == "" {
		return apperrors.ValidationError("token is required")
	}
	if ttl <= 0 {
		ttl = m.config.TokenTTL
	}

	now := m.now()
	record := &CachedToken{
		TenantID:  tenantID,
		Token:     tokenValue,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.store.Put(ctx, record); err != nil {
		return apperrors.StoreError("failed to store token", err)
	}
	return nil
}

// IsTokenValid reports whether the tenant has a cached token that has not
// reached its expiry. The refresh buffer is not applied here: a token inside
// the buffer is still valid, just due for refresh.
func (m *Manager) IsTokenValid(ctx context.Context, tenantID string) (bool, error) {
	record, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return false, apperrors.StoreError("failed to load token", err)
	}
	if record == nil {
		return false, nil
	}
	return !record.IsExpired(m.now()), nil
}

// TokenStatus describes a tenant's cache entry for the management surface.
type TokenStatus struct {
	TenantID     string     `json:"tenant_id"`
	HasToken     bool       `json:"has_token"`
	Valid        bool       `json:"valid"`
	ExpiringSoon bool       `json:"expiring_soon"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Status reports the state of the tenant's cached token without touching the
// upstream.
func (m *Manager) Status(ctx context.Context, tenantID string) (*TokenStatus, error) {
	record, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return nil, apperrors.StoreError("failed to load token", err)
	}
	status := &TokenStatus{TenantID: tenantID}
	if record == nil {
		return status, nil
	}

	now := m.now()
	status.HasToken = true
	status.Valid = !record.IsExpired(now)
	status.ExpiringSoon = status.Valid && record.IsExpiringSoon(now, m.config.RefreshBuffer)
	status.IssuedAt = &record.IssuedAt
	status.ExpiresAt = &record.ExpiresAt
	return status, nil
}

// Invalidate removes the tenant's cached token. Invalidating an absent token
// is a no-op.
func (m *Manager) Invalidate(ctx context.Context, tenantID string) error {
	if err := m.store.Delete(ctx, tenantID); err != nil {
		return apperrors.StoreError("failed to invalidate token", err)
	}
	return nil
}

// CleanupExpired removes tokens that expired more than grace ago and returns
// how many were removed. Entries refreshed mid-sweep survive because deletion
// is conditional on the stored expiry at delete time.
func (m *Manager) CleanupExpired(ctx context.Context, grace time.Duration) (int, error) {
	if grace < 0 {
		grace = 0
	}
	cutoff := m.now().Add(-grace)

	removed, err := m.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, apperrors.StoreError("failed to clean up expired tokens", err)
	}
	if removed > 0 {
		m.logger.Info("expired tokens removed",
			logging.Int("removed", removed),
			logging.Time("cutoff", cutoff))
	}
	return removed, nil
}

// Stats summarizes the cache: totals, valid, expired, and valid tokens inside
// the refresh buffer. Expired entries count until the cleanup sweep removes
// them.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, apperrors.StoreError("failed to list tokens", err)
	}

	now := m.now()
	stats := &Stats{Total: len(records)}
	for _, record := range records {
		if record.IsExpired(now) {
			stats.Expired++
			continue
		}
		stats.Valid++
		if record.IsExpiringSoon(now, m.config.RefreshBuffer) {
			stats.ExpiringSoon++
		}
	}
	return stats, nil
}
