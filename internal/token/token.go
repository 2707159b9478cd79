// Package token implements the cached-token domain: the CachedToken record,
// the pluggable Store contract with memory, SQL, and Redis backends, and the
// Manager that owns cache semantics (lookup, single-flight refresh,
// invalidation, expiry bookkeeping, statistics).
package token

import (
	"time"
)

// Credentials are the upstream login credentials for a tenant.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CachedToken is one cached upstream token. There is at most one per tenant;
// a refresh replaces the record wholesale and never extends ExpiresAt in place.
type CachedToken struct {
	TenantID  string    `json:"tenant_id"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the token is past its expiry at the given instant.
// A token is no longer served the moment now reaches ExpiresAt.
func (t *CachedToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsExpiringSoon reports whether the token is still live but within the
// early-refresh buffer of its expiry.
func (t *CachedToken) IsExpiringSoon(now time.Time, buffer time.Duration) bool {
	return !t.IsExpired(now) && !now.Add(buffer).Before(t.ExpiresAt)
}

// IsFresh reports whether the token can be served without a refresh: live and
// not yet inside the early-refresh buffer.
func (t *CachedToken) IsFresh(now time.Time, buffer time.Duration) bool {
	return now.Add(buffer).Before(t.ExpiresAt)
}

// Stats is a point-in-time aggregate over all cached entries.
type Stats struct {
	Total        int `json:"total"`
	Valid        int `json:"valid"`
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiring_soon"`
}
