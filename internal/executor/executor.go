// Package executor runs authenticated calls against the locate service,
// handling token attachment and auth-failure recovery. The local call
// budget is enforced inside the upstream client, per attempt.
package executor

import (
	"context"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/logging"
	"locate-gateway/internal/token"
	"locate-gateway/internal/upstream"
)

// TokenSource is the slice of the token Manager the executor needs.
type TokenSource interface {
	GetOrRefresh(ctx context.Context, tenantID string, creds token.Credentials) (string, error)
	ForceRefresh(ctx context.Context, tenantID string, creds token.Credentials) (string, error)
	Invalidate(ctx context.Context, tenantID string) error
}

// Transport sends an authenticated request upstream.
type Transport interface {
	Do(ctx context.Context, bearer string, req *upstream.Request) (*upstream.Response, error)
}

// Executor orchestrates one authenticated call: obtain a token, send, and on
// an auth rejection refresh once and resend. A second rejection surfaces as
// the credential error; nothing else is retried here.
type Executor struct {
	tokens TokenSource
	client Transport
	logger logging.Logger
}

// New creates an Executor.
func New(tokens TokenSource, client Transport, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Executor{
		tokens: tokens,
		client: client,
		logger: logger,
	}
}

// Execute performs an authenticated request for the tenant.
func (e *Executor) Execute(ctx context.Context, tenantID string, creds token.Credentials, req *upstream.Request) (*upstream.Response, error) {
	if tenantID == "" {
		return nil, apperrors.ValidationError("tenant id is required")
	}

	bearer, err := e.tokens.GetOrRefresh(ctx, tenantID, creds)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(ctx, bearer, req)
	if !apperrors.IsType(err, apperrors.ErrTypeInvalidCredentials) {
		return resp, err
	}

	// The cached token was rejected upstream. Drop it, refresh once with
	// the tenant's credentials, and resend. A rejection of the fresh token
	// means the credentials themselves are bad.
	e.logger.Info("upstream rejected token, forcing refresh",
		logging.String("tenant_id", tenantID))

	if err := e.tokens.Invalidate(ctx, tenantID); err != nil {
		e.logger.Warn("failed to invalidate rejected token",
			logging.String("tenant_id", tenantID), logging.Err(err))
	}

	bearer, err = e.tokens.ForceRefresh(ctx, tenantID, creds)
	if err != nil {
		return nil, err
	}

	return e.client.Do(ctx, bearer, req)
}
