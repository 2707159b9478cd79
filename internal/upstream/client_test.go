package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/utils"
	"locate-gateway/internal/ratelimit"
	"locate-gateway/internal/token"
)

func noRetry() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = 1
	cfg.RetryableErrors = apperrors.IsRetryable
	return cfg
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryConfig(noRetry())}, opts...)
	client, err := NewClient(Config{BaseURL: srv.URL}, opts...)
	require.NoError(t, err)
	return client, srv
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestClient_Authenticate_Success(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/login-json", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "secret", body["password"])

		json.NewEncoder(w).Encode(map[string]string{"Authorization": "Bearer opaque-token"})
	}))

	bearer, expiresAt, err := client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", bearer)
	assert.True(t, expiresAt.IsZero(), "a non-JWT token reports no expiry")
}

func TestClient_Authenticate_JWTExpiry(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("upstream-secret"))
	require.NoError(t, err)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"Authorization": "Bearer " + signed})
	}))

	bearer, expiresAt, err := client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, signed, bearer)
	assert.True(t, expiresAt.Equal(exp), "expiry comes from the token's exp claim")
}

func TestClient_Authenticate_Rejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, _, err := client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "wrong"})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInvalidCredentials), "status %d", status)
	}
}

func TestClient_Authenticate_ServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, _, err := client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "secret"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeServiceUnavailable))
}

func TestClient_Authenticate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, AuthTimeout: 30 * time.Millisecond},
		WithRetryConfig(noRetry()))
	require.NoError(t, err)

	_, _, err = client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "secret"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))
}

func TestClient_Authenticate_RetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"Authorization": "Bearer recovered"})
	}))
	t.Cleanup(srv.Close)

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 5 * time.Millisecond
	retry.RetryableErrors = apperrors.IsRetryable

	client, err := NewClient(Config{BaseURL: srv.URL}, WithRetryConfig(retry))
	require.NoError(t, err)

	bearer, _, err := client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", bearer)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Authenticate_DoesNotRetryRejection(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.InitialDelay = time.Millisecond
	retry.RetryableErrors = apperrors.IsRetryable
	client.retryConfig = retry

	_, _, err := client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "credential rejections are permanent")
}

func TestClient_SearchTickets(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/tickets/search", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "Denver", r.URL.Query().Get("city"))

		json.NewEncoder(w).Encode(map[string]interface{}{"tickets": []string{"T-1"}})
	}))

	params := url.Values{}
	params.Set("city", "Denver")
	resp, err := client.SearchTickets(context.Background(), "tok-1", params)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "T-1")
}

func TestClient_Do_MapsAuthRejection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Do(context.Background(), "expired-token", &Request{Path: "/tickets/search"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInvalidCredentials))
}

type countingGate struct {
	calls     []string
	rejectAll bool
}

func (g *countingGate) Acquire(ctx context.Context, resource string) error {
	g.calls = append(g.calls, resource)
	if g.rejectAll {
		return apperrors.RateLimitedError(resource)
	}
	return nil
}

func TestClient_Do_GatesEveryAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"tickets":[]}`))
	}))
	t.Cleanup(srv.Close)

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 5 * time.Millisecond
	retry.RetryableErrors = apperrors.IsRetryable

	gate := &countingGate{}
	client, err := NewClient(Config{BaseURL: srv.URL}, WithRetryConfig(retry), WithGate(gate))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), "tok", &Request{Path: "/tickets/search"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"locate-api", "locate-api"}, gate.calls, "each send draws one budget unit")
}

func TestClient_Do_BudgetRejectionBlocksSend(t *testing.T) {
	var calls int32
	gate := &countingGate{rejectAll: true}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}), WithGate(gate))

	_, err := client.Do(context.Background(), "tok", &Request{Path: "/tickets/search"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeRateLimited))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "an exhausted budget never reaches the upstream")
	assert.Len(t, gate.calls, 1, "budget rejections are not retried")
}

func TestClient_Authenticate_GatesEveryAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"Authorization": "Bearer recovered"})
	}))
	t.Cleanup(srv.Close)

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 5 * time.Millisecond
	retry.RetryableErrors = apperrors.IsRetryable

	gate := &countingGate{}
	client, err := NewClient(Config{BaseURL: srv.URL}, WithRetryConfig(retry), WithGate(gate))
	require.NoError(t, err)

	_, _, err = client.Authenticate(context.Background(), token.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, []string{"locate-auth", "locate-auth"}, gate.calls, "login retries draw budget like first attempts")
}

func TestClient_BudgetCapsRealCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:  true,
		Budget:   1,
		Window:   time.Hour,
		Blocking: false,
	})
	require.NoError(t, err)

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.InitialDelay = time.Millisecond
	retry.RetryableErrors = apperrors.IsRetryable

	client, err := NewClient(Config{BaseURL: srv.URL}, WithRetryConfig(retry), WithGate(limiter))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), "tok", &Request{Path: "/tickets/search"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "one budget unit allows exactly one real call")
}

func TestClient_Do_PassesThroughClientErrors(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"bad date range"}`))
	}))

	resp, err := client.Do(context.Background(), "tok", &Request{Path: "/tickets/search"})
	require.NoError(t, err, "non-auth 4xx statuses are the caller's to interpret")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "bad date range")
}
