// Package upstream talks to the locate service: username/password login and
// bearer-authenticated ticket queries.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"locate-gateway/internal/circuitbreaker"
	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/logging"
	"locate-gateway/internal/common/utils"
	"locate-gateway/internal/token"
)

const (
	DefaultAuthTimeout   = 30 * time.Second
	DefaultSearchTimeout = 60 * time.Second

	loginPath  = "/login-json"
	searchPath = "/tickets/search"

	maxErrorBodyBytes = 64 * 1024
)

// Config holds upstream connection settings.
type Config struct {
	BaseURL       string
	AuthTimeout   time.Duration
	SearchTimeout time.Duration
}

// Gate draws one unit from the local call budget. The client acquires it
// before every attempt it sends, retries included, so the budget counts real
// upstream calls rather than caller invocations.
type Gate interface {
	Acquire(ctx context.Context, resource string) error
}

// Request describes an authenticated call to the locate service.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// Response carries the upstream reply.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client is the locate service client. Auth and search calls run behind
// separate circuit breakers so a broken login endpoint does not block
// queries that still hold valid tokens, and vice versa.
type Client struct {
	baseURL       string
	authTimeout   time.Duration
	searchTimeout time.Duration
	httpClient    *http.Client
	authBreaker   *circuitbreaker.GoBreakerAdapter
	callBreaker   *circuitbreaker.GoBreakerAdapter
	retryConfig   utils.RetryConfig
	gate          Gate
	logger        logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(config utils.RetryConfig) Option {
	return func(c *Client) {
		c.retryConfig = config
	}
}

// WithGate attaches the call-budget gate.
func WithGate(gate Gate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// NewClient creates a locate service client for the given base URL.
func NewClient(config Config, opts ...Option) (*Client, error) {
	if config.BaseURL == "" {
		return nil, apperrors.ValidationError("upstream base url is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, apperrors.ValidationError(fmt.Sprintf("invalid upstream base url: %v", err))
	}
	if config.AuthTimeout <= 0 {
		config.AuthTimeout = DefaultAuthTimeout
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = DefaultSearchTimeout
	}

	retryConfig := utils.DefaultRetryConfig()
	retryConfig.MaxAttempts = 2
	retryConfig.InitialDelay = 500 * time.Millisecond
	retryConfig.RetryableErrors = apperrors.IsRetryable

	c := &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		authTimeout:   config.AuthTimeout,
		searchTimeout: config.SearchTimeout,
		httpClient:    &http.Client{},
		retryConfig:   retryConfig,
		logger:        logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.authBreaker = circuitbreaker.NewGoBreaker("locate-auth", circuitbreaker.AuthConfig, c.logger)
	c.callBreaker = circuitbreaker.NewGoBreaker("locate-search", circuitbreaker.SearchConfig, c.logger)
	return c, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Authorization string `json:"Authorization"`
}

// Authenticate logs in with the tenant's credentials and returns the bearer
// token. When the token is a JWT its exp claim supplies the expiry; a zero
// expiry means the caller applies its own TTL.
func (c *Client) Authenticate(ctx context.Context, creds token.Credentials) (string, time.Time, error) {
	if creds.Username == "" || creds.Password == "" {
		return "", time.Time{}, apperrors.ValidationError("username and password are required")
	}

	body, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return "", time.Time{}, apperrors.InternalError("failed to encode login request", err)
	}

	var bearer string
	attempt := func() error {
		if err := c.acquire(ctx, "locate-auth"); err != nil {
			return err
		}
		return c.authBreaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.authTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
			if err != nil {
				return apperrors.InternalError("failed to build login request", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return c.transportError("authentication", callCtx, err)
			}
			defer resp.Body.Close()

			if err := c.statusError("authentication", resp); err != nil {
				return err
			}

			var login loginResponse
			if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
				return apperrors.ServiceUnavailableError("malformed login response", err)
			}
			bearer = strings.TrimPrefix(login.Authorization, "Bearer ")
			if bearer == "" {
				return apperrors.ServiceUnavailableError("login response carried no token", nil)
			}
			return nil
		})
	}

	if err := utils.RetryWithBackoff(ctx, c.retryConfig, attempt); err != nil {
		return "", time.Time{}, unwrapRetry(err)
	}

	return bearer, tokenExpiry(bearer), nil
}

// SearchTickets queries the ticket search endpoint with the given bearer
// token and query parameters.
func (c *Client) SearchTickets(ctx context.Context, bearer string, params url.Values) (*Response, error) {
	return c.Do(ctx, bearer, &Request{
		Method: http.MethodGet,
		Path:   searchPath,
		Query:  params,
	})
}

// Do sends an authenticated request. Auth rejections (401/403) come back as
// invalid-credentials errors so callers can refresh and retry; other non-5xx
// statuses return as a plain Response for the caller to interpret.
func (c *Client) Do(ctx context.Context, bearer string, request *Request) (*Response, error) {
	if request == nil || request.Path == "" {
		return nil, apperrors.ValidationError("request path is required")
	}
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + request.Path
	if len(request.Query) > 0 {
		target += "?" + request.Query.Encode()
	}

	var response *Response
	attempt := func() error {
		if err := c.acquire(ctx, "locate-api"); err != nil {
			return err
		}
		return c.callBreaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.searchTimeout)
			defer cancel()

			var body io.Reader
			if len(request.Body) > 0 {
				body = bytes.NewReader(request.Body)
			}
			req, err := http.NewRequestWithContext(callCtx, method, target, body)
			if err != nil {
				return apperrors.InternalError("failed to build request", err)
			}
			for key, values := range request.Headers {
				for _, value := range values {
					req.Header.Add(key, value)
				}
			}
			req.Header.Set("Authorization", "Bearer "+bearer)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return c.transportError(request.Path, callCtx, err)
			}
			defer resp.Body.Close()

			if err := c.statusError(request.Path, resp); err != nil {
				return err
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return apperrors.ServiceUnavailableError("failed to read response body", err)
			}
			response = &Response{
				StatusCode: resp.StatusCode,
				Headers:    resp.Header,
				Body:       data,
			}
			return nil
		})
	}

	if err := utils.RetryWithBackoff(ctx, c.retryConfig, attempt); err != nil {
		return nil, unwrapRetry(err)
	}
	return response, nil
}

// acquire draws one budget unit for the named resource. Budget rejections
// are not retryable, so they abort the retry loop immediately.
func (c *Client) acquire(ctx context.Context, resource string) error {
	if c.gate == nil {
		return nil
	}
	return c.gate.Acquire(ctx, resource)
}

// transportError maps request-level failures to the error taxonomy.
func (c *Client) transportError(operation string, ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.TimeoutError(operation)
	}
	return apperrors.ServiceUnavailableError(fmt.Sprintf("upstream request failed: %s", operation), err)
}

// statusError maps rejection and outage statuses to the error taxonomy.
// Statuses it leaves alone are the caller's to interpret.
func (c *Client) statusError(operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return apperrors.InvalidCredentialsError(fmt.Sprintf("upstream rejected %s", operation))
	case resp.StatusCode >= 500:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("upstream server error",
			logging.String("operation", operation),
			logging.Int("status", resp.StatusCode),
			logging.String("body", string(snippet)))
		return apperrors.ServiceUnavailableError(fmt.Sprintf("upstream returned %d for %s", resp.StatusCode, operation), nil)
	}
	return nil
}

// unwrapRetry strips the retry helper's wrapper so callers see the typed
// upstream error.
func unwrapRetry(err error) error {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	return err
}

// tokenExpiry extracts the exp claim from a JWT bearer token without
// verifying the signature. Returns zero when the token is not a JWT or
// carries no expiry.
func tokenExpiry(bearer string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

var _ token.Authenticator = (*Client)(nil)
