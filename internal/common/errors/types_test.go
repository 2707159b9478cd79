package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		contains []string
	}{
		{
			name:     "type and message",
			err:      InvalidCredentialsError("login rejected"),
			contains: []string{"invalid_credentials", "login rejected"},
		},
		{
			name:     "with code",
			err:      RateLimitedError("locate-api").WithCode("E429"),
			contains: []string{"rate_limited", "code=E429"},
		},
		{
			name:     "with cause",
			err:      StoreError("put failed", fmt.Errorf("disk full")),
			contains: []string{"store", "put failed", "cause=disk full"},
		},
		{
			name:     "with context",
			err:      ServiceUnavailableError("upstream down", nil).WithContext("tenant", "acme"),
			contains: []string{"service_unavailable", "tenant=acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ServiceUnavailableError("authenticate failed", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(TimeoutError("authenticate"), ErrTypeTimeout))
	assert.False(t, IsType(TimeoutError("authenticate"), ErrTypeStore))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrTypeTimeout))
	assert.False(t, IsType(nil, ErrTypeTimeout))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeRateLimited, GetType(RateLimitedError("executor")))
	assert.Equal(t, ErrTypeInternal, GetType(fmt.Errorf("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ServiceUnavailableError("upstream down", nil)))
	assert.True(t, IsRetryable(TimeoutError("authenticate")))
	assert.False(t, IsRetryable(InvalidCredentialsError("bad password")))
	assert.False(t, IsRetryable(RateLimitedError("executor")))
	assert.False(t, IsRetryable(nil))
}
