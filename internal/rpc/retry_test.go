package rpc

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentlabs/agentbook/internal/common"
	"github.com/intentlabs/agentbook/internal/config"
)

type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func testRetryConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(5 * time.Millisecond),
		MaxBackoff:        common.NewDuration(20 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "network timeout", err: &mockNetError{msg: "network timeout", timeout: true}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "connection reset", err: syscall.ECONNRESET, retryable: true},
		{name: "broken pipe", err: syscall.EPIPE, retryable: true},
		{name: "timeout string", err: errors.New("operation timeout"), retryable: true},
		{name: "context deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "rate limit 429", err: errors.New("HTTP 429"), retryable: true},
		{name: "too many requests", err: errors.New("too many requests"), retryable: true},
		{name: "bad gateway", err: errors.New("502 bad gateway"), retryable: true},
		{name: "service unavailable", err: errors.New("service unavailable"), retryable: true},
		{name: "execution reverted", err: errors.New("execution reverted"), retryable: false},
		{name: "invalid argument", err: errors.New("invalid argument"), retryable: false},
		{name: "nonce too low", err: errors.New("nonce too low"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestRetryableError_Wrapped(t *testing.T) {
	wrapped := errors.Join(errors.New("request failed"), syscall.ECONNRESET)
	assert.True(t, retryableError(wrapped))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(time.Second),
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, time.Duration(0), calculateBackoff(1, cfg))

	// Attempt 2 backs off around the initial duration, within jitter.
	b := calculateBackoff(2, cfg)
	assert.GreaterOrEqual(t, b, 75*time.Millisecond)
	assert.LessOrEqual(t, b, 125*time.Millisecond)

	// Attempt 3 doubles, again within jitter.
	b = calculateBackoff(3, cfg)
	assert.GreaterOrEqual(t, b, 150*time.Millisecond)
	assert.LessOrEqual(t, b, 250*time.Millisecond)
}

func TestCalculateBackoff_CappedAtMax(t *testing.T) {
	cfg := &config.RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(200 * time.Millisecond),
		BackoffMultiplier: 10.0,
	}

	b := calculateBackoff(8, cfg)
	assert.LessOrEqual(t, b, 250*time.Millisecond)
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		if calls < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		return errors.New("execution reverted")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "non-retryable")
}

func TestRetryWithBackoff_ExhaustedRetries(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		return syscall.ECONNREFUSED
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryWithBackoff(ctx, testRetryConfig(), "test", func() error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
	defer cancel()

	cfg := &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(time.Second),
		MaxBackoff:        common.NewDuration(time.Second),
		BackoffMultiplier: 2.0,
	}

	err := retryWithBackoff(ctx, cfg, "test", func() error {
		return syscall.ECONNRESET
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff_NilConfig(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), nil, "test", func() error {
		calls++
		return syscall.ECONNRESET
	})

	// Single attempt, error passed through unwrapped.
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
}
