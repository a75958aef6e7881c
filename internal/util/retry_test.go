package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"
)

// recordingSleep captures requested waits without sleeping
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func testConfig(rec *recordingSleep) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     10 * time.Second,
		Sleep:       rec.sleep,
	}
}

// statusError is a self-classifying error like an HTTP status failure
type statusError struct {
	msg       string
	temporary bool
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) Temporary() bool { return e.temporary }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "ETIMEDOUT", err: syscall.ETIMEDOUT, expected: true},
		{name: "ECONNRESET", err: syscall.ECONNRESET, expected: true},
		{name: "ENOENT (not retryable)", err: syscall.ENOENT, expected: false},
		{name: "transient wrapper", err: Transient(errors.New("status 503"), 0), expected: true},
		{name: "wrapped transient", err: fmt.Errorf("get: %w", Transient(errors.New("status 429"), time.Second)), expected: true},
		{name: "connection reset in message", err: errors.New("read: connection reset by peer"), expected: true},
		{name: "context canceled", err: context.Canceled, expected: false},
		{name: "deadline exceeded", err: fmt.Errorf("get: %w", context.DeadlineExceeded), expected: false},
		{name: "generic error (not retryable)", err: errors.New("invalid character '<' looking for beginning of value"), expected: false},
		{name: "permanent error mentioning timeout", err: &statusError{msg: "status 408: request timed out"}, expected: false},
		{name: "wrapped permanent error", err: fmt.Errorf("get /users/timeout_records: %w", &statusError{msg: "status 404"}), expected: false},
		{name: "temporary error falls through to message", err: &statusError{msg: "connection reset", temporary: true}, expected: true},
		{name: "PathError with ECONNREFUSED", err: &os.PathError{Op: "dial", Path: "api", Err: syscall.ECONNREFUSED}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := &RetryConfig{InitialWait: time.Second, MaxWait: 10 * time.Second}

	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, want := range expected {
		if got := cfg.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, expected %v", attempt, got, want)
		}
	}
}

func TestRetryWithBackoff_ImmediateSuccess(t *testing.T) {
	rec := &recordingSleep{}
	attempts := 0

	result, err := RetryWithBackoff(context.Background(), testConfig(rec), func() (int, error) {
		attempts++
		return 42, nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != 42 {
		t.Errorf("Expected result 42, got: %d", result)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
	if len(rec.waits) != 0 {
		t.Errorf("Expected no sleeps, got: %v", rec.waits)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	rec := &recordingSleep{}
	attempts := 0

	result, err := RetryWithBackoff(context.Background(), testConfig(rec), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.ETIMEDOUT
		}
		return "success", nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got: %s", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
	if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
		t.Errorf("Expected waits [1s 2s], got: %v", rec.waits)
	}
}

func TestRetryWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	rec := &recordingSleep{}
	attempts := 0
	cause := errors.New("status 502")

	_, err := RetryWithBackoff(context.Background(), testConfig(rec), func() (int, error) {
		attempts++
		return 0, Transient(cause, 0)
	}, "GET /oauth/identity")

	if attempts != 3 {
		t.Errorf("Expected 3 attempts (max), got: %d", attempts)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Expected ErrRetriesExhausted, got: %v", err)
	}
	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Expected *RetryError, got %T", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", retryErr.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected last cause to be unwrapped, got: %v", retryErr.Last)
	}
	// No sleep after the final attempt
	if len(rec.waits) != 2 {
		t.Errorf("Expected 2 sleeps, got: %v", rec.waits)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	rec := &recordingSleep{}
	attempts := 0
	permanent := errors.New("status 404: not found")

	_, err := RetryWithBackoff(context.Background(), testConfig(rec), func() (int, error) {
		attempts++
		return 0, permanent
	}, "test operation")

	if err != permanent {
		t.Errorf("Expected permanent error unchanged, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for non-retryable), got: %d", attempts)
	}
}

func TestRetryWithBackoff_TransientWaitOverridesBackoff(t *testing.T) {
	rec := &recordingSleep{}
	attempts := 0

	_, err := RetryWithBackoff(context.Background(), testConfig(rec), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, Transient(errors.New("status 429"), 7*time.Second)
		}
		return 1, nil
	}, "test operation")

	if err != nil {
		t.Fatalf("Expected success, got: %v", err)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 7*time.Second {
		t.Errorf("Expected a single 7s wait, got: %v", rec.waits)
	}
}

func TestRetryWithBackoff_ContextCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour}
	attempts := 0
	_, err := RetryWithBackoff(ctx, cfg, func() (int, error) {
		attempts++
		return 0, syscall.ECONNRESET
	}, "test operation")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}
