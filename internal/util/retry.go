package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (first try included)
	InitialWait time.Duration // Base wait, doubled on each attempt
	MaxWait     time.Duration // Cap on the computed backoff
	Sleep       SleepFunc     // Optional override, mainly for tests
}

// DefaultRetryConfig returns the retry configuration used for catalog API calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     10 * time.Second,
	}
}

// Backoff returns the wait before the next try after a failed attempt.
// attempt is zero-based: base * 2^attempt, capped at MaxWait.
func (cfg *RetryConfig) Backoff(attempt int) time.Duration {
	wait := cfg.InitialWait
	for i := 0; i < attempt; i++ {
		wait *= 2
		if cfg.MaxWait > 0 && wait >= cfg.MaxWait {
			return cfg.MaxWait
		}
	}
	if cfg.MaxWait > 0 && wait > cfg.MaxWait {
		return cfg.MaxWait
	}
	return wait
}

// TransientError marks an error as worth retrying.
// A positive Wait overrides the computed backoff (e.g. from a Retry-After header).
type TransientError struct {
	Err  error
	Wait time.Duration
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so RetryWithBackoff retries it
func Transient(err error, wait time.Duration) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, Wait: wait}
}

// RetryError is returned once the attempt budget is spent. It carries the last cause.
type RetryError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s: max retries exceeded (%d attempts): %v", e.Operation, e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

// Is lets errors.Is(err, ErrRetriesExhausted) match
func (e *RetryError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// IsRetryableError checks if an error is worth retrying
// Returns true for explicitly transient errors and transient network failures
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var syscallError syscall.Errno
	if errors.As(err, &syscallError) {
		switch syscallError {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ECONNREFUSED,
			syscall.ENETDOWN,
			syscall.ENETUNREACH,
			syscall.EHOSTDOWN,
			syscall.EHOSTUNREACH,
			syscall.EPIPE:
			return true
		}
	}

	// Errors that classify themselves win over message matching
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && !temp.Temporary() {
		return false
	}

	// Check error messages for common transient patterns
	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"connection aborted",
		"broken pipe",
		"no route to host",
		"network is unreachable",
		"temporary failure",
		"server closed idle connection",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// SleepContext waits for d, returning early with ctx.Err() if ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
// Non-retryable errors are returned unchanged; exhausting the budget returns *RetryError.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 0 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt+1, attempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == attempts-1 {
			break
		}

		wait := cfg.Backoff(attempt)
		var transient *TransientError
		if errors.As(err, &transient) && transient.Wait > 0 {
			wait = transient.Wait
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt+1, attempts, wait, err)

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return result, sleepErr
		}
	}

	last := err
	var transient *TransientError
	if errors.As(err, &transient) {
		last = transient.Err
	}
	WarnLog("Retry: %s failed after %d attempts: %v", operationName, attempts, last)
	return result, &RetryError{Operation: operationName, Attempts: attempts, Last: last}
}
