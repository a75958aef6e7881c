package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNoToken indicates no API token could be resolved from flags, config or environment
	ErrNoToken = errors.New("no Discogs token provided (use --token or set DISCOGS_TOKEN)")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRetriesExhausted indicates a transient failure persisted past the retry budget
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrBuildInProgress indicates another build holds the cache lock
	ErrBuildInProgress = errors.New("another build is already running against this cache")
)
