// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Remote taxonomy. Transport adapters translate their native failures into these
// so the sync engine and the CLI can branch with errors.Is.
var (
	// ErrNotAuthenticated is fatal to the session: every remote call fails until re-login.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRecordNotFound indicates the target record vanished remotely; refetch.
	ErrRecordNotFound = errors.New("record not found")

	// ErrPermissionDenied is a remote authorization rejection, surfaced verbatim.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransient covers network failures and other retryable remote faults.
	ErrTransient = errors.New("network or transient failure")

	// ErrQuotaExceeded is a remote capacity limit, surfaced as a warning.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound is kept for repository code; it is the same value as ErrRecordNotFound.
	ErrNotFound = ErrRecordNotFound

	// ErrUnauthorized indicates failed authentication (bad credentials).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., record id taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation marks malformed input rejected before any I/O.
	ErrValidation = errors.New("validation")
)

// Client-side sentinels.
var (
	// ErrMigrationRequired blocks engine startup until the legacy data is migrated.
	ErrMigrationRequired = errors.New("schema migration required")

	// ErrAlreadyPresent rejects a check-in for a dog that already has an active visit.
	ErrAlreadyPresent = errors.New("dog already has an active visit")

	// ErrClosed is returned by an engine that has been stopped.
	ErrClosed = errors.New("engine closed")
)
