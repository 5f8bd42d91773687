// Package domain defines the entities, lifecycles, and error kinds shared by
// the hive control plane. It holds no I/O; the store persists these types and
// the scheduler/manager mutate them through typed operations.
package domain

import "errors"

// Error kinds. Callers classify failures with errors.Is; the store and
// connectors wrap these with context via fmt.Errorf("%w", ...).
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on uniqueness violations, e.g. a duplicate
	// team name or a second sync record for the same (entity, provider).
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when a lifecycle transition is not
	// permitted. This indicates a programming error or a race we intend
	// to lose; callers retry or abort.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrUnauthorized is returned when provider credentials are missing
	// or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExternalFailure is returned when a VCS/PM/LLM call failed.
	// Never pipeline-fatal: logged, counted, retried next tick.
	ErrExternalFailure = errors.New("external call failed")

	// ErrTimeout is returned when an external call exceeded its deadline.
	ErrTimeout = errors.New("timed out")

	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
)

// ErrLockBusy is returned when the cross-process write lock could not be
// acquired within the configured retry budget.
var ErrLockBusy = errors.New("write lock busy")
