package semboot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for a non-positive semaphore count,
	// an IPC_PRIVATE key, or a zero project id.
	ErrInvalidArgument = errors.New("semboot: invalid argument")

	// ErrCreationDenied is returned when the kernel refuses to create the
	// semaphore set for a reason other than it already existing
	// (permissions, system limits, bad key). It is never retried.
	ErrCreationDenied = errors.New("semboot: semaphore set creation denied")

	// ErrInitializationTimeout is returned by the join path when the ready
	// semaphore stayed at zero for every poll attempt.
	ErrInitializationTimeout = errors.New("semboot: timed out waiting for semaphore set initialization")

	// ErrNotFound is returned when no semaphore set exists for a key, or the
	// set was removed while in use.
	ErrNotFound = errors.New("semboot: semaphore set not found")

	// ErrPartialInit matches any *PartialInitError.
	ErrPartialInit = errors.New("semboot: semaphore set initialization failed")

	// ErrSizeMismatch is returned when a joiner finds an existing set whose
	// size differs from the one it asked for.
	ErrSizeMismatch = errors.New("semboot: existing semaphore set has a different size")

	// ErrIndexOutOfRange is returned for a semaphore index outside [0, n).
	ErrIndexOutOfRange = errors.New("semboot: semaphore index out of range")

	// ErrClosed is returned by operations on a closed SemaphoreSet handle.
	ErrClosed = errors.New("semboot: semaphore set handle is closed")

	// ErrPermission is returned when removal or access is refused by the kernel.
	ErrPermission = errors.New("semboot: permission denied")

	// ErrNotSupported is returned on platforms without a System V semaphore shim.
	ErrNotSupported = errors.New("semboot: System V semaphores are not supported on this platform")
)

// PartialInitError reports a failure of the creating process between
// creating the set and publishing the ready flag. The set has been removed
// unless CleanupErr is non-nil.
type PartialInitError struct {
	// Op names the step that failed (e.g. "setall", "ready").
	Op string

	// Err is the original failure.
	Err error

	// CleanupErr is the error from removing the half-initialized set, if any.
	CleanupErr error
}

func (e *PartialInitError) Error() string {
	if e.CleanupErr != nil {
		return fmt.Sprintf("semboot: initialization failed at %s: %v (cleanup failed: %v)", e.Op, e.Err, e.CleanupErr)
	}
	return fmt.Sprintf("semboot: initialization failed at %s: %v", e.Op, e.Err)
}

// Unwrap exposes the original error and the cleanup error so both can be
// matched with errors.Is and errors.As.
func (e *PartialInitError) Unwrap() []error {
	errs := []error{e.Err}
	if e.CleanupErr != nil {
		errs = append(errs, e.CleanupErr)
	}
	return errs
}

// Is reports ErrPartialInit as a match.
func (e *PartialInitError) Is(target error) bool {
	return target == ErrPartialInit
}
