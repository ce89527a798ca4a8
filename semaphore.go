package semboot

import "time"

// Semaphore provides cross-process synchronization on a single index of a
// System V semaphore set. Obtain one with (*SemaphoreSet).Semaphore after
// AcquireOrJoin has returned a ready set.
//
// Acquire and Release are applied with SEM_UNDO, so a process that exits
// while holding the semaphore has its decrement reverted by the kernel.
//
// Example:
//
//	key, _ := semboot.KeyFromPath("/var/run/myapp", 'J')
//	set, _ := semboot.AcquireOrJoin(key, 1)
//	defer set.Close()
//
//	sem, _ := set.Semaphore(0)
//	sem.Acquire()
//	// critical section - access shared resource
//	sem.Release()
type Semaphore interface {
	// Acquire blocks until the semaphore can be decremented.
	Acquire() error

	// Release increments the semaphore, potentially unblocking waiters.
	Release() error

	// TryAcquire attempts to decrement the semaphore without blocking.
	// Returns true if acquired, false if the semaphore was not available.
	TryAcquire() (bool, error)

	// AcquireTimeout attempts to acquire with a maximum wait time.
	// Returns true if acquired, false if the timeout elapsed.
	AcquireTimeout(timeout time.Duration) (bool, error)

	// Close releases resources associated with this view of the semaphore.
	// The semaphore set is only destroyed by an explicit Remove.
	Close() error
}

// indexSemaphore is the Semaphore view of one index of a SemaphoreSet.
type indexSemaphore struct {
	set   *SemaphoreSet
	index int
}

var _ Semaphore = (*indexSemaphore)(nil)

func (s *indexSemaphore) Acquire() error {
	return s.set.Acquire(s.index)
}

func (s *indexSemaphore) Release() error {
	return s.set.Release(s.index)
}

func (s *indexSemaphore) TryAcquire() (bool, error) {
	return s.set.TryAcquire(s.index)
}

func (s *indexSemaphore) AcquireTimeout(timeout time.Duration) (bool, error) {
	return s.set.AcquireTimeout(s.index, timeout)
}

// Close is a no-op; the view shares the parent set's handle.
func (s *indexSemaphore) Close() error {
	return nil
}
