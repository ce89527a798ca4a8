package semboot

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Outcome records which path AcquireOrJoin took for a handle.
type Outcome int

const (
	// Created means this process won the exclusive-create race and
	// initialized the set.
	Created Outcome = iota + 1

	// Joined means the set already existed and this process waited for
	// another process to finish initializing it.
	Joined
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// SetInfo describes a semaphore set as reported by IPC_STAT.
type SetInfo struct {
	// ID is the kernel semaphore set identifier.
	ID int

	// Key is the key the set was created under.
	Key Key

	// NSems is the number of caller-visible semaphores. The reserved ready
	// semaphore is not counted.
	NSems int

	// Mode holds the permission bits.
	Mode uint32

	// LastOp is the time of the last semop, zero if none happened.
	LastOp time.Time

	// LastChange is the time of the last semctl change.
	LastChange time.Time
}

// SemaphoreSet is a handle to an initialized semaphore set shared with other
// processes. It is safe for concurrent use.
//
// Closing the handle never removes the set; other processes may still be
// using it. Use Remove, or the package-level Remove, to destroy it.
type SemaphoreSet struct {
	id      int
	key     Key
	n       int
	outcome Outcome
	logger  *zap.Logger
	closed  atomic.Bool
}

// ID returns the kernel identifier of the set.
func (s *SemaphoreSet) ID() int { return s.id }

// Key returns the key the set was looked up with.
func (s *SemaphoreSet) Key() Key { return s.key }

// Len returns the number of caller-visible semaphores.
func (s *SemaphoreSet) Len() int { return s.n }

// Outcome reports whether this process created or joined the set.
func (s *SemaphoreSet) Outcome() Outcome { return s.outcome }

func (s *SemaphoreSet) check(index int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if index < 0 || index >= s.n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, s.n)
	}
	return nil
}

// Acquire decrements semaphore index, blocking until that is possible.
func (s *SemaphoreSet) Acquire(index int) error {
	if err := s.check(index); err != nil {
		return err
	}
	if err := semop(s.id, []sembuf{{num: uint16(index), op: -1, flg: semUNDO}}); err != nil {
		return classify("acquire", s.key, err)
	}
	return nil
}

// Release increments semaphore index.
func (s *SemaphoreSet) Release(index int) error {
	if err := s.check(index); err != nil {
		return err
	}
	if err := semop(s.id, []sembuf{{num: uint16(index), op: 1, flg: semUNDO}}); err != nil {
		return classify("release", s.key, err)
	}
	return nil
}

// TryAcquire decrements semaphore index if that can be done without
// blocking. It returns false when the semaphore is held.
func (s *SemaphoreSet) TryAcquire(index int) (bool, error) {
	if err := s.check(index); err != nil {
		return false, err
	}
	err := semop(s.id, []sembuf{{num: uint16(index), op: -1, flg: semUNDO | ipcNoWait}})
	switch {
	case err == nil:
		return true, nil
	case isAgain(err):
		return false, nil
	default:
		return false, classify("acquire", s.key, err)
	}
}

// AcquireTimeout decrements semaphore index, waiting at most timeout.
// It returns false if the timeout elapsed first.
func (s *SemaphoreSet) AcquireTimeout(index int, timeout time.Duration) (bool, error) {
	if err := s.check(index); err != nil {
		return false, err
	}
	err := semtimedop(s.id, []sembuf{{num: uint16(index), op: -1, flg: semUNDO}}, timeout)
	switch {
	case err == nil:
		return true, nil
	case isAgain(err):
		return false, nil
	default:
		return false, classify("acquire", s.key, err)
	}
}

// Value returns the current value of semaphore index.
func (s *SemaphoreSet) Value(index int) (int, error) {
	if err := s.check(index); err != nil {
		return 0, err
	}
	v, err := semGetVal(s.id, index)
	if err != nil {
		return 0, classify("getval", s.key, err)
	}
	return v, nil
}

// Values returns the current value of every caller-visible semaphore.
func (s *SemaphoreSet) Values() ([]int, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	raw, err := semGetAll(s.id, s.n+1)
	if err != nil {
		return nil, classify("getall", s.key, err)
	}
	vals := make([]int, s.n)
	for i := range vals {
		vals[i] = int(raw[i])
	}
	return vals, nil
}

// Info returns the kernel's view of the set.
func (s *SemaphoreSet) Info() (SetInfo, error) {
	if s.closed.Load() {
		return SetInfo{}, ErrClosed
	}
	st, err := semStatID(s.id)
	if err != nil {
		return SetInfo{}, classify("stat", s.key, err)
	}
	return newSetInfo(s.id, st), nil
}

// Semaphore returns a Semaphore bound to one index of the set.
func (s *SemaphoreSet) Semaphore(index int) (Semaphore, error) {
	if err := s.check(index); err != nil {
		return nil, err
	}
	return &indexSemaphore{set: s, index: index}, nil
}

// Close invalidates the handle. The semaphore set itself is left in place
// for the other processes sharing it.
func (s *SemaphoreSet) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return nil
}

// Remove destroys the underlying semaphore set. Processes blocked in Acquire
// on it are woken with ErrNotFound; avoiding that is the caller's job.
// A second Remove returns ErrNotFound. A closed handle returns ErrClosed and
// leaves the set alone; use the package-level Remove with the key instead.
func (s *SemaphoreSet) Remove() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := semRemoveID(s.id); err != nil {
		return classify("remove", s.key, err)
	}
	s.logger.Info("removed semaphore set", zap.Stringer("key", s.key), zap.Int("semid", s.id))
	return nil
}

func newSetInfo(id int, st semStat) SetInfo {
	info := SetInfo{
		ID:    id,
		Key:   Key(st.key),
		NSems: st.nsems - 1,
		Mode:  st.mode & 0o777,
	}
	if st.otime != 0 {
		info.LastOp = time.Unix(st.otime, 0)
	}
	if st.ctime != 0 {
		info.LastChange = time.Unix(st.ctime, 0)
	}
	return info
}

// classify maps a raw syscall error onto the package's sentinels while
// keeping the errno reachable through errors.Is.
func classify(op string, key Key, err error) error {
	switch {
	case errors.Is(err, ErrNotSupported):
		return err
	case isGone(err):
		return fmt.Errorf("%w: %s %s: %w", ErrNotFound, op, key, err)
	case isPermission(err):
		return fmt.Errorf("%w: %s %s: %w", ErrPermission, op, key, err)
	default:
		return fmt.Errorf("semboot: %s %s: %w", op, key, err)
	}
}
