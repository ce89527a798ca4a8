package semboot

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is how long a joiner sleeps between checks of the
	// ready semaphore.
	DefaultPollInterval = time.Second

	// DefaultMaxAttempts bounds how many times a joiner checks the ready
	// semaphore before giving up.
	DefaultMaxAttempts = 10

	// DefaultPermissions are the mode bits a newly created set gets.
	DefaultPermissions = 0o666

	// DefaultInitialValue is the value every caller-visible semaphore starts
	// at, i.e. one free resource ("unlocked").
	DefaultInitialValue = 1

	// maxSemValue is SEMVMX.
	maxSemValue = 32767
)

// Option configures AcquireOrJoin.
type Option func(*options)

type options struct {
	pollInterval time.Duration
	maxAttempts  int
	perm         int
	initial      int
	logger       *zap.Logger
	metrics      bootstrapMetrics

	// beforeReady runs after the caller-visible semaphores are set and
	// before the ready semaphore is raised. Tests use it to fail the
	// creator part way through.
	beforeReady func(id int) error
}

func newOptions(opts []Option) *options {
	o := &options{
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		perm:         DefaultPermissions,
		initial:      DefaultInitialValue,
		logger:       zap.NewNop(),
		metrics:      newBootstrapMetrics(),
	}
	for _, f := range opts {
		f(o)
	}
	return o
}

// WithPollInterval sets the sleep between checks of the ready semaphore on
// the join path.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithMaxAttempts sets how many times the join path checks the ready
// semaphore. The total wait is bounded by attempts × interval.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithPermissions sets the mode bits used when this process creates the set.
func WithPermissions(perm int) Option {
	return func(o *options) {
		o.perm = perm & 0o777
	}
}

// WithInitialValue sets the value the creator gives every caller-visible
// semaphore. Use 1 for a mutex, k for a pool of k resources.
func WithInitialValue(v int) Option {
	return func(o *options) {
		o.initial = v
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = zap.NewNop()
		}
		o.logger = l
	}
}

func withBeforeReady(f func(id int) error) Option {
	return func(o *options) {
		o.beforeReady = f
	}
}

// AcquireOrJoin returns a handle to an initialized set of n semaphores
// under key, whichever of the participating processes gets there first.
//
// Every process calls it the same way. Exactly one of them creates the set
// exclusively, sets each semaphore to the initial value and then raises a
// reserved ready semaphore (index n, not reachable through the handle).
// The others find the set already exists and poll the ready semaphore until
// it is non-zero, returning ErrInitializationTimeout if it stays zero for
// every attempt.
//
// If the creator fails before the ready semaphore is raised it removes the
// set again and returns a *PartialInitError, so a later call starts over on
// the create path.
func AcquireOrJoin(key Key, n int, opts ...Option) (*SemaphoreSet, error) {
	o := newOptions(opts)
	if err := o.validate(key, n); err != nil {
		o.metrics.failures.Add(1)
		return nil, err
	}

	log := o.logger.With(zap.Stringer("key", key), zap.Int("nsems", n))

	id, err := semget(key, n+1, ipcCreate|ipcExclusive|o.perm)
	switch {
	case err == nil:
		if err := o.initialize(id, n, log); err != nil {
			o.metrics.failures.Add(1)
			return nil, err
		}
		o.metrics.created.Add(1)
		log.Info("created", zap.Int("semid", id))
		return &SemaphoreSet{id: id, key: key, n: n, outcome: Created, logger: o.logger}, nil

	case isExist(err):
		start := time.Now()
		id, err := o.join(key, n, log)
		if err != nil {
			if errors.Is(err, ErrInitializationTimeout) {
				o.metrics.timeouts.Add(1)
			} else {
				o.metrics.failures.Add(1)
			}
			return nil, err
		}
		o.metrics.joined.Add(1)
		log.Info("joined", zap.Int("semid", id), zap.Duration("waited", time.Since(start)))
		return &SemaphoreSet{id: id, key: key, n: n, outcome: Joined, logger: o.logger}, nil

	case errors.Is(err, ErrNotSupported):
		o.metrics.failures.Add(1)
		return nil, err

	default:
		o.metrics.failures.Add(1)
		log.Error("semaphore set creation denied", zap.Error(err))
		return nil, fmt.Errorf("%w: semget %s: %w", ErrCreationDenied, key, err)
	}
}

func (o *options) validate(key Key, n int) error {
	switch {
	case key == PrivateKey:
		return fmt.Errorf("%w: IPC_PRIVATE key cannot be shared", ErrInvalidArgument)
	case n < 1:
		return fmt.Errorf("%w: semaphore count %d must be positive", ErrInvalidArgument, n)
	case o.initial < 0 || o.initial > maxSemValue:
		return fmt.Errorf("%w: initial value %d not in [0, %d]", ErrInvalidArgument, o.initial, maxSemValue)
	case o.maxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d must be positive", ErrInvalidArgument, o.maxAttempts)
	case o.pollInterval < 0:
		return fmt.Errorf("%w: negative poll interval", ErrInvalidArgument)
	}
	return nil
}

// initialize runs on the create path. The ready semaphore is raised last and
// without SEM_UNDO, since it has to stay up after this process exits.
func (o *options) initialize(id, n int, log *zap.Logger) error {
	vals := make([]uint16, n+1)
	for i := 0; i < n; i++ {
		vals[i] = uint16(o.initial)
	}
	if err := semSetAll(id, vals); err != nil {
		return o.abort(id, "setall", err, log)
	}

	if o.beforeReady != nil {
		if err := o.beforeReady(id); err != nil {
			return o.abort(id, "prepare", err, log)
		}
	}

	if err := semop(id, []sembuf{{num: uint16(n), op: 1}}); err != nil {
		return o.abort(id, "ready", err, log)
	}
	return nil
}

// abort removes a set this process created but could not finish. A failed
// removal is reported alongside the original error.
func (o *options) abort(id int, op string, err error, log *zap.Logger) error {
	perr := &PartialInitError{Op: op, Err: err}
	log.Error("semaphore set initialization failed", zap.String("op", op), zap.Int("semid", id), zap.Error(err))
	if rmErr := semRemoveID(id); rmErr != nil {
		perr.CleanupErr = rmErr
		log.Error("could not remove half-initialized semaphore set", zap.Int("semid", id), zap.Error(rmErr))
	}
	return perr
}

// join runs when the set already exists. It never writes to the set.
func (o *options) join(key Key, n int, log *zap.Logger) (int, error) {
	id, err := semget(key, 0, 0)
	if err != nil {
		return -1, classify("semget", key, err)
	}

	st, err := semStatID(id)
	if err != nil {
		return -1, classify("stat", key, err)
	}
	if st.nsems != n+1 {
		return -1, fmt.Errorf("%w: key %s has %d semaphores, want %d", ErrSizeMismatch, key, st.nsems-1, n)
	}

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		ready, err := semGetVal(id, n)
		if err != nil {
			return -1, classify("getval", key, err)
		}
		if ready != 0 {
			return id, nil
		}
		log.Debug("waiting for semaphore set initialization", zap.Int("attempt", attempt), zap.Int("semid", id))
		if attempt < o.maxAttempts {
			time.Sleep(o.pollInterval)
		}
	}

	log.Warn("gave up waiting for semaphore set initialization",
		zap.Int("attempts", o.maxAttempts), zap.Duration("interval", o.pollInterval))
	return -1, fmt.Errorf("%w: key %s after %d attempts", ErrInitializationTimeout, key, o.maxAttempts)
}
