package semboot

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

// bootstrapMetrics counts AcquireOrJoin outcomes. Every field is non-nil;
// unset counters discard.
type bootstrapMetrics struct {
	created  metrics.Counter
	joined   metrics.Counter
	timeouts metrics.Counter
	failures metrics.Counter
}

func newBootstrapMetrics() bootstrapMetrics {
	return bootstrapMetrics{
		created:  discard.NewCounter(),
		joined:   discard.NewCounter(),
		timeouts: discard.NewCounter(),
		failures: discard.NewCounter(),
	}
}

func counterOrDiscard(c metrics.Counter) metrics.Counter {
	if c != nil {
		return c
	}
	return discard.NewCounter()
}

// WithCreatedCounter establishes a metric incremented each time this process
// wins the race and initializes a set. A nil counter discards.
func WithCreatedCounter(c metrics.Counter) Option {
	return func(o *options) {
		o.metrics.created = counterOrDiscard(c)
	}
}

// WithJoinedCounter establishes a metric incremented each time this process
// attaches to a set another process initialized. A nil counter discards.
func WithJoinedCounter(c metrics.Counter) Option {
	return func(o *options) {
		o.metrics.joined = counterOrDiscard(c)
	}
}

// WithTimeoutCounter establishes a metric incremented when the join path
// gives up waiting for initialization. A nil counter discards.
func WithTimeoutCounter(c metrics.Counter) Option {
	return func(o *options) {
		o.metrics.timeouts = counterOrDiscard(c)
	}
}

// WithFailureCounter establishes a metric incremented for every other failed
// AcquireOrJoin. A nil counter discards.
func WithFailureCounter(c metrics.Counter) Option {
	return func(o *options) {
		o.metrics.failures = counterOrDiscard(c)
	}
}
