// Package consumer implements the resilient receive loop: circuit
// breaker outer loop, per-delivery validate/claim/callback/ack
// pipeline, retry republish via the delayed exchange, terminal routing
// to the failed queue, and connection lifecycle reinit.
package consumer

import (
	"context"

	"github.com/baechuer/nanobus/amqpx"
	"github.com/baechuer/nanobus/breaker"
	"github.com/baechuer/nanobus/config"
	"github.com/baechuer/nanobus/envelope"
	"github.com/baechuer/nanobus/metrics"
	"github.com/baechuer/nanobus/store"
	"github.com/baechuer/nanobus/topology"
	"github.com/rs/zerolog"
)

// Callback is the user-supplied per-delivery handler. A non-nil error
// marks the delivery as failed for retry/terminal handling.
type Callback func(ctx context.Context, env *envelope.Envelope) error

// CatchFunc is invoked on every retryable failure, after the retry
// republish decision is made. Its own errors are swallowed.
type CatchFunc func(err error, env *envelope.Envelope)

// FailedFunc is invoked once a delivery's retry budget is exhausted,
// before it is routed to the failed queue. Its own errors are swallowed.
type FailedFunc func(err error, env *envelope.Envelope)

// Consumer owns the outer resilience loop and per-delivery pipeline for
// one service's main queue.
type Consumer struct {
	pool     *amqpx.Pool
	repo     *store.Repository
	fastPath *store.RedisFastPath
	sink     *metrics.Sink
	rt       *config.Runtime
	br       *breaker.Breaker
	lg       zerolog.Logger

	spec topology.Spec

	tries        int
	backoff      []int // seconds; index = min(retryCount-1, len-1)
	outageSleep  durationSeconds
	systemEvents map[string]Callback
	catchFn      CatchFunc
	failedFn     FailedFunc

	maxJobs  int
	jobCount int
}

type durationSeconds = int

// New builds a Consumer with the defaults tries=3, backoff=[1,5]
// seconds, outageSleep=5s — the values the worked examples in the
// resilience-loop design exercise.
func New(pool *amqpx.Pool, repo *store.Repository, sink *metrics.Sink, rt *config.Runtime, br *breaker.Breaker, spec topology.Spec, lg zerolog.Logger) *Consumer {
	return &Consumer{
		pool:         pool,
		repo:         repo,
		sink:         sink,
		rt:           rt,
		br:           br,
		spec:         spec,
		lg:           lg.With().Str("component", "consumer").Logger(),
		tries:        3,
		backoff:      []int{1, 5},
		outageSleep:  5,
		systemEvents: make(map[string]Callback),
		maxJobs:      rt.ConnectionMaxJobs,
	}
}

// WithFastPath attaches the optional Redis idempotency cache in front
// of the Postgres inbox check.
func (c *Consumer) WithFastPath(fp *store.RedisFastPath) *Consumer {
	c.fastPath = fp
	return c
}

// Tries sets the total delivery attempts (first attempt plus retries)
// before a message is routed to the failed queue.
func (c *Consumer) Tries(n int) *Consumer {
	if n > 0 {
		c.tries = n
	}
	return c
}

// Backoff sets the ordered per-retry backoff in seconds. The last value
// is reused for every retry past the end of the list, so a single value
// applies to every retry.
func (c *Consumer) Backoff(seconds ...int) *Consumer {
	if len(seconds) > 0 {
		c.backoff = seconds
	}
	return c
}

// OutageSleep sets how long EnsureConnectionOrSleep sleeps during a
// broker outage.
func (c *Consumer) OutageSleep(seconds int) *Consumer {
	if seconds > 0 {
		c.outageSleep = seconds
	}
	return c
}

// Catch registers the hook invoked on every retryable failure.
func (c *Consumer) Catch(fn CatchFunc) *Consumer {
	c.catchFn = fn
	return c
}

// Failed registers the hook invoked once a delivery's retries are
// exhausted, before it is routed to the failed queue.
func (c *Consumer) Failed(fn FailedFunc) *Consumer {
	c.failedFn = fn
	return c
}

// OnSystemEvent registers a handler that short-circuits the inbox
// pipeline entirely for envelopes of the given exact event type (e.g.
// "system.ping.1"): invoked, then acked, never claimed or retried.
func (c *Consumer) OnSystemEvent(eventType string, fn Callback) *Consumer {
	c.systemEvents[eventType] = fn
	return c
}

func (c *Consumer) backoffSeconds(retryCount int) int {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.backoff) {
		idx = len(c.backoff) - 1
	}
	return c.backoff[idx]
}

func retryStatusTag(retryCount, tries int) string {
	switch {
	case retryCount == 1:
		return "first"
	case retryCount == tries:
		return "last"
	default:
		return "retry"
	}
}
