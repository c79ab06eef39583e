// Package breaker throttles a caller's own loop during a broker outage.
// Unlike a call-wrapping circuit breaker, it owns no retry policy of its
// own — it just tells the caller whether the broker looked healthy on
// the last probe, sleeping the caller's goroutine when it doesn't.
package breaker

import (
	"context"
	"sync"
	"time"
)

// HealthFunc probes the resource this breaker watches. A nil error
// means healthy.
type HealthFunc func(ctx context.Context) error

// Breaker holds a single outageMode flag and invokes OnOutageEnter /
// OnOutageExit exactly once per transition.
type Breaker struct {
	probe HealthFunc

	mu         sync.Mutex
	outageMode bool

	onOutageEnter func(sleep time.Duration)
	onOutageExit  func()
}

// New builds a Breaker around the given health probe.
func New(probe HealthFunc) *Breaker {
	return &Breaker{probe: probe}
}

// OnOutageEnter registers the hook called once when an outage begins.
func (b *Breaker) OnOutageEnter(fn func(sleep time.Duration)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOutageEnter = fn
}

// OnOutageExit registers the hook called once when an outage ends.
func (b *Breaker) OnOutageExit(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOutageExit = fn
}

// InOutage reports the current outageMode flag.
func (b *Breaker) InOutage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outageMode
}

// EnsureConnectionOrSleep probes health. If unhealthy, it enters outage
// mode (invoking OnOutageEnter once on the transition), sleeps for
// sleepFor, and returns false. If healthy, it exits outage mode
// (invoking OnOutageExit once on the transition) and returns true.
//
// Callers loop on this: `for !b.EnsureConnectionOrSleep(ctx, d) { }`
// would busy-loop through an outage with the configured sleep as the
// only backpressure, which is the point — it bounds the rate at which a
// consumer or outbox dispatcher hammers a downed broker.
func (b *Breaker) EnsureConnectionOrSleep(ctx context.Context, sleepFor time.Duration) bool {
	err := b.probe(ctx)

	b.mu.Lock()
	if err != nil {
		entering := !b.outageMode
		b.outageMode = true
		enter := b.onOutageEnter
		b.mu.Unlock()

		if entering && enter != nil {
			enter(sleepFor)
		}
		sleepOrDone(ctx, sleepFor)
		return false
	}

	wasOutage := b.outageMode
	b.outageMode = false
	exit := b.onOutageExit
	b.mu.Unlock()

	if wasOutage && exit != nil {
		exit()
	}
	return true
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
