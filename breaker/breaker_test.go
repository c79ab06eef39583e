package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnsureConnectionOrSleepHealthy(t *testing.T) {
	b := New(func(ctx context.Context) error { return nil })
	ok := b.EnsureConnectionOrSleep(context.Background(), time.Millisecond)
	assert.True(t, ok)
	assert.False(t, b.InOutage())
}

func TestEnsureConnectionOrSleepUnhealthyEntersOutageOnce(t *testing.T) {
	var enters int32
	b := New(func(ctx context.Context) error { return errors.New("down") })
	b.OnOutageEnter(func(d time.Duration) { atomic.AddInt32(&enters, 1) })

	ok := b.EnsureConnectionOrSleep(context.Background(), time.Millisecond)
	assert.False(t, ok)
	assert.True(t, b.InOutage())

	ok = b.EnsureConnectionOrSleep(context.Background(), time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&enters))
}

func TestEnsureConnectionOrSleepRecoveryInvokesExitOnce(t *testing.T) {
	healthy := int32(0)
	var exits int32
	b := New(func(ctx context.Context) error {
		if atomic.LoadInt32(&healthy) == 1 {
			return nil
		}
		return errors.New("down")
	})
	b.OnOutageExit(func() { atomic.AddInt32(&exits, 1) })

	b.EnsureConnectionOrSleep(context.Background(), time.Millisecond)
	assert.True(t, b.InOutage())

	atomic.StoreInt32(&healthy, 1)
	ok := b.EnsureConnectionOrSleep(context.Background(), time.Millisecond)
	assert.True(t, ok)
	assert.False(t, b.InOutage())
	assert.Equal(t, int32(1), atomic.LoadInt32(&exits))

	ok = b.EnsureConnectionOrSleep(context.Background(), time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exits))
}

func TestEnsureConnectionOrSleepRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(func(ctx context.Context) error { return errors.New("down") })
	start := time.Now()
	b.EnsureConnectionOrSleep(ctx, 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}
