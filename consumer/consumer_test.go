package consumer

import (
	"context"
	"testing"

	"github.com/baechuer/nanobus/envelope"
	"github.com/stretchr/testify/assert"
)

func TestRetryStatusTag(t *testing.T) {
	assert.Equal(t, "first", retryStatusTag(1, 3))
	assert.Equal(t, "retry", retryStatusTag(2, 3))
	assert.Equal(t, "last", retryStatusTag(3, 3))
}

func TestBackoffSecondsClampsToLastEntry(t *testing.T) {
	c := &Consumer{backoff: []int{1, 5}}
	assert.Equal(t, 1, c.backoffSeconds(1))
	assert.Equal(t, 5, c.backoffSeconds(2))
	assert.Equal(t, 5, c.backoffSeconds(3))
	assert.Equal(t, 5, c.backoffSeconds(10))
}

func TestShouldReinitRespectsThreshold(t *testing.T) {
	c := &Consumer{maxJobs: 0, jobCount: 100}
	assert.False(t, c.shouldReinit(), "maxJobs<=0 disables reinit entirely")

	c = &Consumer{maxJobs: 5, jobCount: 4}
	assert.False(t, c.shouldReinit())

	c.jobCount = 5
	assert.True(t, c.shouldReinit())
}

func TestSafeCallRecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		safeCall(func() { panic("boom") })
	})
}

func TestFluentBuilderSettersMutateConfiguration(t *testing.T) {
	c := &Consumer{tries: 3, backoff: []int{1, 5}, outageSleep: 5, systemEvents: map[string]Callback{}}
	c.Tries(5).Backoff(2, 4, 8).OutageSleep(10)
	assert.Equal(t, 5, c.tries)
	assert.Equal(t, []int{2, 4, 8}, c.backoff)
	assert.Equal(t, 10, c.outageSleep)

	c.OnSystemEvent("system.ping.1", func(_ context.Context, _ *envelope.Envelope) error { return nil })
	_, ok := c.systemEvents["system.ping.1"]
	assert.True(t, ok)
}
