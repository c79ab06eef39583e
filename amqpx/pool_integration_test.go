//go:build integration
// +build integration

package amqpx

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolConnectsAndReset(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("Skipping integration test: TEST_AMQP_URL not set")
	}

	p := New(Options{URL: url}, testLogger())
	ctx := context.Background()

	require.NoError(t, p.HealthCheck(ctx))
	require.True(t, p.IsConnected())

	p.Reset()
	require.False(t, p.IsConnected())

	require.NoError(t, p.HealthCheck(ctx))
}

// TestChannelIsReusedAcrossManyCalls is the channel-exhaustion regression
// test: a thousand calls to Channel, standing in for a thousand Publisher
// instances sharing one Pool, must open exactly one broker-side channel
// between them rather than one per call.
func TestChannelIsReusedAcrossManyCalls(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("Skipping integration test: TEST_AMQP_URL not set")
	}

	p := New(Options{URL: url}, testLogger())
	defer p.Reset()
	ctx := context.Background()

	first, err := p.Channel(ctx)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		ch, err := p.Channel(ctx)
		require.NoError(t, err)
		require.Same(t, first, ch, "every call must return the same shared channel")
		p.Release(ch)
	}
}
