//go:build integration
// +build integration

package consumer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/baechuer/nanobus/amqpx"
	"github.com/baechuer/nanobus/breaker"
	"github.com/baechuer/nanobus/config"
	"github.com/baechuer/nanobus/envelope"
	"github.com/baechuer/nanobus/metrics"
	"github.com/baechuer/nanobus/publisher"
	"github.com/baechuer/nanobus/store"
	"github.com/baechuer/nanobus/topology"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConsumeInvokesCallbackThenAcks(t *testing.T) {
	amqpURL := os.Getenv("TEST_AMQP_URL")
	dsn := os.Getenv("TEST_DB_DSN")
	if amqpURL == "" || dsn == "" {
		t.Skip("Skipping integration test: TEST_AMQP_URL and TEST_DB_DSN must both be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	lg := zerolog.Nop()

	pool := amqpx.New(amqpx.Options{URL: amqpURL}, lg)
	t.Cleanup(pool.Reset)

	pgPool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pgPool.Close)

	schema := os.Getenv("TEST_DB_SCHEMA")
	if schema == "" {
		schema = "public"
	}
	_, err = pgPool.Exec(ctx, "TRUNCATE TABLE "+schema+".outbox, "+schema+".inbox RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	repo := store.New(pgPool, schema, schema, lg)
	rt := &config.Runtime{Project: "nanobus_test", Service: "consumer_it", PodName: "worker-1"}

	spec := topology.Spec{
		BusExchange:   amqpx.ExchangeName(rt.BusExchange()),
		MainQueue:     amqpx.QueueName(rt.MainQueue()),
		DelayExchange: amqpx.ExchangeName(rt.DelayExchange()),
		FailedQueue:   amqpx.QueueName(rt.FailedQueue()),
		EventBindings: []string{"order.created"},
	}
	require.NoError(t, topology.Ensure(ctx, pool, spec, lg))

	sink, err := metrics.New(metrics.Options{Enabled: false})
	require.NoError(t, err)

	br := breaker.New(func(ctx context.Context) error { return pool.HealthCheck(ctx) })
	pub := publisher.New(pool, repo, sink, rt, lg)

	env := envelope.New()
	env.SetPayload(map[string]any{"order_id": uuid.NewString()})
	require.True(t, pub.Publish(ctx, env, "order.created", 0))

	received := make(chan string, 1)
	cons := New(pool, repo, sink, rt, br, spec, lg).Tries(3).Backoff(1, 5)

	go func() {
		_ = cons.Consume(ctx, func(_ context.Context, e *envelope.Envelope) error {
			received <- e.MessageID()
			return nil
		}, nil)
	}()

	select {
	case id := <-received:
		require.Equal(t, env.MessageID(), id)
	case <-time.After(8 * time.Second):
		t.Fatal("did not receive published message within timeout")
	}

	processed, err := repo.ExistsInInboxAndProcessed(context.Background(), env.MessageID(), rt.Service)
	require.NoError(t, err)
	require.True(t, processed)
}
