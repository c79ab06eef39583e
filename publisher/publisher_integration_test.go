//go:build integration
// +build integration

package publisher

import (
	"context"
	"os"
	"testing"

	"github.com/baechuer/nanobus/amqpx"
	"github.com/baechuer/nanobus/config"
	"github.com/baechuer/nanobus/envelope"
	"github.com/baechuer/nanobus/metrics"
	"github.com/baechuer/nanobus/store"
	"github.com/baechuer/nanobus/topology"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublishInsertsOutboxAndDeliversOverTheWire(t *testing.T) {
	amqpURL := os.Getenv("TEST_AMQP_URL")
	dsn := os.Getenv("TEST_DB_DSN")
	if amqpURL == "" || dsn == "" {
		t.Skip("Skipping integration test: TEST_AMQP_URL and TEST_DB_DSN must both be set")
	}

	ctx := context.Background()
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
	_, err = pgPool.Exec(ctx, "TRUNCATE TABLE "+schema+".outbox RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	repo := store.New(pgPool, schema, schema, lg)
	rt := &config.Runtime{Project: "nanobus_test", Service: "publisher_it"}

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

	pub := New(pool, repo, sink, rt, lg)

	env := envelope.New()
	env.SetPayload(map[string]any{"order_id": uuid.NewString()})

	ok := pub.Publish(ctx, env, "order.created", 0)
	require.True(t, ok)

	exists, err := repo.ExistsInOutbox(ctx, env.MessageID(), rt.Service)
	require.NoError(t, err)
	require.True(t, exists)

	ok = pub.Publish(ctx, env, "order.created", 0)
	require.True(t, ok, "re-publishing an already-outboxed message must be idempotent")
}
