package consumer

import (
	"context"
	"time"

	"github.com/baechuer/nanobus/metricshttp"
	"github.com/baechuer/nanobus/nberrors"
	"github.com/baechuer/nanobus/topology"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consume runs the resilience loop forever: probe the breaker, declare
// topology once per connection generation, open a consume channel at
// prefetch=1 with manual ack, and dispatch every delivery to the
// per-delivery pipeline. It returns only when ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, callback Callback, debugCallback Callback) error {
	topologyReady := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.br != nil && !c.br.EnsureConnectionOrSleep(ctx, time.Duration(c.outageSleep)*time.Second) {
			continue
		}

		if !topologyReady {
			if err := topology.Ensure(ctx, c.pool, c.spec, c.lg); err != nil {
				c.lg.Error().Err(err).Msg("topology declaration failed")
				c.pool.Reset()
				sleepOrDone(ctx, 2*time.Second)
				continue
			}
			topologyReady = true
		}

		if c.shouldReinit() {
			c.reinitialize(ctx)
			topologyReady = false
			continue
		}

		ch, err := c.pool.Channel(ctx)
		if err != nil {
			c.lg.Error().Err(err).Msg("failed to open consume channel")
			metricshttp.IncConsumerError(string(nberrors.CodeConsumeSetup))
			c.pool.Reset()
			topologyReady = false
			sleepOrDone(ctx, 2*time.Second)
			continue
		}

		if err := ch.Qos(1, 0, false); err != nil {
			c.lg.Error().Err(err).Msg("failed to set prefetch")
			c.pool.Release(ch)
			c.pool.Reset()
			topologyReady = false
			sleepOrDone(ctx, 2*time.Second)
			continue
		}

		consumerTag := c.rt.Service
		deliveries, err := ch.Consume(c.spec.MainQueue.String(), consumerTag, false, false, false, false, nil)
		if err != nil {
			c.lg.Error().Err(err).Msg("failed to start consuming")
			c.pool.Release(ch)
			c.pool.Reset()
			topologyReady = false
			sleepOrDone(ctx, 2*time.Second)
			continue
		}

		c.registerShutdownOnce(ch, consumerTag)

		c.consumeLoop(ctx, ch, deliveries, callback, debugCallback)

		select {
		case <-ctx.Done():
			c.pool.Release(ch)
			return ctx.Err()
		default:
		}

		c.pool.Release(ch)
		topologyReady = false
		sleepOrDone(ctx, 2*time.Second)
	}
}

// consumeLoop drains deliveries until the channel closes — either
// because the broker died or because a reinit cancelled the consumer
// tag — and returns control to Consume.
func (c *Consumer) consumeLoop(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery, callback, debugCallback Callback) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			succeeded := c.handleDelivery(ctx, ch, d, callback, debugCallback)
			if succeeded && c.maxJobs > 0 {
				c.jobCount++
				if c.jobCount >= c.maxJobs {
					_ = ch.Cancel(c.rt.Service, false)
				}
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
