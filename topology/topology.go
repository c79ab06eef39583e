// Package topology declares the broker resources a service needs: the
// shared bus exchange, its own main queue and delayed-retry exchange,
// and the failed queue, wiring them together the way a consumer process
// expects to find them on startup. Every declaration here is
// idempotent — RabbitMQ no-ops a Declare call whose arguments match what
// already exists, which is what lets Ensure run on every process start
// without coordination.
package topology

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/baechuer/nanobus/amqpx"
)

// Spec describes the resources one service's topology needs.
type Spec struct {
	BusExchange   amqpx.ExchangeName
	MainQueue     amqpx.QueueName
	DelayExchange amqpx.ExchangeName
	FailedQueue   amqpx.QueueName

	// EventBindings are the routing keys this service's main queue binds
	// to on the bus exchange (the events it wants to consume).
	EventBindings []string

	// SystemBindings are routing keys for system-wide control events
	// (the system-event short-circuit in the consumer pipeline) that bypass user
	// callbacks entirely but still need queue delivery.
	SystemBindings []string
}

// Ensure declares the bus exchange, the service's main queue (its
// x-dead-letter-exchange argument set to the failed queue's name), the
// service's delayed exchange, the failed queue, and every binding in the
// Spec. It is safe to call on every
// process start.
func Ensure(ctx context.Context, pool *amqpx.Pool, spec Spec, lg zerolog.Logger) error {
	lg = lg.With().Str("component", "topology").Logger()

	ch, err := pool.Channel(ctx)
	if err != nil {
		return fmt.Errorf("topology: open channel: %w", err)
	}
	defer pool.Release(ch)

	if err := ch.ExchangeDeclare(
		spec.BusExchange.String(), "topic", true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("topology: declare bus exchange %s: %w", spec.BusExchange, err)
	}

	// The delayed exchange requires the rabbitmq_delayed_message_exchange
	// plugin. x-delayed-type tells the plugin which routing algorithm to
	// apply once a message's x-delay header has elapsed.
	if err := ch.ExchangeDeclare(
		spec.DelayExchange.String(), "x-delayed-message", true, false, false, false,
		amqp.Table{"x-delayed-type": "topic"},
	); err != nil {
		return fmt.Errorf("topology: declare delay exchange %s: %w", spec.DelayExchange, err)
	}

	if _, err := ch.QueueDeclare(
		spec.FailedQueue.String(), true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("topology: declare failed queue %s: %w", spec.FailedQueue, err)
	}

	// x-dead-letter-exchange is set to the failed queue's own name rather
	// than an actual declared exchange plus a routing key. See DESIGN.md
	// for why this is intentional rather than a typo.
	mainArgs := amqp.Table{
		"x-dead-letter-exchange": spec.FailedQueue.String(),
	}
	if _, err := ch.QueueDeclare(
		spec.MainQueue.String(), true, false, false, false, mainArgs,
	); err != nil {
		return fmt.Errorf("topology: declare main queue %s: %w", spec.MainQueue, err)
	}

	// Self-binding: the main queue listens to its own delayed exchange on
	// every routing key, so a retry republished there for any event type
	// lands back on the same queue once its delay elapses.
	if err := ch.QueueBind(spec.MainQueue.String(), "#", spec.DelayExchange.String(), false, nil); err != nil {
		return fmt.Errorf("topology: self-bind main queue to delay exchange: %w", err)
	}

	for _, rk := range spec.EventBindings {
		if err := ch.QueueBind(spec.MainQueue.String(), rk, spec.BusExchange.String(), false, nil); err != nil {
			return fmt.Errorf("topology: bind %s to bus on %q: %w", spec.MainQueue, rk, err)
		}
	}
	for _, rk := range spec.SystemBindings {
		if err := ch.QueueBind(spec.MainQueue.String(), rk, spec.BusExchange.String(), false, nil); err != nil {
			return fmt.Errorf("topology: bind %s to bus on system key %q: %w", spec.MainQueue, rk, err)
		}
	}

	lg.Info().
		Str("bus_exchange", spec.BusExchange.String()).
		Str("main_queue", spec.MainQueue.String()).
		Str("delay_exchange", spec.DelayExchange.String()).
		Str("failed_queue", spec.FailedQueue.String()).
		Int("event_bindings", len(spec.EventBindings)).
		Int("system_bindings", len(spec.SystemBindings)).
		Msg("topology ensured")
	return nil
}
