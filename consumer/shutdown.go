package consumer

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
)

var shutdownOnce sync.Once

// registerShutdownOnce installs a process-level SIGINT/SIGTERM hook
// that cancels the consumer tag (letting the in-flight delivery's
// ack-before-return discipline finish first) and then closes the pool.
// It runs exactly once per process regardless of how many times
// Consume cycles through reconnects.
func (c *Consumer) registerShutdownOnce(ch *amqp.Channel, consumerTag string) {
	shutdownOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			c.lg.Info().Msg("shutdown signal received, cancelling consumer tag")
			_ = ch.Cancel(consumerTag, false)
			c.pool.Reset()
		}()
	})
}
