package consumer

import (
	"context"
	"runtime"
	"time"

	"github.com/baechuer/nanobus/envelope"
	"github.com/baechuer/nanobus/metrics"
	"github.com/baechuer/nanobus/metricshttp"
	"github.com/baechuer/nanobus/nberrors"
	"github.com/baechuer/nanobus/validate"
	amqp "github.com/rabbitmq/amqp091-go"
)

// handleDelivery runs one delivery through validate, system-event
// short-circuit, idempotent claim, user callback, and the
// success/retry/terminal outcome handling. It returns true only when
// the delivery was fully processed by the user callback and
// successfully acked — the signal the connection-lifecycle job counter
// advances on.
func (c *Consumer) handleDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, callback, debugCallback Callback) bool {
	if !validate.Delivery(d, c.lg) {
		metricshttp.IncConsumerError(string(nberrors.CodeValidationError))
		c.sink.Increment("rmq_consumer_error_total", 1, 1.0, metrics.Tags{"error_type": string(nberrors.CodeValidationError)})
		_ = d.Ack(false)
		return false
	}

	env, err := envelope.FromWire(d.MessageId, d.Type, d.AppId, map[string]any(d.Headers), d.Body)
	if err != nil {
		c.lg.Error().Err(nberrors.New(nberrors.CodeValidationError, "failed to wrap delivery as envelope", err)).Str("message_id", d.MessageId).Msg("envelope decode failed")
		metricshttp.IncConsumerError(string(nberrors.CodeValidationError))
		_ = d.Ack(false)
		return false
	}

	if handler, ok := c.systemEvents[env.Type()]; ok {
		if err := handler(ctx, env); err != nil {
			c.lg.Warn().Err(err).Str("type", env.Type()).Msg("system event handler returned an error")
		}
		_ = d.Ack(false)
		return false
	}

	consumerService := c.rt.Service
	producerService := env.AppID()
	messageID := env.MessageID()
	eventName := env.Type()

	retryCount := env.RetryCount() + 1
	retryStatus := retryStatusTag(retryCount, c.tries)
	tags := metrics.Tags{"event_name": eventName, "retry": retryStatus}

	metricshttp.IncEventStarted()
	c.sink.Increment("event_started_count", 1, 1.0, tags)
	metricshttp.ObserveConsumerPayloadBytes(len(d.Body))
	c.sink.Gauge("rmq_consumer_payload_bytes", float64(len(d.Body)), tags)
	start := time.Now()

	if c.alreadyProcessed(ctx, messageID, consumerService) {
		_ = d.Ack(false)
		return false
	}

	switch c.claim(ctx, messageID, consumerService, producerService, eventName, retryCount, d.Body) {
	case claimAlreadyProcessed, claimLostToAnotherWorker:
		_ = d.Ack(false)
		return false
	case claimTransientError:
		// A genuine (non-unique-violation) database error means this
		// delivery was never claimed, processed, or recorded anywhere.
		// Leave it unacked so the broker redelivers it instead of acking
		// a message that at-least-once delivery still owes.
		return false
	}

	chosen := callback
	if env.IsDebug() && debugCallback != nil {
		chosen = debugCallback
	}

	cbErr := chosen(ctx, env)
	if cbErr == nil {
		return c.handleSuccess(ctx, d, env, messageID, consumerService, retryStatus, start)
	}

	c.handleFailure(ctx, ch, d, env, cbErr, messageID, consumerService, eventName, retryCount, retryStatus, start)
	return false
}

func (c *Consumer) alreadyProcessed(ctx context.Context, messageID, consumerService string) bool {
	if c.fastPath != nil {
		if dup, err := c.fastPath.IsProcessed(ctx, messageID); err == nil && dup {
			return true
		}
	}
	processed, err := c.repo.ExistsInInboxAndProcessed(ctx, messageID, consumerService)
	return err == nil && processed
}

type claimOutcome int

const (
	claimOwned claimOutcome = iota
	claimAlreadyProcessed
	claimLostToAnotherWorker
	claimTransientError
)

// claim attempts to insert the processing-owning inbox row, falling back
// to the already-processed and stale-lock-claim checks only when the
// insert's failure was a (message_id, consumer_service) unique
// violation — store.InsertInbox reports that case as (false, nil). Any
// other error from InsertInbox is a genuine database failure rather than
// a duplicate-delivery signal, so it returns claimTransientError
// immediately instead of falling through to checks that would also fail
// against a broken database and risk acking a message nothing ever
// claimed.
func (c *Consumer) claim(ctx context.Context, messageID, consumerService, producerService, eventName string, retryCount int, body []byte) claimOutcome {
	inserted, err := c.repo.InsertInbox(ctx, messageID, consumerService, producerService, eventName, body, retryCount, c.rt.PodName)
	if err != nil {
		metricshttp.IncConsumerError(string(nberrors.CodeInboxInsertError))
		c.lg.Error().Err(err).Str("message_id", messageID).Msg("inbox insert failed with a non-unique-violation error")
		return claimTransientError
	}
	if inserted {
		return claimOwned
	}

	if processed, err := c.repo.ExistsInInboxAndProcessed(ctx, messageID, consumerService); err == nil && processed {
		return claimAlreadyProcessed
	}

	claimed, err := c.repo.TryClaimInboxMessage(ctx, messageID, consumerService, c.rt.PodName, c.rt.InboxLockStaleSeconds)
	if err != nil || !claimed {
		return claimLostToAnotherWorker
	}
	return claimOwned
}

func (c *Consumer) handleSuccess(ctx context.Context, d amqp.Delivery, env *envelope.Envelope, messageID, consumerService, retryStatus string, start time.Time) bool {
	if err := d.Ack(false); err != nil {
		metricshttp.IncConsumerAckFailed()
		c.sink.Increment("rmq_consumer_ack_failed_total", 1, 1.0, nil)
		c.lg.Error().Err(err).Str("message_id", messageID).Msg("ack failed after successful processing")
		return false
	}

	if !c.repo.MarkInboxAsProcessed(ctx, messageID, consumerService) {
		metricshttp.IncConsumerError(string(nberrors.CodeInboxUpdateError))
	}
	if c.fastPath != nil {
		_ = c.fastPath.MarkProcessed(ctx, messageID)
	}

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	tags := metrics.Tags{"exit_status": "success", "retry": retryStatus}
	metricshttp.ObserveEventProcessedDuration("success", retryStatus, elapsedMs)
	c.sink.Timing("event_processed_duration", elapsedMs, tags)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metricshttp.ObserveEventProcessedMemoryBytes(mem.Alloc)
	c.sink.Gauge("event_processed_memory_bytes", float64(mem.Alloc), nil)
	return true
}

func (c *Consumer) handleFailure(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, env *envelope.Envelope, cbErr error, messageID, consumerService, eventName string, retryCount int, retryStatus string, start time.Time) {
	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	tags := metrics.Tags{"exit_status": "failed", "retry": retryStatus}
	metricshttp.ObserveEventProcessedDuration("failed", retryStatus, elapsedMs)
	c.sink.Timing("event_processed_duration", elapsedMs, tags)

	if retryCount < c.tries {
		c.retryDelivery(ctx, ch, d, env, cbErr, messageID, consumerService, eventName, retryCount)
		return
	}
	c.terminalDelivery(ctx, ch, d, env, cbErr, messageID, consumerService, retryCount)
}

func (c *Consumer) retryDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, env *envelope.Envelope, cbErr error, messageID, consumerService, eventName string, retryCount int) {
	if c.catchFn != nil {
		safeCall(func() { c.catchFn(cbErr, env) })
	}

	delayMs := int64(c.backoffSeconds(retryCount)) * 1000
	env.SetHeader("x-delay", delayMs)
	env.SetHeader("x-retry-count", retryCount)

	body, err := env.MarshalBody()
	if err == nil {
		err = publishRaw(ctx, ch, c.spec.DelayExchange.String(), eventName, env, body)
	}
	if err != nil {
		metricshttp.IncConsumerError(string(nberrors.CodeRetryRepublishError))
		c.sink.Increment("rmq_consumer_error_total", 1, 1.0, metrics.Tags{"error_type": string(nberrors.CodeRetryRepublishError)})
		c.lg.Error().Err(err).Str("message_id", messageID).Msg("retry republish failed, leaving delivery unacked for redelivery")
		return
	}

	_ = d.Ack(false)
	if !c.repo.UpdateInboxRetryCount(ctx, messageID, consumerService, retryCount) {
		metricshttp.IncConsumerError(string(nberrors.CodeInboxUpdateError))
	}
}

func (c *Consumer) terminalDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, env *envelope.Envelope, cbErr error, messageID, consumerService string, retryCount int) {
	if c.failedFn != nil {
		safeCall(func() { c.failedFn(cbErr, env) })
	}

	metricshttp.IncConsumerDLX("max_retries_exceeded")
	c.sink.Increment("rmq_consumer_dlx_total", 1, 1.0, metrics.Tags{"reason": "max_retries_exceeded"})

	env.SetConsumerError(cbErr.Error())
	env.SetHeader("x-retry-count", retryCount)

	body, err := env.MarshalBody()
	if err == nil {
		err = publishRaw(ctx, ch, "", c.spec.FailedQueue.String(), env, body)
	}
	if err != nil {
		metricshttp.IncConsumerError(string(nberrors.CodeDLXPublishError))
		c.sink.Increment("rmq_consumer_error_total", 1, 1.0, metrics.Tags{"error_type": string(nberrors.CodeDLXPublishError)})
		c.lg.Error().Err(err).Str("message_id", messageID).Msg("failed-queue publish failed, leaving delivery unacked for redelivery")
		return
	}

	_ = d.Ack(false)
	if !c.repo.MarkInboxAsFailed(ctx, messageID, consumerService, cbErr.Error()) {
		metricshttp.IncConsumerError(string(nberrors.CodeInboxUpdateError))
	}
}

func publishRaw(ctx context.Context, ch *amqp.Channel, exchange, routingKey string, env *envelope.Envelope, body []byte) error {
	table := make(amqp.Table, len(env.Headers()))
	for k, v := range env.Headers() {
		table[k] = v
	}
	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.MessageID(),
		AppId:        env.AppID(),
		Type:         env.Type(),
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         body,
	})
}

func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
