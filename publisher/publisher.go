// Package publisher implements the outbox-backed publish pipeline:
// validate, existence-check, insert, best-effort trace, wire publish,
// mark published or pending.
package publisher

import (
	"context"
	"time"

	"github.com/baechuer/nanobus/amqpx"
	"github.com/baechuer/nanobus/config"
	"github.com/baechuer/nanobus/envelope"
	"github.com/baechuer/nanobus/metrics"
	"github.com/baechuer/nanobus/metricshttp"
	"github.com/baechuer/nanobus/nberrors"
	"github.com/baechuer/nanobus/store"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher owns the outbox-insert-then-wire-publish pipeline for one
// service process. It shares the process-wide connection pool and
// database repository with the consumer pipeline.
type Publisher struct {
	pool *amqpx.Pool
	repo *store.Repository
	sink *metrics.Sink
	rt   *config.Runtime
	lg   zerolog.Logger

	busExchange amqpx.ExchangeName
}

// New builds a Publisher.
func New(pool *amqpx.Pool, repo *store.Repository, sink *metrics.Sink, rt *config.Runtime, lg zerolog.Logger) *Publisher {
	return &Publisher{
		pool:        pool,
		repo:        repo,
		sink:        sink,
		rt:          rt,
		lg:          lg.With().Str("component", "publisher").Logger(),
		busExchange: amqpx.ExchangeName(rt.BusExchange()),
	}
}

// Publish prepares env for the named event, makes it durable in the
// outbox, and attempts to deliver it over the wire. It returns true
// whenever the caller can safely move on (including idempotent
// re-publish of an already-outboxed message). It returns false when the
// wire publish itself failed, in which case the message is left
// `pending` for the out-of-scope dispatcher to retry, and also when the
// envelope or event name is invalid or the body cannot be marshaled, in
// which case nothing is written to the outbox.
func (p *Publisher) Publish(ctx context.Context, env *envelope.Envelope, eventName string, delay time.Duration) bool {
	metricshttp.IncPublishTotal()
	p.sink.Increment("rmq_publish_total", 1, 1.0, nil)

	if eventName == "" || env == nil || env.MessageID() == "" {
		p.recordError(EncodingError, "config_error")
		p.lg.Error().Str("event", eventName).Msg("publish called with invalid envelope or event name")
		return false
	}

	if err := env.SetType(eventName); err != nil {
		p.lg.Debug().Err(err).Str("event", eventName).Msg("envelope type already set, keeping existing value")
	}
	env.SetAppID(p.rt.AppID())
	if delay > 0 {
		env.SetHeader("x-delay", delay.Milliseconds())
	}
	env.MergeMeta(map[string]any{"producer_service": p.rt.Service})

	messageID := env.MessageID()
	producerService := p.rt.Service

	exists, err := p.repo.ExistsInOutbox(ctx, messageID, producerService)
	if err != nil {
		p.lg.Warn().Err(err).Str("message_id", messageID).Msg("outbox existence check failed, proceeding with insert")
	} else if exists {
		return true
	}

	body, err := env.MarshalBody()
	if err != nil {
		p.recordError(EncodingError, "encoding_error")
		p.lg.Error().Err(err).Str("message_id", messageID).Msg("failed to marshal envelope body")
		return false
	}

	inserted, err := p.repo.InsertOutbox(ctx, messageID, producerService, eventName, body, nil)
	if err != nil {
		p.lg.Warn().Err(err).Str("message_id", messageID).Msg("outbox insert failed, proceeding with publish attempt")
	} else if !inserted {
		// Unique violation: another attempt already owns this row.
		return true
	}

	if !p.repo.InsertEventTrace(ctx, messageID, env.TraceChain()) {
		metricshttp.IncPublisherError(string(nberrors.CodeTraceInsertError))
	}

	start := time.Now()
	metricshttp.ObservePayloadBytes(len(body))
	p.sink.Gauge("rmq_payload_bytes", float64(len(body)), metrics.Tags{"event_name": eventName})

	pubErr := p.publishWire(ctx, eventName, messageID, p.rt.AppID(), env.Headers(), body)

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	metricshttp.ObservePublishDuration(elapsedMs)
	p.sink.Timing("rmq_publish_duration_ms", elapsedMs, metrics.Tags{"event_name": eventName})

	if pubErr == nil {
		if !p.repo.MarkAsPublished(ctx, messageID, producerService) {
			metricshttp.IncPublisherError(string(nberrors.CodeOutboxUpdateError))
		}
		metricshttp.IncPublishSuccess()
		p.sink.Increment("rmq_publish_success_total", 1, 1.0, metrics.Tags{"event_name": eventName})
		return true
	}

	errType := classify(pubErr)
	if resetsConnection(errType) {
		p.pool.Reset()
	}
	if !p.repo.MarkAsPending(ctx, messageID, producerService, pubErr.Error()) {
		metricshttp.IncPublisherError(string(nberrors.CodeOutboxUpdateError))
	}
	p.recordError(errType, string(errType))
	p.lg.Error().Err(pubErr).Str("message_id", messageID).Str("error_type", string(errType)).Msg("wire publish failed")
	return false
}

func (p *Publisher) publishWire(ctx context.Context, eventName, messageID, appID string, headers map[string]any, body []byte) error {
	ch, err := p.pool.Channel(ctx)
	if err != nil {
		return err
	}
	defer p.pool.Release(ch)

	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}

	return ch.PublishWithContext(ctx, p.busExchange.String(), eventName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		AppId:        appID,
		Type:         eventName,
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         body,
	})
}

func (p *Publisher) recordError(errType ErrorType, metricErrorType string) {
	metricshttp.IncPublishError(metricErrorType)
	p.sink.Increment("rmq_publish_error_total", 1, 1.0, metrics.Tags{"error_type": metricErrorType})
}
