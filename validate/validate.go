// Package validate implements the single gate every incoming AMQP
// delivery passes through before it is wrapped as an envelope: a
// structurally invalid delivery is never retried, only logged and
// dropped.
package validate

import (
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const bodyPreviewBytes = 200

// Delivery rejects a delivery missing type, message id, or app id, or
// carrying a non-empty body that isn't valid JSON. It logs a structured
// reason with a message-id preview and a body preview on failure.
func Delivery(d amqp.Delivery, lg zerolog.Logger) bool {
	if d.Type == "" {
		logReject(lg, d, "missing type")
		return false
	}
	if d.MessageId == "" {
		logReject(lg, d, "missing message_id")
		return false
	}
	if d.AppId == "" {
		logReject(lg, d, "missing app_id")
		return false
	}
	if len(d.Body) > 0 && !json.Valid(d.Body) {
		logReject(lg, d, "body is not valid JSON")
		return false
	}
	return true
}

func logReject(lg zerolog.Logger, d amqp.Delivery, reason string) {
	lg.Error().
		Str("reason", reason).
		Str("message_id_preview", preview(d.MessageId, 36)).
		Str("body_preview", preview(string(d.Body), bodyPreviewBytes)).
		Msg("rejecting malformed delivery")
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
