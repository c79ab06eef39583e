package store

import "context"

// ExistsInOutbox fail-opens (returns false, nil) on persistent DB error
// rather than propagating it: an existence check that fail-closed would
// block publishing during a DB blip, and consumer idempotency is the
// backstop against the resulting duplicate.
func (r *Repository) ExistsInOutbox(ctx context.Context, messageID, producerService string) (bool, error) {
	var exists bool
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM `+r.schema+`.outbox
				WHERE message_id = $1 AND producer_service = $2
			)
		`, messageID, producerService).Scan(&exists)
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("existsInOutbox failed open")
		return false, nil
	}
	return exists, nil
}

// InsertOutbox creates a row in status 'processing'. Returns false (not
// an error) when the insert hits the (message_id, producer_service)
// unique constraint — a prior publish attempt already exists and the
// caller should treat this as an idempotent skip.
func (r *Repository) InsertOutbox(ctx context.Context, messageID, producerService, eventType string, body []byte, partitionKey *string) (bool, error) {
	var inserted bool
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO `+r.schema+`.outbox
				(producer_service, event_type, message_body, partition_key, message_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5, 'processing', now())
		`, producerService, eventType, body, partitionKey, messageID)
		if err != nil {
			if isUniqueViolation(err) {
				inserted = false
				return nil
			}
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// MarkAsPublished is a best-effort update to status 'published'. The
// broker publish already happened by the time this is called, so a
// failure here logs and returns false rather than propagating — callers
// must not treat that as the publish itself having failed.
func (r *Repository) MarkAsPublished(ctx context.Context, messageID, producerService string) bool {
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			UPDATE `+r.schema+`.outbox
			SET status = 'published', published_at = now(), last_error = NULL
			WHERE message_id = $1 AND producer_service = $2
		`, messageID, producerService)
		return err
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("markAsPublished failed")
		return false
	}
	return true
}

// MarkAsPending is the best-effort sibling of MarkAsPublished, used when
// the wire publish failed and the row should be picked up for retry.
func (r *Repository) MarkAsPending(ctx context.Context, messageID, producerService, lastError string) bool {
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			UPDATE `+r.schema+`.outbox
			SET status = 'pending', last_error = $3
			WHERE message_id = $1 AND producer_service = $2
		`, messageID, producerService, lastError)
		return err
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("markAsPending failed")
		return false
	}
	return true
}
