package store

import "context"

// ExistsInInbox fail-opens like ExistsInOutbox.
func (r *Repository) ExistsInInbox(ctx context.Context, messageID, consumerService string) (bool, error) {
	var exists bool
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM `+r.schema+`.inbox
				WHERE message_id = $1 AND consumer_service = $2
			)
		`, messageID, consumerService).Scan(&exists)
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("existsInInbox failed open")
		return false, nil
	}
	return exists, nil
}

// ExistsInInboxAndProcessed fail-opens to false on persistent DB error,
// which is the fast-path idempotency read the consumer pipeline calls
// before attempting to claim a delivery.
func (r *Repository) ExistsInInboxAndProcessed(ctx context.Context, messageID, consumerService string) (bool, error) {
	var exists bool
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM `+r.schema+`.inbox
				WHERE message_id = $1 AND consumer_service = $2 AND status = 'processed'
			)
		`, messageID, consumerService).Scan(&exists)
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("existsInInboxAndProcessed failed open")
		return false, nil
	}
	return exists, nil
}

// InsertInbox atomically inserts the processing-owning row. Returns
// false (not an error) on a (message_id, consumer_service) unique
// violation — the caller falls through to ExistsInInboxAndProcessed and
// then TryClaimInboxMessage.
func (r *Repository) InsertInbox(ctx context.Context, messageID, consumerService, producerService, eventType string, body []byte, retryCount int, workerID string) (bool, error) {
	var inserted bool
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO `+r.schema+`.inbox
				(consumer_service, producer_service, event_type, message_body, message_id,
				 status, retry_count, locked_at, locked_by, created_at)
			VALUES ($1, $2, $3, $4, $5, 'processing', $6, now(), $7, now())
		`, consumerService, producerService, eventType, body, messageID, retryCount, workerID)
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

// TryClaimInboxMessage atomically claims a stale or unlocked 'processing'
// row: it matches rows whose lock is either absent or older than
// staleThresholdSeconds, bumps locked_at/locked_by/retry_count, and
// reports whether exactly one row was claimed. It never touches
// 'processed' or 'failed' rows — the WHERE clause's status='processing'
// guard is what makes this safe.
func (r *Repository) TryClaimInboxMessage(ctx context.Context, messageID, consumerService, workerID string, staleThresholdSeconds int) (bool, error) {
	var claimed bool
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE `+r.schema+`.inbox
			SET locked_at = now(), locked_by = $3, retry_count = retry_count + 1
			WHERE message_id = $1
			  AND consumer_service = $2
			  AND status = 'processing'
			  AND (locked_at IS NULL OR locked_at < now() - ($4 || ' seconds')::interval)
		`, messageID, consumerService, workerID, staleThresholdSeconds)
		if err != nil {
			return err
		}
		claimed = tag.RowsAffected() == 1
		return nil
	})
	return claimed, err
}

// MarkInboxAsProcessed is best-effort.
func (r *Repository) MarkInboxAsProcessed(ctx context.Context, messageID, consumerService string) bool {
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			UPDATE `+r.schema+`.inbox
			SET status = 'processed', processed_at = now(), last_error = NULL
			WHERE message_id = $1 AND consumer_service = $2
		`, messageID, consumerService)
		return err
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("markInboxAsProcessed failed")
		return false
	}
	return true
}

// MarkInboxAsFailed is best-effort, used on terminal (non-retryable)
// failure after a message has been routed to the failed queue.
func (r *Repository) MarkInboxAsFailed(ctx context.Context, messageID, consumerService, lastError string) bool {
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			UPDATE `+r.schema+`.inbox
			SET status = 'failed', last_error = $3
			WHERE message_id = $1 AND consumer_service = $2
		`, messageID, consumerService, lastError)
		return err
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("markInboxAsFailed failed")
		return false
	}
	return true
}

// UpdateInboxRetryCount is best-effort, used on the retryable branch
// where status stays 'processing' but retry_count advances.
func (r *Repository) UpdateInboxRetryCount(ctx context.Context, messageID, consumerService string, retryCount int) bool {
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			UPDATE `+r.schema+`.inbox
			SET retry_count = $3
			WHERE message_id = $1 AND consumer_service = $2
		`, messageID, consumerService, retryCount)
		return err
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("updateInboxRetryCount failed")
		return false
	}
	return true
}
