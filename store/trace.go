package store

import "context"

// InsertEventTrace is a best-effort, idempotent-on-conflict insert of the
// ancestor chain for a message_id — operator-facing lineage, not on any
// critical path.
func (r *Repository) InsertEventTrace(ctx context.Context, messageID string, traceIDs []string) bool {
	err := r.executeWithRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO `+r.traceSchema+`.event_trace (message_id, trace_ids)
			VALUES ($1, $2)
			ON CONFLICT (message_id) DO NOTHING
		`, messageID, traceIDs)
		return err
	})
	if err != nil {
		r.lg.Warn().Err(err).Str("message_id", messageID).Msg("insertEventTrace failed")
		return false
	}
	return true
}
