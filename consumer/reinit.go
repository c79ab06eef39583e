package consumer

import (
	"context"
	"time"

	"github.com/baechuer/nanobus/metricshttp"
)

// shouldReinit reports whether the per-connection job counter has
// crossed CONNECTION_MAX_JOBS. A non-positive threshold disables reinit
// entirely.
func (c *Consumer) shouldReinit() bool {
	return c.maxJobs > 0 && c.jobCount >= c.maxJobs
}

// reinitialize drops the connection pool and zeroes the job counter,
// timing the whole operation. The outer loop redeclares topology and
// resumes consuming on its next iteration.
func (c *Consumer) reinitialize(ctx context.Context) {
	start := time.Now()
	metricshttp.IncConsumerConnectionReinit("max_jobs")
	c.sink.Increment("rmq_consumer_connection_reinit_total", 1, 1.0, nil)

	c.pool.Reset()
	c.jobCount = 0

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	metricshttp.ObserveConsumerConnectionReinitDuration(elapsedMs)
	c.sink.Timing("rmq_consumer_connection_reinit_duration_ms", elapsedMs, nil)

	c.lg.Info().Dur("took", time.Since(start)).Msg("connection lifecycle reinit complete")
}
