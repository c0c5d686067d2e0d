package pool

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// Default health monitor tuning.
const (
	DefaultHealthInterval = 5 * time.Second
	DefaultStaleAfter     = 10 * time.Minute
)

// HealthMonitor periodically scans the pool and resets failed or
// unresponsive executors in place. Reset is local state repair: the slot
// returns to idle with zeroed counters, nothing is respawned.
type HealthMonitor struct {
	pool       *Pool
	interval   time.Duration
	staleAfter time.Duration
	log        zerolog.Logger
}

// NewHealthMonitor creates a monitor for the given pool.
func NewHealthMonitor(pool *Pool, interval, staleAfter time.Duration, logger zerolog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &HealthMonitor{
		pool:       pool,
		interval:   interval,
		staleAfter: staleAfter,
		log:        logger.With().Str("component", "health_monitor").Logger(),
	}
}

// Run scans on the configured interval until ctx is canceled.
func (m *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("health monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("health monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.CheckOnce()
		}
	}
}

// CheckOnce performs a single scan and returns how many executors were
// reset. An executor qualifies when its state is failed, or when it has
// been executing past the stale threshold without activity.
func (m *HealthMonitor) CheckOnce() int {
	restarted := 0
	now := time.Now()

	for _, ex := range m.pool.Executors() {
		status := ex.Status()

		unresponsive := status.State == models.ExecutorExecuting &&
			now.Sub(status.LastActivity) > m.staleAfter
		if status.State != models.ExecutorFailed && !unresponsive {
			continue
		}

		ex.Reset()
		m.pool.signalFreed()
		restarted++

		m.log.Warn().Str("executor", status.ID).Str("state", string(status.State)).
			Bool("unresponsive", unresponsive).Msg("executor reset in place")
		if m.pool.metrics != nil {
			m.pool.metrics.resets.Inc()
		}
	}

	if restarted > 0 {
		m.log.Info().Int("restarted", restarted).Msg("self-healing pass complete")
	}
	return restarted
}
