package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chatkeep/chatkeep/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepSchedule runs the retention sweep once a day.
const DefaultSweepSchedule = "@daily"

// Retention deletes sessions whose effective timestamp is older than a
// configured age. A zero or negative age disables it. Sweeps go through
// List, so one corrupt record never aborts the rest of a sweep.
type Retention struct {
	store    Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	running  bool
}

// NewRetention creates a retention sweeper over the given store.
func NewRetention(store Store, maxAge time.Duration) *Retention {
	return &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: DefaultSweepSchedule,
	}
}

// Enabled reports whether a positive retention age is configured.
func (r *Retention) Enabled() bool {
	return r.maxAge > 0
}

// Start schedules periodic sweeps and runs one immediately.
func (r *Retention) Start() error {
	if !r.Enabled() {
		return nil
	}
	if r.running {
		return fmt.Errorf("retention is already running")
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.SweepNow(context.Background()); err != nil {
			log.Error().Err(err).Msg("Retention sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	r.cron.Start()
	r.running = true

	log.Info().
		Dur("max_age", r.maxAge).
		Str("schedule", r.schedule).
		Msg("Session retention started")

	if _, err := r.SweepNow(context.Background()); err != nil {
		log.Error().Err(err).Msg("Initial retention sweep failed")
	}

	return nil
}

// Stop halts scheduled sweeps.
func (r *Retention) Stop() {
	if !r.running {
		return
	}
	r.cron.Stop()
	r.running = false

	log.Info().Msg("Session retention stopped")
}

// SweepNow deletes every session older than the retention age and returns
// how many were removed. Sessions without a usable timestamp are left alone.
func (r *Retention) SweepNow(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	sessions, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := float64(time.Now().Add(-r.maxAge).UnixMilli())
	deleted := 0

	for _, session := range sessions {
		obj, ok := session.(map[string]any)
		if !ok {
			continue
		}
		id, ok := obj["id"].(string)
		if !ok || id == "" {
			continue
		}

		ts := effectiveTimestamp(session)
		if ts <= 0 || ts >= cutoff {
			continue
		}

		if err := r.store.Delete(ctx, id); err != nil {
			log.Warn().
				Str("session_id", id).
				Err(err).
				Msg("Failed to delete expired session")
			continue
		}
		deleted++

		log.Debug().
			Str("session_id", id).
			Float64("timestamp", ts).
			Msg("Expired session deleted")
	}

	observability.RecordRetentionSweep(deleted)
	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Retention sweep complete")
	}

	return deleted, nil
}
