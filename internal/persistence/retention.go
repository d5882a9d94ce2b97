package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the periodic retention task spec.md §4.5 and §4.11 name:
// daily, it rolls raw calls into the hourly/daily aggregates and
// deletes raw rows past RetentionDays, then vacuums once the deleted
// count crosses VacuumThreshold. Grounded on
// middleware/ratelimit.go's "Cleanup removes stale entries. Call
// periodically" idiom, generalized from an in-memory map sweep to a
// ticker-driven DB maintenance task in the same shape as Batcher.Run.
type Sweeper struct {
	store           Store
	retentionDays   int
	rollupKeepDays  int
	vacuumThreshold int
	interval        time.Duration
	logger          zerolog.Logger
}

// NewSweeper builds a Sweeper. interval defaults to 24h (spec.md
// §4.5: "a periodic task (default daily)").
func NewSweeper(store Store, retentionDays, rollupKeepDays, vacuumThreshold int, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{
		store:           store,
		retentionDays:   retentionDays,
		rollupKeepDays:  rollupKeepDays,
		vacuumThreshold: vacuumThreshold,
		interval:        interval,
		logger:          logger.With().Str("component", "retention_sweeper").Logger(),
	}
}

// Run sweeps once immediately, then every interval until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	now := time.Now().UTC()
	rawCutoff := now.Add(-time.Duration(s.retentionDays) * 24 * time.Hour)

	// Roll up every raw call still on disk before any of it is
	// deleted below — the upsert ON CONFLICT makes repeated full
	// rollups of already-aggregated rows idempotent.
	if err := s.store.RollupHourly(time.Time{}); err != nil {
		s.logger.Error().Err(err).Msg("hourly rollup failed")
	}
	if err := s.store.RollupDaily(time.Time{}); err != nil {
		s.logger.Error().Err(err).Msg("daily rollup failed")
	}

	hourlyCutoff := now.Add(-time.Duration(s.rollupKeepDays) * 24 * time.Hour)
	deleted, err := s.store.DeleteOlderThan(rawCutoff, hourlyCutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("retention delete failed")
		return
	}
	if deleted == 0 {
		return
	}

	s.logger.Info().Int64("deleted", deleted).Msg("retention sweep deleted raw calls")
	if int(deleted) >= s.vacuumThreshold {
		if err := s.store.Vacuum(); err != nil {
			s.logger.Error().Err(err).Msg("vacuum failed")
		} else {
			s.logger.Info().Msg("vacuum completed")
		}
	}
}
