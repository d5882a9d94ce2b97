package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// Batcher accumulates events from the aggregator's ingest path and
// flushes them to Store every BatchSize events or FlushInterval,
// whichever comes first — spec.md §4.5. Grounded on
// services/gateway/analytics/ingestion.go's Pipeline (per-type buffered
// channel + time-or-size-triggered worker) and metering.go's
// AsyncLogger.
type Batcher struct {
	store     Store
	fallback  FallbackSink
	batchSize int
	interval  time.Duration
	logger    zerolog.Logger

	in chan model.CallEvent
}

// NewBatcher builds a Batcher bound to the given store and fallback
// sink.
func NewBatcher(store Store, fallback FallbackSink, batchSize int, interval time.Duration, logger zerolog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Batcher{
		store:     store,
		fallback:  fallback,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.With().Str("component", "persistence_batcher").Logger(),
		in:        make(chan model.CallEvent, batchSize*4),
	}
}

// Enqueue submits an event for eventual persistence. The in-memory
// aggregator must already have been updated before this is called —
// a DB failure here never blocks live visibility.
func (b *Batcher) Enqueue(ev model.CallEvent) {
	b.in <- ev
}

// Run drains the queue until ctx is cancelled, flushing on size or
// time. On cancellation it performs one final flush so a shutdown
// during a pending batch never loses events (they land fully in Store
// or fully in the fallback log, never partially).
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]model.CallEvent, 0, b.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case ev := <-b.in:
			batch = append(batch, ev)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush persists one batch, splitting and retrying per row on a
// UNIQUE(message_uuid) violation, then falling back to the newline-
// JSON log for rows that still fail.
func (b *Batcher) flush(batch []model.CallEvent) {
	if _, err := b.store.InsertCalls(batch); err != nil {
		b.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("batch insert failed, retrying per row")
		var failed []model.CallEvent
		for _, ev := range batch {
			if _, rowErr := b.store.InsertCalls([]model.CallEvent{ev}); rowErr != nil {
				failed = append(failed, ev)
			}
		}
		if len(failed) > 0 {
			if err := b.fallback.Append(failed); err != nil {
				b.logger.Error().Err(err).Int("count", len(failed)).Msg("fallback log append failed")
			} else {
				b.logger.Warn().Int("count", len(failed)).Msg("events written to fallback log")
			}
		}
	}
}
