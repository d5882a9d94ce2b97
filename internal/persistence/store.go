// Package persistence defines the storage boundary (C5): a Store
// interface with a SQLite-backed production implementation and an
// in-memory test implementation, per spec.md §9's "open polymorphism
// at the storage boundary." Grounded on dshills-langgraph-go's generic
// SQLiteStore[S] shape (WAL mode, single writer, upsert pattern) and
// services/gateway/analytics/{schema,ingestion}.go's DDL-as-constants
// plus channel-buffered batch worker.
package persistence

import (
	"time"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// Store is every durable operation the daemon's components need.
// FileCursor persistence doubles as tailer.CursorStore.
type Store interface {
	// InsertCalls upserts a batch of events keyed by message UUID,
	// idempotent under re-ingest (UNIQUE(message_uuid) with
	// ON CONFLICT DO NOTHING). Returns the count actually inserted.
	InsertCalls(events []model.CallEvent) (inserted int, err error)

	LoadCursors() (map[string]model.FileCursor, error)
	SaveCursor(model.FileCursor) error

	LoadPricing() ([]model.PricingEntry, error)
	SavePricing([]model.PricingEntry) error

	// RollupHourly/RollupDaily roll up raw calls older than `since`
	// into the hourly/daily aggregate tables.
	RollupHourly(since time.Time) error
	RollupDaily(since time.Time) error

	// DeleteOlderThan removes raw calls older than the retention
	// horizon while preserving hourly/daily rollups per spec.md §4.5.
	DeleteOlderThan(raw time.Time, hourly time.Time) (deleted int64, err error)

	// Vacuum reclaims space; callers run it opportunistically.
	Vacuum() error

	Close() error
}

// FallbackSink is the newline-JSON escape hatch for events a batch
// could not persist after one split retry — spec.md §4.5's failure
// policy.
type FallbackSink interface {
	Append(events []model.CallEvent) error
}
