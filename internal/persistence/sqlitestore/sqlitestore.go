package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// Store is the SQLite-backed persistence implementation: one writer
// connection (SetMaxOpenConns(1)) plus a small reader pool, WAL mode,
// following dshills-langgraph-go/graph/store/sqlite.go.
type Store struct {
	writer *sql.DB
	reader *sql.DB
}

// Open creates or migrates the database at path and returns a ready
// Store.
func Open(path string, readerConns int) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if _, err := writer.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := writer.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open reader pool: %w", err)
	}
	if readerConns <= 0 {
		readerConns = 4
	}
	reader.SetMaxOpenConns(readerConns)

	s := &Store{writer: writer, reader: reader}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.writer.QueryRow(`PRAGMA user_version;`).Scan(&current); err != nil {
		return err
	}
	for v := current; v < schemaVersion; v++ {
		if _, err := s.writer.Exec(migrations[v]); err != nil {
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := s.writer.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, v+1)); err != nil {
			return err
		}
	}
	return nil
}

// InsertCalls upserts a batch in one transaction, idempotent on
// message_uuid via ON CONFLICT DO NOTHING.
func (s *Store) InsertCalls(events []model.CallEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.writer.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO calls (
			message_uuid, timestamp, source_path, session_id, project_id,
			model, tier, tokens_input, tokens_output, tokens_cache_write,
			tokens_cache_read, cost_input, cost_output, cost_cache_write,
			cost_cache_read, cost_total, cost_would_be, tool_calls
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(message_uuid) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		res, err := stmt.Exec(
			ev.MessageUUID, ev.Timestamp.Unix(), ev.SourcePath, ev.SessionID, ev.ProjectID,
			ev.Model, string(ev.Tier), ev.Tokens.Input, ev.Tokens.Output, ev.Tokens.CacheWrite,
			ev.Tokens.CacheRead, ev.Cost.Input, ev.Cost.Output, ev.Cost.CacheWrite,
			ev.Cost.CacheRead, ev.Cost.Total, ev.Cost.WouldBe, ev.ToolCalls,
		)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := upsertSessions(tx, events); err != nil {
		return inserted, err
	}

	return inserted, tx.Commit()
}

func upsertSessions(tx *sql.Tx, events []model.CallEvent) error {
	stmt, err := tx.Prepare(`
		INSERT INTO sessions (session_id, project_id, first_seen, last_seen, call_count, total_cost, total_tokens)
		VALUES (?,?,?,?,1,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			call_count = call_count + 1,
			total_cost = total_cost + excluded.total_cost,
			total_tokens = total_tokens + excluded.total_tokens`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if ev.SessionID == "" {
			continue
		}
		tokens := ev.Tokens.Input + ev.Tokens.Output + ev.Tokens.CacheWrite + ev.Tokens.CacheRead
		if _, err := stmt.Exec(ev.SessionID, ev.ProjectID, ev.Timestamp.Unix(), ev.Timestamp.Unix(), ev.Cost.Total, tokens); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadCursors() (map[string]model.FileCursor, error) {
	rows, err := s.reader.Query(`SELECT path, last_size, last_modified, next_offset, content_hash FROM file_cursors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.FileCursor)
	for rows.Next() {
		var c model.FileCursor
		var lastMod int64
		if err := rows.Scan(&c.Path, &c.LastSize, &lastMod, &c.NextOffset, &c.ContentHash); err != nil {
			return nil, err
		}
		c.LastModified = time.Unix(lastMod, 0).UTC()
		out[c.Path] = c
	}
	return out, rows.Err()
}

func (s *Store) SaveCursor(c model.FileCursor) error {
	_, err := s.writer.Exec(`
		INSERT INTO file_cursors (path, last_size, last_modified, next_offset, content_hash)
		VALUES (?,?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET
			last_size = excluded.last_size,
			last_modified = excluded.last_modified,
			next_offset = excluded.next_offset,
			content_hash = excluded.content_hash`,
		c.Path, c.LastSize, c.LastModified.Unix(), c.NextOffset, c.ContentHash)
	return err
}

func (s *Store) LoadPricing() ([]model.PricingEntry, error) {
	rows, err := s.reader.Query(`SELECT model, tier, provider, input_per_1m, output_per_1m, cache_read_per_1m, cache_write_per_1m FROM pricing`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PricingEntry
	for rows.Next() {
		var pe model.PricingEntry
		var tier string
		if err := rows.Scan(&pe.Model, &tier, &pe.Provider, &pe.InputPer1M, &pe.OutputPer1M, &pe.CacheReadPer1M, &pe.CacheWritePer1M); err != nil {
			return nil, err
		}
		pe.Tier = model.Tier(tier)
		out = append(out, pe)
	}
	return out, rows.Err()
}

func (s *Store) SavePricing(entries []model.PricingEntry) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO pricing (model, tier, provider, input_per_1m, output_per_1m, cache_read_per_1m, cache_write_per_1m)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(model) DO UPDATE SET
			tier = excluded.tier, provider = excluded.provider,
			input_per_1m = excluded.input_per_1m, output_per_1m = excluded.output_per_1m,
			cache_read_per_1m = excluded.cache_read_per_1m, cache_write_per_1m = excluded.cache_write_per_1m`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, pe := range entries {
		if _, err := stmt.Exec(pe.Model, string(pe.Tier), pe.Provider, pe.InputPer1M, pe.OutputPer1M, pe.CacheReadPer1M, pe.CacheWritePer1M); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RollupHourly(since time.Time) error {
	_, err := s.writer.Exec(`
		INSERT INTO rollups_hourly (hour_bucket, tier, project_id, call_count, total_cost, total_tokens)
		SELECT (timestamp / 3600) * 3600, tier, project_id, COUNT(*),
		       SUM(cost_total), SUM(tokens_input + tokens_output + tokens_cache_write + tokens_cache_read)
		FROM calls WHERE timestamp >= ?
		GROUP BY 1, tier, project_id
		ON CONFLICT(hour_bucket, tier, project_id) DO UPDATE SET
			call_count = excluded.call_count,
			total_cost = excluded.total_cost,
			total_tokens = excluded.total_tokens`, since.Unix())
	return err
}

func (s *Store) RollupDaily(since time.Time) error {
	_, err := s.writer.Exec(`
		INSERT INTO rollups_daily (day_bucket, tier, project_id, call_count, total_cost, total_tokens)
		SELECT (timestamp / 86400) * 86400, tier, project_id, COUNT(*),
		       SUM(cost_total), SUM(tokens_input + tokens_output + tokens_cache_write + tokens_cache_read)
		FROM calls WHERE timestamp >= ?
		GROUP BY 1, tier, project_id
		ON CONFLICT(day_bucket, tier, project_id) DO UPDATE SET
			call_count = excluded.call_count,
			total_cost = excluded.total_cost,
			total_tokens = excluded.total_tokens`, since.Unix())
	return err
}

func (s *Store) DeleteOlderThan(raw, hourly time.Time) (int64, error) {
	res, err := s.writer.Exec(`DELETE FROM calls WHERE timestamp < ?`, raw.Unix())
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()

	if _, err := s.writer.Exec(`DELETE FROM rollups_hourly WHERE hour_bucket < ?`, hourly.Unix()); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (s *Store) Vacuum() error {
	_, err := s.writer.Exec(`VACUUM;`)
	return err
}

func (s *Store) Close() error {
	_ = s.reader.Close()
	return s.writer.Close()
}
