// Package sqlitestore is the production Store implementation (C5),
// backed by modernc.org/sqlite — the pure-Go driver used in
// dshills-langgraph-go/graph/store/sqlite.go, chosen over
// mattn/go-sqlite3 so the daemon stays a single cgo-free binary.
// Pragma setup, single-writer discipline, and ON CONFLICT upserts all
// follow that file's pattern; the DDL-as-constants layout follows
// services/gateway/analytics/schema.go.
package sqlitestore

// schemaVersion is the target version applied by migrate; tracked via
// PRAGMA user_version, the same raw-DDL-exec approach the GoClode
// reference file (other_examples) uses for its own hot-reloadable
// schema.
const schemaVersion = 1

var migrations = []string{
	schemaV1,
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS calls (
	message_uuid      TEXT PRIMARY KEY,
	timestamp         INTEGER NOT NULL,
	source_path       TEXT NOT NULL,
	session_id        TEXT NOT NULL DEFAULT '',
	project_id        TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	tier              TEXT NOT NULL DEFAULT 'Unknown',
	tokens_input      INTEGER NOT NULL DEFAULT 0,
	tokens_output     INTEGER NOT NULL DEFAULT 0,
	tokens_cache_write INTEGER NOT NULL DEFAULT 0,
	tokens_cache_read INTEGER NOT NULL DEFAULT 0,
	cost_input        REAL NOT NULL DEFAULT 0,
	cost_output       REAL NOT NULL DEFAULT 0,
	cost_cache_write  REAL NOT NULL DEFAULT 0,
	cost_cache_read   REAL NOT NULL DEFAULT 0,
	cost_total        REAL NOT NULL DEFAULT 0,
	cost_would_be     REAL NOT NULL DEFAULT 0,
	tool_calls        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_calls_timestamp ON calls(timestamp);
CREATE INDEX IF NOT EXISTS idx_calls_project ON calls(project_id);
CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id);

CREATE TABLE IF NOT EXISTS rollups_hourly (
	hour_bucket INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	call_count  INTEGER NOT NULL DEFAULT 0,
	total_cost  REAL NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (hour_bucket, tier, project_id)
);

CREATE TABLE IF NOT EXISTS rollups_daily (
	day_bucket  INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	call_count  INTEGER NOT NULL DEFAULT 0,
	total_cost  REAL NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day_bucket, tier, project_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL DEFAULT '',
	first_seen   INTEGER NOT NULL,
	last_seen    INTEGER NOT NULL,
	call_count   INTEGER NOT NULL DEFAULT 0,
	total_cost   REAL NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS file_cursors (
	path          TEXT PRIMARY KEY,
	last_size     INTEGER NOT NULL DEFAULT 0,
	last_modified INTEGER NOT NULL DEFAULT 0,
	next_offset   INTEGER NOT NULL DEFAULT 0,
	content_hash  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pricing (
	model             TEXT PRIMARY KEY,
	tier              TEXT NOT NULL,
	provider          TEXT NOT NULL DEFAULT '',
	input_per_1m      REAL NOT NULL DEFAULT 0,
	output_per_1m     REAL NOT NULL DEFAULT 0,
	cache_read_per_1m REAL NOT NULL DEFAULT 0,
	cache_write_per_1m REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS knowledge_items (
	id          TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	text        TEXT NOT NULL,
	type        TEXT NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	agent       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	vector      BLOB NOT NULL,
	PRIMARY KEY (project_id, id)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_project_created ON knowledge_items(project_id, created_at DESC);
`
