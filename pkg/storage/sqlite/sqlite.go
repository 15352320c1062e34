// Package sqlite implements storage.Driver over a SQLite file using
// hand-written database/sql, following the pattern the teacher already
// uses for pkg/vector/sqlitevec (no ORM, explicit schema, explicit
// (de)serialization) rather than the ent-generated client the teacher
// uses for its own pkg/storage/sqlite. ent requires code generation this
// task cannot run, so this driver is hand-rolled in the teacher's other
// hand-written-SQL idiom instead.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bridgeware/hmlr/pkg/storage"
)

// Driver implements storage.Driver over a single SQLite database file.
// Every collection is a table in the same database; multi-row
// invariants (the Bridge Block "at most one ACTIVE" rule, the Fact
// Store's supersession chain) are enforced inside a single
// database/sql transaction per spec §4.2/§4.3, rather than via an
// in-process lockset — unlike pkg/storage/inmemory, this driver's
// atomicity is owned entirely by SQLite's transaction semantics.
type Driver struct {
	db *sql.DB

	blocks     *blockStore
	turns      *turnStore
	facts      *factStore
	memories   *memoryStore
	chunks     *chunkStore
	usageStats *usageStatStore
	lineage    *lineageStore
	topics     *topicAffinityStore
}

// NewDriver opens (creating if necessary) the SQLite database at path
// and ensures every collection's table exists. Use ":memory:" for an
// ephemeral database.
func NewDriver(ctx context.Context, path string) (*Driver, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite serializes writers at the file level regardless; capping the
	// pool to one connection avoids SQLITE_BUSY races between Go-level
	// goroutines that database/sql would otherwise hand separate
	// connections to.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Driver{
		db:         db,
		blocks:     &blockStore{db: db},
		turns:      &turnStore{db: db},
		facts:      &factStore{db: db},
		memories:   &memoryStore{db: db},
		chunks:     &chunkStore{db: db},
		usageStats: &usageStatStore{db: db},
		lineage:    &lineageStore{db: db},
		topics:     &topicAffinityStore{db: db},
	}, nil
}

func (d *Driver) Blocks() storage.BlockStore                 { return d.blocks }
func (d *Driver) Turns() storage.TurnStore                   { return d.turns }
func (d *Driver) Facts() storage.FactStore                   { return d.facts }
func (d *Driver) Memories() storage.MemoryStore               { return d.memories }
func (d *Driver) Chunks() storage.ChunkStore                 { return d.chunks }
func (d *Driver) UsageStats() storage.UsageStatStore         { return d.usageStats }
func (d *Driver) Lineage() storage.LineageStore               { return d.lineage }
func (d *Driver) TopicAffinities() storage.TopicAffinityStore { return d.topics }

func (d *Driver) Close() error { return d.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS bridge_blocks (
	block_id        TEXT PRIMARY KEY,
	day_id          TEXT NOT NULL,
	topic_label     TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL,
	prev_block_id   TEXT NOT NULL DEFAULT '',
	open_loops      TEXT NOT NULL DEFAULT '[]',
	decisions_made  TEXT NOT NULL DEFAULT '[]',
	turn_count      INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blocks_day ON bridge_blocks(day_id);
CREATE INDEX IF NOT EXISTS idx_blocks_day_status ON bridge_blocks(day_id, status);
CREATE INDEX IF NOT EXISTS idx_blocks_updated ON bridge_blocks(updated_at);

CREATE TABLE IF NOT EXISTS turns (
	turn_id      TEXT PRIMARY KEY,
	block_id     TEXT NOT NULL,
	user_message TEXT NOT NULL,
	ai_response  TEXT NOT NULL,
	keywords     TEXT NOT NULL DEFAULT '[]',
	affect       TEXT NOT NULL DEFAULT '',
	timestamp    DATETIME NOT NULL,
	evicted      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_turns_block ON turns(block_id);
CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp);

CREATE TABLE IF NOT EXISTS facts (
	fact_id             TEXT PRIMARY KEY,
	key                 TEXT NOT NULL,
	value               TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT '',
	block_id            TEXT NOT NULL DEFAULT '',
	turn_id             TEXT NOT NULL DEFAULT '',
	evidence_snippet    TEXT NOT NULL DEFAULT '',
	source_chunk_id     TEXT NOT NULL DEFAULT '',
	source_paragraph_id TEXT NOT NULL DEFAULT '',
	confidence          REAL NOT NULL DEFAULT 0,
	superseded_by       TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_key ON facts(key);
CREATE INDEX IF NOT EXISTS idx_facts_block ON facts(block_id);
CREATE INDEX IF NOT EXISTS idx_facts_category ON facts(category);
CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at);
CREATE INDEX IF NOT EXISTS idx_facts_chunk ON facts(source_chunk_id);

CREATE TABLE IF NOT EXISTS memories (
	memory_id   TEXT PRIMARY KEY,
	turn_id     TEXT NOT NULL,
	block_id    TEXT NOT NULL,
	content     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	embedding   BLOB,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_turn ON memories(turn_id);
CREATE INDEX IF NOT EXISTS idx_memories_block ON memories(block_id);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id        TEXT PRIMARY KEY,
	chunk_type      TEXT NOT NULL,
	text_verbatim   TEXT NOT NULL,
	lexical_filters TEXT NOT NULL DEFAULT '[]',
	parent_chunk_id TEXT NOT NULL DEFAULT '',
	turn_id         TEXT NOT NULL,
	block_id        TEXT NOT NULL DEFAULT '',
	embedding       BLOB,
	token_count     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunks_turn ON chunks(turn_id);
CREATE INDEX IF NOT EXISTS idx_chunks_block ON chunks(block_id);

CREATE TABLE IF NOT EXISTS usage_stats (
	item_id     TEXT PRIMARY KEY,
	item_type   TEXT NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0,
	first_used  DATETIME NOT NULL,
	last_used   DATETIME NOT NULL,
	topics      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_usage_count ON usage_stats(usage_count);

CREATE TABLE IF NOT EXISTS lineage (
	item_id      TEXT PRIMARY KEY,
	item_type    TEXT NOT NULL,
	derived_from TEXT NOT NULL DEFAULT '[]',
	derived_by   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lineage_type ON lineage(item_type);

CREATE TABLE IF NOT EXISTS topic_affinity (
	topic               TEXT PRIMARY KEY,
	eviction_count      INTEGER NOT NULL DEFAULT 0,
	total_time_in_window INTEGER NOT NULL DEFAULT 0,
	avg_time_in_window  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_topic_eviction_count ON topic_affinity(eviction_count);
`

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
