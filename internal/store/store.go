package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrInvalidArgument marks rejected inputs: unrecognized enum values,
// out-of-range importance, empty keyword lists, and the like.
var ErrInvalidArgument = errors.New("invalid argument")

// DefaultUser scopes rows when no user id is configured.
const DefaultUser = "default"

// DefaultImportance is assigned to events created without one.
const DefaultImportance = 0.5

// Hook receives a notification after each successful mutating operation.
// Implementations must tolerate concurrent invocation; failures are theirs
// to handle and never reach the store's callers.
type Hook interface {
	AfterPersist(op string)
}

// SQLiteStore is the SQLite-backed memory store.
// A single connection serializes writers; the mutex keeps the
// read-previous-then-upsert sequences atomic within this process.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	user string
	hook Hook
}

// schema defines the four memory tables. Safe to run on every open.
const schema = `
-- Flat key/value facts about the user
CREATE TABLE IF NOT EXISTS user_attributes (
    user_id TEXT NOT NULL DEFAULT 'default',
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    category TEXT,
    confidence REAL DEFAULT 1.0,
    updated_at INTEGER NOT NULL,
    deleted INTEGER DEFAULT 0,
    PRIMARY KEY (user_id, key)
);

CREATE INDEX IF NOT EXISTS idx_attributes_category ON user_attributes(user_id, category);

-- Long-lived referenceable objects (pets, property, vehicles, people)
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL DEFAULT 'default',
    entity_type TEXT NOT NULL,
    name TEXT,
    attributes TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(user_id, entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(user_id, status);

-- Timestamped occurrences, optionally linked to entities via a JSON id array
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL DEFAULT 'default',
    event_type TEXT NOT NULL,
    description TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    related_entity_ids TEXT,
    metadata TEXT,
    importance REAL DEFAULT 0.5,
    created_at INTEGER NOT NULL,
    deleted INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events(user_id, event_type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(user_id, timestamp);

-- Entity-to-entity links
CREATE TABLE IF NOT EXISTS entity_relations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL DEFAULT 'default',
    source_id INTEGER NOT NULL,
    target_id INTEGER NOT NULL,
    relation_type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    deleted INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON entity_relations(user_id, source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON entity_relations(user_id, target_id);
`

// Option configures a store at construction.
type Option func(*SQLiteStore)

// WithUser scopes all operations to the given user id.
func WithUser(user string) Option {
	return func(s *SQLiteStore) {
		if user != "" {
			s.user = user
		}
	}
}

// New opens (or creates) the memory database at path. The parent directory
// is created if absent. Pre-existing databases from versions without the
// deleted column are migrated in place.
func New(path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One shared connection avoids writer lock contention under
	// concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &SQLiteStore{db: db, user: DefaultUser}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewInMemory creates a store backed by an in-memory database.
func NewInMemory(opts ...Option) (*SQLiteStore, error) {
	return New(":memory:", opts...)
}

// migrate adds the deleted soft-delete column to tables created before it
// existed. Idempotent; never destructive.
func migrate(db *sql.DB) error {
	tables := []string{"user_attributes", "entities", "events", "entity_relations"}
	for _, table := range tables {
		has, err := hasColumn(db, table, "deleted")
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN deleted INTEGER DEFAULT 0`); err != nil {
			return fmt.Errorf("add deleted column to %s: %w", table, err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SetHook installs the post-write hook. Pass nil to remove it.
func (s *SQLiteStore) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// notifyWrite fires the hook asynchronously. Hook failures and panics are
// swallowed: mirroring is best-effort and must never fail a store write.
func (s *SQLiteStore) notifyWrite(op string) {
	if s.hook == nil {
		return
	}
	h := s.hook
	go func() {
		defer func() { recover() }()
		h.AfterPersist(op)
	}()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Count returns live (non-deleted) row counts for this user.
func (s *SQLiteStore) Count() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	queries := []struct {
		dst   *int64
		query string
	}{
		{&st.Attributes, `SELECT COUNT(*) FROM user_attributes WHERE user_id = ? AND deleted = 0`},
		{&st.Entities, `SELECT COUNT(*) FROM entities WHERE user_id = ? AND deleted = 0`},
		{&st.Events, `SELECT COUNT(*) FROM events WHERE user_id = ? AND deleted = 0`},
		{&st.Relations, `SELECT COUNT(*) FROM entity_relations WHERE user_id = ? AND deleted = 0`},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query, s.user).Scan(q.dst); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

// nowMillis is the store's timestamp resolution.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// decodeObject tolerates malformed stored JSON: nil is returned rather
// than an error so partial data stays available.
func decodeObject(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil
	}
	return m
}

// decodeIDs tolerates malformed stored JSON arrays the same way.
func decodeIDs(raw sql.NullString) []int64 {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw.String), &ids); err != nil {
		return nil
	}
	return ids
}

// encodeObject stores nil maps as SQL NULL.
func encodeObject(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// placeholders renders "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return "?" + strings.Repeat(", ?", n-1)
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
