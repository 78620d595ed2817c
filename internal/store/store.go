package store

import (
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRecord reports that no project metadata record has been persisted.
var ErrNoRecord = errors.New("store: no metadata record")

// Metadata keys of the project record.
const (
	keySchemaVersion = "schema_version"
	keyToolVersion   = "tool_version"
	keyProjectRoot   = "project_root"
	keyShardCount    = "shard_count"
	keyGeneration    = "generation"
	keyDigest        = "digest"
)

// Store is the SQLite variant of the project metadata record.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	return open(dbPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
}

// NewReadOnlyStore opens an existing database at dbPath without creating or
// modifying it.
func NewReadOnlyStore(dbPath string) (*Store, error) {
	return open("file:" + dbPath + "?mode=ro&_busy_timeout=30000")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the metadata and files tables. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  path            TEXT PRIMARY KEY,
  size            INTEGER NOT NULL,
  mtime_ns        INTEGER NOT NULL,
  fingerprint     TEXT NOT NULL
);
`

// GetMetadata returns the value stored under key, or ErrNoRecord.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRecord
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// SaveRecord replaces the stored record with r in a single transaction.
func (s *Store) SaveRecord(r *Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save record: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{"DELETE FROM files", "DELETE FROM metadata"} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("save record: clear: %w", err)
		}
	}

	meta := map[string]string{
		keySchemaVersion: strconv.FormatUint(uint64(r.SchemaVersion), 10),
		keyToolVersion:   r.ToolVersion,
		keyProjectRoot:   r.ProjectRoot,
		keyShardCount:    strconv.Itoa(r.ShardCount),
		keyGeneration:    strconv.FormatUint(r.Generation, 10),
		keyDigest:        strconv.FormatUint(r.Digest, 10),
	}
	for _, key := range slices.Sorted(maps.Keys(meta)) {
		if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)", key, meta[key]); err != nil {
			return fmt.Errorf("save record: metadata %s: %w", key, err)
		}
	}

	stmt, err := tx.Prepare("INSERT INTO files (path, size, mtime_ns, fingerprint) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save record: prepare: %w", err)
	}
	defer stmt.Close()
	for _, path := range slices.Sorted(maps.Keys(r.Files)) {
		e := r.Files[path]
		if _, err := stmt.Exec(path, e.Size, e.ModTimeNano, e.Fingerprint); err != nil {
			return fmt.Errorf("save record: file %q: %w", path, err)
		}
	}
	return tx.Commit()
}

// LoadRecord reads the stored record, or returns ErrNoRecord when none has
// been saved.
func (s *Store) LoadRecord() (*Record, error) {
	schema, err := s.GetMetadata(keySchemaVersion)
	if err != nil {
		return nil, err
	}
	r := &Record{Files: make(map[string]FileEntry)}

	var parseErr error
	parseUint := func(key, v string) uint64 {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("load record: %s: %w", key, err)
		}
		return n
	}
	r.SchemaVersion = uint32(parseUint(keySchemaVersion, schema))

	rows, err := s.db.Query("SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("load record: metadata: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("load record: scan metadata: %w", err)
		}
		switch key {
		case keyToolVersion:
			r.ToolVersion = value
		case keyProjectRoot:
			r.ProjectRoot = value
		case keyShardCount:
			r.ShardCount = int(parseUint(key, value))
		case keyGeneration:
			r.Generation = parseUint(key, value)
		case keyDigest:
			r.Digest = parseUint(key, value)
		}
	}
	rows.Close()
	if parseErr != nil {
		return nil, parseErr
	}

	rows, err = s.db.Query("SELECT path, size, mtime_ns, fingerprint FROM files")
	if err != nil {
		return nil, fmt.Errorf("load record: files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e FileEntry
		if err := rows.Scan(&e.RelPath, &e.Size, &e.ModTimeNano, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("load record: scan file: %w", err)
		}
		r.Files[e.RelPath] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load record: files: %w", err)
	}
	return r, nil
}
