package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for one build session: the program
// snapshot tables, the persisted entry cache, and emitted unit hashes.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
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

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Snapshot tables

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  package_path    TEXT,
  hash            TEXT,
  line_count      INTEGER,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER REFERENCES files(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  visibility      TEXT,
  modifiers       TEXT,
  type_expr       TEXT,
  signature_hash  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  parent_symbol_id INTEGER REFERENCES symbols(id)
);

CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  context         TEXT
);

CREATE TABLE IF NOT EXISTS type_members (
  id              INTEGER PRIMARY KEY,
  symbol_id       INTEGER NOT NULL REFERENCES symbols(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  type_expr       TEXT,
  visibility      TEXT
);

CREATE TABLE IF NOT EXISTS function_parameters (
  id              INTEGER PRIMARY KEY,
  symbol_id       INTEGER NOT NULL REFERENCES symbols(id),
  name            TEXT,
  ordinal         INTEGER NOT NULL,
  type_expr       TEXT,
  is_receiver     BOOLEAN DEFAULT FALSE,
  is_return       BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS type_parameters (
  id              INTEGER PRIMARY KEY,
  symbol_id       INTEGER NOT NULL REFERENCES symbols(id),
  name            TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  constraints     TEXT
);

-- Session tables

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE TABLE IF NOT EXISTS entry_groups (
  type_id         TEXT PRIMARY KEY,
  type_name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS group_entries (
  id              INTEGER PRIMARY KEY,
  type_id         TEXT NOT NULL REFERENCES entry_groups(type_id),
  ordinal         INTEGER NOT NULL,
  entry_id        TEXT NOT NULL,
  raw_name        TEXT,
  sanitized_name  TEXT,
  type_name       TEXT,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emitted_units (
  name            TEXT PRIMARY KEY,
  path            TEXT NOT NULL,
  hash            TEXT NOT NULL,
  written_at      TIMESTAMP
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_files_package ON files(package_path);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_symbols_parent ON symbols(parent_symbol_id);
CREATE INDEX IF NOT EXISTS idx_references_file ON references_(file_id);
CREATE INDEX IF NOT EXISTS idx_references_name ON references_(name);
CREATE INDEX IF NOT EXISTS idx_type_members_symbol ON type_members(symbol_id);
CREATE INDEX IF NOT EXISTS idx_function_params_symbol ON function_parameters(symbol_id);
CREATE INDEX IF NOT EXISTS idx_type_params_symbol ON type_parameters(symbol_id);
CREATE INDEX IF NOT EXISTS idx_group_entries_type ON group_entries(type_id);
`

// DeleteFileData transactionally removes all snapshot data for a file.
// Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM symbols WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query symbols: %w", err)
	}
	var symbolIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan symbol id: %w", err)
		}
		symbolIDs = append(symbolIDs, id)
	}
	rows.Close()

	if len(symbolIDs) > 0 {
		placeholders := placeholderList(len(symbolIDs))
		args := int64sToArgs(symbolIDs)
		for _, q := range []string{
			"DELETE FROM type_parameters WHERE symbol_id IN (" + placeholders + ")",
			"DELETE FROM function_parameters WHERE symbol_id IN (" + placeholders + ")",
			"DELETE FROM type_members WHERE symbol_id IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete symbol child data: %w", err)
			}
		}
	}

	for _, q := range []string{
		"DELETE FROM references_ WHERE file_id = ?",
		"DELETE FROM symbols WHERE file_id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteFile removes a file record together with all of its snapshot data.
func (s *Store) DeleteFile(fileID int64) error {
	if err := s.DeleteFileData(fileID); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" if absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata upserts a metadata key.
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
