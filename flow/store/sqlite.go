package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a cgo-free, single-file CheckpointStore, grounded on
// graph/store's SQLiteStore (same driver, same WAL-mode setup), narrowed to
// the opaque-blob schema described in store.go.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path and
// migrates its checkpoint schema. path may be ":memory:" for an ephemeral,
// process-local database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("flow/store: open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("flow/store: enable WAL: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS flow_checkpoints (
	checkpoint_id TEXT PRIMARY KEY,
	data          BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS flow_run_latest (
	run_id        TEXT PRIMARY KEY,
	checkpoint_id TEXT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("flow/store: migrate schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, runID, checkpointID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO flow_checkpoints (checkpoint_id, data) VALUES (?, ?)`,
		checkpointID, data,
	); err != nil {
		return fmt.Errorf("flow/store: save checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO flow_run_latest (run_id, checkpoint_id) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET checkpoint_id = excluded.checkpoint_id`,
		runID, checkpointID,
	); err != nil {
		return fmt.Errorf("flow/store: update latest: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, checkpointID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM flow_checkpoints WHERE checkpoint_id = ?`, checkpointID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow/store: load checkpoint: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, runID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id FROM flow_run_latest WHERE run_id = ?`, runID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("flow/store: latest: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
