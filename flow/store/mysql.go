package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a shared, multi-process CheckpointStore, grounded on
// graph/store's MySQLStore (same driver, same migrate-on-connect approach),
// narrowed to the opaque-blob schema described in store.go.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and migrates its
// checkpoint schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("flow/store: open mysql: %w", err)
	}
	schema := []string{`
CREATE TABLE IF NOT EXISTS flow_checkpoints (
	checkpoint_id VARCHAR(64) PRIMARY KEY,
	data          LONGBLOB NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS flow_run_latest (
	run_id        VARCHAR(128) PRIMARY KEY,
	checkpoint_id VARCHAR(64) NOT NULL
)`}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("flow/store: migrate schema: %w", err)
		}
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Save(ctx context.Context, runID, checkpointID string, data []byte) error {
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
		 ON DUPLICATE KEY UPDATE checkpoint_id = VALUES(checkpoint_id)`,
		runID, checkpointID,
	); err != nil {
		return fmt.Errorf("flow/store: update latest: %w", err)
	}
	return tx.Commit()
}

func (s *MySQLStore) Load(ctx context.Context, checkpointID string) ([]byte, error) {
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

func (s *MySQLStore) Latest(ctx context.Context, runID string) (string, error) {
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

func (s *MySQLStore) Close() error { return s.db.Close() }
