package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore keeps each document as a jsonb row; CompareAndSwap is a
// conditional UPDATE on the version column.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres opens a pooled connection with the usual limits.
func ConnectPostgres(dsn string, maxOpenConns, maxIdleConns int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(maxLifetime)
	return db, nil
}

// EnsureSchema creates the documents table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS consistency_documents (
			key TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			version BIGINT NOT NULL
		)
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure documents schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	query := `SELECT doc, version FROM consistency_documents WHERE key = $1`

	var row struct {
		Doc     []byte `db:"doc"`
		Version int64  `db:"version"`
	}
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return row.Doc, row.Version, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, doc []byte) (int64, error) {
	query := `
		INSERT INTO consistency_documents (key, doc, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE
		SET doc = EXCLUDED.doc, version = consistency_documents.version + 1
		RETURNING version
	`

	var version int64
	if err := s.db.GetContext(ctx, &version, query, key, doc); err != nil {
		return 0, fmt.Errorf("%w: put %q: %v", ErrUnavailable, key, err)
	}
	return version, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, expected int64, doc []byte) (int64, error) {
	if expected == 0 {
		query := `
			INSERT INTO consistency_documents (key, doc, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING
			RETURNING version
		`
		var version int64
		err := s.db.GetContext(ctx, &version, query, key, doc)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrVersionMismatch
		}
		if err != nil {
			return 0, fmt.Errorf("%w: create %q: %v", ErrUnavailable, key, err)
		}
		return version, nil
	}

	query := `
		UPDATE consistency_documents
		SET doc = $2, version = version + 1
		WHERE key = $1 AND version = $3
		RETURNING version
	`

	var version int64
	err := s.db.GetContext(ctx, &version, query, key, doc, expected)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrVersionMismatch
	}
	if err != nil {
		return 0, fmt.Errorf("%w: swap %q: %v", ErrUnavailable, key, err)
	}
	return version, nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM consistency_documents WHERE key LIKE $1 ORDER BY key`

	var keys []string
	if err := s.db.SelectContext(ctx, &keys, query, prefix+"%"); err != nil {
		return nil, fmt.Errorf("%w: keys %q: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}
