package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/logging"
)

const schema = `CREATE TABLE IF NOT EXISTS invoice_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	getQuery    = `SELECT value FROM invoice_kv WHERE key = $1`
	putQuery    = `INSERT INTO invoice_kv (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteQuery = `DELETE FROM invoice_kv WHERE key = $1`
)

// PostgresKV keeps records in a single invoice_kv table.
type PostgresKV struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// OpenPostgresKV connects to dsn and creates the table if it is missing.
func OpenPostgresKV(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresKV, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	kv, err := NewPostgresKV(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

// NewPostgresKV wraps an open database handle.
func NewPostgresKV(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (*PostgresKV, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres store: create table: %w", err)
	}
	logger = logging.OrNop(logger)
	logger.Debug("postgres store ready")
	return &PostgresKV{db: db, logger: logger}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := p.db.GetContext(ctx, &value, getQuery, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get %s: %w", key, err)
	}
	return []byte(value), nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := p.db.ExecContext(ctx, putQuery, key, string(value)); err != nil {
		return fmt.Errorf("postgres store: put %s: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("postgres store: delete %s: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) Close() error {
	return p.db.Close()
}
