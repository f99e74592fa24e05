// Package postgres stores every collection in a single JSONB document table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cms_documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS cms_documents_body_gin ON cms_documents USING GIN (body jsonb_path_ops);
`

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: ping: %w", err)
	}
	return pool, nil
}

// Store implements storage.Provider on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the document table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("storage/postgres: ensure schema: %w", err)
		}
		return nil
	})
}

// Collection returns the adapter scoped to name.
func (s *Store) Collection(name string) storage.Adapter {
	return &Collection{pool: s.pool, name: name}
}

// Collection is one logical collection inside cms_documents.
type Collection struct {
	pool *pgxpool.Pool
	name string
}

func (c *Collection) Find(ctx context.Context, params storage.FindParams) ([]map[string]any, error) {
	sql, args, err := buildFind(c.name, params)
	if err != nil {
		return nil, err
	}
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: find: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan: %w", err)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, storage.Project(doc, params.Fields))
	}
	return out, rows.Err()
}

func (c *Collection) Count(ctx context.Context, q map[string]any) (int, error) {
	sql, args, err := buildCount(c.name, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage/postgres: count: %w", err)
	}
	return n, nil
}

func (c *Collection) Get(ctx context.Context, id string) (map[string]any, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx,
		"SELECT body FROM cms_documents WHERE collection = $1 AND id = $2", c.name, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: get: %w", err)
	}
	return decode(raw)
}

func (c *Collection) Insert(ctx context.Context, doc map[string]any) (map[string]any, error) {
	stored := storage.Merge(nil, doc)
	id := storage.ID(doc)
	if id == "" {
		id = uuid.NewString()
	}
	stored[storage.IDField] = id
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: encode: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		"INSERT INTO cms_documents (collection, id, body) VALUES ($1, $2, $3::jsonb)", c.name, id, string(raw))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &shared.DuplicateError{Field: storage.IDField, Value: id}
		}
		return nil, fmt.Errorf("storage/postgres: insert: %w", err)
	}
	return decode(raw)
}

func (c *Collection) Update(ctx context.Context, id string, patch map[string]any) (map[string]any, error) {
	var updated map[string]any
	err := withTx(ctx, c.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			"SELECT body FROM cms_documents WHERE collection = $1 AND id = $2 FOR UPDATE", c.name, id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("storage/postgres: lock row: %w", err)
		}
		current, err := decode(raw)
		if err != nil {
			return err
		}
		updated = storage.Merge(current, patch)
		body, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("storage/postgres: encode: %w", err)
		}
		_, err = tx.Exec(ctx,
			"UPDATE cms_documents SET body = $3::jsonb, updated_at = $4 WHERE collection = $1 AND id = $2",
			c.name, id, string(body), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("storage/postgres: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Collection) Remove(ctx context.Context, id string) (map[string]any, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx,
		"DELETE FROM cms_documents WHERE collection = $1 AND id = $2 RETURNING body", c.name, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: remove: %w", err)
	}
	return decode(raw)
}

func buildFind(collection string, params storage.FindParams) (string, []any, error) {
	b := &builder{}
	b.arg(collection)
	where, err := b.where(params.Query)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT body FROM cms_documents WHERE collection = $1 AND ")
	sb.WriteString(where)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(b.orderBy(params.Sort))
	if params.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(params.Limit))
	}
	if params.Offset > 0 {
		sb.WriteString(" OFFSET " + b.arg(params.Offset))
	}
	return sb.String(), b.args, nil
}

func buildCount(collection string, q map[string]any) (string, []any, error) {
	b := &builder{}
	b.arg(collection)
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM cms_documents WHERE collection = $1 AND " + where, b.args, nil
}

func decode(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("storage/postgres: decode: %w", err)
	}
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// withTx runs fn inside a read-committed transaction.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("storage/postgres: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage/postgres: commit tx: %w", err)
	}
	return nil
}
