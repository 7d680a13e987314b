package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledger/internal/core"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_records (
	namespace  TEXT        NOT NULL,
	type       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	deleted    BOOLEAN     NOT NULL DEFAULT FALSE,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (namespace, type, id)
);
CREATE INDEX IF NOT EXISTS idx_sync_records_namespace_updated
	ON sync_records (namespace, updated_at);
`

// PGRepository stores namespaces in PostgreSQL. Units of work for the same
// namespace are serialized with a transaction-scoped advisory lock.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository connects to url and ensures the schema exists.
func NewPGRepository(ctx context.Context, url string) (*PGRepository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := &PGRepository{pool: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the records table and its index when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PGRepository) WithNamespace(ctx context.Context, namespace string, fn func(Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, namespace); err != nil {
		return fmt.Errorf("lock namespace: %w", err)
	}
	if err := fn(&pgTx{tx: tx, namespace: namespace}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *PGRepository) Close() error {
	r.pool.Close()
	return nil
}

type pgTx struct {
	tx        pgx.Tx
	namespace string
}

func (t *pgTx) Get(ctx context.Context, typ core.RecordType, id string) (StoredRecord, bool, error) {
	query := `
		SELECT deleted, data, updated_at
		FROM sync_records WHERE namespace = $1 AND type = $2 AND id = $3
	`
	rec := StoredRecord{ID: id, Type: typ}
	var raw []byte
	err := t.tx.QueryRow(ctx, query, t.namespace, string(typ), id).Scan(&rec.Deleted, &raw, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredRecord{}, false, nil
	}
	if err != nil {
		return StoredRecord{}, false, fmt.Errorf("get record %s/%s: %w", typ, id, err)
	}
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return StoredRecord{}, false, fmt.Errorf("decode record %s/%s: %w", typ, id, err)
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, true, nil
}

func (t *pgTx) Put(ctx context.Context, rec StoredRecord) error {
	data := rec.Data
	if rec.Deleted || data == nil {
		data = core.Data{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Key(), err)
	}
	query := `
		INSERT INTO sync_records (namespace, type, id, deleted, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (namespace, type, id) DO UPDATE
		SET deleted = EXCLUDED.deleted, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	if _, err := t.tx.Exec(ctx, query, t.namespace, string(rec.Type), rec.ID, rec.Deleted, raw, rec.UpdatedAt); err != nil {
		return fmt.Errorf("put record %s: %w", rec.Key(), err)
	}
	return nil
}

func (t *pgTx) LastWrite(ctx context.Context) (time.Time, error) {
	var last *time.Time
	err := t.tx.QueryRow(ctx, `SELECT MAX(updated_at) FROM sync_records WHERE namespace = $1`, t.namespace).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("last write: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return last.UTC(), nil
}

func (t *pgTx) Since(ctx context.Context, after time.Time) ([]StoredRecord, error) {
	query := `
		SELECT type, id, deleted, data, updated_at
		FROM sync_records WHERE namespace = $1 AND updated_at > $2
		ORDER BY updated_at, type, id
	`
	rows, err := t.tx.Query(ctx, query, t.namespace, after)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			rec StoredRecord
			typ string
			raw []byte
		)
		if err := rows.Scan(&typ, &rec.ID, &rec.Deleted, &raw, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		rec.Type = core.RecordType(typ)
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		if err := json.Unmarshal(raw, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", rec.Key(), err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
