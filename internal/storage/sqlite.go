package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ledger/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the store serialises writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Load returns every row, tombstones included.
func (b *SQLiteBackend) Load(ctx context.Context) ([]Row, error) {
	return b.query(ctx, `SELECT type, id, data, deleted, dirty FROM records`)
}

// LoadDirty returns rows not yet acknowledged by the authority.
func (b *SQLiteBackend) LoadDirty(ctx context.Context) ([]Row, error) {
	return b.query(ctx, `SELECT type, id, data, deleted, dirty FROM records WHERE dirty = 1`)
}

func (b *SQLiteBackend) query(ctx context.Context, q string) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r     Row
			typ   string
			data  string
			del   int
			dirty int
		)
		if err := rows.Scan(&typ, &r.ID, &data, &del, &dirty); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Type = core.RecordType(typ)
		r.Data = []byte(data)
		r.Deleted = del == 1
		r.Dirty = dirty == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

const upsertRecord = `
INSERT INTO records (type, id, data, deleted, dirty, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (type, id) DO UPDATE SET
    data = excluded.data,
    deleted = excluded.deleted,
    dirty = excluded.dirty,
    updated_at = excluded.updated_at`

// Apply upserts rows in a single transaction.
func (b *SQLiteBackend) Apply(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		data := r.Data
		if r.Deleted || len(data) == 0 {
			data = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, string(r.Type), r.ID, string(data), boolInt(r.Deleted), boolInt(r.Dirty), now); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Records written to SQLite", "count", len(rows))
	return nil
}

func (b *SQLiteBackend) Cursor(ctx context.Context, namespace string) (string, bool, error) {
	var cursor string
	err := b.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursors WHERE namespace = ?`, namespace).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cursor for %s: %w", namespace, err)
	}
	return cursor, true, nil
}

func (b *SQLiteBackend) SetCursor(ctx context.Context, namespace, cursor string) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO sync_cursors (namespace, cursor, updated_at) VALUES (?, ?, ?)
ON CONFLICT (namespace) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		namespace, cursor, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set cursor for %s: %w", namespace, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
