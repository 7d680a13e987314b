// Package storage persists records and sync cursors for the local store.
package storage

import (
	"context"

	"ledger/internal/core"
)

type (
	// Row is a persisted record. Data is the raw JSON payload, "{}" for tombstones.
	Row struct {
		Type    core.RecordType
		ID      string
		Data    []byte
		Deleted bool
		Dirty   bool
	}

	// Backend is the durable side of the local record store. Apply writes every
	// row in one transaction: either all rows commit or none do.
	Backend interface {
		Load(ctx context.Context) ([]Row, error)
		LoadDirty(ctx context.Context) ([]Row, error)
		Apply(ctx context.Context, rows []Row) error
		Cursor(ctx context.Context, namespace string) (cursor string, ok bool, err error)
		SetCursor(ctx context.Context, namespace, cursor string) error
		Close() error
	}
)

// Key identifies a row.
func (r Row) Key() string { return string(r.Type) + "/" + r.ID }
