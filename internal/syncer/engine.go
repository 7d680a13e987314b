// Package syncer reconciles the local store with the remote authority.
package syncer

import (
	"context"
	"fmt"
	"sync/atomic"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/protocol"
	"ledger/internal/store"
)

// bookkeepingKeys never leave the device.
var bookkeepingKeys = []string{"dirty", "deleted"}

// Remote is the authority side of an exchange.
type Remote interface {
	Exchange(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Store is the part of the local store the engine drives.
type Store interface {
	GetUnsynced(ctx context.Context) ([]core.Record, error)
	SetBatch(ctx context.Context, writes []store.Write) error
	Cursor(ctx context.Context, namespace string) (string, bool, error)
	SetCursor(ctx context.Context, namespace, cursor string) error
}

// Result summarises one sync call.
type Result struct {
	Pushed  int
	Pulled  int
	Cursor  string
	Skipped bool
}

type Engine struct {
	store    Store
	remote   Remote
	logger   *log.Logger
	inFlight atomic.Bool
}

func NewEngine(s Store, remote Remote, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{store: s, remote: remote, logger: logger.WithComponent(log.ComponentSync)}
}

// Sync pushes dirty records for namespace and applies what the authority
// returns. At most one call runs at a time; a call made while another is in
// flight returns immediately with Skipped set.
//
// On any failure the cursor and the dirty flags are left as they were, so the
// next call retries the same delta.
func (e *Engine) Sync(ctx context.Context, namespace string) (Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.DebugContext(ctx, "Sync already in flight", log.FieldNamespace, namespace)
		return Result{Skipped: true}, nil
	}
	defer e.inFlight.Store(false)

	unsynced, err := e.store.GetUnsynced(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read unsynced: %w", core.ErrSync, err)
	}
	records := make([]protocol.Record, 0, len(unsynced))
	for _, r := range unsynced {
		records = append(records, strip(protocol.FromRecord(r)))
	}

	cursor, ok, err := e.store.Cursor(ctx, namespace)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read cursor: %w", core.ErrSync, err)
	}
	req := protocol.Request{Records: records, Namespace: namespace}
	if ok {
		req.Cursor = &cursor
	}

	resp, err := e.remote.Exchange(ctx, req)
	if err != nil {
		e.logger.WarnContext(ctx, "Sync exchange failed",
			log.FieldNamespace, namespace,
			log.FieldPushed, len(records),
			log.FieldError, err)
		return Result{}, fmt.Errorf("%w: exchange: %w", core.ErrSync, err)
	}

	writes := make([]store.Write, 0, len(resp.Records))
	for _, r := range resp.Records {
		if err := r.Validate(); err != nil {
			return Result{}, fmt.Errorf("%w: authority sent %w", core.ErrSync, err)
		}
		w := store.Write{Type: r.Type, ID: r.ID, Synced: true}
		if r.Deleted() {
			w.State = core.Tombstone{}
		} else {
			w.State = core.Active{Data: r.Data}
		}
		writes = append(writes, w)
	}
	if err := e.store.SetBatch(ctx, writes); err != nil {
		return Result{}, fmt.Errorf("%w: apply pulled records: %w", core.ErrSync, err)
	}
	if resp.Cursor != "" {
		if err := e.store.SetCursor(ctx, namespace, resp.Cursor); err != nil {
			return Result{}, fmt.Errorf("%w: save cursor: %w", core.ErrSync, err)
		}
	}

	res := Result{Pushed: len(records), Pulled: len(resp.Records), Cursor: resp.Cursor}
	e.logger.InfoContext(ctx, "Sync completed",
		log.FieldNamespace, namespace,
		log.FieldPushed, res.Pushed,
		log.FieldPulled, res.Pulled,
		log.FieldCursor, res.Cursor)
	return res, nil
}

func strip(r protocol.Record) protocol.Record {
	for _, k := range bookkeepingKeys {
		if _, ok := r.Data[k]; ok {
			r.Data = r.Data.Clone()
			break
		}
	}
	for _, k := range bookkeepingKeys {
		delete(r.Data, k)
	}
	return r
}
