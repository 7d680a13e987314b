// Package authority implements the server side of the sync protocol: it
// accepts pushed records, resolves conflicts by last write and returns the
// changes a device has not seen yet.
package authority

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/protocol"
)

// Notifier is told when a namespace's cursor advanced.
type Notifier interface {
	PublishNamespaceChanged(ctx context.Context, namespace, cursor string) error
}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock replaces the wall clock used to stamp writes.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: log.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentAuthority)
	return s
}

// Exchange applies a device's push and returns what it has not pulled yet.
//
// Every record is validated before anything is written. Writes are stamped
// with a per-namespace timestamp strictly greater than any earlier one, so
// the later exchange wins. A pushed record identical to the stored one is not
// rewritten; it is echoed back unchanged so the device can clear its dirty
// flag.
func (s *Service) Exchange(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if strings.TrimSpace(req.Namespace) == "" {
		return protocol.Response{}, fmt.Errorf("%w: namespace is required", core.ErrValidation)
	}
	for _, r := range req.Records {
		if err := r.Validate(); err != nil {
			return protocol.Response{}, err
		}
	}
	cursor := req.CursorOrSentinel()
	since, err := protocol.ParseCursor(cursor)
	if err != nil {
		return protocol.Response{}, err
	}

	resp := protocol.Response{Records: []protocol.Record{}, Cursor: cursor}
	written := 0
	err = s.repo.WithNamespace(ctx, req.Namespace, func(tx Tx) error {
		last, err := tx.LastWrite(ctx)
		if err != nil {
			return err
		}
		stamp := s.now().UTC().Truncate(time.Millisecond)
		if !stamp.After(last) {
			stamp = last.Add(time.Millisecond)
		}

		echoes := make(map[string]StoredRecord)
		for _, r := range req.Records {
			rec := StoredRecord{ID: r.ID, Type: r.Type, Deleted: r.Deleted(), Data: r.Data, UpdatedAt: stamp}
			if rec.Deleted || rec.Data == nil {
				rec.Data = core.Data{}
			}
			current, ok, err := tx.Get(ctx, r.Type, r.ID)
			if err != nil {
				return err
			}
			if ok && sameState(current, rec) {
				echoes[current.Key()] = current
				continue
			}
			if err := tx.Put(ctx, rec); err != nil {
				return err
			}
			written++
		}

		changed, err := tx.Since(ctx, since)
		if err != nil {
			return err
		}
		newest := since
		for _, rec := range changed {
			delete(echoes, rec.Key())
			resp.Records = append(resp.Records, rec.Wire())
			if rec.UpdatedAt.After(newest) {
				newest = rec.UpdatedAt
			}
		}
		keys := make([]string, 0, len(echoes))
		for k := range echoes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			resp.Records = append(resp.Records, echoes[k].Wire())
		}
		if newest.After(since) {
			resp.Cursor = protocol.FormatCursor(newest)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Sync exchange failed",
			log.FieldNamespace, req.Namespace,
			log.FieldError, err)
		return protocol.Response{}, fmt.Errorf("%w: exchange %s: %w", core.ErrStorage, req.Namespace, err)
	}

	s.logger.InfoContext(ctx, "Sync exchange completed",
		log.FieldNamespace, req.Namespace,
		log.FieldPushed, len(req.Records),
		log.FieldPulled, len(resp.Records),
		"written", written,
		log.FieldCursor, resp.Cursor)

	if written > 0 && s.notifier != nil {
		if err := s.notifier.PublishNamespaceChanged(ctx, req.Namespace, resp.Cursor); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish namespace change",
				log.FieldNamespace, req.Namespace,
				log.FieldError, err)
		}
	}
	return resp, nil
}
