package recurrence

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/id"
	"ledger/internal/log"
	"ledger/internal/store"
)

// Store is the subset of the local store the editor writes through.
type Store interface {
	Get(t core.RecordType, id string) (core.Data, error)
	SetBatch(ctx context.Context, writes []store.Write) error
	Delete(ctx context.Context, t core.RecordType, id string) error
}

// Editor applies occurrence-level edits to persisted templates.
type Editor struct {
	store  Store
	logger *log.Logger
}

func NewEditor(s Store, logger *log.Logger) *Editor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Editor{store: s, logger: logger.WithComponent(log.ComponentRecurrence)}
}

// Template loads a recurring template by id.
func (e *Editor) Template(templateID string) (core.Transaction, error) {
	data, err := e.store.Get(core.RecordRecurringTransaction, templateID)
	if err != nil {
		return core.Transaction{}, err
	}
	tpl, err := core.FromData[core.Transaction](data)
	if err != nil {
		return core.Transaction{}, err
	}
	if tpl.Recurrency == nil {
		return core.Transaction{}, fmt.Errorf("%w: template %s has no recurrency", core.ErrCorruptRecurrency, templateID)
	}
	tpl.ID = templateID
	return tpl, nil
}

// Occurrence resolves a composite reference against the stored template.
func (e *Editor) Occurrence(ref Ref) (Occurrence, error) {
	tpl, err := e.Template(ref.TemplateID)
	if err != nil {
		return Occurrence{}, err
	}
	t, err := OccurrenceAtIndex(tpl, ref.Index)
	if err != nil {
		return Occurrence{}, err
	}
	kind := Derived
	if ref.Index == 0 {
		kind = Stored
	}
	return Occurrence{Ref: ref, Kind: kind, Transaction: t}, nil
}

// EditOccurrence replaces occurrence ref with edited.
//
// Index 0 rewrites the template in place; a nil edited.Recurrency keeps the
// current one. For k > 0 the original series is truncated to end the day
// before occurrence k and edited is stored as a new template carrying the
// rest of the series. Both writes commit together. It returns the id of the
// template that now holds the edit.
func (e *Editor) EditOccurrence(ctx context.Context, ref Ref, edited core.Transaction) (string, error) {
	tpl, err := e.Template(ref.TemplateID)
	if err != nil {
		return "", err
	}
	occ, err := OccurrenceAtIndex(tpl, ref.Index)
	if err != nil {
		return "", err
	}

	if edited.Date.IsZero() {
		edited.Date = occ.Date
	}
	if edited.Recurrency == nil {
		rec := *tpl.Recurrency
		edited.Recurrency = &rec
	}
	edited.CarryOver = nil

	if ref.Index == 0 {
		edited.ID = tpl.ID
		write, err := templateWrite(edited)
		if err != nil {
			return "", err
		}
		if err := e.store.SetBatch(ctx, []store.Write{write}); err != nil {
			return "", err
		}
		e.logger.InfoContext(ctx, "Recurring template replaced", log.FieldRecordID, tpl.ID)
		return tpl.ID, nil
	}

	truncated, err := truncateBefore(tpl, occ.Date)
	if err != nil {
		return "", err
	}
	edited.ID = id.New()
	detached, err := templateWrite(edited)
	if err != nil {
		return "", err
	}
	if err := e.store.SetBatch(ctx, []store.Write{truncated, detached}); err != nil {
		return "", err
	}
	e.logger.InfoContext(ctx, "Recurring series split",
		log.FieldRecordID, tpl.ID,
		"occurrence", ref.Index,
		"new_template_id", edited.ID)
	return edited.ID, nil
}

// DeleteOccurrence removes occurrence ref. Index 0 deletes the whole series;
// k > 0 truncates the series so it ends the day before occurrence k.
func (e *Editor) DeleteOccurrence(ctx context.Context, ref Ref) error {
	tpl, err := e.Template(ref.TemplateID)
	if err != nil {
		return err
	}
	if ref.Index == 0 {
		if err := e.store.Delete(ctx, core.RecordRecurringTransaction, tpl.ID); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "Recurring template deleted", log.FieldRecordID, tpl.ID)
		return nil
	}
	occ, err := OccurrenceAtIndex(tpl, ref.Index)
	if err != nil {
		return err
	}
	truncated, err := truncateBefore(tpl, occ.Date)
	if err != nil {
		return err
	}
	if err := e.store.SetBatch(ctx, []store.Write{truncated}); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "Recurring series truncated", log.FieldRecordID, tpl.ID, "occurrence", ref.Index)
	return nil
}

func truncateBefore(tpl core.Transaction, d core.Date) (store.Write, error) {
	end := d.AddDays(-1)
	rec := *tpl.Recurrency
	rec.EndDate = &end
	tpl.Recurrency = &rec
	return templateWrite(tpl)
}

func templateWrite(t core.Transaction) (store.Write, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return store.Write{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	data, err := core.ToData(t)
	if err != nil {
		return store.Write{}, err
	}
	return store.Write{Type: core.RecordRecurringTransaction, ID: t.ID, State: core.Active{Data: data}}, nil
}
