// Package ledger assembles month views and applies user edits on top of the
// local store, the recurrence editor and the carry-over calculator.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/carryover"
	"ledger/internal/core"
	"ledger/internal/dataset"
	"ledger/internal/id"
	"ledger/internal/log"
	"ledger/internal/recurrence"
	"ledger/internal/store"
)

// MonthView is everything a month screen shows.
type MonthView struct {
	Month core.YearMonth
	// CarryOver is the synthetic rollover transaction dated on the 1st.
	CarryOver core.Transaction
	// Transactions holds persisted transactions and recurring occurrences,
	// ordered by date then id. The carry-over is not included.
	Transactions []core.Transaction
	Summary      core.Summary
	ByCategory   []core.CategoryAmount
	Categories   map[string]core.Category
}

// Service orchestrates ledger reads and writes over the local store.
type Service struct {
	store  *store.Store
	carry  *carryover.Calculator
	editor *recurrence.Editor
	logger *log.Logger
}

func NewService(s *store.Store, calc *carryover.Calculator, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	if calc == nil {
		calc = carryover.New(s)
	}
	return &Service{
		store:  s,
		carry:  calc,
		editor: recurrence.NewEditor(s, logger),
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

// Month builds the view of one month from a single snapshot.
func (s *Service) Month(ctx context.Context, ym core.YearMonth) (MonthView, error) {
	if err := s.store.WaitReady(ctx); err != nil {
		return MonthView{}, err
	}
	snap, err := dataset.Load(s.store)
	if err != nil {
		return MonthView{}, fmt.Errorf("load ledger: %w", err)
	}
	carry, err := s.carry.ForMonth(ctx, snap, ym)
	if err != nil {
		return MonthView{}, err
	}
	txs, err := snap.MonthTransactions(ym)
	if err != nil {
		return MonthView{}, fmt.Errorf("month %s: %w", ym, err)
	}

	categories := make(map[string]core.Category, len(snap.Categories))
	for _, c := range snap.Categories {
		categories[c.ID] = c
	}

	return MonthView{
		Month:        ym,
		CarryOver:    carry,
		Transactions: txs,
		Summary:      core.Summarize(append([]core.Transaction{carry}, txs...)),
		ByCategory:   core.ExpensesByCategory(txs),
		Categories:   categories,
	}, nil
}

// Transaction resolves a plain transaction id, a recurring template id, a
// composite occurrence id or a synthetic carry-over id.
func (s *Service) Transaction(ctx context.Context, txID string) (core.Transaction, error) {
	if err := s.store.WaitReady(ctx); err != nil {
		return core.Transaction{}, err
	}
	switch {
	case strings.HasPrefix(txID, carryover.IDPrefix):
		ym, err := core.ParseYearMonth(strings.TrimPrefix(txID, carryover.IDPrefix))
		if err != nil {
			return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrNotFound, txID)
		}
		return s.carry.CarryOverFor(ctx, ym.Year, ym.Month)
	case strings.Contains(txID, ":"):
		ref, err := recurrence.ParseRef(txID)
		if err != nil {
			return core.Transaction{}, err
		}
		occ, err := s.editor.Occurrence(ref)
		if err != nil {
			return core.Transaction{}, err
		}
		return occ.Transaction, nil
	}

	data, err := s.store.Get(core.RecordTransaction, txID)
	if errors.Is(err, core.ErrNotFound) {
		return s.editor.Template(txID)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := core.FromData[core.Transaction](data)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s: %v", core.ErrValidation, txID, err)
	}
	t.ID = txID
	return t, nil
}

// AddTransaction stores t under a fresh id. A transaction with a recurrency
// becomes a recurring template.
func (s *Service) AddTransaction(ctx context.Context, t core.Transaction) (string, error) {
	t.ID = id.New()
	write, err := transactionWrite(t)
	if err != nil {
		return "", err
	}
	if err := s.store.SetBatch(ctx, []store.Write{write}); err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction added",
		log.FieldRecordType, string(write.Type),
		log.FieldRecordID, t.ID,
		log.FieldMonth, t.Date.YearMonth().String())
	return t.ID, nil
}

// UpdateTransaction replaces the transaction named by txID with t and returns
// the id now holding it. Occurrence ids go through the recurrence editor; a
// plain transaction that gains a recurrency moves to the template type.
func (s *Service) UpdateTransaction(ctx context.Context, txID string, t core.Transaction) (string, error) {
	if err := s.store.WaitReady(ctx); err != nil {
		return "", err
	}
	if strings.Contains(txID, ":") {
		ref, err := recurrence.ParseRef(txID)
		if err != nil {
			return "", err
		}
		return s.editor.EditOccurrence(ctx, ref, t)
	}
	if _, err := s.store.Get(core.RecordRecurringTransaction, txID); err == nil {
		return s.editor.EditOccurrence(ctx, recurrence.Ref{TemplateID: txID}, t)
	}
	if _, err := s.store.Get(core.RecordTransaction, txID); err != nil {
		return "", err
	}

	t.ID = txID
	write, err := transactionWrite(t)
	if err != nil {
		return "", err
	}
	writes := []store.Write{write}
	if write.Type == core.RecordRecurringTransaction {
		writes = append(writes, store.Write{Type: core.RecordTransaction, ID: txID, State: core.Tombstone{}})
	}
	if err := s.store.SetBatch(ctx, writes); err != nil {
		return "", fmt.Errorf("update transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction updated", log.FieldRecordID, txID)
	return txID, nil
}

// DeleteTransaction removes a transaction. Deleting occurrence k of a series
// truncates the series before k; occurrence 0 or the template id deletes it.
func (s *Service) DeleteTransaction(ctx context.Context, txID string) error {
	if err := s.store.WaitReady(ctx); err != nil {
		return err
	}
	if strings.Contains(txID, ":") {
		ref, err := recurrence.ParseRef(txID)
		if err != nil {
			return err
		}
		return s.editor.DeleteOccurrence(ctx, ref)
	}
	err := s.store.Delete(ctx, core.RecordTransaction, txID)
	if errors.Is(err, core.ErrNotFound) {
		err = s.store.Delete(ctx, core.RecordRecurringTransaction, txID)
	}
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldRecordID, txID)
	return nil
}

// SetManualCarryOver pins the rollover of ym. An existing override for the
// month is replaced in place.
func (s *Service) SetManualCarryOver(ctx context.Context, ym core.YearMonth, amount decimal.Decimal) (string, error) {
	if err := s.store.WaitReady(ctx); err != nil {
		return "", err
	}
	snap, err := dataset.Load(s.store)
	if err != nil {
		return "", fmt.Errorf("load ledger: %w", err)
	}
	c := core.CarryOver{ID: id.New(), YearMonthIndex: ym.String(), Amount: amount.Round(2)}
	if existing, ok := snap.ManualCarryOver(ym); ok {
		c.ID = existing.ID
	}
	data, err := core.ToData(c)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, core.RecordCarryOver, c.ID, data, false); err != nil {
		return "", fmt.Errorf("save carry-over: %w", err)
	}
	s.logger.InfoContext(ctx, "Manual carry-over set", log.FieldMonth, ym.String(), "amount", c.Amount.String())
	return c.ID, nil
}

// ClearManualCarryOver removes the override of ym, returning the month to
// the computed rollover.
func (s *Service) ClearManualCarryOver(ctx context.Context, ym core.YearMonth) error {
	if err := s.store.WaitReady(ctx); err != nil {
		return err
	}
	snap, err := dataset.Load(s.store)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	existing, ok := snap.ManualCarryOver(ym)
	if !ok {
		return fmt.Errorf("%w: no manual carry-over for %s", core.ErrNotFound, ym)
	}
	if err := s.store.Delete(ctx, core.RecordCarryOver, existing.ID); err != nil {
		return fmt.Errorf("delete carry-over: %w", err)
	}
	s.logger.InfoContext(ctx, "Manual carry-over cleared", log.FieldMonth, ym.String())
	return nil
}

// Categories returns every category ordered by name.
func (s *Service) Categories(ctx context.Context) ([]core.Category, error) {
	if err := s.store.WaitReady(ctx); err != nil {
		return nil, err
	}
	snap, err := dataset.Load(s.store)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return snap.Categories, nil
}

// SaveCategory creates c when its id is empty, otherwise replaces it.
func (s *Service) SaveCategory(ctx context.Context, c core.Category) (string, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	if c.ID == "" {
		c.ID = id.New()
	}
	data, err := core.ToData(c)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, core.RecordCategory, c.ID, data, false); err != nil {
		return "", fmt.Errorf("save category: %w", err)
	}
	return c.ID, nil
}

func (s *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	if err := s.store.Delete(ctx, core.RecordCategory, categoryID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func transactionWrite(t core.Transaction) (store.Write, error) {
	if t.Type == core.Rollover {
		return store.Write{}, fmt.Errorf("%w: carry-over transactions are computed, set a manual carry-over instead", core.ErrValidation)
	}
	t.CarryOver = nil
	t.Normalize()
	if err := t.Validate(); err != nil {
		return store.Write{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	data, err := core.ToData(t)
	if err != nil {
		return store.Write{}, err
	}
	recordType := core.RecordTransaction
	if t.IsRecurring() {
		recordType = core.RecordRecurringTransaction
	}
	return store.Write{Type: recordType, ID: t.ID, State: core.Active{Data: data}}, nil
}
