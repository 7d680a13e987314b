package recurrence

import (
	"fmt"

	"ledger/internal/core"
	"ledger/internal/id"
)

// Kind tags an occurrence as the persisted template or a virtual instance.
type Kind int

const (
	// Stored is occurrence 0, the template record itself.
	Stored Kind = iota
	// Derived is occurrence k > 0, materialised on demand and never persisted.
	Derived
)

func (k Kind) String() string {
	if k == Stored {
		return "stored"
	}
	return "derived"
}

// Ref addresses one occurrence of a series.
type Ref struct {
	TemplateID string
	Index      int
}

// String is the boundary encoding "{templateID}:{index}".
func (r Ref) String() string { return id.FormatOccurrenceID(r.TemplateID, r.Index) }

// ParseRef decodes a composite occurrence id.
func ParseRef(s string) (Ref, error) {
	tpl, idx, ok, err := id.ParseOccurrenceID(s)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q is not an occurrence id", core.ErrNotFound, s)
	}
	return Ref{TemplateID: tpl, Index: idx}, nil
}

// Occurrence is one dated instance of a series.
type Occurrence struct {
	Ref         Ref
	Kind        Kind
	Transaction core.Transaction
}

type series struct {
	tpl     core.Transaction
	rec     core.Recurrency
	stepper Stepper
}

func newSeries(tpl core.Transaction) (series, error) {
	if tpl.Recurrency == nil {
		return series{}, fmt.Errorf("%w: template %s has no recurrency", core.ErrCorruptRecurrency, tpl.ID)
	}
	rec := *tpl.Recurrency
	if rec.Multiplier < 1 {
		return series{}, fmt.Errorf("%w: template %s has multiplier %d", core.ErrCorruptRecurrency, tpl.ID, rec.Multiplier)
	}
	stepper, err := GetStepper(rec.Interval)
	if err != nil {
		return series{}, fmt.Errorf("%w: template %s: %v", core.ErrCorruptRecurrency, tpl.ID, err)
	}
	if tpl.Date.IsZero() {
		return series{}, fmt.Errorf("%w: template %s has no date", core.ErrCorruptRecurrency, tpl.ID)
	}
	return series{tpl: tpl, rec: rec, stepper: stepper}, nil
}

func (s series) dateAt(k int) core.Date {
	return s.stepper.Step(s.tpl.Date, s.rec.Multiplier, k)
}

// ended reports whether d lies past the series end date.
func (s series) ended(d core.Date) bool {
	return s.rec.EndDate != nil && d.After(*s.rec.EndDate)
}

func (s series) at(k int, d core.Date) core.Transaction {
	t := s.tpl
	t.ID = id.FormatOccurrenceID(s.tpl.ID, k)
	t.Date = d
	t.YearMonthIndex = d.YearMonth().String()
	rec := s.rec
	if rec.EndDate != nil {
		end := *rec.EndDate
		rec.EndDate = &end
	}
	t.Recurrency = &rec
	if s.tpl.CarryOver != nil {
		marker := *s.tpl.CarryOver
		t.CarryOver = &marker
	}
	return t
}

// OccurrencesInRange returns occurrences 1..n of tpl dated within [start, end]
// and not past the series end date. Occurrence 0 is the template itself and
// is left to the caller.
func OccurrencesInRange(tpl core.Transaction, start, end core.Date) ([]core.Transaction, error) {
	s, err := newSeries(tpl)
	if err != nil {
		return nil, err
	}
	var out []core.Transaction
	for k := 1; ; k++ {
		d := s.dateAt(k)
		if d.After(end) || s.ended(d) {
			break
		}
		if d.Before(start) {
			continue
		}
		out = append(out, s.at(k, d))
	}
	return out, nil
}

// OccurrenceAtIndex resolves occurrence k. Index 0 is the template with id
// suffix ":0". An index past the series end date is core.ErrNotFound.
func OccurrenceAtIndex(tpl core.Transaction, k int) (core.Transaction, error) {
	s, err := newSeries(tpl)
	if err != nil {
		return core.Transaction{}, err
	}
	if k < 0 {
		return core.Transaction{}, fmt.Errorf("%w: occurrence %d of %s", core.ErrNotFound, k, tpl.ID)
	}
	d := s.dateAt(k)
	if k > 0 && s.ended(d) {
		return core.Transaction{}, fmt.Errorf("%w: occurrence %d of %s is past %s", core.ErrNotFound, k, tpl.ID, s.rec.EndDate)
	}
	return s.at(k, d), nil
}

// Expand returns every occurrence of tpl dated within [start, end], the
// template itself included when its own date is in range.
func Expand(tpl core.Transaction, start, end core.Date) ([]Occurrence, error) {
	s, err := newSeries(tpl)
	if err != nil {
		return nil, err
	}
	var out []Occurrence
	if !tpl.Date.Before(start) && !tpl.Date.After(end) {
		out = append(out, Occurrence{Ref: Ref{TemplateID: tpl.ID}, Kind: Stored, Transaction: s.at(0, tpl.Date)})
	}
	derived, err := OccurrencesInRange(tpl, start, end)
	if err != nil {
		return nil, err
	}
	for _, t := range derived {
		ref, err := ParseRef(t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Occurrence{Ref: ref, Kind: Derived, Transaction: t})
	}
	return out, nil
}
