package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledger/internal/ledger"
	"ledger/internal/sheets"
)

// Exporter keeps exported months in memory. Used for dry runs and tests.
type Exporter struct {
	mu     sync.Mutex
	sheets map[string][][]any
}

var _ sheets.MonthExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{sheets: map[string][][]any{}}
}

// ExportMonth replaces the sheet of the month and returns a synthetic range.
func (e *Exporter) ExportMonth(_ context.Context, view ledger.MonthView) (string, error) {
	name := sheets.SheetName(view.Month)
	rows := sheets.MonthRows(view)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sheets[name] = rows
	return fmt.Sprintf("mem:%s!A1:E%d", name, len(rows)), nil
}

// Sheet returns a copy of the rows exported under name.
func (e *Exporter) Sheet(name string) ([][]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows, ok := e.sheets[name]
	if !ok {
		return nil, false
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out, true
}

// Names lists exported sheets in order.
func (e *Exporter) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sheets))
	for name := range e.sheets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
