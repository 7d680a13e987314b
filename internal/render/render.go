// Package render turns month views into markdown reports for the terminal.
package render

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"ledger/internal/ledger"
)

// Amount formats d in the given ISO 4217 currency. Unknown codes fall back to
// a plain two-decimal string followed by the code.
func Amount(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}

type row struct {
	Date     string
	Name     string
	Category string
	Amount   string
}

type report struct {
	Month      string
	Rows       []row
	CarryOver  string
	CarryKind  string
	Income     string
	Expenses   string
	Total      string
	ByCategory []row
}

const monthMarkdownTemplate = `# {{ .Month }}

Carry-over{{ if .CarryKind }} ({{ .CarryKind }}){{ end }}: **{{ .CarryOver }}**

{{- if .Rows }}

## Transactions

| Date | Name | Category | Amount |
|:---|:---|:---|---:|
{{- range .Rows }}
| {{ .Date }} | {{ .Name }} | {{ .Category }} | {{ .Amount }} |
{{- end }}
{{- end }}

## Summary

| | |
|:---|---:|
| Income | {{ .Income }} |
| Expenses | {{ .Expenses }} |
| Carry-over | {{ .CarryOver }} |
| **Total** | **{{ .Total }}** |

{{- if .ByCategory }}

## Expenses by category

| Category | Amount |
|:---|---:|
{{- range .ByCategory }}
| {{ .Category }} | {{ .Amount }} |
{{- end }}
{{- end }}
`

var monthTemplate = template.Must(template.New("month").Parse(monthMarkdownTemplate))

// MonthMarkdown renders a month view as a markdown document.
func MonthMarkdown(view ledger.MonthView, currency string) (string, error) {
	r := report{
		Month:     view.Month.String(),
		CarryOver: Amount(view.CarryOver.Amount, currency),
		Income:    Amount(view.Summary.TotalIncome, currency),
		Expenses:  Amount(view.Summary.TotalExpenses, currency),
		Total:     Amount(view.Summary.Total, currency),
	}
	if view.CarryOver.CarryOver != nil {
		r.CarryKind = string(view.CarryOver.CarryOver.Type)
	}
	for _, t := range view.Transactions {
		name := t.Name
		if t.IsRecurring() {
			name += " ↻"
		}
		r.Rows = append(r.Rows, row{
			Date:     t.Date.String(),
			Name:     escape(name),
			Category: escape(categoryName(view, t.CategoryID)),
			Amount:   Amount(t.Signed(), currency),
		})
	}
	for _, c := range view.ByCategory {
		r.ByCategory = append(r.ByCategory, row{
			Category: escape(categoryName(view, c.CategoryID)),
			Amount:   Amount(c.Amount, currency),
		})
	}

	var b strings.Builder
	if err := monthTemplate.Execute(&b, r); err != nil {
		return "", fmt.Errorf("render month %s: %w", view.Month, err)
	}
	return b.String(), nil
}

// Render styles markdown for a terminal. style is a glamour standard style
// name such as "dark", "light" or "notty".
func Render(markdown, style string, width int) (string, error) {
	if style == "" {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

func categoryName(view ledger.MonthView, id string) string {
	if id == "" {
		return "-"
	}
	if c, ok := view.Categories[id]; ok {
		return c.Name
	}
	return id
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
