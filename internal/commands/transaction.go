package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/core"
	"ledger/internal/render"
)

// txFlags are shared by add and edit. Only flags set on the command line
// are applied, so edit keeps every field the user did not mention.
type txFlags struct {
	kind       string
	name       string
	amount     string
	date       string
	category   string
	every      string
	multiplier int
	until      string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "type", string(core.Expense), "expense or income")
	cmd.Flags().StringVar(&f.name, "name", "", "description")
	cmd.Flags().StringVar(&f.amount, "amount", "", "positive amount, e.g. 12.50")
	cmd.Flags().StringVar(&f.date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.category, "category", "", "category id")
	cmd.Flags().StringVar(&f.every, "every", "", "repeat every week, month or year; none stops repeating")
	cmd.Flags().IntVar(&f.multiplier, "multiplier", 1, "repeat every N intervals")
	cmd.Flags().StringVar(&f.until, "until", "", "last date of a recurring series; empty removes the end")
}

func (f *txFlags) apply(cmd *cobra.Command, t *core.Transaction) error {
	changed := cmd.Flags().Changed

	if changed("type") {
		t.Type = core.TransactionType(strings.ToLower(f.kind))
	}
	if changed("name") {
		t.Name = f.name
	}
	if changed("amount") {
		amount, err := core.ParseAmount(f.amount)
		if err != nil {
			return fmt.Errorf("%w: %q", err, f.amount)
		}
		t.Amount = amount
	}
	if changed("date") {
		d, err := core.ParseDate(f.date)
		if err != nil {
			return err
		}
		t.Date = d
	}
	if changed("category") {
		t.CategoryID = f.category
	}

	if changed("every") {
		if f.every == "none" {
			t.Recurrency = nil
		} else {
			if t.Recurrency == nil {
				t.Recurrency = &core.Recurrency{Multiplier: 1}
			}
			t.Recurrency.Interval = core.Interval(strings.ToLower(f.every))
		}
	}
	if changed("multiplier") || changed("until") {
		if t.Recurrency == nil {
			return fmt.Errorf("%w: --multiplier and --until need a recurring transaction", core.ErrValidation)
		}
	}
	if changed("multiplier") {
		t.Recurrency.Multiplier = f.multiplier
	}
	if changed("until") {
		if f.until == "" {
			t.Recurrency.EndDate = nil
		} else {
			end, err := core.ParseDate(f.until)
			if err != nil {
				return err
			}
			t.Recurrency.EndDate = &end
		}
	}
	return nil
}

func newAddCommand(a *app) *cobra.Command {
	var f txFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction or a recurring series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := core.Transaction{Type: core.Expense, Date: core.Today()}
			if err := f.apply(cmd, &t); err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				newID, err := b.Ledger.AddTransaction(ctx, t)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), newID)
				return err
			})
		},
	}

	f.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newEditCommand(a *app) *cobra.Command {
	var f txFlags

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a transaction, a recurring series or one occurrence of it",
		Long: `Edit a transaction. ID may be a plain transaction id, a recurring
template id or an occurrence id (TEMPLATE:INDEX). Editing occurrence INDEX > 0
splits the series: the original ends before it and the edit starts a new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				t, err := b.Ledger.Transaction(ctx, args[0])
				if err != nil {
					return err
				}
				if err := f.apply(cmd, &t); err != nil {
					return err
				}
				heldBy, err := b.Ledger.UpdateTransaction(ctx, args[0], t)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), heldBy)
				return err
			})
		},
	}

	f.register(cmd)

	return cmd
}

func newShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a transaction, occurrence or carry-over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				t, err := b.Ledger.Transaction(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "id\t%s\n", t.ID)
				fmt.Fprintf(w, "type\t%s\n", t.Type)
				if t.Name != "" {
					fmt.Fprintf(w, "name\t%s\n", t.Name)
				}
				fmt.Fprintf(w, "amount\t%s\n", render.Amount(t.Signed(), a.cfg.Currency))
				fmt.Fprintf(w, "date\t%s\n", t.Date)
				if t.CategoryID != "" {
					fmt.Fprintf(w, "category\t%s\n", t.CategoryID)
				}
				if r := t.Recurrency; r != nil {
					fmt.Fprintf(w, "every\t%d %s\n", r.Multiplier, r.Interval)
					if r.EndDate != nil {
						fmt.Fprintf(w, "until\t%s\n", r.EndDate)
					}
				}
				return nil
			})
		},
	}
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a transaction; an occurrence id ends its series before that occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				return b.Ledger.DeleteTransaction(ctx, args[0])
			})
		},
	}
}
