package commands

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/carryover"
	"ledger/internal/core"
	"ledger/internal/render"
)

func newCarryOverCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carryover",
		Short: "Inspect and override monthly carry-overs",
	}
	cmd.AddCommand(newCarryOverShowCommand(a), newCarryOverSetCommand(a), newCarryOverClearCommand(a))
	return cmd
}

func newCarryOverShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show YYYY-MM",
		Short: "Show the balance carried into a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := core.ParseYearMonth(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				t, err := b.Ledger.Transaction(ctx, carryover.IDPrefix+ym.String())
				if err != nil {
					return err
				}
				kind := "none"
				if t.CarryOver != nil {
					kind = string(t.CarryOver.Type)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", ym, render.Amount(t.Amount, a.cfg.Currency), kind)
				return err
			})
		},
	}
}

func newCarryOverSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set YYYY-MM AMOUNT",
		Short: "Override the balance carried into a month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := core.ParseYearMonth(args[0])
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q", core.ErrInvalidAmount, args[1])
			}
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				overrideID, err := b.Ledger.SetManualCarryOver(ctx, ym, amount)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), overrideID)
				return err
			})
		},
	}
}

func newCarryOverClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear YYYY-MM",
		Short: "Remove a month's override so it is computed again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := core.ParseYearMonth(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				return b.Ledger.ClearManualCarryOver(ctx, ym)
			})
		},
	}
}
