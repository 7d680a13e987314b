package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/core"
	"ledger/internal/render"
)

func newMonthCommand(a *app) *cobra.Command {
	var style string
	var width int
	var raw bool

	cmd := &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "Show a month: carry-over, transactions and summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym := core.Today().YearMonth()
			if len(args) > 0 {
				parsed, err := core.ParseYearMonth(args[0])
				if err != nil {
					return err
				}
				ym = parsed
			}

			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				view, err := b.Ledger.Month(ctx, ym)
				if err != nil {
					return err
				}
				md, err := render.MonthMarkdown(view, a.cfg.Currency)
				if err != nil {
					return err
				}
				if raw {
					_, err = fmt.Fprint(cmd.OutOrStdout(), md)
					return err
				}
				out, err := render.Render(md, style, width)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&style, "style", "notty", "glamour style: dark, light, notty, ascii")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")

	return cmd
}
