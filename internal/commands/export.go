package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/core"
	"ledger/internal/sheets"
	"ledger/internal/sheets/google"
	"ledger/internal/sheets/memory"
)

func newExportCommand(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "export YYYY-MM",
		Short: "Write a month to its Google Sheets tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := core.ParseYearMonth(args[0])
			if err != nil {
				return err
			}
			if !dryRun && !a.cfg.ExportEnabled() {
				return errors.New("export not configured: set GOOGLE_SPREADSHEET_ID and service account credentials, or use --dry-run")
			}

			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				view, err := b.Ledger.Month(ctx, ym)
				if err != nil {
					return err
				}

				if dryRun {
					mem := memory.New()
					if _, err := mem.ExportMonth(ctx, view); err != nil {
						return err
					}
					rows, _ := mem.Sheet(sheets.SheetName(ym))
					for _, row := range rows {
						cells := make([]string, len(row))
						for i, cell := range row {
							cells[i] = fmt.Sprint(cell)
						}
						fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(strings.Join(cells, "\t"), "\t"))
					}
					return nil
				}

				var exporter sheets.MonthExporter
				exporter, err = google.New(ctx, google.Credentials{
					SpreadsheetID:      a.cfg.GoogleSpreadsheetID,
					ServiceAccountJSON: a.cfg.GoogleServiceAccountJSON,
					ServiceAccountFile: a.cfg.GoogleServiceAccountFile,
				}, a.logger)
				if err != nil {
					return err
				}
				ref, err := exporter.ExportMonth(ctx, view)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), ref)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the rows instead of writing them")

	return cmd
}
