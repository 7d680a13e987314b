package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/core"
)

func newCategoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage categories",
	}
	cmd.AddCommand(newCategoryListCommand(a), newCategoryAddCommand(a), newCategoryDeleteCommand(a))
	return cmd
}

func newCategoryListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				categories, err := b.Ledger.Categories(ctx)
				if err != nil {
					return err
				}
				for _, c := range categories {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Icon)
				}
				return nil
			})
		},
	}
}

func newCategoryAddCommand(a *app) *cobra.Command {
	var categoryID, kind, icon string

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a category, or replace the one named by --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := core.Category{
				ID:   categoryID,
				Name: args[0],
				Type: core.TransactionType(strings.ToLower(kind)),
				Icon: icon,
			}
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				savedID, err := b.Ledger.SaveCategory(ctx, c)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), savedID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&categoryID, "id", "", "id of the category to replace")
	cmd.Flags().StringVar(&kind, "type", "", "expense or income; empty for both")
	cmd.Flags().StringVar(&icon, "icon", "", "icon shown next to the name")

	return cmd
}

func newCategoryDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				return b.Ledger.DeleteCategory(ctx, args[0])
			})
		},
	}
}
