// Package commands implements the ledger command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/buildinfo"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	namespace string
	dbPath    string

	cfg    *config.Config
	logger *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Offline-first household budget ledger",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.namespace, "namespace", "", "namespace to operate on (overrides LEDGER_NAMESPACE)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "path of the local database (overrides LEDGER_DB_PATH)")

	rootCmd.AddCommand(
		newMonthCommand(a),
		newCarryOverCommand(a),
		newAddCommand(a),
		newEditCommand(a),
		newShowCommand(a),
		newDeleteCommand(a),
		newCategoryCommand(a),
		newSyncCommand(a),
		newExportCommand(a),
		newWorkerCommand(a),
		newQuarantineCommand(a),
	)

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := cli.LoadAndValidateConfig(func(c *config.Config) {
		if a.namespace != "" {
			c.Namespace = a.namespace
		}
		if a.dbPath != "" {
			c.DBPath = a.dbPath
		}
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
	return nil
}

// open assembles the local backend and waits for the store to hydrate.
func (a *app) open(ctx context.Context) (*backend.Backend, error) {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	b, err := backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	if err := b.Store.WaitReady(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("load local store: %w", err)
	}
	return b, nil
}

// withBackend runs fn against an opened backend and closes it afterwards.
func (a *app) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *backend.Backend) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close backend: %w", cerr)
		}
	}()
	return fn(ctx, b)
}
