package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/syncer"
	"ledger/internal/worker"
)

var errNoAuthority = errors.New("no authority configured: set AUTHORITY_URL")

func newSyncCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local changes to the authority and pull remote ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				if b.Engine == nil {
					return errNoAuthority
				}
				res, err := b.Engine.Sync(ctx, b.Namespace)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, pulled %d, cursor %s\n", res.Pushed, res.Pulled, res.Cursor)
				return err
			})
		},
	}
}

func newWorkerCommand(a *app) *cobra.Command {
	var stopTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Keep the namespace in sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.SyncEnabled() {
				return errNoAuthority
			}
			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			b, err := a.open(parent)
			if err != nil {
				return err
			}

			var notifications worker.Notifications
			var client *amqp.Client
			if a.cfg.AMQPURL != "" {
				client, err = amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.logger)
				if err != nil {
					_ = b.Close()
					return fmt.Errorf("connect to AMQP: %w", err)
				}
				notifications = client
			} else {
				a.logger.Warn("AMQP_URL not set, syncing on interval and local writes only")
			}

			config := worker.DefaultConfig()
			config.Sync = syncer.ProcessorConfig{
				Interval: a.cfg.SyncInterval,
				Debounce: a.cfg.SyncDebounce,
				Timeout:  a.cfg.SyncTimeout,
			}
			config.StopTimeout = stopTimeout

			w, err := worker.NewSyncWorker(b, notifications, config, a.logger)
			if err != nil {
				_ = b.Close()
				return err
			}

			ctx, done := cli.GracefulShutdown(parent, a.logger, stopTimeout, func(context.Context) {
				if client != nil {
					if err := client.Close(); err != nil {
						a.logger.Error("Failed to close AMQP client", log.FieldError, err)
					}
				}
				if err := b.Close(); err != nil {
					a.logger.Error("Failed to close backend", log.FieldError, err)
				}
			})

			runErr := w.Run(ctx)
			cancel()
			<-done
			return runErr
		},
	}

	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "how long shutdown may take")

	return cmd
}

func newQuarantineCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quarantine",
		Short: "List stored records that failed validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(_ context.Context, b *backend.Backend) error {
				for _, q := range b.Store.Quarantined() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", q.Type, q.ID, q.At.Format(time.RFC3339), q.Reason)
				}
				return nil
			})
		},
	}
}
