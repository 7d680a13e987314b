package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/authority"
	"ledger/internal/buildinfo"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
)

// NewAuthorityCommand creates the root command of the authority server.
func NewAuthorityCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "ledger-authority",
		Short:   "Sync authority for ledger devices",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateAuthority(); err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cli.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.AddCommand(newServeCommand(a), newTokenCommand(a))

	return rootCmd
}

func newTokenCommand(a *app) *cobra.Command {
	var namespace, device string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a device token for a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := authority.NewAuthenticator(a.cfg.AuthorityJWTSecret).IssueToken(namespace, device, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "namespace the token grants access to")
	_ = cmd.MarkFlagRequired("namespace")
	cmd.Flags().StringVar(&device, "device", "", "device name recorded as the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; 0 never expires")

	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	var requestsPerMinute int
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			logger := a.logger

			repo, err := openRepository(parent, a.cfg, logger)
			if err != nil {
				return err
			}

			opts := []authority.Option{authority.WithLogger(logger)}
			var notifier *amqp.Client
			if a.cfg.AMQPURL != "" {
				notifier, err = amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, logger)
				if err != nil {
					_ = repo.Close()
					return fmt.Errorf("connect to AMQP: %w", err)
				}
				opts = append(opts, authority.WithNotifier(notifier))
			}

			clientIP, err := security.NewClientIP(security.DefaultTrustedProxies...)
			if err != nil {
				_ = repo.Close()
				return err
			}
			limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: requestsPerMinute})

			svc := authority.NewService(repo, opts...)
			router := authority.NewRouter(svc, authority.NewAuthenticator(a.cfg.AuthorityJWTSecret), logger,
				authority.RouterOptions{Limiter: limiter, ClientIP: clientIP})

			srv := &http.Server{
				Addr:              a.cfg.AuthorityAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			ctx, done := cli.GracefulShutdown(parent, logger, shutdownTimeout, func(context.Context) {
				limiter.Stop()
				if notifier != nil {
					if err := notifier.Close(); err != nil {
						logger.Error("Failed to close AMQP client", log.FieldError, err)
					}
				}
				if err := repo.Close(); err != nil {
					logger.Error("Failed to close repository", log.FieldError, err)
				}
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("Authority listening",
					log.FieldOperation, log.OpStartup,
					"addr", srv.Addr,
					"notifications", notifier != nil)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancelShutdown()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			cancel()
			<-done
			return err
		},
	}

	cmd.Flags().IntVar(&requestsPerMinute, "rate-limit", ratelimit.DefaultConfig().RequestsPerMinute, "requests per minute allowed per client")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long shutdown may take")

	return cmd
}

func openRepository(ctx context.Context, cfg *config.Config, logger *log.Logger) (authority.Repository, error) {
	if cfg.AuthorityDatabaseURL == "" {
		logger.Warn("AUTHORITY_DATABASE_URL not set, records are kept in memory only")
		return authority.NewMemoryRepository(), nil
	}
	repo, err := authority.NewPGRepository(ctx, cfg.AuthorityDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open authority database: %w", err)
	}
	logger.Info("Connected to authority database")
	return repo, nil
}
