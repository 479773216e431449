package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/practice-server/internal/app"
	"github.com/isdelr/practice-server/internal/config"
	"github.com/isdelr/practice-server/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	// Load configuration; flags override the environment.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cmd := &cobra.Command{
		Use:           "practice-server",
		Short:         "Mock REST back-end for practicing front-end CRUD apps",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	flags.StringVar(&cfg.IdentityField, "identity", cfg.IdentityField, "user field used to log in")
	flags.StringVar(&cfg.SeedDir, "seed-dir", cfg.SeedDir, "directory of <collection>.json files replacing the built-in data")
	flags.StringVar(&cfg.RulesFile, "rules", cfg.RulesFile, "YAML or JSON access rules replacing the built-in rules")
	flags.StringVar(&cfg.JSONStoreDir, "jsonstore-dir", cfg.JSONStoreDir, "directory of *.json files seeding /jsonstore")
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite path for the audit log")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace|debug|info|warn|error)")
	flags.StringVar(&cfg.PasswordHash, "password-hash", cfg.PasswordHash, "password hashing for new users (hmac|bcrypt)")
	flags.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "session lifetime, 0 keeps sessions forever")
	flags.StringVar(&cfg.SessionSweep, "session-sweep", cfg.SessionSweep, "cron schedule for purging expired sessions")
	flags.BoolVar(&cfg.Throttle, "throttle", cfg.Throttle, "start with response throttling enabled")

	return cmd
}

func run(cfg *config.Config) error {
	logger.Init(cfg.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	a.Start()

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.Router,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msgf("Server started on port %d. You can make requests to http://localhost:%d/", cfg.Port, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		a.Stop()
		return fmt.Errorf("ListenAndServe(): %w", err)
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	a.Stop()

	log.Info().Msg("Server exiting")
	return nil
}
