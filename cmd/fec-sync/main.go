package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/campfin/fec-sync/pkg/config"
	"github.com/campfin/fec-sync/pkg/fecclient"
	"github.com/campfin/fec-sync/pkg/logging"
	"github.com/campfin/fec-sync/pkg/store"
	fecsync "github.com/campfin/fec-sync/pkg/sync"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fec-sync",
		Short:         "fec-sync mirrors FEC campaign finance data into Postgres.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		migrateCmd(),
		runCmd(),
	)

	return cmd
}

// setup loads and validates configuration and installs the global logger.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	return cfg, logger, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			db, err := store.Open(cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}

			if err := store.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}

			logger.Info().Str("database", cfg.Database.Name).Msg("Schema migrated")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var cycle int
	var office string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full sync of candidates, committees, and contributions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cycle != 0 {
				cfg.Cycle = cycle
			}
			if office != "" {
				cfg.Office = office
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := store.Open(cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}

			clientCfg := fecclient.DefaultConfig(cfg.APIKey)
			clientCfg.BaseURL = cfg.BaseURL
			clientCfg.RequestInterval = cfg.RequestInterval

			if cfg.RedisAddr != "" {
				redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("connect to redis: %w", err)
				}
				clientCfg.Redis = redisClient
				logger.Info().Str("addr", cfg.RedisAddr).Msg("Page cache enabled")
			}

			client, err := fecclient.New(clientCfg)
			if err != nil {
				return err
			}

			loader := store.NewLoader(db, cfg.InsertChunkSize, cfg.UpsertChunkSize)

			pipeline := fecsync.New(client, loader, fecsync.Options{
				Cycle:      cfg.Cycle,
				Office:     cfg.Office,
				MinWorkers: cfg.MinWorkers,
				MaxWorkers: cfg.MaxWorkers,
			})

			logger.Info().Int("cycle", cfg.Cycle).Str("office", cfg.Office).Msg("Starting sync")

			report, err := pipeline.Run(ctx)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			logger.Info().
				Int("candidates", report.Candidates).
				Int("committees", report.Committees).
				Int("contributors", report.Contributors).
				Int("contributions", report.Contributions).
				Int("candidate_committees", report.CandidateCommittees).
				Int("dropped_no_contributor", report.DroppedNoContributor).
				Int("dropped_no_committee", report.DroppedNoCommittee).
				Int("duplicates_in_batch", report.DuplicateCHashInBatch).
				Int("failed_fetch_targets", report.FailedFetchTargets).
				Msg("Sync finished")

			return nil
		},
	}

	cmd.Flags().IntVar(&cycle, "cycle", 0, "two-year election cycle (overrides FEC_CYCLE)")
	cmd.Flags().StringVar(&office, "office", "", "candidate office filter (overrides FEC_OFFICE)")

	return cmd
}
