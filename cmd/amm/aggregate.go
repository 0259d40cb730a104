package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/aggregate"
	"cpamm/internal/config"
	"cpamm/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	switch {
	case cfg.Input == "":
		return fmt.Errorf("input path is required")
	case cfg.PGDSN == "":
		return fmt.Errorf("pg dsn is required")
	}

	windowSeconds, err := cfg.WindowSeconds()
	if err != nil {
		return err
	}
	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	// progress lives next to the metrics unless a local file is asked for
	var progress aggregate.StateStore = &aggregate.DBStateStore{Store: store, WindowSeconds: windowSeconds}
	if cfg.StateFile != "" {
		progress = &aggregate.FileStateStore{Path: cfg.StateFile, WindowSeconds: windowSeconds}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    progress,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}, store, logger)

	logger.Info("aggregate start",
		zap.String("in", cfg.Input),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Uint64("recompute_from", recomputeFrom),
		zap.Bool("local_state", cfg.StateFile != ""),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	return agg.Run(ctx, cfg.Input)
}
