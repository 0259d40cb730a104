package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "amm",
		Short:        "Constant-product AMM pool replay and reporting",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an instruction journal against fresh or checkpointed pools",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input instructions JSONL")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output events JSONL")
	replayCmd.Flags().String("errors", "./data/instruction_errors.jsonl", "rejected instructions JSONL")
	replayCmd.Flags().Uint64("from", 0, "first instruction seq (inclusive), 0 means the first in the journal")
	replayCmd.Flags().Uint64("to", 0, "last instruction seq (inclusive), 0 means the last in the journal")
	replayCmd.Flags().Uint64("batch-size", 500, "instructions per batch")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().String("state-file", "./data/state.json", "pool and ledger snapshot path")
	replayCmd.Flags().Bool("stop-on-error", false, "stop at the first rejected instruction")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and pools")
	replayCmd.Flags().Bool("migrate", false, "apply Postgres migrations before writing")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts for sink writes")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate pool events into fee and volume window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().Bool("migrate", false, "apply Postgres migrations before writing")
	aggregateCmd.Flags().Int("max-retries", 5, "maximum retry attempts for DB writes")
	aggregateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview swaps and liquidity changes from a replay snapshot",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("state-file", "./data/state.json", "snapshot written by replay")
	quoteCmd.Flags().StringSlice("pool", nil, "pool ids (comma-separated), empty means all")
	quoteCmd.Flags().Uint64("amount", 0, "swap input amount")
	quoteCmd.Flags().String("direction", "x-to-y", "swap direction (x-to-y, y-to-x)")
	quoteCmd.Flags().Uint64("lp", 0, "lp amount to price a deposit and a withdrawal")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
