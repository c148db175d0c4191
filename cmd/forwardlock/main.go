package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "forwardlock",
		Short:        "Quote and lock fixed forward rates on YieldSpace pools",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "JSON-RPC URL")
	flags.Int64("chain-id", 0, "expected chain id, 0 accepts the node's")
	flags.Int("tolerance-bps", 50, "slippage tolerance in basis points")
	flags.Duration("quote-timeout", 10*time.Second, "timeout for a single quote refresh")
	flags.Duration("quote-ttl", 30*time.Second, "maximum quote age at execution")
	flags.Duration("receipt-timeout", 2*time.Minute, "how long to wait for a receipt")
	flags.Duration("receipt-poll", 2*time.Second, "receipt polling interval")
	flags.Int("max-retries", 3, "maximum retry attempts for reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Float64("rpc-rate-limit", 0, "maximum RPC requests per second, 0 disables")
	flags.String("journal", "./data/trades.jsonl", "trade journal JSONL path")
	flags.String("pg-dsn", "", "Postgres DSN for the trade journal")
	flags.String("redis-addr", "", "Redis address for the account lock")
	flags.Duration("lock-ttl", 5*time.Minute, "account lock expiry")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPoolsCmd(),
		newBalanceCmd(),
		newQuoteCmd(),
		newApproveCmd(),
		newLockCmd(),
		newUnwindCmd(),
		newStatusCmd(),
		newHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}
