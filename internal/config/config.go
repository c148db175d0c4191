package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"forwardlock/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	Pools          []model.Pool
	ToleranceBps   uint32
	QuoteTimeout   time.Duration
	QuoteTTL       time.Duration
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	RPCRateLimit   float64
	Journal        string
	PGDSN          string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LockTTL        time.Duration
	LogLevel       string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FXLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("tolerance-bps", 50)
	v.SetDefault("quote-timeout", 10*time.Second)
	v.SetDefault("quote-ttl", 30*time.Second)
	v.SetDefault("receipt-timeout", 2*time.Minute)
	v.SetDefault("receipt-poll", 2*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rpc-rate-limit", 0.0)
	v.SetDefault("journal", "./data/trades.jsonl")
	v.SetDefault("redis-db", 0)
	v.SetDefault("lock-ttl", 5*time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var poolCfgs []PoolConfig
	if err := v.UnmarshalKey("pools", &poolCfgs); err != nil {
		return Config{}, fmt.Errorf("decode pools: %w", err)
	}
	pools, err := ParsePools(poolCfgs)
	if err != nil {
		return Config{}, err
	}

	tolerance := v.GetInt("tolerance-bps")
	if tolerance < 0 || tolerance >= 10000 {
		return Config{}, fmt.Errorf("tolerance-bps %d out of range [0, 10000)", tolerance)
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		ChainID:        v.GetInt64("chain-id"),
		PrivateKey:     v.GetString("private-key"),
		Pools:          pools,
		ToleranceBps:   uint32(tolerance),
		QuoteTimeout:   v.GetDuration("quote-timeout"),
		QuoteTTL:       v.GetDuration("quote-ttl"),
		ReceiptTimeout: v.GetDuration("receipt-timeout"),
		ReceiptPoll:    v.GetDuration("receipt-poll"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		RPCRateLimit:   v.GetFloat64("rpc-rate-limit"),
		Journal:        v.GetString("journal"),
		PGDSN:          v.GetString("pg-dsn"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		LockTTL:        v.GetDuration("lock-ttl"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}
