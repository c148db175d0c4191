package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forwardlock/internal/approval"
	"forwardlock/internal/chain"
	"forwardlock/internal/config"
	"forwardlock/internal/lock"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/storage"
	"forwardlock/internal/storage/postgres"
	"forwardlock/internal/token"
	"forwardlock/internal/trade"
	"forwardlock/internal/wallet"
	"forwardlock/internal/workflow"
)

// app is the wired runtime shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	client   *chain.Client
	chainID  int64
	registry *pool.Registry
	session  wallet.Session
	// nil without a private key
	transactor *chain.Transactor
	watcher    *chain.Watcher
	journal    storage.Storage
	locker     lock.Locker

	closers []func()
}

type setupOptions struct {
	// account is used as a watch-only address when no key is configured.
	account string
	journal bool
	locker  bool
}

func setup(ctx context.Context, cmd *cobra.Command, opts setupOptions) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("no pools configured")
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	client, err := chain.NewClient(ctx, chain.ClientConfig{
		RPCURL:       cfg.RPCURL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    cfg.RPCRateLimit,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		a.Close()
		return nil, fmt.Errorf("chain id mismatch: node %s, configured %d", chainID, cfg.ChainID)
	}
	a.chainID = chainID.Int64()

	pools, err := fillDecimals(ctx, client, cfg.Pools, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.registry, err = pool.NewRegistry(pools); err != nil {
		a.Close()
		return nil, err
	}

	watchCfg := chain.WatchConfig{PollInterval: cfg.ReceiptPoll, ReceiptTimeout: cfg.ReceiptTimeout}
	if cfg.PrivateKey != "" {
		w, err := wallet.FromHex(cfg.PrivateKey, a.chainID)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.transactor, err = chain.NewTransactor(ctx, client, w, cfg.ChainID, chain.TransactorConfig{WatchConfig: watchCfg}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.session = w
		a.watcher = a.transactor.Watcher
	} else {
		var addr common.Address
		if opts.account != "" {
			if !common.IsHexAddress(opts.account) {
				a.Close()
				return nil, model.InvalidInputf("invalid account %q", opts.account)
			}
			addr = common.HexToAddress(opts.account)
		}
		a.session = wallet.NewWatchOnly(addr, a.chainID)
		a.watcher = chain.NewWatcher(client, chainID, watchCfg, logger)
	}

	a.journal = storage.Discard{}
	if opts.journal {
		if err := a.openJournal(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.locker = lock.NewLocalLocker()
	if opts.locker && cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(ctx, lock.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.locker = lock.NewRedisLocker(rdb)
	}

	logger.Debug("forwardlock ready",
		zap.Int64("chain_id", a.chainID),
		zap.Int("pools", len(pools)),
		zap.Bool("signer", a.transactor != nil),
		zap.String("account", a.session.Address().Hex()),
	)
	return a, nil
}

func (a *app) openJournal(ctx context.Context) error {
	if a.cfg.PGDSN == "" {
		a.journal = storage.NewJsonlStorage(a.cfg.Journal)
		return nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.journal = store
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// submitter returns nil for a watch-only session.
func (a *app) submitter() chain.Submitter {
	if a.transactor == nil {
		return nil
	}
	return a.transactor
}

func (a *app) newWorkflow(autoApprove bool) (*workflow.Workflow, error) {
	submitter := a.submitter()
	return workflow.New(workflow.Config{
		ToleranceBps: a.cfg.ToleranceBps,
		QuoteTimeout: a.cfg.QuoteTimeout,
		QuoteTTL:     a.cfg.QuoteTTL,
		LockTTL:      a.cfg.LockTTL,
		AutoApprove:  autoApprove,
	}, workflow.Deps{
		Session:   a.session,
		Registry:  a.registry,
		Caller:    a.client,
		Reader:    pool.NewReader(a.client, a.logger),
		Previewer: pool.NewPreviewer(a.client, a.logger),
		Gate:      approval.NewGate(a.client, submitter, a.logger),
		Executor:  trade.NewExecutor(submitter, a.logger),
		Locker:    a.locker,
		Journal:   a.journal,
		Logger:    a.logger,
	})
}

// fillDecimals reads base token metadata for pools that do not configure it.
func fillDecimals(ctx context.Context, caller chain.Caller, pools []model.Pool, logger *zap.Logger) ([]model.Pool, error) {
	cache := token.NewMetaCache(caller, logger)
	out := make([]model.Pool, len(pools))
	for i, p := range pools {
		if p.BaseDecimals == 0 || p.BaseSymbol == "" {
			m, err := cache.Get(ctx, p.BaseToken)
			if err != nil {
				return nil, fmt.Errorf("pool %s: %w", p.Name, err)
			}
			if p.BaseDecimals == 0 {
				p.BaseDecimals = m.Decimals
			}
			if p.BaseSymbol == "" {
				p.BaseSymbol = m.Symbol
			}
		}
		if p.FYSymbol == "" && p.BaseSymbol != "" {
			p.FYSymbol = "fy" + p.BaseSymbol
		}
		out[i] = p
	}
	return out, nil
}
