package pool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
)

// Reader fetches reserve snapshots.
type Reader struct {
	caller chain.Caller
	logger *zap.Logger
	now    func() time.Time
}

// NewReader creates a reserve reader.
func NewReader(caller chain.Caller, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, logger: logger, now: time.Now}
}

// GetReserves reads the base balance, fyToken balance and base decimals of p
// concurrently. The three reads are not atomic.
func (r *Reader) GetReserves(ctx context.Context, p model.Pool) (model.Reserves, error) {
	poolABI, err := ABI()
	if err != nil {
		return model.Reserves{}, fmt.Errorf("parse pool abi: %w", err)
	}

	out := model.Reserves{Pool: p.Name}
	var decimals uint8

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := chain.Call(gctx, r.caller, p.Address, poolABI, "getBaseBalance")
		if err != nil {
			return err
		}
		out.BaseBalance, err = chain.AsBigInt(values[0])
		return err
	})
	g.Go(func() error {
		values, err := chain.Call(gctx, r.caller, p.Address, poolABI, "getFYTokenBalance")
		if err != nil {
			return err
		}
		out.FYTokenBalance, err = chain.AsBigInt(values[0])
		return err
	})
	g.Go(func() error {
		values, err := chain.Call(gctx, r.caller, p.Address, poolABI, "baseDecimals")
		if err != nil {
			return err
		}
		if decimals, err = chain.AsUint8(values[0]); err != nil {
			return fmt.Errorf("%w: baseDecimals: %w", model.ErrContractCall, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Reserves{}, fmt.Errorf("get reserves %s: %w", p.Name, err)
	}

	if p.BaseDecimals != 0 && decimals != p.BaseDecimals {
		return model.Reserves{}, fmt.Errorf("get reserves %s: %w: base decimals %d, configured %d",
			p.Name, model.ErrContractCall, decimals, p.BaseDecimals)
	}
	out.BaseDecimals = decimals
	out.FetchedAt = r.now()

	r.logger.Debug("reserves fetched",
		zap.String("pool", p.Name),
		zap.String("base", out.BaseBalance.String()),
		zap.String("fy_token", out.FYTokenBalance.String()),
	)
	return out, nil
}
