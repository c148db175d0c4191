// Package history scans pool Trade events for the trades an account received.
package history

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"forwardlock/internal/model"
	"forwardlock/internal/pool"
)

// LogSource is the chain access a scan needs.
type LogSource interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// ScanConfig holds the block window of a scan.
type ScanConfig struct {
	FromBlock uint64
	// ToBlock of zero means latest.
	ToBlock   uint64
	BatchSize uint64
	ChainID   int64
}

// Fill is one Trade event paid out to the scanned account.
type Fill struct {
	Pool         string
	PoolAddress  common.Address
	TxHash       common.Hash
	BlockNumber  uint64
	LogIndex     uint
	Time         time.Time
	Maturity     uint32
	BaseDelta    *big.Int
	FYTokenDelta *big.Int
}

// Scanner walks block ranges and decodes Trade logs.
type Scanner struct {
	cfg     ScanConfig
	source  LogSource
	cursors *CursorStore
	logger  *zap.Logger
	seen    map[string]struct{}
}

// NewScanner builds a Scanner. A nil cursors store always scans from
// cfg.FromBlock.
func NewScanner(cfg ScanConfig, source LogSource, cursors *CursorStore, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cfg:     cfg,
		source:  source,
		cursors: cursors,
		logger:  logger,
		seen:    make(map[string]struct{}),
	}
}

// Scan emits the Trade events whose recipient is account, batch by batch and
// oldest first. The cursor is advanced after each emitted batch.
func (s *Scanner) Scan(ctx context.Context, pools []model.Pool, account common.Address, emit func([]Fill) error) error {
	if s.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if len(pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}
	if s.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	poolABI, err := pool.ABI()
	if err != nil {
		return fmt.Errorf("parse pool abi: %w", err)
	}
	names := make(map[common.Address]string, len(pools))
	addresses := make([]common.Address, 0, len(pools))
	for _, p := range pools {
		names[p.Address] = p.Name
		addresses = append(addresses, p.Address)
	}

	from, to := s.cfg.FromBlock, s.cfg.ToBlock
	if to == 0 {
		latest, err := s.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cur, ok, err := s.cursors.Load(s.cfg.ChainID, account)
	if err != nil {
		return err
	}
	if ok && cur.LastScannedBlock >= from {
		from = cur.LastScannedBlock + 1
		s.logger.Info("resume from cursor", zap.Uint64("last_scanned", cur.LastScannedBlock), zap.Uint64("from", from))
	}
	if from > to {
		s.logger.Info("nothing to scan", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	topics := [][]common.Hash{
		{poolABI.Events["Trade"].ID},
		nil,
		{common.BytesToHash(account.Bytes())},
	}
	for _, br := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.logger.Debug("fetch trades", zap.Uint64("from", br.From), zap.Uint64("to", br.To))
		logs, err := s.source.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(br.From),
			ToBlock:   new(big.Int).SetUint64(br.To),
			Addresses: addresses,
			Topics:    topics,
		})
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", br.From, br.To, err)
		}

		fills := make([]Fill, 0, len(logs))
		for _, lg := range logs {
			if lg.Removed || s.isDuplicate(lg) {
				continue
			}
			ev, err := pool.DecodeTrade(lg)
			if err != nil {
				s.logger.Warn("skip undecodable trade log",
					zap.String("tx", lg.TxHash.Hex()),
					zap.Uint("index", lg.Index),
					zap.Error(err),
				)
				continue
			}
			ts, err := s.source.BlockTimestamp(ctx, lg.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", lg.BlockNumber, err)
			}
			fills = append(fills, Fill{
				Pool:         names[lg.Address],
				PoolAddress:  lg.Address,
				TxHash:       lg.TxHash,
				BlockNumber:  lg.BlockNumber,
				LogIndex:     lg.Index,
				Time:         time.Unix(int64(ts), 0).UTC(),
				Maturity:     ev.Maturity,
				BaseDelta:    ev.BaseDelta,
				FYTokenDelta: ev.FYTokenDelta,
			})
		}

		if len(fills) > 0 {
			if err := emit(fills); err != nil {
				return err
			}
		}
		if err := s.cursors.Save(s.cfg.ChainID, account, br.To); err != nil {
			return err
		}
		s.logger.Debug("batch complete", zap.Int("trades", len(fills)), zap.Uint64("from", br.From), zap.Uint64("to", br.To))
	}
	return nil
}

func (s *Scanner) isDuplicate(lg types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", lg.BlockNumber, lg.TxHash.Hex(), lg.Index)
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}
