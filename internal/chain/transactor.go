package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"forwardlock/internal/model"
)

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	TxHash       common.Hash
	Succeeded    bool
	BlockNumber  uint64
	Logs         []types.Log
	RevertReason string
}

// Submitter broadcasts state-changing calls and waits for their receipts.
type Submitter interface {
	From() common.Address
	// Send signs and broadcasts a call to to. A transaction that would
	// revert is rejected with *RevertError before broadcast.
	Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (Receipt, error)
}

// Signer signs transactions for a single account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// WatchConfig controls receipt polling.
type WatchConfig struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// Watcher polls for receipts of already broadcast transactions.
type Watcher struct {
	client  *Client
	chainID *big.Int
	cfg     WatchConfig
	logger  *zap.Logger
}

// NewWatcher creates a receipt watcher.
func NewWatcher(client *Client, chainID *big.Int, cfg WatchConfig, logger *zap.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{client: client, chainID: chainID, cfg: cfg, logger: logger}
}

// WaitForReceipt polls until the transaction is mined or the receipt timeout
// elapses. A failed receipt carries the revert reason replayed at its block.
func (w *Watcher) WaitForReceipt(ctx context.Context, hash common.Hash) (Receipt, error) {
	if w.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.ReceiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return w.toReceipt(ctx, receipt), nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
		default:
			w.logger.Warn("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return Receipt{TxHash: hash}, fmt.Errorf("%w: %s", model.ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

// Lookup returns the receipt of a mined transaction without waiting. The
// second return is false while the transaction is still pending or unknown.
func (w *Watcher) Lookup(ctx context.Context, hash common.Hash) (Receipt, bool, error) {
	receipt, err := w.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return Receipt{TxHash: hash}, false, nil
	}
	if err != nil {
		return Receipt{TxHash: hash}, false, fmt.Errorf("get receipt: %w: %w", Classify(err), err)
	}
	return w.toReceipt(ctx, receipt), true, nil
}

func (w *Watcher) toReceipt(ctx context.Context, receipt *types.Receipt) Receipt {
	out := Receipt{
		TxHash:    receipt.TxHash,
		Succeeded: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	for _, lg := range receipt.Logs {
		if lg != nil {
			out.Logs = append(out.Logs, *lg)
		}
	}
	if !out.Succeeded {
		out.RevertReason = w.replay(ctx, receipt)
	}
	return out
}

// replay re-executes a failed transaction at its block to recover the reason.
func (w *Watcher) replay(ctx context.Context, receipt *types.Receipt) string {
	tx, _, err := w.client.TransactionByHash(ctx, receipt.TxHash)
	if err != nil {
		w.logger.Debug("replay lookup failed", zap.String("tx", receipt.TxHash.Hex()), zap.Error(err))
		return ""
	}
	msg := ethereum.CallMsg{
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	if w.chainID != nil {
		if from, err := types.Sender(types.LatestSignerForChainID(w.chainID), tx); err == nil {
			msg.From = from
		}
	}
	_, err = w.client.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	reason, _ := RevertReasonFromError(err)
	return reason
}

// TransactorConfig controls transaction construction.
type TransactorConfig struct {
	WatchConfig
	// GasBufferPct is added on top of the gas estimate.
	GasBufferPct uint64
}

// Transactor signs and broadcasts transactions from one account.
type Transactor struct {
	*Watcher

	client *Client
	signer Signer
	cfg    TransactorConfig

	// serializes nonce allocation
	mu sync.Mutex
}

// NewTransactor creates a transactor bound to the node's chain ID. A non-zero
// expectedChainID must match the node.
func NewTransactor(ctx context.Context, client *Client, signer Signer, expectedChainID int64, cfg TransactorConfig, logger *zap.Logger) (*Transactor, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if signer == nil {
		return nil, model.ErrNotConnected
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w: %w", Classify(err), err)
	}
	if expectedChainID != 0 && chainID.Int64() != expectedChainID {
		return nil, fmt.Errorf("chain id mismatch: node %s, configured %d", chainID, expectedChainID)
	}
	if cfg.GasBufferPct == 0 {
		cfg.GasBufferPct = 20
	}
	return &Transactor{
		Watcher: NewWatcher(client, chainID, cfg.WatchConfig, logger),
		client:  client,
		signer:  signer,
		cfg:     cfg,
	}, nil
}

// From returns the signing account.
func (t *Transactor) From() common.Address {
	return t.signer.Address()
}

// Send builds, signs and broadcasts a transaction calling to with data.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}

	gas, err := t.client.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := RevertReasonFromError(err); ok {
			return common.Hash{}, &RevertError{Reason: reason}
		}
		return common.Hash{}, fmt.Errorf("estimate gas: %w: %w", Classify(err), err)
	}
	gasLimit := gas * (100 + t.cfg.GasBufferPct) / 100

	nonce, err := t.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w: %w", Classify(err), err)
	}

	tx, err := t.buildTx(ctx, nonce, to, gasLimit, data)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := t.signer.SignTx(tx, t.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		if reason, ok := RevertReasonFromError(err); ok {
			return common.Hash{}, &RevertError{Reason: reason}
		}
		return common.Hash{}, fmt.Errorf("send transaction: %w: %w", Classify(err), err)
	}

	t.logger.Info("transaction sent",
		zap.String("tx", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit),
	)
	return signed.Hash(), nil
}

func (t *Transactor) buildTx(ctx context.Context, nonce uint64, to common.Address, gasLimit uint64, data []byte) (*types.Transaction, error) {
	header, err := t.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get head: %w: %w", Classify(err), err)
	}

	if header.BaseFee != nil {
		tip, err := t.client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest tip: %w: %w", Classify(err), err)
		}
		feeCap := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   t.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &to,
			Data:      data,
		}), nil
	}

	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w: %w", Classify(err), err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Data:     data,
	}), nil
}
