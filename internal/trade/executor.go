// Package trade submits sellBase and buyBase transactions and follows them to
// a terminal state.
package trade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
)

// slippageMarkers are lowercase fragments of pool reverts caused by the
// minimum-output or maximum-input check. Balance and allowance reverts must not
// match.
var slippageMarkers = []string{
	"too little",
	"too much",
	"slippage",
	"not enough fytoken obtained",
	"not enough base obtained",
}

// ClassifyRevert maps a revert reason to ErrSlippageExceeded or
// ErrTransactionFailed.
func ClassifyRevert(reason string) error {
	lower := strings.ToLower(reason)
	for _, marker := range slippageMarkers {
		if strings.Contains(lower, marker) {
			return model.ErrSlippageExceeded
		}
	}
	return model.ErrTransactionFailed
}

// Executor submits trades. It never retries.
type Executor struct {
	submitter chain.Submitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewExecutor creates an executor.
func NewExecutor(submitter chain.Submitter, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{submitter: submitter, logger: logger, now: time.Now}
}

func validate(intent model.TradeIntent) error {
	if intent.Kind != model.SellBaseTrade {
		return model.InvalidInputf("intent %s is a %s, not a sell-base", intent.ID, intent.Kind)
	}
	if !intent.InputAmount.IsPositive() {
		return model.InvalidInputf("input amount must be positive")
	}
	if intent.MinimumAcceptableOutput.Value == nil || intent.MinimumAcceptableOutput.Value.Sign() < 0 {
		return model.InvalidInputf("minimum output is not set")
	}
	if intent.ExpectedOutputAmount.Value != nil &&
		intent.MinimumAcceptableOutput.Value.Cmp(intent.ExpectedOutputAmount.Value) > 0 {
		return model.InvalidInputf("minimum output %s exceeds expected %s",
			intent.MinimumAcceptableOutput, intent.ExpectedOutputAmount)
	}
	return nil
}

func validateBuy(intent model.TradeIntent) error {
	if intent.Kind != model.BuyBaseTrade {
		return model.InvalidInputf("intent %s is a %s, not a buy-base", intent.ID, intent.Kind)
	}
	if !intent.ExpectedOutputAmount.IsPositive() {
		return model.InvalidInputf("base output must be positive")
	}
	if !intent.MaximumAcceptableInput.IsPositive() {
		return model.InvalidInputf("maximum input is not set")
	}
	if intent.InputAmount.Value != nil &&
		intent.MaximumAcceptableInput.Value.Cmp(intent.InputAmount.Value) < 0 {
		return model.InvalidInputf("maximum input %s below expected %s",
			intent.MaximumAcceptableInput, intent.InputAmount)
	}
	return nil
}

// SellBase broadcasts sellBase(recipient, min) on the intent's pool. The
// returned record is Submitted. A call the node rejects as reverting is
// returned as a Failed record with a *model.TxError and nothing broadcast.
func (e *Executor) SellBase(ctx context.Context, intent model.TradeIntent) (model.TransactionRecord, error) {
	if e.submitter == nil {
		return model.TransactionRecord{}, model.ErrNotConnected
	}
	if err := validate(intent); err != nil {
		return model.TransactionRecord{}, err
	}

	data, err := pool.PackSellBase(intent.Recipient, intent.MinimumAcceptableOutput.Int())
	if err != nil {
		return model.TransactionRecord{}, err
	}
	return e.submit(ctx, intent, data,
		zap.String("input", intent.InputAmount.String()),
		zap.String("min_output", intent.MinimumAcceptableOutput.String()),
	)
}

// BuyBase broadcasts buyBase(recipient, baseOut, max) on the intent's pool,
// spending at most MaximumAcceptableInput of fyToken. Failures are reported as
// for SellBase.
func (e *Executor) BuyBase(ctx context.Context, intent model.TradeIntent) (model.TransactionRecord, error) {
	if e.submitter == nil {
		return model.TransactionRecord{}, model.ErrNotConnected
	}
	if err := validateBuy(intent); err != nil {
		return model.TransactionRecord{}, err
	}

	data, err := pool.PackBuyBase(intent.Recipient, intent.ExpectedOutputAmount.Int(), intent.MaximumAcceptableInput.Int())
	if err != nil {
		return model.TransactionRecord{}, err
	}
	return e.submit(ctx, intent, data,
		zap.String("base_out", intent.ExpectedOutputAmount.String()),
		zap.String("max_input", intent.MaximumAcceptableInput.String()),
	)
}

func (e *Executor) submit(ctx context.Context, intent model.TradeIntent, data []byte, fields ...zap.Field) (model.TransactionRecord, error) {
	hash, err := e.submitter.Send(ctx, intent.Pool.Address, data)
	if err != nil {
		if reason, ok := chain.RevertReasonFromError(err); ok {
			rec := model.TransactionRecord{Status: model.TxFailed, ErrorDetail: reason, UpdatedAt: e.now()}
			e.logger.Info("trade rejected before broadcast",
				zap.String("trade_id", intent.ID),
				zap.String("kind", intent.Kind.String()),
				zap.String("pool", intent.Pool.Name),
				zap.String("reason", reason),
			)
			return rec, &model.TxError{Kind: ClassifyRevert(reason), Record: rec}
		}
		return model.TransactionRecord{}, fmt.Errorf("submit %s: %w", intent.Kind, err)
	}

	e.logger.Info("trade submitted", append([]zap.Field{
		zap.String("trade_id", intent.ID),
		zap.String("kind", intent.Kind.String()),
		zap.String("pool", intent.Pool.Name),
		zap.String("tx", hash.Hex()),
	}, fields...)...)
	return model.NewTransactionRecord(hash, e.now()), nil
}

// Await moves rec to Confirming and waits for the receipt. If waiting is
// abandoned the record is returned still Confirming together with the error.
func (e *Executor) Await(ctx context.Context, intent model.TradeIntent, rec model.TransactionRecord) (model.TransactionRecord, error) {
	if e.submitter == nil {
		return rec, model.ErrNotConnected
	}
	if err := rec.Advance(model.TxConfirming, e.now()); err != nil {
		return rec, err
	}

	receipt, err := e.submitter.WaitForReceipt(ctx, rec.Hash)
	if err != nil {
		e.logger.Warn("trade confirmation abandoned",
			zap.String("trade_id", intent.ID),
			zap.String("tx", rec.Hash.Hex()),
			zap.Error(err),
		)
		return rec, fmt.Errorf("await %s: %w", intent.Kind, err)
	}
	return e.settle(intent, rec, receipt)
}

// Settle applies an already mined receipt to rec.
func (e *Executor) Settle(intent model.TradeIntent, rec model.TransactionRecord, receipt chain.Receipt) (model.TransactionRecord, error) {
	if !rec.Status.Terminal() && rec.Status < model.TxConfirming {
		if err := rec.Advance(model.TxConfirming, e.now()); err != nil {
			return rec, err
		}
	}
	return e.settle(intent, rec, receipt)
}

func (e *Executor) settle(intent model.TradeIntent, rec model.TransactionRecord, receipt chain.Receipt) (model.TransactionRecord, error) {
	rec.BlockNumber = receipt.BlockNumber

	if !receipt.Succeeded {
		reason := receipt.RevertReason
		if err := rec.Fail(reason, e.now()); err != nil {
			return rec, err
		}
		kind := ClassifyRevert(reason)
		e.logger.Info("trade failed",
			zap.String("trade_id", intent.ID),
			zap.String("tx", rec.Hash.Hex()),
			zap.String("reason", reason),
		)
		return rec, &model.TxError{Kind: kind, Record: rec}
	}

	if err := rec.Advance(model.TxConfirmed, e.now()); err != nil {
		return rec, err
	}
	if ev, ok := pool.FindTrade(receipt.Logs, intent.Pool.Address, intent.Recipient); ok {
		if intent.Kind == model.BuyBaseTrade {
			e.realizeBuy(intent, &rec, ev)
		} else {
			e.realizeSell(intent, &rec, ev)
		}
	}

	e.logger.Info("trade confirmed",
		zap.String("trade_id", intent.ID),
		zap.String("tx", rec.Hash.Hex()),
		zap.Uint64("block", rec.BlockNumber),
	)
	return rec, nil
}

func (e *Executor) realizeSell(intent model.TradeIntent, rec *model.TransactionRecord, ev pool.TradeEvent) {
	realized := model.NewAmount(ev.FYTokenOut(), intent.MinimumAcceptableOutput.Decimals)
	rec.RealizedOutput = &realized
	if realized.Value.Cmp(intent.MinimumAcceptableOutput.Int()) < 0 {
		e.logger.Error("realized output below minimum",
			zap.String("trade_id", intent.ID),
			zap.String("tx", rec.Hash.Hex()),
			zap.String("realized", realized.String()),
			zap.String("min_output", intent.MinimumAcceptableOutput.String()),
		)
	}
}

func (e *Executor) realizeBuy(intent model.TradeIntent, rec *model.TransactionRecord, ev pool.TradeEvent) {
	realized := model.NewAmount(ev.BaseOut(), intent.ExpectedOutputAmount.Decimals)
	rec.RealizedOutput = &realized
	paid := ev.FYTokenIn()
	if paid.Cmp(intent.MaximumAcceptableInput.Int()) > 0 {
		e.logger.Error("realized input above maximum",
			zap.String("trade_id", intent.ID),
			zap.String("tx", rec.Hash.Hex()),
			zap.String("paid", paid.String()),
			zap.String("max_input", intent.MaximumAcceptableInput.String()),
		)
	}
}
