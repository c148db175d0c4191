// Package approval tracks whether the pool may spend the owner's base token
// and grants an unbounded allowance when it may not.
package approval

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
	"forwardlock/internal/token"
)

// State is the gate's view of the allowance.
type State int

const (
	Unknown State = iota
	Checking
	Sufficient
	Insufficient
	Approving
	Confirming
	Failed
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Checking:
		return "checking"
	case Sufficient:
		return "sufficient"
	case Insufficient:
		return "insufficient"
	case Approving:
		return "approving"
	case Confirming:
		return "confirming"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Needs reports whether current is below amount.
func Needs(current, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	if current == nil {
		return true
	}
	return current.Cmp(amount) < 0
}

// Gate reads allowances and submits approvals. It never retries a failed
// approval.
type Gate struct {
	caller    chain.Caller
	submitter chain.Submitter
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	allowance model.Allowance
}

// NewGate creates a gate. submitter may be nil for read-only use.
func NewGate(caller chain.Caller, submitter chain.Submitter, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{caller: caller, submitter: submitter, logger: logger, now: time.Now}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Allowance returns the last allowance read or granted.
func (g *Gate) Allowance() model.Allowance {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowance
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	prev := g.state
	g.state = s
	g.mu.Unlock()
	if prev != s {
		g.logger.Debug("approval state", zap.String("from", prev.String()), zap.String("to", s.String()))
	}
}

// NeedsApproval reads the current allowance and reports whether it is below
// amount. The allowance is always re-read.
func (g *Gate) NeedsApproval(ctx context.Context, tokenAddr, owner, spender common.Address, amount model.Amount) (bool, error) {
	if g.inFlight() {
		return false, model.ErrMutationInFlight
	}
	g.setState(Checking)
	current, err := token.Allowance(ctx, g.caller, tokenAddr, owner, spender)
	if err != nil {
		g.setState(Unknown)
		return false, fmt.Errorf("check allowance: %w", err)
	}

	needs := Needs(current, amount.Value)
	g.mu.Lock()
	g.allowance = model.Allowance{
		Owner:            owner.Hex(),
		Spender:          spender.Hex(),
		Token:            tokenAddr.Hex(),
		CurrentAllowance: model.NewAmount(current, amount.Decimals),
	}
	g.mu.Unlock()

	if needs {
		g.setState(Insufficient)
	} else {
		g.setState(Sufficient)
	}
	return needs, nil
}

func (g *Gate) inFlight() bool {
	s := g.State()
	return s == Approving || s == Confirming
}

// claim moves the gate to Approving unless an approval is already in flight.
func (g *Gate) claim() bool {
	g.mu.Lock()
	prev := g.state
	if prev == Approving || prev == Confirming {
		g.mu.Unlock()
		return false
	}
	g.state = Approving
	g.mu.Unlock()
	g.logger.Debug("approval state", zap.String("from", prev.String()), zap.String("to", Approving.String()))
	return true
}

// Approve grants spender an unbounded allowance over tokenAddr and waits for
// the receipt. An allowance that is already unbounded is left alone and a
// zero record is returned.
func (g *Gate) Approve(ctx context.Context, tokenAddr, spender common.Address, decimals uint8) (model.TransactionRecord, error) {
	if g.submitter == nil {
		return model.TransactionRecord{}, model.ErrNotConnected
	}
	if !g.claim() {
		return model.TransactionRecord{}, model.ErrMutationInFlight
	}
	owner := g.submitter.From()

	current, err := token.Allowance(ctx, g.caller, tokenAddr, owner, spender)
	if err != nil {
		g.setState(Unknown)
		return model.TransactionRecord{}, fmt.Errorf("check allowance: %w", err)
	}
	if token.IsUnbounded(current) {
		g.granted(tokenAddr, owner, spender, decimals)
		return model.TransactionRecord{}, nil
	}

	data, err := token.PackApprove(spender, token.MaxAllowance())
	if err != nil {
		g.setState(Unknown)
		return model.TransactionRecord{}, err
	}

	hash, err := g.submitter.Send(ctx, tokenAddr, data)
	if err != nil {
		rec := model.TransactionRecord{Status: model.TxFailed, UpdatedAt: g.now()}
		if reason, ok := chain.RevertReasonFromError(err); ok {
			rec.ErrorDetail = reason
			g.setState(Failed)
			return rec, &model.TxError{Kind: model.ErrTransactionFailed, Record: rec}
		}
		// Not broadcast; the previous allowance still stands.
		g.setState(Insufficient)
		return model.TransactionRecord{}, fmt.Errorf("submit approve: %w", err)
	}

	rec := model.NewTransactionRecord(hash, g.now())
	g.logger.Info("approval submitted",
		zap.String("tx", hash.Hex()),
		zap.String("token", tokenAddr.Hex()),
		zap.String("spender", spender.Hex()),
	)

	if err := rec.Advance(model.TxConfirming, g.now()); err != nil {
		return rec, err
	}
	g.setState(Confirming)

	receipt, err := g.submitter.WaitForReceipt(ctx, hash)
	if err != nil {
		// Outcome unknown; the next check re-reads the chain.
		g.setState(Unknown)
		g.logger.Warn("approval confirmation abandoned", zap.String("tx", hash.Hex()), zap.Error(err))
		return rec, fmt.Errorf("await approve: %w", err)
	}
	rec.BlockNumber = receipt.BlockNumber

	if !receipt.Succeeded {
		_ = rec.Fail(receipt.RevertReason, g.now())
		g.setState(Failed)
		g.logger.Info("approval failed", zap.String("tx", hash.Hex()), zap.String("reason", receipt.RevertReason))
		return rec, &model.TxError{Kind: model.ErrTransactionFailed, Record: rec}
	}

	if err := rec.Advance(model.TxConfirmed, g.now()); err != nil {
		return rec, err
	}
	g.granted(tokenAddr, owner, spender, decimals)
	g.logger.Info("approval confirmed", zap.String("tx", hash.Hex()), zap.Uint64("block", rec.BlockNumber))
	return rec, nil
}

func (g *Gate) granted(tokenAddr, owner, spender common.Address, decimals uint8) {
	g.mu.Lock()
	g.allowance = model.Allowance{
		Owner:            owner.Hex(),
		Spender:          spender.Hex(),
		Token:            tokenAddr.Hex(),
		CurrentAllowance: model.NewAmount(token.MaxAllowance(), decimals),
	}
	g.mu.Unlock()
	g.setState(Sufficient)
}
