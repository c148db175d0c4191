package pool

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
)

// Side selects one of the pool's pricing functions.
type Side int

const (
	// SellBase: base in, fyToken out.
	SellBase Side = iota
	// BuyBase: base out, fyToken in.
	BuyBase
	// SellFYToken: fyToken in, base out.
	SellFYToken
	// BuyFYToken: fyToken out, base in.
	BuyFYToken
)

func (s Side) String() string {
	switch s {
	case SellBase:
		return "sell-base"
	case BuyBase:
		return "buy-base"
	case SellFYToken:
		return "sell-fytoken"
	case BuyFYToken:
		return "buy-fytoken"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide parses the command-line name of a side.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sell-base", "sellbase":
		return SellBase, nil
	case "buy-base", "buybase":
		return BuyBase, nil
	case "sell-fytoken", "sellfytoken":
		return SellFYToken, nil
	case "buy-fytoken", "buyfytoken":
		return BuyFYToken, nil
	default:
		return 0, model.InvalidInputf("unknown side %q", s)
	}
}

// IsBuy reports whether the amount given is the output and the preview is the
// required input.
func (s Side) IsBuy() bool {
	return s == BuyBase || s == BuyFYToken
}

func (s Side) method() string {
	switch s {
	case BuyBase:
		return "buyBasePreview"
	case SellFYToken:
		return "sellFYTokenPreview"
	case BuyFYToken:
		return "buyFYTokenPreview"
	default:
		return "sellBasePreview"
	}
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Previewer evaluates trades against the pool's own pricing curve.
type Previewer struct {
	caller chain.Caller
	logger *zap.Logger
}

// NewPreviewer creates a previewer.
func NewPreviewer(caller chain.Caller, logger *zap.Logger) *Previewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Previewer{caller: caller, logger: logger}
}

// Preview asks the pool for the counter amount of a trade. A zero or unset
// amount returns ok=false without a call.
func (p *Previewer) Preview(ctx context.Context, pl model.Pool, side Side, amount model.Amount) (model.Amount, bool, error) {
	if !amount.IsPositive() {
		return model.Amount{}, false, nil
	}
	if amount.Value.Cmp(maxUint128) > 0 {
		return model.Amount{}, false, model.InvalidInputf("amount %s exceeds uint128", amount.Value)
	}
	poolABI, err := ABI()
	if err != nil {
		return model.Amount{}, false, fmt.Errorf("parse pool abi: %w", err)
	}

	method := side.method()
	values, err := chain.Call(ctx, p.caller, pl.Address, poolABI, method, amount.Int())
	if err != nil {
		return model.Amount{}, false, fmt.Errorf("preview %s: %w", pl.Name, err)
	}
	out, err := chain.AsBigInt(values[0])
	if err != nil {
		return model.Amount{}, false, fmt.Errorf("preview %s: %w: %w", pl.Name, model.ErrContractCall, err)
	}

	p.logger.Debug("preview",
		zap.String("pool", pl.Name),
		zap.String("side", side.String()),
		zap.String("amount", amount.String()),
		zap.String("result", out.String()),
	)
	return model.NewAmount(out, pl.BaseDecimals), true, nil
}

// PreviewSellBase returns the fyToken output for selling amount of base.
func (p *Previewer) PreviewSellBase(ctx context.Context, pl model.Pool, amount model.Amount) (model.Amount, bool, error) {
	return p.Preview(ctx, pl, SellBase, amount)
}

// PackSellBase builds sellBase(to, min) calldata.
func PackSellBase(to common.Address, minOut *big.Int) ([]byte, error) {
	poolABI, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := poolABI.Pack("sellBase", to, minOut)
	if err != nil {
		return nil, fmt.Errorf("pack sellBase: %w", err)
	}
	return data, nil
}

// PackBuyBase builds buyBase(to, baseOut, max) calldata: exactly baseOut of
// base for at most maxIn fyToken.
func PackBuyBase(to common.Address, baseOut, maxIn *big.Int) ([]byte, error) {
	poolABI, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := poolABI.Pack("buyBase", to, baseOut, maxIn)
	if err != nil {
		return nil, fmt.Errorf("pack buyBase: %w", err)
	}
	return data, nil
}
