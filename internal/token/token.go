// Package token reads ERC20 state and builds approval calldata.
package token

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"forwardlock/internal/chain"
)

// Meta is immutable token metadata.
type Meta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// MaxAllowance is the unbounded approval amount.
func MaxAllowance() *big.Int {
	return new(big.Int).Set(abi.MaxUint256)
}

// IsUnbounded reports whether allowance equals the maximum representable value.
func IsUnbounded(allowance *big.Int) bool {
	return allowance != nil && allowance.Cmp(abi.MaxUint256) == 0
}

// FetchMeta loads token metadata. Decimals is required; symbol and name are
// best effort.
func FetchMeta(ctx context.Context, caller chain.Caller, token common.Address, logger *zap.Logger) (Meta, error) {
	meta := Meta{Address: token.Hex()}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := ERC20Bytes32ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := chain.Call(ctx, caller, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := chain.AsUint8(values[0])
	if err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}
	meta.Decimals = decimals

	meta.Symbol = fetchText(ctx, caller, token, "symbol", stringABI, bytes32ABI, logger)
	meta.Name = fetchText(ctx, caller, token, "name", stringABI, bytes32ABI, logger)
	return meta, nil
}

func fetchText(ctx context.Context, caller chain.Caller, token common.Address, method string, stringABI, bytes32ABI abi.ABI, logger *zap.Logger) string {
	values, err := chain.Call(ctx, caller, token, stringABI, method)
	if err != nil {
		values, err = chain.Call(ctx, caller, token, bytes32ABI, method)
	}
	if err != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
		return ""
	}
	text, _ := chain.AsString(values[0])
	return text
}

// BalanceOf returns owner's balance of token in base units.
func BalanceOf(ctx context.Context, caller chain.Caller, token, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := chain.Call(ctx, caller, token, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return chain.AsBigInt(values[0])
}

// Allowance returns how much of owner's token spender may move.
func Allowance(ctx context.Context, caller chain.Caller, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := chain.Call(ctx, caller, token, parsed, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return chain.AsBigInt(values[0])
}

// PackApprove builds approve(spender, amount) calldata.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}
