package pool

import (
	"context"
	"fmt"
	"strings"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
)

// Verify compares the configured base token, fyToken and maturity of p with
// what the pool contract reports.
func Verify(ctx context.Context, caller chain.Caller, p model.Pool) error {
	poolABI, err := ABI()
	if err != nil {
		return fmt.Errorf("parse pool abi: %w", err)
	}

	var mismatches []string

	values, err := chain.Call(ctx, caller, p.Address, poolABI, "base")
	if err != nil {
		return fmt.Errorf("verify %s: %w", p.Name, err)
	}
	base, err := chain.AsAddress(values[0])
	if err != nil {
		return fmt.Errorf("verify %s: base: %w", p.Name, err)
	}
	if base != p.BaseToken {
		mismatches = append(mismatches, fmt.Sprintf("base %s, configured %s", base.Hex(), p.BaseToken.Hex()))
	}

	values, err = chain.Call(ctx, caller, p.Address, poolABI, "fyToken")
	if err != nil {
		return fmt.Errorf("verify %s: %w", p.Name, err)
	}
	fyToken, err := chain.AsAddress(values[0])
	if err != nil {
		return fmt.Errorf("verify %s: fyToken: %w", p.Name, err)
	}
	if fyToken != p.FYToken {
		mismatches = append(mismatches, fmt.Sprintf("fyToken %s, configured %s", fyToken.Hex(), p.FYToken.Hex()))
	}

	values, err = chain.Call(ctx, caller, p.Address, poolABI, "maturity")
	if err != nil {
		return fmt.Errorf("verify %s: %w", p.Name, err)
	}
	maturity, err := chain.AsBigInt(values[0])
	if err != nil {
		return fmt.Errorf("verify %s: maturity: %w", p.Name, err)
	}
	if maturity.Uint64() != p.Maturity {
		mismatches = append(mismatches, fmt.Sprintf("maturity %d, configured %d", maturity.Uint64(), p.Maturity))
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("verify %s: %s", p.Name, strings.Join(mismatches, "; "))
	}
	return nil
}
