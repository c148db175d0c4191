// Package slippage derives worst-case bounds from previewed amounts.
package slippage

import (
	"math/big"

	"forwardlock/internal/model"
)

// DefaultToleranceBps is 0.5%.
const DefaultToleranceBps uint32 = 50

const bpsDenominator = 10000

var denominator = big.NewInt(bpsDenominator)

// MinOutput returns floor(expected * (10000 - bps) / 10000). Tolerances of
// 10000 bps or more are rejected.
func MinOutput(expected model.Amount, toleranceBps uint32) (model.Amount, error) {
	if toleranceBps >= bpsDenominator {
		return model.Amount{}, model.InvalidInputf("tolerance %d bps must be below %d", toleranceBps, bpsDenominator)
	}
	if expected.Value != nil && expected.Value.Sign() < 0 {
		return model.Amount{}, model.InvalidInputf("negative expected output %s", expected.Value)
	}
	out := expected.Int()
	out.Mul(out, big.NewInt(int64(bpsDenominator-toleranceBps)))
	out.Quo(out, denominator)
	return model.Amount{Value: out, Decimals: expected.Decimals}, nil
}

// MaxInput returns floor(expected * (10000 + bps) / 10000), the most a buy may
// spend.
func MaxInput(expected model.Amount, toleranceBps uint32) (model.Amount, error) {
	if toleranceBps >= bpsDenominator {
		return model.Amount{}, model.InvalidInputf("tolerance %d bps must be below %d", toleranceBps, bpsDenominator)
	}
	if expected.Value != nil && expected.Value.Sign() < 0 {
		return model.Amount{}, model.InvalidInputf("negative expected input %s", expected.Value)
	}
	out := expected.Int()
	out.Mul(out, big.NewInt(int64(bpsDenominator+toleranceBps)))
	out.Quo(out, denominator)
	return model.Amount{Value: out, Decimals: expected.Decimals}, nil
}

// Bound builds the SlippageBound for a sell quote.
func Bound(quote model.Quote, toleranceBps uint32) (model.SlippageBound, error) {
	minOut, err := MinOutput(quote.ExpectedOutputAmount, toleranceBps)
	if err != nil {
		return model.SlippageBound{}, err
	}
	return model.SlippageBound{ToleranceBps: toleranceBps, MinimumAcceptableOutput: minOut}, nil
}
