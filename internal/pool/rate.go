package pool

import (
	"time"

	"github.com/shopspring/decimal"

	"forwardlock/internal/model"
)

// RatePrecision is the number of decimal places kept in derived rates.
const RatePrecision = 18

var year = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))

// ImpliedRate returns fyTokenBalance / baseBalance. Both balances are in
// base units; base and fyToken share decimals in a YieldSpace pool. A drained
// pool yields an unavailable rate.
func ImpliedRate(r model.Reserves) model.Rate {
	if r.BaseBalance == nil || r.FYTokenBalance == nil || r.BaseBalance.Sign() <= 0 {
		return model.Rate{}
	}
	base := decimal.NewFromBigInt(r.BaseBalance, 0)
	fy := decimal.NewFromBigInt(r.FYTokenBalance, 0)
	return model.Rate{Value: fy.DivRound(base, RatePrecision), Available: true}
}

// APR annualizes the premium of rate over par across the remaining term.
func APR(rate model.Rate, timeToMaturity time.Duration) model.Rate {
	if !rate.Available || timeToMaturity <= 0 {
		return model.Rate{}
	}
	seconds := decimal.NewFromInt(int64(timeToMaturity / time.Second))
	if seconds.IsZero() {
		return model.Rate{}
	}
	premium := rate.Value.Sub(decimal.NewFromInt(1))
	return model.Rate{Value: premium.Mul(year).DivRound(seconds, RatePrecision), Available: true}
}

// CounterAmount applies rate to a decimal amount for display.
func CounterAmount(amount decimal.Decimal, rate model.Rate) (decimal.Decimal, bool) {
	if !rate.Available {
		return decimal.Decimal{}, false
	}
	return amount.Mul(rate.Value), true
}
