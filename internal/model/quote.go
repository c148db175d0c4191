package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate is an advisory exchange ratio. Available is false when the pool is
// drained and no ratio can be derived; Value is then zero and must not be
// shown as a quote.
type Rate struct {
	Value     decimal.Decimal
	Available bool
}

// String renders the rate, or "unavailable".
func (r Rate) String() string {
	if !r.Available {
		return "unavailable"
	}
	return r.Value.String()
}

// Quote is a preview computed against a single reserves snapshot.
type Quote struct {
	PoolName             string
	InputAmount          Amount
	ExpectedOutputAmount Amount
	ImpliedRate          Rate
	ComputedAtReserves   Reserves
	ComputedAt           time.Time
}

// SlippageBound is the worst-case output a sell will accept.
type SlippageBound struct {
	ToleranceBps            uint32
	MinimumAcceptableOutput Amount
}

// Allowance is the spend authorization an owner has granted a spender.
type Allowance struct {
	Owner            string
	Spender          string
	Token            string
	CurrentAllowance Amount
}
