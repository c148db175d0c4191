package model

import (
	"math/big"
	"time"
)

// Reserves is a point-in-time snapshot of a pool's balances. The reads that
// build it are not atomic, so it is only consistent with itself.
type Reserves struct {
	Pool           string
	BaseBalance    *big.Int
	FYTokenBalance *big.Int
	BaseDecimals   uint8
	FetchedAt      time.Time
}
