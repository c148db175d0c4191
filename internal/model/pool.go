package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Pool identifies a tradable base/fyToken pair. Maturity and FeeBps are fixed
// for the lifetime of the pool.
type Pool struct {
	Name         string         `json:"name"`
	Address      common.Address `json:"address"`
	BaseToken    common.Address `json:"base_token"`
	FYToken      common.Address `json:"fy_token"`
	Maturity     uint64         `json:"maturity"`
	FeeBps       uint32         `json:"fee_bps"`
	BaseDecimals uint8          `json:"base_decimals"`
	BaseSymbol   string         `json:"base_symbol,omitempty"`
	FYSymbol     string         `json:"fy_symbol,omitempty"`
}

// MaturityTime returns the maturity as a UTC time.
func (p Pool) MaturityTime() time.Time {
	return time.Unix(int64(p.Maturity), 0).UTC()
}

// Matured reports whether the pool has reached maturity at now.
func (p Pool) Matured(now time.Time) bool {
	return uint64(now.Unix()) >= p.Maturity
}

// TimeToMaturity returns the remaining duration, or zero once matured.
func (p Pool) TimeToMaturity(now time.Time) time.Duration {
	if p.Matured(now) {
		return 0
	}
	return p.MaturityTime().Sub(now)
}

// DaysToMaturity returns the number of calendar days until maturity, rounded up.
func (p Pool) DaysToMaturity(now time.Time) int {
	remaining := p.TimeToMaturity(now)
	if remaining <= 0 {
		return 0
	}
	day := 24 * time.Hour
	return int((remaining + day - 1) / day)
}
