package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeKind is the pool function a trade calls.
type TradeKind int

const (
	// SellBaseTrade pays an exact base input for at least a minimum fyToken
	// output.
	SellBaseTrade TradeKind = iota
	// BuyBaseTrade receives an exact base output for at most a maximum fyToken
	// input.
	BuyBaseTrade
)

func (k TradeKind) String() string {
	switch k {
	case SellBaseTrade:
		return "sell-base"
	case BuyBaseTrade:
		return "buy-base"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseTradeKind is the inverse of String. An empty string is a sell.
func ParseTradeKind(s string) (TradeKind, error) {
	switch s {
	case "", "sell-base":
		return SellBaseTrade, nil
	case "buy-base":
		return BuyBaseTrade, nil
	default:
		return 0, fmt.Errorf("unknown trade kind %q", s)
	}
}

// TradeIntent is the fully resolved trade instruction. It is not modified
// after submission.
//
// For a sell, InputAmount is the exact base paid and MinimumAcceptableOutput
// the least fyToken accepted. For a buy, ExpectedOutputAmount and
// MinimumAcceptableOutput are both the exact base received, InputAmount is the
// previewed fyToken cost and MaximumAcceptableInput the most fyToken paid.
type TradeIntent struct {
	ID                      string
	Kind                    TradeKind
	Pool                    Pool
	Recipient               common.Address
	InputAmount             Amount
	ExpectedOutputAmount    Amount
	MinimumAcceptableOutput Amount
	MaximumAcceptableInput  Amount
	ToleranceBps            uint32
}

// TxStatus is the lifecycle state of a broadcast transaction.
type TxStatus int

const (
	TxSubmitted TxStatus = iota
	TxConfirming
	TxConfirmed
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxSubmitted:
		return "submitted"
	case TxConfirming:
		return "confirming"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// TransactionRecord tracks one broadcast transaction. Hash is zero when the
// node rejected the transaction before broadcast.
type TransactionRecord struct {
	Hash           common.Hash
	Status         TxStatus
	ErrorDetail    string
	BlockNumber    uint64
	RealizedOutput *Amount
	UpdatedAt      time.Time
}

// NewTransactionRecord starts a record in the submitted state.
func NewTransactionRecord(hash common.Hash, now time.Time) TransactionRecord {
	return TransactionRecord{Hash: hash, Status: TxSubmitted, UpdatedAt: now}
}

// Advance moves the record forward. Transitions out of a terminal state and
// backwards transitions are rejected.
func (r *TransactionRecord) Advance(next TxStatus, now time.Time) error {
	if r.Status.Terminal() {
		if r.Status == next {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	if next < r.Status {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Fail moves the record to failed with detail.
func (r *TransactionRecord) Fail(detail string, now time.Time) error {
	if err := r.Advance(TxFailed, now); err != nil {
		return err
	}
	r.ErrorDetail = detail
	return nil
}
