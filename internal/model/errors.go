package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed or non-positive user input,
	// always before any network call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNetwork marks transport failures talking to the node.
	ErrNetwork = errors.New("network error")

	// ErrContractCall marks calls the node answered with an error or that
	// returned undecodable data.
	ErrContractCall = errors.New("contract call failed")

	// ErrRateUnavailable is returned when no implied rate can be derived.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrSlippageExceeded is the on-chain minimum-output revert.
	ErrSlippageExceeded = errors.New("rate moved, please retry")

	ErrNotConnected      = errors.New("wallet not connected")
	ErrApprovalRequired  = errors.New("approval required")
	ErrNoQuote           = errors.New("no quote")
	ErrStaleQuote        = errors.New("quote is stale")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrMutationInFlight  = errors.New("another transaction is in flight")
	ErrReceiptTimeout    = errors.New("timed out waiting for receipt")
	ErrInvalidTransition = errors.New("invalid transition")
)

// TxError reports a transaction that reached a failed state.
type TxError struct {
	Kind   error
	Record TransactionRecord
}

func (e *TxError) Error() string {
	if e.Record.ErrorDetail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Record.ErrorDetail)
}

func (e *TxError) Unwrap() error {
	return e.Kind
}

// InvalidInputf builds an ErrInvalidInput with detail.
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
