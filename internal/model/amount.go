package model

import "math/big"

// Amount is an exact integer quantity in a token's smallest unit together
// with the decimal precision it was scaled by.
type Amount struct {
	Value    *big.Int
	Decimals uint8
}

// NewAmount copies value into a new Amount.
func NewAmount(value *big.Int, decimals uint8) Amount {
	if value == nil {
		return Amount{Value: new(big.Int), Decimals: decimals}
	}
	return Amount{Value: new(big.Int).Set(value), Decimals: decimals}
}

// IsPositive reports whether the amount is set and greater than zero.
func (a Amount) IsPositive() bool {
	return a.Value != nil && a.Value.Sign() > 0
}

// Int returns a copy of the raw value, or zero if unset.
func (a Amount) Int() *big.Int {
	if a.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Value)
}

// String returns the base-unit integer.
func (a Amount) String() string {
	if a.Value == nil {
		return "0"
	}
	return a.Value.String()
}
