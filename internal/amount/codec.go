// Package amount converts between user-entered decimal strings and exact
// base-unit integers.
package amount

import (
	"math/big"
	"strings"

	"forwardlock/internal/model"
)

// MaxDecimals bounds the precision accepted for a token.
const MaxDecimals = 77

// Parse scales a decimal numeral by 10^decimals. Commas are stripped before
// parsing. Negative, empty and non-numeric input is rejected, as is input with
// more significant fractional digits than decimals allows.
func Parse(input string, decimals uint8) (model.Amount, error) {
	if decimals > MaxDecimals {
		return model.Amount{}, model.InvalidInputf("unsupported decimals %d", decimals)
	}

	cleaned := strings.ReplaceAll(strings.TrimSpace(input), ",", "")
	if cleaned == "" {
		return model.Amount{}, model.InvalidInputf("amount is empty")
	}

	whole, frac, _ := strings.Cut(cleaned, ".")
	if whole == "" && frac == "" {
		return model.Amount{}, model.InvalidInputf("amount %q has no digits", input)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return model.Amount{}, model.InvalidInputf("amount %q is not an unsigned decimal", input)
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return model.Amount{}, model.InvalidInputf("amount %q has more than %d fractional digits", input, decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return model.Amount{Value: new(big.Int), Decimals: decimals}, nil
	}

	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return model.Amount{}, model.InvalidInputf("amount %q is not an unsigned decimal", input)
	}
	return model.Amount{Value: value, Decimals: decimals}, nil
}

// Format renders a base-unit amount as a canonical decimal string with
// trailing fractional zeros removed.
func Format(a model.Amount) string {
	return FormatUnits(a.Value, a.Decimals)
}

// FormatUnits renders value scaled down by 10^decimals.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	digits := new(big.Int).Abs(value).String()
	if decimals == 0 {
		return sign + digits
	}

	width := int(decimals) + 1
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	split := len(digits) - int(decimals)
	whole, frac := digits[:split], strings.TrimRight(digits[split:], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

// Group inserts thousands separators into the integer part of a decimal string.
func Group(text string) string {
	sign := ""
	if strings.HasPrefix(text, "-") {
		sign, text = "-", text[1:]
	}
	whole, frac, hasDot := strings.Cut(text, ".")
	if len(whole) <= 3 {
		return sign + text
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	if hasDot {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

func isDigits(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
