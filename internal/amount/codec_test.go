package amount

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"forwardlock/internal/model"
)

func TestParse(t *testing.T) {
	cases := []struct {
		input    string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1,000,000", 6, "1000000000000"},
		{"0.5", 6, "500000"},
		{".5", 6, "500000"},
		{"5.", 6, "5000000"},
		{"  12.345  ", 3, "12345"},
		{"1.500000000", 6, "1500000"},
		{"0", 18, "0"},
		{"000123", 0, "123"},
		{"115792089237316195423570985008687907853269984665640564039457.584007913129639935", 18, "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
	}

	for _, tc := range cases {
		got, err := Parse(tc.input, tc.decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.input, err)
		}
		if got.Value.String() != tc.want {
			t.Fatalf("parse %q: got %s want %s", tc.input, got.Value, tc.want)
		}
		if got.Decimals != tc.decimals {
			t.Fatalf("parse %q: decimals %d", tc.input, got.Decimals)
		}
	}
}

func TestParseRejects(t *testing.T) {
	inputs := []string{"", "   ", ",", "-1", "+1", "1e6", "abc", "1.2.3", ".", "1..2", "1 000", "0x10", "1.1234567"}
	for _, input := range inputs {
		if _, err := Parse(input, 6); !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", input, err)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		value    string
		decimals uint8
		want     string
	}{
		{"1000000000000000000", 18, "1"},
		{"1500000", 6, "1.5"},
		{"1", 6, "0.000001"},
		{"0", 6, "0"},
		{"123", 0, "123"},
		{"-2500", 3, "-2.5"},
	}
	for _, tc := range cases {
		value, _ := new(big.Int).SetString(tc.value, 10)
		if got := FormatUnits(value, tc.decimals); got != tc.want {
			t.Fatalf("format %s/%d: got %s want %s", tc.value, tc.decimals, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	for i := 0; i < 500; i++ {
		decimals := uint8(rng.Intn(19))
		value := new(big.Int).Rand(rng, limit)

		text := FormatUnits(value, decimals)
		parsed, err := Parse(text, decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", text, err)
		}
		if parsed.Value.Cmp(value) != 0 {
			t.Fatalf("round trip mismatch: %s -> %q -> %s", value, text, parsed.Value)
		}
		if again := Format(parsed); again != text {
			t.Fatalf("canonical form changed: %q -> %q", text, again)
		}
	}
}

func TestRoundTripUserInput(t *testing.T) {
	cases := map[string]string{
		"1,000.50": "1000.5",
		"007":      "7",
		"0.10":     "0.1",
		".25":      "0.25",
	}
	for input, canonical := range cases {
		parsed, err := Parse(input, 6)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got := Format(parsed); got != canonical {
			t.Fatalf("format %q: got %q want %q", input, got, canonical)
		}
	}
}

func TestGroup(t *testing.T) {
	cases := map[string]string{
		"1":          "1",
		"1000":       "1,000",
		"1234567.89": "1,234,567.89",
		"-100000":    "-100,000",
		"999":        "999",
	}
	for input, want := range cases {
		if got := Group(input); got != want {
			t.Fatalf("group %q: got %q want %q", input, got, want)
		}
	}
}
