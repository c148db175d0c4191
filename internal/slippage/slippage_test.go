package slippage

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"forwardlock/internal/model"
)

func amt(v int64) model.Amount {
	return model.NewAmount(big.NewInt(v), 6)
}

func TestMinOutput(t *testing.T) {
	cases := []struct {
		expected int64
		bps      uint32
		want     int64
	}{
		{102_850, 50, 102_335},
		{102_850, 0, 102_850},
		{1, 50, 0},
		{0, 50, 0},
		{10_000, 9_999, 1},
		{199, 50, 198},
	}
	for _, tc := range cases {
		got, err := MinOutput(amt(tc.expected), tc.bps)
		if err != nil {
			t.Fatalf("MinOutput(%d, %d): %v", tc.expected, tc.bps, err)
		}
		if got.Value.Int64() != tc.want {
			t.Fatalf("MinOutput(%d, %d) = %s, want %d", tc.expected, tc.bps, got, tc.want)
		}
		if got.Decimals != 6 {
			t.Fatalf("decimals = %d", got.Decimals)
		}
	}
}

func TestMinOutputRejectsTolerance(t *testing.T) {
	for _, bps := range []uint32{10_000, 20_000} {
		if _, err := MinOutput(amt(100), bps); !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("bps %d: err = %v", bps, err)
		}
	}
}

func TestMinOutputBoundsAndMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		expected := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), 128))
		in := model.NewAmount(expected, 18)
		prev := expected
		for bps := uint32(0); bps < 10_000; bps += uint32(rng.Intn(700) + 1) {
			got, err := MinOutput(in, bps)
			if err != nil {
				t.Fatalf("MinOutput: %v", err)
			}
			if got.Value.Sign() < 0 || got.Value.Cmp(expected) > 0 {
				t.Fatalf("MinOutput(%s, %d) = %s out of bounds", expected, bps, got)
			}
			if got.Value.Cmp(prev) > 0 {
				t.Fatalf("MinOutput not monotonic at %d bps", bps)
			}
			prev = got.Value
		}
	}
}

func TestMaxInput(t *testing.T) {
	got, err := MaxInput(amt(97_100), 50)
	if err != nil {
		t.Fatalf("MaxInput: %v", err)
	}
	if got.Value.Int64() != 97_585 {
		t.Fatalf("MaxInput = %s", got)
	}
	if got.Value.Cmp(big.NewInt(97_100)) < 0 {
		t.Fatalf("MaxInput below expected input")
	}
	if _, err := MaxInput(amt(1), 10_000); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestBound(t *testing.T) {
	q := model.Quote{ExpectedOutputAmount: amt(103_000)}
	b, err := Bound(q, DefaultToleranceBps)
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}
	if b.ToleranceBps != 50 || b.MinimumAcceptableOutput.Value.Int64() != 102_485 {
		t.Fatalf("bound = %+v", b)
	}
}
