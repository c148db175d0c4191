package chain

import (
	"math/big"
	"testing"
)

func TestAsUint8(t *testing.T) {
	valid := []interface{}{uint8(18), uint16(18), uint32(18), uint64(18), big.NewInt(18)}
	for _, v := range valid {
		got, err := AsUint8(v)
		if err != nil || got != 18 {
			t.Fatalf("AsUint8(%T) = %d, %v", v, got, err)
		}
	}

	overflow := []interface{}{
		uint16(256),
		uint32(1 << 20),
		uint64(300),
		big.NewInt(256),
		big.NewInt(-1),
		new(big.Int).Lsh(big.NewInt(1), 70),
	}
	for _, v := range overflow {
		if got, err := AsUint8(v); err == nil {
			t.Fatalf("AsUint8(%v) = %d, expected range error", v, got)
		}
	}

	if _, err := AsUint8("18"); err == nil {
		t.Fatalf("expected type error")
	}
}
