package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const sample = `
rpc: https://forno.celo.org
chain-id: 42220
tolerance-bps: 75
quote-ttl: 15s
pools:
  - name: fyUSDC-DEC
    address: "0x1111111111111111111111111111111111111111"
    base-token: "0x2222222222222222222222222222222222222222"
    fy-token: "0x3333333333333333333333333333333333333333"
    maturity: 1798675200
    fee-bps: 5
    base-decimals: 6
    base-symbol: USDC
  - name: fyUSDC-MAR
    address: "0x4444444444444444444444444444444444444444"
    base-token: "0x2222222222222222222222222222222222222222"
    fy-token: "0x5555555555555555555555555555555555555555"
    maturity: "2027-03-31"
    base-decimals: 6
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "https://forno.celo.org" || cfg.ChainID != 42220 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ToleranceBps != 75 || cfg.QuoteTTL != 15*time.Second {
		t.Fatalf("tolerance=%d ttl=%s", cfg.ToleranceBps, cfg.QuoteTTL)
	}
	if cfg.QuoteTimeout != 10*time.Second || cfg.LockTTL != 5*time.Minute || cfg.Journal != "./data/trades.jsonl" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Pools) != 2 {
		t.Fatalf("pools = %d", len(cfg.Pools))
	}
	p := cfg.Pools[0]
	if p.Address != common.HexToAddress("0x1111111111111111111111111111111111111111") || p.Maturity != 1798675200 || p.BaseDecimals != 6 || p.FeeBps != 5 {
		t.Fatalf("pool = %+v", p)
	}
	if cfg.Pools[1].Maturity != uint64(time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC).Unix()) {
		t.Fatalf("date maturity = %d", cfg.Pools[1].Maturity)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FXLOCK_TOLERANCE_BPS", "20")
	cfg, err := Load(writeConfig(t, sample), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ToleranceBps != 20 {
		t.Fatalf("tolerance = %d", cfg.ToleranceBps)
	}
}

func TestLoadRejectsTolerance(t *testing.T) {
	if _, err := Load(writeConfig(t, "tolerance-bps: 10000\n"), nil); err == nil {
		t.Fatalf("expected tolerance error")
	}
}

func TestParsePoolsRejects(t *testing.T) {
	cases := []PoolConfig{
		{Address: "0x1111111111111111111111111111111111111111"},
		{Name: "a", Address: "0xzz", BaseToken: "0x2222222222222222222222222222222222222222", FYToken: "0x3333333333333333333333333333333333333333", Maturity: "1"},
		{Name: "a", Address: "0x1111111111111111111111111111111111111111", Maturity: "1"},
		{Name: "a", Address: "0x1111111111111111111111111111111111111111", BaseToken: "0x2222222222222222222222222222222222222222", FYToken: "0x3333333333333333333333333333333333333333", Maturity: "soon"},
	}
	for i, c := range cases {
		if _, err := ParsePools([]PoolConfig{c}); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
