package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"forwardlock/internal/model"
)

// PoolConfig is one entry of the pools list.
type PoolConfig struct {
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`
	BaseToken    string `mapstructure:"base-token"`
	FYToken      string `mapstructure:"fy-token"`
	Maturity     string `mapstructure:"maturity"`
	FeeBps       uint32 `mapstructure:"fee-bps"`
	BaseDecimals uint8  `mapstructure:"base-decimals"`
	BaseSymbol   string `mapstructure:"base-symbol"`
	FYSymbol     string `mapstructure:"fy-symbol"`
}

// ParsePools converts configured pools into model pools.
func ParsePools(cfgs []PoolConfig) ([]model.Pool, error) {
	pools := make([]model.Pool, 0, len(cfgs))
	for i, c := range cfgs {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("pools[%d]: name is required", i)
		}
		addrs, err := ParseAddresses([]string{c.Address, c.BaseToken, c.FYToken})
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		if len(addrs) != 3 {
			return nil, fmt.Errorf("pool %s: address, base-token and fy-token are required", name)
		}
		maturity, err := ParseMaturity(c.Maturity)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		pools = append(pools, model.Pool{
			Name:         name,
			Address:      addrs[0],
			BaseToken:    addrs[1],
			FYToken:      addrs[2],
			Maturity:     maturity,
			FeeBps:       c.FeeBps,
			BaseDecimals: c.BaseDecimals,
			BaseSymbol:   strings.TrimSpace(c.BaseSymbol),
			FYSymbol:     strings.TrimSpace(c.FYSymbol),
		})
	}
	return pools, nil
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseMaturity accepts unix seconds, RFC3339, or a UTC date.
func ParseMaturity(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("maturity is required")
	}
	if ts, err := strconv.ParseUint(input, 10, 64); err == nil {
		return ts, nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return uint64(t.Unix()), nil
	}
	if t, err := time.Parse("2006-01-02", input); err == nil {
		return uint64(t.Unix()), nil
	}
	return 0, fmt.Errorf("invalid maturity: %s", input)
}
