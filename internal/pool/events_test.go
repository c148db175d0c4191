package pool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// tradeLog builds a Trade log as the pool emits it for a sellBase.
func tradeLog(t *testing.T, from, to common.Address, baseIn, fyOut int64) types.Log {
	t.Helper()
	poolABI, err := ABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := poolABI.Events["Trade"]
	data, err := event.Inputs.NonIndexed().Pack(uint32(1798675200), big.NewInt(-baseIn), big.NewInt(fyOut))
	if err != nil {
		t.Fatalf("pack trade: %v", err)
	}
	return types.Log{
		Address: poolAddr,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: data,
	}
}

func TestDecodeTrade(t *testing.T) {
	lg := tradeLog(t, trader, trader, 100_000, 102_850)
	ev, err := DecodeTrade(lg)
	if err != nil {
		t.Fatalf("DecodeTrade: %v", err)
	}
	if ev.Base != "-100000" || ev.FYTokens != "102850" {
		t.Fatalf("event = %+v", ev.TradeEventData)
	}
	if common.HexToAddress(ev.To) != trader {
		t.Fatalf("to = %s", ev.To)
	}
	if ev.FYTokenOut().Int64() != 102_850 {
		t.Fatalf("fy out = %s", ev.FYTokenOut())
	}
}

func TestFindTrade(t *testing.T) {
	other := common.HexToAddress("0x5555555555555555555555555555555555555555")
	transfer := types.Log{Address: baseAddr, Topics: []common.Hash{common.HexToHash("0xddf2")}}
	logs := []types.Log{transfer, tradeLog(t, trader, other, 1, 1), tradeLog(t, trader, trader, 5, 7)}

	ev, ok := FindTrade(logs, poolAddr, trader)
	if !ok {
		t.Fatalf("trade not found")
	}
	if ev.FYTokenOut().Int64() != 7 {
		t.Fatalf("fy out = %s", ev.FYTokenOut())
	}
	if _, ok := FindTrade(logs[:1], poolAddr, trader); ok {
		t.Fatalf("found trade in unrelated logs")
	}
}

func TestBuyBaseTradeAmounts(t *testing.T) {
	// A buyBase pays base out of the pool and takes fyToken in.
	ev, err := DecodeTrade(tradeLog(t, trader, trader, -250_000, -257_100))
	if err != nil {
		t.Fatalf("DecodeTrade: %v", err)
	}
	if ev.BaseOut().Int64() != 250_000 {
		t.Fatalf("base out = %s", ev.BaseOut())
	}
	if ev.FYTokenIn().Int64() != 257_100 {
		t.Fatalf("fy in = %s", ev.FYTokenIn())
	}
}
