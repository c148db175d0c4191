package history

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"forwardlock/internal/model"
	"forwardlock/internal/pool"
)

var (
	poolA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolB   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	account = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

type fakeSource struct {
	mu      sync.Mutex
	latest  uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
}

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_790_000_000 + number*12, nil
}

// FilterLogs applies the block window, address and recipient topic filters.
func (f *fakeSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !containsAddress(q.Addresses, lg.Address) {
			continue
		}
		if len(q.Topics) > 2 && len(q.Topics[2]) > 0 && lg.Topics[2] != q.Topics[2][0] {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func tradeLog(t *testing.T, poolAddr, to common.Address, block uint64, index uint, baseIn, fyOut int64) types.Log {
	t.Helper()
	poolABI, err := pool.ABI()
	if err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	event := poolABI.Events["Trade"]
	data, err := event.Inputs.NonIndexed().Pack(uint32(1798675200), big.NewInt(-baseIn), big.NewInt(fyOut))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{event.ID, common.BytesToHash(to.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*100) + int64(index))),
		Index:       index,
	}
}

func testPools() []model.Pool {
	return []model.Pool{
		{Name: "fyUSDC-DEC", Address: poolA},
		{Name: "fyUSDC-MAR", Address: poolB},
	}
}

func collect(t *testing.T, s *Scanner) []Fill {
	t.Helper()
	var fills []Fill
	err := s.Scan(context.Background(), testPools(), account, func(batch []Fill) error {
		fills = append(fills, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return fills
}

func TestScanFindsAccountTrades(t *testing.T) {
	dup := tradeLog(t, poolA, account, 12, 0, 100, 103)
	src := &fakeSource{
		latest: 30,
		logs: []types.Log{
			tradeLog(t, poolA, account, 5, 0, 1_000, 1_030),
			tradeLog(t, poolA, other, 6, 0, 5, 6),
			dup,
			dup,
			tradeLog(t, poolB, account, 25, 3, 200, 210),
		},
	}

	s := NewScanner(ScanConfig{FromBlock: 1, BatchSize: 10, ChainID: 1}, src, nil, nil)
	fills := collect(t, s)
	if len(fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(fills))
	}
	if fills[0].Pool != "fyUSDC-DEC" || fills[0].BlockNumber != 5 {
		t.Fatalf("first fill = %+v", fills[0])
	}
	if fills[0].FYTokenDelta.Int64() != 1_030 || fills[0].BaseDelta.Int64() != -1_000 {
		t.Fatalf("first fill amounts = %s / %s", fills[0].BaseDelta, fills[0].FYTokenDelta)
	}
	if fills[2].Pool != "fyUSDC-MAR" || fills[2].LogIndex != 3 {
		t.Fatalf("last fill = %+v", fills[2])
	}
	if fills[0].Time.Unix() != 1_790_000_060 {
		t.Fatalf("time = %s", fills[0].Time)
	}
	if len(src.queries) != 3 {
		t.Fatalf("queries = %d, want 3", len(src.queries))
	}
}

func TestScanResumesFromCursor(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		latest: 20,
		logs:   []types.Log{tradeLog(t, poolA, account, 15, 0, 10, 11)},
	}
	cursors := NewCursorStore(dir)

	if fills := collect(t, NewScanner(ScanConfig{FromBlock: 1, BatchSize: 100, ChainID: 1}, src, cursors, nil)); len(fills) != 1 {
		t.Fatalf("first scan fills = %d", len(fills))
	}
	cur, ok, err := cursors.Load(1, account)
	if err != nil || !ok || cur.LastScannedBlock != 20 {
		t.Fatalf("cursor = %+v ok=%v err=%v", cur, ok, err)
	}

	src.latest = 40
	src.logs = append(src.logs, tradeLog(t, poolB, account, 33, 1, 20, 21))
	fills := collect(t, NewScanner(ScanConfig{FromBlock: 1, BatchSize: 100, ChainID: 1}, src, cursors, nil))
	if len(fills) != 1 || fills[0].BlockNumber != 33 {
		t.Fatalf("resumed fills = %+v", fills)
	}
	last := src.queries[len(src.queries)-1]
	if last.FromBlock.Uint64() != 21 {
		t.Fatalf("resumed from %s, want 21", last.FromBlock)
	}
}

func TestCursorRejectsOtherAccount(t *testing.T) {
	cursors := NewCursorStore(t.TempDir())
	if err := cursors.Save(1, account, 10); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok, err := cursors.Load(5, account); err != nil || ok {
		t.Fatalf("other chain: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := cursors.Load(1, other); ok {
		t.Fatalf("other account must not see the cursor")
	}
}

func TestScanNothingToDo(t *testing.T) {
	src := &fakeSource{latest: 5}
	s := NewScanner(ScanConfig{FromBlock: 10, BatchSize: 10}, src, nil, nil)
	if fills := collect(t, s); len(fills) != 0 {
		t.Fatalf("fills = %d", len(fills))
	}
	if len(src.queries) != 0 {
		t.Fatalf("no query expected")
	}
}
