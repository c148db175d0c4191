package workflow

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"forwardlock/internal/approval"
	"forwardlock/internal/chain/chaintest"
	"forwardlock/internal/lock"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/storage"
	"forwardlock/internal/token"
	"forwardlock/internal/trade"
)

var (
	trader   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	baseAddr = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	fyAddr   = common.HexToAddress("0x00000000000000000000000000000000000000dd")

	testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
)

type session struct {
	connected bool
}

func (s session) Address() common.Address { return trader }
func (s session) IsConnected() bool       { return s.connected }
func (s session) ChainID() int64          { return 1 }

type fixture struct {
	b       *chaintest.Backend
	wf      *Workflow
	locker  *lock.LocalLocker
	journal *storage.JsonlStorage

	mu        sync.Mutex
	allowance *big.Int
	clock     time.Time
}

func (f *fixture) setAllowance(v *big.Int) {
	f.mu.Lock()
	f.allowance = new(big.Int).Set(v)
	f.mu.Unlock()
}

func (f *fixture) getAllowance() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance)
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.clock = f.clock.Add(d)
	f.mu.Unlock()
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func testPool() model.Pool {
	return model.Pool{
		Name:         "fyUSDC-JAN",
		Address:      poolAddr,
		BaseToken:    baseAddr,
		FYToken:      fyAddr,
		Maturity:     uint64(time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC).Unix()),
		FeeBps:       5,
		BaseDecimals: 6,
	}
}

func tradeLog(t *testing.T, baseIn, fyOut *big.Int) types.Log {
	t.Helper()
	poolABI, err := pool.ABI()
	if err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	event := poolABI.Events["Trade"]
	data, err := event.Inputs.NonIndexed().Pack(uint32(testPool().Maturity), new(big.Int).Neg(baseIn), fyOut)
	if err != nil {
		t.Fatalf("pack trade: %v", err)
	}
	return types.Log{
		Address: poolAddr,
		Topics:  []common.Hash{event.ID, common.BytesToHash(trader.Bytes()), common.BytesToHash(trader.Bytes())},
		Data:    data,
	}
}

// newFixture wires a workflow against a scripted pool quoting 1.0285 fyUSDC
// per USDC with reserves 1,000,000 / 1,030,000.
func newFixture(t *testing.T, connected bool, allowance int64, autoApprove bool) *fixture {
	t.Helper()
	poolABI, err := pool.ABI()
	if err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	erc20ABI, err := token.ERC20ABI()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}

	f := &fixture{
		b:         chaintest.New(trader),
		locker:    lock.NewLocalLocker(),
		journal:   storage.NewJsonlStorage(filepath.Join(t.TempDir(), "trades.jsonl")),
		allowance: big.NewInt(allowance),
		clock:     testNow,
	}
	f.b.Register(poolAddr, poolABI)
	f.b.Register(baseAddr, erc20ABI)
	f.b.Returns(poolAddr, "getBaseBalance", big.NewInt(1_000_000_000_000))
	f.b.Returns(poolAddr, "getFYTokenBalance", big.NewInt(1_030_000_000_000))
	f.b.Returns(poolAddr, "baseDecimals", big.NewInt(6))
	f.b.OnCall(poolAddr, "sellBasePreview", func(args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		out := new(big.Int).Mul(in, big.NewInt(10285))
		return []interface{}{out.Quo(out, big.NewInt(10000))}, nil
	})
	f.b.Returns(baseAddr, "balanceOf", big.NewInt(1_000_000_000))
	f.b.OnCall(baseAddr, "allowance", func([]interface{}) ([]interface{}, error) {
		return []interface{}{f.getAllowance()}, nil
	})
	f.b.OnSend(baseAddr, "approve", func(args []interface{}) chaintest.SendResult {
		f.setAllowance(args[1].(*big.Int))
		return chaintest.SendResult{}
	})
	f.b.OnSend(poolAddr, "sellBase", func(args []interface{}) chaintest.SendResult {
		return chaintest.SendResult{Logs: []types.Log{tradeLog(t, big.NewInt(100_000_000), big.NewInt(102_850_000))}}
	})

	registry, err := pool.NewRegistry([]model.Pool{testPool()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	wf, err := New(Config{
		ToleranceBps: 50,
		QuoteTimeout: time.Second,
		QuoteTTL:     30 * time.Second,
		AutoApprove:  autoApprove,
	}, Deps{
		Session:   session{connected: connected},
		Registry:  registry,
		Caller:    f.b,
		Reader:    pool.NewReader(f.b, nil),
		Previewer: pool.NewPreviewer(f.b, nil),
		Gate:      approval.NewGate(f.b, f.b, nil),
		Executor:  trade.NewExecutor(f.b, nil),
		Locker:    f.locker,
		Journal:   f.journal,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wf.now = f.now
	f.wf = wf
	return f
}

func TestQuoteAndBound(t *testing.T) {
	f := newFixture(t, true, 0, false)
	ctx := context.Background()

	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if f.wf.State() != PreviewPending {
		t.Fatalf("state = %s", f.wf.State())
	}
	quote, bound, err := f.wf.RefreshQuote(ctx)
	if err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}
	if f.wf.State() != Ready {
		t.Fatalf("state = %s", f.wf.State())
	}
	if quote.InputAmount.Value.Int64() != 100_000_000 {
		t.Fatalf("input = %s", quote.InputAmount)
	}
	if quote.ExpectedOutputAmount.Value.Int64() != 102_850_000 {
		t.Fatalf("expected = %s", quote.ExpectedOutputAmount)
	}
	if !quote.ImpliedRate.Available || !quote.ImpliedRate.Value.Equal(decimal.RequireFromString("1.03")) {
		t.Fatalf("rate = %s", quote.ImpliedRate)
	}
	if bound.MinimumAcceptableOutput.Value.Int64() != 102_335_750 {
		t.Fatalf("min output = %s", bound.MinimumAcceptableOutput)
	}
	if f.b.SentTotal() != 0 {
		t.Fatalf("quoting must not send transactions")
	}
}

func TestSetInputRejectsBadInput(t *testing.T) {
	f := newFixture(t, true, 0, false)
	cases := []struct{ amount, target string }{
		{"0", "fyUSDC-JAN"},
		{"1.0000001", "fyUSDC-JAN"},
		{"abc", "fyUSDC-JAN"},
		{"100", "7d"},
		{"100", "fyUSDC-NOPE"},
	}
	for _, tc := range cases {
		if err := f.wf.SetInput(tc.amount, tc.target); !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("SetInput(%q, %q) err = %v", tc.amount, tc.target, err)
		}
	}
	if f.wf.State() != Idle {
		t.Fatalf("state = %s", f.wf.State())
	}
}

func TestSetInputByTenor(t *testing.T) {
	f := newFixture(t, true, 0, false)
	if err := f.wf.SetInput("100", "4M"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	p, ok := f.wf.Pool()
	if !ok || p.Name != "fyUSDC-JAN" {
		t.Fatalf("pool = %+v", p)
	}
}

func TestApprovalThenExecution(t *testing.T) {
	f := newFixture(t, true, 0, true)
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}

	rec, err := f.wf.LockRate(ctx)
	if err != nil {
		t.Fatalf("LockRate: %v", err)
	}
	if f.wf.State() != Settled {
		t.Fatalf("state = %s", f.wf.State())
	}
	if rec.Status != model.TxConfirmed {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.RealizedOutput == nil || rec.RealizedOutput.Value.Int64() != 102_850_000 {
		t.Fatalf("realized = %v", rec.RealizedOutput)
	}
	if len(f.b.Sent("approve")) != 1 {
		t.Fatalf("approve sent %d times", len(f.b.Sent("approve")))
	}
	sells := f.b.Sent("sellBase")
	if len(sells) != 1 {
		t.Fatalf("sellBase sent %d times", len(sells))
	}
	if got := sells[0].Args[1].(*big.Int); got.Int64() != 102_335_750 {
		t.Fatalf("sellBase min = %s", got)
	}
	if _, _, ok := f.wf.Quote(); ok {
		t.Fatalf("quote must be discarded after execution")
	}

	entry, ok, err := f.journal.FindByTxHash(ctx, rec.Hash.Hex())
	if err != nil || !ok {
		t.Fatalf("journal lookup: ok=%v err=%v", ok, err)
	}
	if entry.Status != "confirmed" || entry.RealizedOutput != "102850000" {
		t.Fatalf("journal entry = %+v", entry)
	}
}

func TestLockRateWithoutAutoApprove(t *testing.T) {
	f := newFixture(t, true, 0, false)
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, err := f.wf.LockRate(ctx); !errors.Is(err, model.ErrApprovalRequired) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != AwaitingApproval {
		t.Fatalf("state = %s", f.wf.State())
	}
	if f.b.SentTotal() != 0 {
		t.Fatalf("nothing may be sent without approval")
	}

	if _, err := f.wf.Approve(ctx); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if f.wf.State() != Idle {
		t.Fatalf("state after approval = %s", f.wf.State())
	}
	if _, ok := f.wf.Record(); ok {
		t.Fatalf("approval must not be recorded as a trade")
	}
	if _, err := f.wf.LockRate(ctx); err != nil {
		t.Fatalf("LockRate after approval: %v", err)
	}
	if f.wf.State() != Settled {
		t.Fatalf("state = %s", f.wf.State())
	}
}

func TestSlippageRevert(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	f.b.OnSend(poolAddr, "sellBase", func([]interface{}) chaintest.SendResult {
		return chaintest.SendResult{Revert: "Pool: Too little output"}
	})
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}

	rec, err := f.wf.Execute(ctx)
	if !errors.Is(err, model.ErrSlippageExceeded) {
		t.Fatalf("err = %v", err)
	}
	var txErr *model.TxError
	if !errors.As(err, &txErr) || txErr.Record.ErrorDetail != "Pool: Too little output" {
		t.Fatalf("tx error = %v", err)
	}
	if rec.Status != model.TxFailed {
		t.Fatalf("status = %s", rec.Status)
	}
	if f.wf.State() != Failed {
		t.Fatalf("state = %s", f.wf.State())
	}
	if _, _, ok := f.wf.Quote(); ok {
		t.Fatalf("quote must be discarded after a failed trade")
	}

	// A new quote is needed before retrying.
	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrNoQuote) {
		t.Fatalf("retry err = %v", err)
	}
	if len(f.b.Sent("sellBase")) != 1 {
		t.Fatalf("sellBase must not be resubmitted")
	}
}

func TestRejectedBeforeBroadcast(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	f.b.OnSend(poolAddr, "sellBase", func([]interface{}) chaintest.SendResult {
		return chaintest.SendResult{Reject: chaintest.Revert("Pool: Too little output")}
	})
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}
	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrSlippageExceeded) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != Failed {
		t.Fatalf("state = %s", f.wf.State())
	}
	if f.b.SentTotal() != 0 {
		t.Fatalf("rejected call must not be broadcast")
	}
}

func TestInputChangeInvalidatesQuote(t *testing.T) {
	f := newFixture(t, true, 0, false)
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}
	if err := f.wf.SetInput("200", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if f.wf.State() != PreviewPending {
		t.Fatalf("state = %s", f.wf.State())
	}
	if _, _, ok := f.wf.Quote(); ok {
		t.Fatalf("quote survived an input change")
	}
	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrNoQuote) {
		t.Fatalf("err = %v", err)
	}
}

func TestInputChangeDuringRefresh(t *testing.T) {
	f := newFixture(t, true, 0, false)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.b.OnCall(poolAddr, "sellBasePreview", func(args []interface{}) ([]interface{}, error) {
		once.Do(func() { close(entered) })
		<-release
		return []interface{}{big.NewInt(102_850_000)}, nil
	})
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, _, err := f.wf.RefreshQuote(context.Background())
		errc <- err
	}()
	<-entered
	if err := f.wf.SetInput("250", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, model.ErrStaleQuote) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != PreviewPending {
		t.Fatalf("state = %s", f.wf.State())
	}
	if _, _, ok := f.wf.Quote(); ok {
		t.Fatalf("stale quote was cached")
	}
}

func TestQuoteExpires(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}
	f.advance(31 * time.Second)

	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrStaleQuote) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != PreviewPending {
		t.Fatalf("state = %s", f.wf.State())
	}
	if f.b.SentTotal() != 0 {
		t.Fatalf("stale quote was executed")
	}
}

func TestQuoteExpiresDuringPreflight(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	f.b.OnCall(baseAddr, "balanceOf", func([]interface{}) ([]interface{}, error) {
		f.advance(25 * time.Second)
		return []interface{}{big.NewInt(1_000_000_000)}, nil
	})
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}
	f.advance(10 * time.Second)

	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrStaleQuote) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != PreviewPending {
		t.Fatalf("state = %s", f.wf.State())
	}
	if _, _, ok := f.wf.Quote(); ok {
		t.Fatalf("expired quote was kept")
	}
	if f.b.SentTotal() != 0 {
		t.Fatalf("expired quote was executed")
	}
}

func TestNotConnected(t *testing.T) {
	f := newFixture(t, false, 0, false)
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("quoting must work without a wallet: %v", err)
	}
	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrNotConnected) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != AwaitingConnection {
		t.Fatalf("state = %s", f.wf.State())
	}
	if _, err := f.wf.CheckApproval(ctx); !errors.Is(err, model.ErrNotConnected) {
		t.Fatalf("CheckApproval err = %v", err)
	}
}

func TestConcurrentMutationRejected(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}

	release, err := f.locker.Acquire(ctx, lock.AccountKey(1, trader), time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrMutationInFlight) {
		t.Fatalf("err = %v", err)
	}
	if f.b.SentTotal() != 0 {
		t.Fatalf("transaction sent while another was in flight")
	}
	release()

	if _, err := f.wf.Execute(ctx); err != nil {
		t.Fatalf("Execute after release: %v", err)
	}
}

func TestInsufficientBalance(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	f.b.Returns(baseAddr, "balanceOf", big.NewInt(1_000))
	ctx := context.Background()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(ctx); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}
	if _, err := f.wf.Execute(ctx); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if f.wf.State() != Ready {
		t.Fatalf("state = %s", f.wf.State())
	}
}

func TestConfirmationAbandoned(t *testing.T) {
	f := newFixture(t, true, 0, false)
	f.setAllowance(token.MaxAllowance())
	f.b.OnSend(poolAddr, "sellBase", func([]interface{}) chaintest.SendResult {
		return chaintest.SendResult{Pending: true}
	})
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(context.Background()); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec, err := f.wf.Execute(ctx)
	if !errors.Is(err, model.ErrReceiptTimeout) {
		t.Fatalf("err = %v", err)
	}
	if rec.Status != model.TxConfirming {
		t.Fatalf("status = %s", rec.Status)
	}
	if f.wf.State() != Idle {
		t.Fatalf("state = %s", f.wf.State())
	}

	entry, ok, err := f.journal.FindByTxHash(context.Background(), rec.Hash.Hex())
	if err != nil || !ok || entry.Status != "confirming" {
		t.Fatalf("journal entry = %+v ok=%v err=%v", entry, ok, err)
	}
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, true, 0, false)
	events := f.wf.Subscribe()
	if err := f.wf.SetInput("100", "fyUSDC-JAN"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if _, _, err := f.wf.RefreshQuote(context.Background()); err != nil {
		t.Fatalf("RefreshQuote: %v", err)
	}

	first := <-events
	if first.From != Idle || first.To != PreviewPending {
		t.Fatalf("first event = %s -> %s", first.From, first.To)
	}
	second := <-events
	if second.To != Ready || second.Quote == nil || second.Bound == nil {
		t.Fatalf("second event = %+v", second)
	}
	f.wf.Close()
	if _, ok := <-events; ok {
		t.Fatalf("channel not closed")
	}
}

func TestTransitions(t *testing.T) {
	if canTransition(Idle, Executing) {
		t.Fatalf("Idle -> Executing allowed")
	}
	if canTransition(PreviewPending, Executing) {
		t.Fatalf("PreviewPending -> Executing allowed")
	}
	if !canTransition(Ready, Executing) || !canTransition(Executing, Settled) {
		t.Fatalf("execution path rejected")
	}
	if canTransition(Settled, Executing) {
		t.Fatalf("Settled -> Executing allowed")
	}
}
