// Package workflow drives one user's quote, approval and execution flow for a
// fixed-rate lock.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"forwardlock/internal/amount"
	"forwardlock/internal/approval"
	"forwardlock/internal/chain"
	"forwardlock/internal/lock"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/slippage"
	"forwardlock/internal/storage"
	"forwardlock/internal/token"
	"forwardlock/internal/trade"
	"forwardlock/internal/wallet"
)

// ReserveReader reads pool reserves.
type ReserveReader interface {
	GetReserves(ctx context.Context, p model.Pool) (model.Reserves, error)
}

// Previewer prices a sellBase against the pool.
type Previewer interface {
	PreviewSellBase(ctx context.Context, p model.Pool, in model.Amount) (model.Amount, bool, error)
}

// Config tunes the workflow.
type Config struct {
	ToleranceBps uint32
	// QuoteTimeout bounds a single refresh.
	QuoteTimeout time.Duration
	// QuoteTTL is how long a quote may be executed against.
	QuoteTTL time.Duration
	LockTTL  time.Duration
	// AutoApprove lets LockRate submit the approval itself.
	AutoApprove bool
}

// Deps are the collaborators the workflow is started with.
type Deps struct {
	Session   wallet.Session
	Registry  *pool.Registry
	Caller    chain.Caller
	Reader    ReserveReader
	Previewer Previewer
	Gate      *approval.Gate
	Executor  *trade.Executor
	Locker    lock.Locker
	Journal   storage.Storage
	Logger    *zap.Logger
}

// Workflow is the single source of truth for what happens next. Shared state
// is guarded by mu; network calls run without holding it.
type Workflow struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
	now  func() time.Time

	mu            sync.Mutex
	state         State
	pool          model.Pool
	hasPool       bool
	input         model.Amount
	version       uint64
	quote         *model.Quote
	bound         *model.SlippageBound
	quotedVersion uint64
	record        *model.TransactionRecord
	subs          []chan Event
}

// New creates a workflow in the Idle state.
func New(cfg Config, deps Deps) (*Workflow, error) {
	if cfg.ToleranceBps >= 10000 {
		return nil, model.InvalidInputf("tolerance %d bps must be below 10000", cfg.ToleranceBps)
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Registry == nil || deps.Reader == nil || deps.Previewer == nil {
		return nil, fmt.Errorf("registry, reader and previewer are required")
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Journal == nil {
		deps.Journal = storage.Discard{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{cfg: cfg, deps: deps, log: logger, now: time.Now, state: Idle}, nil
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pool returns the pool resolved by the last SetInput.
func (w *Workflow) Pool() (model.Pool, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool, w.hasPool
}

// Quote returns the cached quote and bound if one is ready.
func (w *Workflow) Quote() (model.Quote, model.SlippageBound, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.quote == nil || w.bound == nil {
		return model.Quote{}, model.SlippageBound{}, false
	}
	return *w.quote, *w.bound, true
}

// Record returns the last transaction record.
func (w *Workflow) Record() (model.TransactionRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.record == nil {
		return model.TransactionRecord{}, false
	}
	return *w.record, true
}

// Subscribe returns a channel of workflow events. Events are dropped for a
// subscriber that does not keep up.
func (w *Workflow) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Close closes all subscription channels.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
}

// setStateLocked moves to next and publishes. Callers hold mu.
func (w *Workflow) setStateLocked(next State, ev Event) error {
	prev := w.state
	if !canTransition(prev, next) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, prev, next)
	}
	w.state = next
	ev.From, ev.To, ev.At = prev, next, w.now()
	if prev != next {
		w.log.Info("workflow state", zap.String("from", prev.String()), zap.String("to", next.String()))
	}
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (w *Workflow) setState(next State, ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setStateLocked(next, ev)
}

// discardQuoteLocked drops the cached quote. Callers hold mu.
func (w *Workflow) discardQuoteLocked() {
	w.quote = nil
	w.bound = nil
}

// SetInput resolves target to a pool and parses amountText in its base
// decimals. Any cached quote is invalidated.
func (w *Workflow) SetInput(amountText, target string) error {
	now := w.now()
	p, err := w.deps.Registry.Select(target, now)
	if err != nil {
		return err
	}
	in, err := amount.Parse(amountText, p.BaseDecimals)
	if err != nil {
		return err
	}
	if !in.IsPositive() {
		return model.InvalidInputf("amount must be greater than zero")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Executing {
		return model.ErrMutationInFlight
	}
	w.pool, w.hasPool = p, true
	w.input = in
	w.version++
	w.discardQuoteLocked()
	w.log.Debug("input set",
		zap.String("pool", p.Name),
		zap.String("amount", in.String()),
		zap.Uint64("version", w.version),
	)
	return w.setStateLocked(PreviewPending, Event{})
}

type inputSnapshot struct {
	pool    model.Pool
	input   model.Amount
	version uint64
}

func (w *Workflow) snapshot() (inputSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Executing {
		return inputSnapshot{}, model.ErrMutationInFlight
	}
	if !w.hasPool || !w.input.IsPositive() {
		return inputSnapshot{}, model.InvalidInputf("amount and tenor are not set")
	}
	return inputSnapshot{pool: w.pool, input: w.input, version: w.version}, nil
}

// RefreshQuote reads reserves and previews the current input concurrently and
// derives the slippage bound. It never blocks longer than the quote timeout;
// on failure the workflow stays PreviewPending and may be refreshed again.
func (w *Workflow) RefreshQuote(ctx context.Context) (model.Quote, model.SlippageBound, error) {
	snap, err := w.snapshot()
	if err != nil {
		return model.Quote{}, model.SlippageBound{}, err
	}

	w.mu.Lock()
	if w.state != PreviewPending {
		w.discardQuoteLocked()
		if err := w.setStateLocked(PreviewPending, Event{}); err != nil {
			w.mu.Unlock()
			return model.Quote{}, model.SlippageBound{}, err
		}
	}
	w.mu.Unlock()

	quote, bound, err := w.computeQuote(ctx, snap)
	if err != nil {
		if !errors.Is(err, model.ErrInvalidInput) {
			w.log.Warn("quote unavailable", zap.String("pool", snap.pool.Name), zap.Error(err))
		}
		w.mu.Lock()
		if w.version == snap.version {
			_ = w.setStateLocked(PreviewPending, Event{Err: err})
		}
		w.mu.Unlock()
		return model.Quote{}, model.SlippageBound{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.version != snap.version || w.state != PreviewPending {
		return model.Quote{}, model.SlippageBound{}, model.ErrStaleQuote
	}
	w.quote, w.bound, w.quotedVersion = &quote, &bound, snap.version
	if err := w.setStateLocked(Ready, Event{Quote: &quote, Bound: &bound}); err != nil {
		return model.Quote{}, model.SlippageBound{}, err
	}
	return quote, bound, nil
}

func (w *Workflow) computeQuote(ctx context.Context, snap inputSnapshot) (model.Quote, model.SlippageBound, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.QuoteTimeout)
	defer cancel()

	var (
		reserves model.Reserves
		expected model.Amount
		ok       bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reserves, err = w.deps.Reader.GetReserves(gctx, snap.pool)
		return err
	})
	g.Go(func() error {
		var err error
		expected, ok, err = w.deps.Previewer.PreviewSellBase(gctx, snap.pool, snap.input)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Quote{}, model.SlippageBound{}, fmt.Errorf("refresh quote: %w", err)
	}
	if !ok {
		return model.Quote{}, model.SlippageBound{}, model.ErrNoQuote
	}

	quote := model.Quote{
		PoolName:             snap.pool.Name,
		InputAmount:          snap.input,
		ExpectedOutputAmount: expected,
		ImpliedRate:          pool.ImpliedRate(reserves),
		ComputedAtReserves:   reserves,
		ComputedAt:           w.now(),
	}
	bound, err := slippage.Bound(quote, w.cfg.ToleranceBps)
	if err != nil {
		return model.Quote{}, model.SlippageBound{}, err
	}
	if bound.MinimumAcceptableOutput.Value.Cmp(expected.Int()) > 0 {
		return model.Quote{}, model.SlippageBound{}, fmt.Errorf("minimum output %s above expected %s", bound.MinimumAcceptableOutput, expected)
	}
	return quote, bound, nil
}

func (w *Workflow) requireConnection() error {
	if w.deps.Session.IsConnected() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.setStateLocked(AwaitingConnection, Event{Err: model.ErrNotConnected})
	return model.ErrNotConnected
}

// CheckApproval re-reads the allowance for the current input. When it is
// insufficient the workflow moves to AwaitingApproval.
func (w *Workflow) CheckApproval(ctx context.Context) (bool, error) {
	if err := w.requireConnection(); err != nil {
		return false, err
	}
	snap, err := w.snapshot()
	if err != nil {
		return false, err
	}
	if w.deps.Gate == nil {
		return false, fmt.Errorf("approval gate is not configured")
	}
	needs, err := w.deps.Gate.NeedsApproval(ctx, snap.pool.BaseToken, w.deps.Session.Address(), snap.pool.Address, snap.input)
	if err != nil {
		return false, err
	}
	if needs {
		_ = w.setState(AwaitingApproval, Event{Err: model.ErrApprovalRequired})
	}
	return needs, nil
}

func (w *Workflow) lockKey() string {
	return lock.AccountKey(w.deps.Session.ChainID(), w.deps.Session.Address())
}

// Approve grants the pool an unbounded allowance over the base token. On
// success the quote is discarded and the workflow returns to Idle.
func (w *Workflow) Approve(ctx context.Context) (model.TransactionRecord, error) {
	if err := w.requireConnection(); err != nil {
		return model.TransactionRecord{}, err
	}
	snap, err := w.snapshot()
	if err != nil {
		return model.TransactionRecord{}, err
	}
	if w.deps.Gate == nil {
		return model.TransactionRecord{}, fmt.Errorf("approval gate is not configured")
	}

	release, err := w.deps.Locker.Acquire(ctx, w.lockKey(), w.cfg.LockTTL)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	defer release()

	rec, err := w.deps.Gate.Approve(ctx, snap.pool.BaseToken, snap.pool.Address, snap.pool.BaseDecimals)
	if err != nil {
		w.mu.Lock()
		_ = w.setStateLocked(AwaitingApproval, Event{Record: &rec, Err: err})
		w.mu.Unlock()
		return rec, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.discardQuoteLocked()
	if err := w.setStateLocked(Idle, Event{Record: &rec}); err != nil {
		return rec, err
	}
	return rec, nil
}

// Execute submits the cached quote as a sellBase and follows it to a terminal
// state. It requires a connected session, a Ready quote computed for the
// current input within the quote TTL, and a sufficient allowance. The quote is
// always discarded afterwards.
func (w *Workflow) Execute(ctx context.Context) (model.TransactionRecord, error) {
	if err := w.requireConnection(); err != nil {
		return model.TransactionRecord{}, err
	}
	if w.deps.Executor == nil || w.deps.Gate == nil {
		return model.TransactionRecord{}, fmt.Errorf("executor is not configured")
	}

	intent, version, err := w.prepareIntent()
	if err != nil {
		return model.TransactionRecord{}, err
	}

	release, err := w.deps.Locker.Acquire(ctx, w.lockKey(), w.cfg.LockTTL)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	defer release()

	if err := w.preflight(ctx, intent); err != nil {
		return model.TransactionRecord{}, err
	}

	w.mu.Lock()
	if w.version != version || w.state != Ready || w.quote == nil {
		w.mu.Unlock()
		return model.TransactionRecord{}, model.ErrStaleQuote
	}
	if age := w.now().Sub(w.quote.ComputedAt); age > w.cfg.QuoteTTL {
		w.discardQuoteLocked()
		_ = w.setStateLocked(PreviewPending, Event{Err: model.ErrStaleQuote})
		w.mu.Unlock()
		return model.TransactionRecord{}, fmt.Errorf("%w: computed %s ago", model.ErrStaleQuote, age.Round(time.Second))
	}
	if err := w.setStateLocked(Executing, Event{}); err != nil {
		w.mu.Unlock()
		return model.TransactionRecord{}, err
	}
	w.mu.Unlock()

	rec, err := w.deps.Executor.SellBase(ctx, intent)
	if err != nil {
		var txErr *model.TxError
		if errors.As(err, &txErr) {
			w.journal(ctx, intent, rec)
			return rec, w.finish(Failed, rec, err)
		}
		// Nothing was broadcast.
		w.mu.Lock()
		w.discardQuoteLocked()
		_ = w.setStateLocked(PreviewPending, Event{Err: err})
		w.mu.Unlock()
		return model.TransactionRecord{}, err
	}

	w.journal(ctx, intent, rec)
	w.mu.Lock()
	w.record = &rec
	w.mu.Unlock()

	rec, err = w.deps.Executor.Await(ctx, intent, rec)
	w.journal(ctx, intent, rec)
	switch {
	case err == nil:
		return rec, w.finish(Settled, rec, nil)
	case rec.Status == model.TxFailed:
		return rec, w.finish(Failed, rec, err)
	default:
		// Confirmation abandoned; the chain remains authoritative.
		return rec, w.finish(Idle, rec, err)
	}
}

// LockRate runs the whole flow for the current input: refresh the quote if
// needed, check the allowance, approve when AutoApprove is set, and execute.
func (w *Workflow) LockRate(ctx context.Context) (model.TransactionRecord, error) {
	if err := w.requireConnection(); err != nil {
		return model.TransactionRecord{}, err
	}
	if !w.hasFreshQuote() {
		if _, _, err := w.RefreshQuote(ctx); err != nil {
			return model.TransactionRecord{}, err
		}
	}

	needs, err := w.CheckApproval(ctx)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	if needs {
		if !w.cfg.AutoApprove {
			return model.TransactionRecord{}, model.ErrApprovalRequired
		}
		if _, err := w.Approve(ctx); err != nil {
			return model.TransactionRecord{}, err
		}
		if _, _, err := w.RefreshQuote(ctx); err != nil {
			return model.TransactionRecord{}, err
		}
	}
	return w.Execute(ctx)
}

func (w *Workflow) hasFreshQuote() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == Ready && w.quote != nil && w.quotedVersion == w.version &&
		w.now().Sub(w.quote.ComputedAt) <= w.cfg.QuoteTTL
}

// prepareIntent validates the cached quote and builds the intent from it.
func (w *Workflow) prepareIntent() (model.TradeIntent, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Executing {
		return model.TradeIntent{}, 0, model.ErrMutationInFlight
	}
	if !w.input.IsPositive() {
		return model.TradeIntent{}, 0, model.InvalidInputf("amount must be greater than zero")
	}
	if w.state != Ready || w.quote == nil || w.bound == nil {
		return model.TradeIntent{}, 0, model.ErrNoQuote
	}
	if w.quotedVersion != w.version {
		w.discardQuoteLocked()
		_ = w.setStateLocked(PreviewPending, Event{Err: model.ErrStaleQuote})
		return model.TradeIntent{}, 0, model.ErrStaleQuote
	}
	if age := w.now().Sub(w.quote.ComputedAt); age > w.cfg.QuoteTTL {
		w.discardQuoteLocked()
		_ = w.setStateLocked(PreviewPending, Event{Err: model.ErrStaleQuote})
		return model.TradeIntent{}, 0, fmt.Errorf("%w: computed %s ago", model.ErrStaleQuote, age.Round(time.Second))
	}
	if w.bound.MinimumAcceptableOutput.Value.Cmp(w.quote.ExpectedOutputAmount.Int()) > 0 {
		return model.TradeIntent{}, 0, fmt.Errorf("minimum output above expected output")
	}

	intent := model.TradeIntent{
		ID:                      uuid.New().String(),
		Pool:                    w.pool,
		Recipient:               w.deps.Session.Address(),
		InputAmount:             w.quote.InputAmount,
		ExpectedOutputAmount:    w.quote.ExpectedOutputAmount,
		MinimumAcceptableOutput: w.bound.MinimumAcceptableOutput,
		ToleranceBps:            w.bound.ToleranceBps,
	}
	return intent, w.version, nil
}

// preflight re-reads balance and allowance; both may have changed out of band.
func (w *Workflow) preflight(ctx context.Context, intent model.TradeIntent) error {
	owner := w.deps.Session.Address()
	if w.deps.Caller != nil {
		balance, err := token.BalanceOf(ctx, w.deps.Caller, intent.Pool.BaseToken, owner)
		if err != nil {
			return fmt.Errorf("check balance: %w", err)
		}
		if balance.Cmp(intent.InputAmount.Int()) < 0 {
			return model.InvalidInputf("insufficient balance: have %s, need %s",
				amount.Format(model.NewAmount(balance, intent.InputAmount.Decimals)), amount.Format(intent.InputAmount))
		}
	}

	needs, err := w.deps.Gate.NeedsApproval(ctx, intent.Pool.BaseToken, owner, intent.Pool.Address, intent.InputAmount)
	if err != nil {
		return err
	}
	if needs {
		w.mu.Lock()
		_ = w.setStateLocked(AwaitingApproval, Event{Err: model.ErrApprovalRequired})
		w.mu.Unlock()
		return model.ErrApprovalRequired
	}
	return nil
}

func (w *Workflow) finish(next State, rec model.TransactionRecord, cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record = &rec
	w.discardQuoteLocked()
	if err := w.setStateLocked(next, Event{Record: &rec, Err: cause}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (w *Workflow) journal(ctx context.Context, intent model.TradeIntent, rec model.TransactionRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	entry := model.NewTradeEntry(intent, rec, w.now().UTC().Format(time.RFC3339))
	if err := w.deps.Journal.PutTradeBatch(ctx, []model.TradeEntry{entry}); err != nil {
		w.log.Warn("journal write failed", zap.String("trade_id", intent.ID), zap.Error(err))
	}
}
