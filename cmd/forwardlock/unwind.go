package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forwardlock/internal/amount"
	"forwardlock/internal/approval"
	"forwardlock/internal/lock"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/token"
	"forwardlock/internal/trade"
)

func newUnwindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unwind <base-amount> <pool|tenor|date>",
		Short: "Buy base back from a pool with fyToken before maturity",
		Long: `Quote and execute buyBase: receive exactly the given amount of base and pay
fyToken for it, at most the previewed cost plus the slippage tolerance.

The pool must be approved to spend the fyToken. Use approve --fytoken, or
pass --auto-approve.

Examples:
  forwardlock unwind 500 fyUSDC-DEC
  forwardlock unwind 500 fyUSDC-DEC --auto-approve --yes`,
		Args: cobra.ExactArgs(2),
		RunE: runUnwind,
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().Bool("auto-approve", false, "submit the fyToken approval if required")
	return cmd
}

func runUnwind(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	yes, _ := cmd.Flags().GetBool("yes")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	a, err := setup(ctx, cmd, setupOptions{journal: true, locker: true})
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.session.IsConnected() {
		return fmt.Errorf("a private key is required to unwind: %w", model.ErrNotConnected)
	}

	s := newSpinner("Fetching quote...")
	s.Start()
	pv, err := a.preview(ctx, pool.BuyBase, args[0], args[1])
	s.Stop()
	if err != nil {
		return err
	}
	p := pv.pool
	intent := model.TradeIntent{
		ID:                      uuid.New().String(),
		Kind:                    model.BuyBaseTrade,
		Pool:                    p,
		Recipient:               a.session.Address(),
		InputAmount:             pv.computed,
		ExpectedOutputAmount:    pv.given,
		MinimumAcceptableOutput: pv.given,
		MaximumAcceptableInput:  pv.limit,
		ToleranceBps:            a.cfg.ToleranceBps,
	}

	printPreview(pv, a.cfg.ToleranceBps, time.Now())
	if !yes && !confirm("Unwind at this price?") {
		fmt.Println("\nCancelled.")
		return nil
	}

	rec, err := a.unwind(ctx, intent, autoApprove, s)
	if err != nil {
		if errors.Is(err, model.ErrApprovalRequired) {
			color.Yellow("\n%s needs an allowance over %s. Run:\n", p.Name, p.FYSymbol)
			color.Cyan("  forwardlock approve %s --fytoken\n", args[1])
			color.Yellow("or pass --auto-approve.\n")
			return err
		}
		return explain(err, rec, p, p.BaseSymbol, args)
	}

	switch rec.Status {
	case model.TxConfirmed:
		color.Green("\nUnwound\n")
	default:
		color.Yellow("\nTrade submitted, confirmation pending\n")
	}
	printRecord(rec, p.BaseSymbol)
	fmt.Println()
	return nil
}

// unwind runs the buyBase under the account lock: fyToken balance and
// allowance are re-read before anything is sent.
func (a *app) unwind(ctx context.Context, intent model.TradeIntent, autoApprove bool, s *spinner.Spinner) (model.TransactionRecord, error) {
	p := intent.Pool
	owner := a.session.Address()

	release, err := a.locker.Acquire(ctx, lock.AccountKey(a.chainID, owner), a.cfg.LockTTL)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	defer release()

	balance, err := token.BalanceOf(ctx, a.client, p.FYToken, owner)
	if err != nil {
		return model.TransactionRecord{}, fmt.Errorf("check fyToken balance: %w", err)
	}
	if balance.Cmp(intent.InputAmount.Int()) < 0 {
		return model.TransactionRecord{}, model.InvalidInputf("insufficient %s: have %s, need about %s", p.FYSymbol,
			amount.Format(model.NewAmount(balance, intent.InputAmount.Decimals)), amount.Format(intent.InputAmount))
	}

	gate := approval.NewGate(a.client, a.submitter(), a.logger)
	needs, err := gate.NeedsApproval(ctx, p.FYToken, owner, p.Address, intent.MaximumAcceptableInput)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	if needs {
		if !autoApprove {
			return model.TransactionRecord{}, model.ErrApprovalRequired
		}
		s.Suffix = " Approving " + p.FYSymbol + "..."
		s.Start()
		_, err := gate.Approve(ctx, p.FYToken, p.Address, p.BaseDecimals)
		s.Stop()
		if err != nil {
			return model.TransactionRecord{}, err
		}
	}

	ex := trade.NewExecutor(a.submitter(), a.logger)
	s.Suffix = " Submitting trade and waiting for confirmation..."
	s.Start()
	defer s.Stop()
	rec, err := ex.BuyBase(ctx, intent)
	if err != nil {
		var txErr *model.TxError
		if errors.As(err, &txErr) {
			a.journalTrade(ctx, intent, rec)
		}
		return rec, err
	}
	a.journalTrade(ctx, intent, rec)

	rec, err = ex.Await(ctx, intent, rec)
	a.journalTrade(ctx, intent, rec)
	return rec, err
}

func (a *app) journalTrade(ctx context.Context, intent model.TradeIntent, rec model.TransactionRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	entry := model.NewTradeEntry(intent, rec, time.Now().UTC().Format(time.RFC3339))
	if err := a.journal.PutTradeBatch(ctx, []model.TradeEntry{entry}); err != nil {
		a.logger.Warn("journal write failed", zap.String("trade_id", intent.ID), zap.Error(err))
	}
}
