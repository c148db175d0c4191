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
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"forwardlock/internal/approval"
	"forwardlock/internal/lock"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/workflow"
)

func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <pool|tenor|date>",
		Short: "Grant the pool an unlimited allowance over its base token",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprove,
	}
	cmd.Flags().Bool("fytoken", false, "approve the pool's fyToken instead, as unwind requires")
	return cmd
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, setupOptions{locker: true})
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.session.IsConnected() {
		return fmt.Errorf("a private key is required to approve: %w", model.ErrNotConnected)
	}

	p, err := a.registry.Select(args[0], time.Now())
	if err != nil {
		return err
	}
	tokenAddr, symbol := p.BaseToken, p.BaseSymbol
	if fy, _ := cmd.Flags().GetBool("fytoken"); fy {
		tokenAddr, symbol = p.FYToken, p.FYSymbol
	}

	release, err := a.locker.Acquire(ctx, lock.AccountKey(a.chainID, a.session.Address()), a.cfg.LockTTL)
	if err != nil {
		return err
	}
	defer release()

	gate := approval.NewGate(a.client, a.transactor, a.logger)
	s := newSpinner(fmt.Sprintf("Approving %s for %s...", symbol, p.Name))
	s.Start()
	rec, err := gate.Approve(ctx, tokenAddr, p.Address, p.BaseDecimals)
	s.Stop()
	if err != nil {
		if rec.Hash != (common.Hash{}) {
			printRecord(rec, symbol)
		}
		return err
	}
	if rec.Hash == (common.Hash{}) {
		color.Green("\n%s already has an unlimited %s allowance.\n", p.Name, symbol)
		return nil
	}

	color.Green("\nApproval confirmed\n")
	printRecord(rec, p.BaseSymbol)
	fmt.Println()
	return nil
}

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <amount> <pool|tenor|date>",
		Short: "Sell base into a pool and lock the quoted fixed rate",
		Long: `Quote the trade, confirm it, and execute sellBase with a minimum fyToken
output derived from the slippage tolerance.

The pool must be approved to spend the base token first. Use approve, or
pass --auto-approve to submit the approval as part of the flow.

Examples:
  forwardlock lock 1000 fyUSDC-DEC
  forwardlock lock 1000 3M --auto-approve --yes`,
		Args: cobra.ExactArgs(2),
		RunE: runLock,
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().Bool("auto-approve", false, "submit the base token approval if required")
	return cmd
}

func runLock(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("a private key is required to lock a rate: %w", model.ErrNotConnected)
	}

	wf, err := a.newWorkflow(autoApprove)
	if err != nil {
		return err
	}
	defer wf.Close()

	s := newSpinner("Fetching quote...")
	go followWorkflow(wf.Subscribe(), s)

	if err := wf.SetInput(args[0], args[1]); err != nil {
		return err
	}
	p, _ := wf.Pool()

	var rec model.TransactionRecord
	if yes {
		s.Start()
		rec, err = wf.LockRate(ctx)
		s.Stop()
	} else {
		rec, err = interactiveLock(ctx, wf, s, autoApprove)
	}
	if err != nil {
		return explain(err, rec, p, p.FYSymbol, args)
	}

	switch rec.Status {
	case model.TxConfirmed:
		color.Green("\nRate locked\n")
	default:
		color.Yellow("\nTrade submitted, confirmation pending\n")
	}
	printRecord(rec, p.FYSymbol)
	fmt.Println()
	return nil
}

var errCancelled = errors.New("cancelled")

// interactiveLock shows the quote that will be executed and asks before
// sending. Approval, when needed and allowed, happens before the quote so the
// confirmed quote is the executed one.
func interactiveLock(ctx context.Context, wf *workflow.Workflow, s *spinner.Spinner, autoApprove bool) (model.TransactionRecord, error) {
	s.Start()
	needs, err := wf.CheckApproval(ctx)
	if err == nil && needs {
		if autoApprove {
			_, err = wf.Approve(ctx)
		} else {
			err = model.ErrApprovalRequired
		}
	}
	if err == nil {
		_, _, err = wf.RefreshQuote(ctx)
	}
	s.Stop()
	if err != nil {
		return model.TransactionRecord{}, err
	}

	q, bound, ok := wf.Quote()
	if !ok {
		return model.TransactionRecord{}, model.ErrNoQuote
	}
	p, _ := wf.Pool()
	printPreview(preview{
		pool:     p,
		side:     pool.SellBase,
		given:    q.InputAmount,
		computed: q.ExpectedOutputAmount,
		limit:    bound.MinimumAcceptableOutput,
		rate:     q.ImpliedRate,
	}, bound.ToleranceBps, time.Now())

	if !confirm("Lock this rate?") {
		return model.TransactionRecord{}, errCancelled
	}

	s.Start()
	rec, err := wf.Execute(ctx)
	s.Stop()
	return rec, err
}

func followWorkflow(events <-chan workflow.Event, s *spinner.Spinner) {
	for ev := range events {
		var suffix string
		switch ev.To {
		case workflow.PreviewPending:
			suffix = "Fetching quote..."
		case workflow.AwaitingApproval:
			suffix = "Waiting for approval..."
		case workflow.Executing:
			suffix = "Submitting trade and waiting for confirmation..."
		default:
			continue
		}
		s.Lock()
		s.Suffix = " " + suffix
		s.Unlock()
	}
}

// explain prints a hint for err. symbol is the token the trade receives.
func explain(err error, rec model.TransactionRecord, p model.Pool, symbol string, args []string) error {
	if rec.Hash != (common.Hash{}) {
		fmt.Println()
		printRecord(rec, symbol)
	}
	switch {
	case errors.Is(err, errCancelled):
		fmt.Println("\nCancelled.")
		return nil
	case errors.Is(err, model.ErrApprovalRequired):
		color.Yellow("\n%s needs an allowance over %s. Run:\n", p.Name, p.BaseSymbol)
		color.Cyan("  forwardlock approve %s\n", args[1])
		color.Yellow("or pass --auto-approve.\n")
	case errors.Is(err, model.ErrSlippageExceeded):
		color.Red("\nThe rate moved beyond the tolerance. Please retry.\n")
	case errors.Is(err, model.ErrStaleQuote):
		color.Yellow("\nThe quote expired before it was executed. Please retry.\n")
	case errors.Is(err, model.ErrReceiptTimeout):
		color.Yellow("\nThe trade was sent but not yet confirmed. Check it with:\n")
		color.Cyan("  forwardlock status %s\n", rec.Hash.Hex())
	}
	return err
}
