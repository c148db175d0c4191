package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/trade"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <tx-hash>",
		Short: "Show the on-chain outcome of a submitted trade",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	cmd.Flags().Bool("wait", false, "wait for the receipt if the transaction is still pending")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	text := strings.TrimSpace(args[0])
	if len(strings.TrimPrefix(text, "0x")) != 64 {
		return model.InvalidInputf("invalid transaction hash %q", text)
	}
	hash := common.HexToHash(text)
	wait, _ := cmd.Flags().GetBool("wait")

	a, err := setup(ctx, cmd, setupOptions{journal: true})
	if err != nil {
		return err
	}
	defer a.Close()

	receipt, mined, err := a.watcher.Lookup(ctx, hash)
	if err != nil {
		return err
	}
	if !mined && wait {
		s := newSpinner("Waiting for confirmation...")
		s.Start()
		receipt, err = a.watcher.WaitForReceipt(ctx, hash)
		s.Stop()
		if err != nil {
			return err
		}
		mined = true
	}

	entry, journaled, err := a.journal.FindByTxHash(ctx, hash.Hex())
	if err != nil {
		a.logger.Warn("journal lookup failed", zap.String("tx", hash.Hex()), zap.Error(err))
	}

	if !mined {
		color.Yellow("\nTransaction %s is pending or unknown.\n\n", hash.Hex())
		return nil
	}
	if !journaled {
		printReceipt(receipt)
		return nil
	}

	intent, rec, err := a.restore(entry)
	if err != nil {
		return err
	}
	symbol := intent.Pool.FYSymbol
	if intent.Kind == model.BuyBaseTrade {
		symbol = intent.Pool.BaseSymbol
	}
	if !rec.Status.Terminal() {
		var settleErr error
		rec, settleErr = trade.NewExecutor(nil, a.logger).Settle(intent, rec, receipt)
		if settleErr != nil && !rec.Status.Terminal() {
			return settleErr
		}
		a.journalTrade(ctx, intent, rec)
	}

	color.Green("\nTrade %s (%s) on %s\n", intent.ID, intent.Kind, intent.Pool.Name)
	if intent.Kind == model.BuyBaseTrade {
		fmt.Printf("  Receive:      %s\n", units(intent.ExpectedOutputAmount, symbol))
		fmt.Printf("  Max paid:     %s\n", units(intent.MaximumAcceptableInput, intent.Pool.FYSymbol))
	} else {
		fmt.Printf("  Paid:         %s\n", units(intent.InputAmount, intent.Pool.BaseSymbol))
		fmt.Printf("  Minimum:      %s\n", units(intent.MinimumAcceptableOutput, symbol))
	}
	printRecord(rec, symbol)
	fmt.Println()
	return nil
}

func printReceipt(r chain.Receipt) {
	color.Green("\nTransaction %s\n", r.TxHash.Hex())
	if r.Succeeded {
		fmt.Printf("  Status:       %s\n", color.GreenString("succeeded"))
	} else {
		fmt.Printf("  Status:       %s\n", color.RedString("reverted"))
	}
	fmt.Printf("  Block:        %d\n", r.BlockNumber)
	if r.RevertReason != "" {
		fmt.Printf("  Reason:       %s\n", color.RedString(r.RevertReason))
	}
	for _, lg := range r.Logs {
		if ev, err := pool.DecodeTrade(lg); err == nil {
			fmt.Printf("  Trade:        base %s, fyToken %s\n", ev.BaseDelta, ev.FYTokenDelta)
		}
	}
	fmt.Println()
}

// restore rebuilds the intent and record of a journaled trade.
func (a *app) restore(e model.TradeEntry) (model.TradeIntent, model.TransactionRecord, error) {
	p, err := a.registry.Resolve(e.PoolName)
	if err != nil {
		p = model.Pool{Name: e.PoolName, Address: common.HexToAddress(e.PoolAddress)}
	}

	parse := func(field, v string) (model.Amount, error) {
		if v == "" {
			return model.NewAmount(nil, p.BaseDecimals), nil
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return model.Amount{}, fmt.Errorf("journal entry %s: bad %s %q", e.ID, field, v)
		}
		return model.NewAmount(n, p.BaseDecimals), nil
	}
	in, err := parse("input_amount", e.InputAmount)
	if err != nil {
		return model.TradeIntent{}, model.TransactionRecord{}, err
	}
	expected, err := parse("expected_output", e.ExpectedOutput)
	if err != nil {
		return model.TradeIntent{}, model.TransactionRecord{}, err
	}
	minOut, err := parse("minimum_output", e.MinimumOutput)
	if err != nil {
		return model.TradeIntent{}, model.TransactionRecord{}, err
	}
	maxIn, err := parse("maximum_input", e.MaximumInput)
	if err != nil {
		return model.TradeIntent{}, model.TransactionRecord{}, err
	}
	kind, err := model.ParseTradeKind(e.Kind)
	if err != nil {
		return model.TradeIntent{}, model.TransactionRecord{}, fmt.Errorf("journal entry %s: %w", e.ID, err)
	}

	intent := model.TradeIntent{
		ID:                      e.ID,
		Kind:                    kind,
		Pool:                    p,
		Recipient:               common.HexToAddress(e.Recipient),
		InputAmount:             in,
		ExpectedOutputAmount:    expected,
		MinimumAcceptableOutput: minOut,
		MaximumAcceptableInput:  maxIn,
		ToleranceBps:            e.ToleranceBps,
	}
	rec := model.TransactionRecord{
		Hash:        common.HexToHash(e.TxHash),
		Status:      parseStatus(e.Status),
		ErrorDetail: e.ErrorDetail,
		BlockNumber: e.BlockNumber,
	}
	if e.RealizedOutput != "" {
		realized, err := parse("realized_output", e.RealizedOutput)
		if err != nil {
			return model.TradeIntent{}, model.TransactionRecord{}, err
		}
		rec.RealizedOutput = &realized
	}
	if t, err := time.Parse(time.RFC3339, e.RecordedAt); err == nil {
		rec.UpdatedAt = t
	}
	return intent, rec, nil
}

func parseStatus(s string) model.TxStatus {
	for _, st := range []model.TxStatus{model.TxSubmitted, model.TxConfirming, model.TxConfirmed, model.TxFailed} {
		if st.String() == s {
			return st
		}
	}
	return model.TxSubmitted
}
