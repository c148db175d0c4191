package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"forwardlock/internal/history"
	"forwardlock/internal/model"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the trades the account received from configured pools",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().String("account", "", "address to inspect when no private key is configured")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per log query")
	cmd.Flags().String("cursor-dir", "", "directory for scan cursors, empty rescans every time")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	account, _ := cmd.Flags().GetString("account")
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")
	batchSize, _ := cmd.Flags().GetUint64("batch-size")
	cursorDir, _ := cmd.Flags().GetString("cursor-dir")

	a, err := setup(ctx, cmd, setupOptions{account: account})
	if err != nil {
		return err
	}
	defer a.Close()

	owner := a.session.Address()
	if owner == (common.Address{}) {
		return model.InvalidInputf("no account: configure a private key or pass --account")
	}

	pools := a.registry.All()
	byAddress := make(map[common.Address]model.Pool, len(pools))
	for _, p := range pools {
		byAddress[p.Address] = p
	}

	scanner := history.NewScanner(history.ScanConfig{
		FromBlock: from,
		ToBlock:   to,
		BatchSize: batchSize,
		ChainID:   a.chainID,
	}, a.client, history.NewCursorStore(cursorDir), a.logger)

	s := newSpinner("Scanning trades...")
	s.Start()
	var fills []history.Fill
	err = scanner.Scan(ctx, pools, owner, func(batch []history.Fill) error {
		fills = append(fills, batch...)
		return nil
	})
	s.Stop()
	if err != nil {
		return err
	}

	if len(fills) == 0 {
		color.Yellow("\nNo trades found for %s.\n\n", owner.Hex())
		return nil
	}

	color.Green("\nTrades received by %s\n", owner.Hex())
	for _, f := range fills {
		p := byAddress[f.PoolAddress]
		base := new(big.Int).Abs(f.BaseDelta)
		fy := new(big.Int).Abs(f.FYTokenDelta)
		fmt.Printf("\n  %s  %s\n", f.Time.Format("2006-01-02 15:04"), color.CyanString(f.Pool))
		fmt.Printf("    Base:        %s\n", units(model.NewAmount(base, p.BaseDecimals), p.BaseSymbol))
		fmt.Printf("    fyToken:     %s\n", units(model.NewAmount(fy, p.BaseDecimals), p.FYSymbol))
		if base.Sign() > 0 {
			rate := decimal.NewFromBigInt(fy, 0).DivRound(decimal.NewFromBigInt(base, 0), 6)
			fmt.Printf("    Rate:        %s\n", rate.StringFixed(6))
		}
		fmt.Printf("    Transaction: %s (block %d)\n", f.TxHash.Hex(), f.BlockNumber)
	}
	fmt.Println()
	return nil
}
