package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/token"
)

func newPoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List configured pools",
		Args:  cobra.NoArgs,
		RunE:  runPools,
	}
	cmd.Flags().Bool("verify", false, "check configured addresses and maturity against the pool contract")
	cmd.Flags().Bool("rates", false, "read reserves and show implied rates")
	return cmd
}

type poolRow struct {
	rate      model.Rate
	verifyErr error
	readErr   error
}

func runPools(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	verify, _ := cmd.Flags().GetBool("verify")
	rates, _ := cmd.Flags().GetBool("rates")

	pools := a.registry.All()
	rows := make([]poolRow, len(pools))
	if verify || rates {
		reader := pool.NewReader(a.client, a.logger)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, p := range pools {
			i, p := i, p
			g.Go(func() error {
				if verify {
					rows[i].verifyErr = pool.Verify(gctx, a.client, p)
				}
				if rates && !p.Matured(time.Now()) {
					reserves, err := reader.GetReserves(gctx, p)
					if err != nil {
						rows[i].readErr = err
						return nil
					}
					rows[i].rate = pool.ImpliedRate(reserves)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	now := time.Now()
	color.Green("\nConfigured pools (chain %d)\n", a.chainID)
	for i, p := range pools {
		fmt.Printf("\n  %s\n", color.CyanString(p.Name))
		fmt.Printf("    Address:     %s\n", p.Address.Hex())
		fmt.Printf("    Base:        %s %s (%d decimals)\n", p.BaseSymbol, p.BaseToken.Hex(), p.BaseDecimals)
		fmt.Printf("    fyToken:     %s %s\n", p.FYSymbol, p.FYToken.Hex())
		if p.Matured(now) {
			fmt.Printf("    Maturity:    %s %s\n", p.MaturityTime().Format("2006-01-02"), color.RedString("(matured)"))
		} else {
			fmt.Printf("    Maturity:    %s (%d days)\n", p.MaturityTime().Format("2006-01-02"), p.DaysToMaturity(now))
		}
		fmt.Printf("    Fee:         %d bps\n", p.FeeBps)

		row := rows[i]
		if verify {
			if row.verifyErr != nil {
				fmt.Printf("    Verified:    %s\n", color.RedString(row.verifyErr.Error()))
			} else {
				fmt.Printf("    Verified:    %s\n", color.GreenString("ok"))
			}
		}
		if rates {
			switch {
			case row.readErr != nil:
				fmt.Printf("    Rate:        %s\n", color.RedString(row.readErr.Error()))
			case row.rate.Available:
				apr := pool.APR(row.rate, p.TimeToMaturity(now))
				fmt.Printf("    Rate:        %s (%s APR)\n", row.rate.Value.StringFixed(6), percent(apr))
			case !p.Matured(now):
				fmt.Printf("    Rate:        %s\n", color.YellowString("unavailable"))
			}
		}
	}
	fmt.Println()
	return nil
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show base, fyToken balances and pool allowances of the account",
		Args:  cobra.NoArgs,
		RunE:  runBalance,
	}
	cmd.Flags().String("account", "", "address to inspect when no private key is configured")
	return cmd
}

func runBalance(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	account, _ := cmd.Flags().GetString("account")
	a, err := setup(ctx, cmd, setupOptions{account: account})
	if err != nil {
		return err
	}
	defer a.Close()

	owner := a.session.Address()
	if owner == (common.Address{}) {
		return model.InvalidInputf("no account: configure a private key or pass --account")
	}

	color.Green("\nAccount %s\n", owner.Hex())
	for _, p := range a.registry.All() {
		var base, fy, allowance *big.Int
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			base, err = token.BalanceOf(gctx, a.client, p.BaseToken, owner)
			return err
		})
		g.Go(func() (err error) {
			fy, err = token.BalanceOf(gctx, a.client, p.FYToken, owner)
			return err
		})
		g.Go(func() (err error) {
			allowance, err = token.Allowance(gctx, a.client, p.BaseToken, owner, p.Address)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("pool %s: %w", p.Name, err)
		}

		fmt.Printf("\n  %s\n", color.CyanString(p.Name))
		fmt.Printf("    %-12s %s\n", p.BaseSymbol+":", units(model.NewAmount(base, p.BaseDecimals), ""))
		fmt.Printf("    %-12s %s\n", p.FYSymbol+":", units(model.NewAmount(fy, p.BaseDecimals), ""))
		switch {
		case token.IsUnbounded(allowance):
			fmt.Printf("    %-12s %s\n", "Allowance:", color.GreenString("unlimited"))
		case allowance.Sign() == 0:
			fmt.Printf("    %-12s %s\n", "Allowance:", color.YellowString("none"))
		default:
			fmt.Printf("    %-12s %s\n", "Allowance:", units(model.NewAmount(allowance, p.BaseDecimals), p.BaseSymbol))
		}
	}
	fmt.Println()
	return nil
}

func percent(r model.Rate) string {
	if !r.Available {
		return "n/a"
	}
	return r.Value.Shift(2).StringFixed(2) + "%"
}
