package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"forwardlock/internal/amount"
	"forwardlock/internal/model"
	"forwardlock/internal/pool"
	"forwardlock/internal/slippage"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <amount> <pool|tenor|date>",
		Short: "Preview a trade and the rate it locks",
		Long: `Preview a trade against a pool without sending anything.

The target is a pool name, a tenor such as 3M, 90D, 12W or 1Y, or a
maturity date (YYYY-MM-DD). A tenor or date selects the open pool with the
latest maturity not after it.

Examples:
  forwardlock quote 1000 fyUSDC-DEC
  forwardlock quote 2,500.50 6M
  forwardlock quote 100 fyUSDC-DEC --side buy-fytoken`,
		Args: cobra.ExactArgs(2),
		RunE: runQuote,
	}
	cmd.Flags().String("side", "sell-base", "sell-base, buy-base, sell-fytoken or buy-fytoken")
	return cmd
}

type preview struct {
	pool     model.Pool
	side     pool.Side
	given    model.Amount
	computed model.Amount
	// limit is the minimum output for sells and the maximum input for buys.
	limit model.Amount
	rate  model.Rate
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sideText, _ := cmd.Flags().GetString("side")
	side, err := pool.ParseSide(sideText)
	if err != nil {
		return err
	}

	a, err := setup(ctx, cmd, setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	s := newSpinner("Fetching quote...")
	s.Start()
	pv, err := a.preview(ctx, side, args[0], args[1])
	s.Stop()
	if err != nil {
		return err
	}

	printPreview(pv, a.cfg.ToleranceBps, time.Now())
	return nil
}

// preview quotes sell-base through the workflow and the remaining sides
// directly against the pool.
func (a *app) preview(ctx context.Context, side pool.Side, amountText, target string) (preview, error) {
	if side == pool.SellBase {
		wf, err := a.newWorkflow(false)
		if err != nil {
			return preview{}, err
		}
		defer wf.Close()
		if err := wf.SetInput(amountText, target); err != nil {
			return preview{}, err
		}
		q, bound, err := wf.RefreshQuote(ctx)
		if err != nil {
			return preview{}, err
		}
		p, _ := wf.Pool()
		return preview{
			pool:     p,
			side:     side,
			given:    q.InputAmount,
			computed: q.ExpectedOutputAmount,
			limit:    bound.MinimumAcceptableOutput,
			rate:     q.ImpliedRate,
		}, nil
	}

	p, err := a.registry.Select(target, time.Now())
	if err != nil {
		return preview{}, err
	}
	given, err := amount.Parse(amountText, p.BaseDecimals)
	if err != nil {
		return preview{}, err
	}
	if !given.IsPositive() {
		return preview{}, model.InvalidInputf("amount must be greater than zero")
	}

	qctx, cancel := context.WithTimeout(ctx, a.cfg.QuoteTimeout)
	defer cancel()

	var (
		reserves model.Reserves
		computed model.Amount
		ok       bool
	)
	g, gctx := errgroup.WithContext(qctx)
	g.Go(func() (err error) {
		reserves, err = pool.NewReader(a.client, a.logger).GetReserves(gctx, p)
		return err
	})
	g.Go(func() (err error) {
		computed, ok, err = pool.NewPreviewer(a.client, a.logger).Preview(gctx, p, side, given)
		return err
	})
	if err := g.Wait(); err != nil {
		return preview{}, err
	}
	if !ok {
		return preview{}, model.ErrNoQuote
	}

	var limit model.Amount
	if side.IsBuy() {
		limit, err = slippage.MaxInput(computed, a.cfg.ToleranceBps)
	} else {
		limit, err = slippage.MinOutput(computed, a.cfg.ToleranceBps)
	}
	if err != nil {
		return preview{}, err
	}
	return preview{pool: p, side: side, given: given, computed: computed, limit: limit, rate: pool.ImpliedRate(reserves)}, nil
}

// legs names the tokens paid and received, in that order.
func (pv preview) legs() (string, string) {
	base, fy := pv.pool.BaseSymbol, pv.pool.FYSymbol
	switch pv.side {
	case pool.BuyBase, pool.SellFYToken:
		return fy, base
	default:
		return base, fy
	}
}

func printPreview(pv preview, toleranceBps uint32, now time.Time) {
	paySym, receiveSym := pv.legs()
	p := pv.pool

	color.Green("\nQuote (%s)\n", pv.side)
	fmt.Printf("\n  Pool:          %s, matures %s (%d days)\n", color.CyanString(p.Name), p.MaturityTime().Format("2006-01-02"), p.DaysToMaturity(now))
	if pv.side.IsBuy() {
		fmt.Printf("  You receive:   %s\n", units(pv.given, receiveSym))
		fmt.Printf("  You pay:       %s\n", color.YellowString(units(pv.computed, paySym)))
		fmt.Printf("  Maximum paid:  %s (%d bps)\n", units(pv.limit, paySym), toleranceBps)
	} else {
		fmt.Printf("  You pay:       %s\n", units(pv.given, paySym))
		fmt.Printf("  You receive:   %s\n", color.GreenString(units(pv.computed, receiveSym)))
		fmt.Printf("  Minimum:       %s (%d bps)\n", units(pv.limit, receiveSym), toleranceBps)
	}

	if !pv.rate.Available {
		fmt.Printf("  Implied rate:  %s\n", color.YellowString("unavailable"))
		fmt.Println()
		return
	}
	fmt.Printf("  Implied rate:  %s\n", pv.rate.Value.StringFixed(6))
	fmt.Printf("  APR:           %s\n", percent(pool.APR(pv.rate, p.TimeToMaturity(now))))
	if pv.side == pool.SellBase {
		base := decimal.NewFromBigInt(pv.given.Int(), -int32(pv.given.Decimals))
		if at, ok := pool.CounterAmount(base, pv.rate); ok {
			fmt.Printf("  At pool rate:  %s %s\n", amount.Group(at.StringFixed(int32(pv.given.Decimals))), receiveSym)
		}
	}
	fmt.Println()
}
