package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/domain"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

var (
	slippageFlag  string
	targetOutFlag string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token-in> [to] <token-out>",
	Short: "Quote a swap without sending anything",
	Long: `Read every candidate route and print the best one with its minimum output.

Tokens are symbols from 'swapctl tokens' or 0x addresses. Slippage is a number of
basis points or one of the presets low (10), medium (50) and high (100).

Examples:
  swapctl quote 1 WETH to USDC
  swapctl quote 250 USDC DAI --slippage low
  swapctl quote 1 WETH to USDC --target-out 5000`,
	Args: cobra.RangeArgs(3, 4),
	Run:  run(runQuote),
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVarP(&slippageFlag, "slippage", "s", "", "Slippage in bps or a preset (low, medium, high)")
	quoteCmd.Flags().StringVar(&targetOutFlag, "target-out", "", "Also print the input needed for this output on the direct pair")
}

// quoteRequest builds the request shared by every trading command.
func quoteRequest(args []string) (aggregator.QuoteRequest, error) {
	amount, tokenIn, tokenOut, err := parseTradeArgs(args)
	if err != nil {
		return aggregator.QuoteRequest{}, err
	}
	req := aggregator.QuoteRequest{
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		Amount:   amount,
	}
	if slippageFlag != "" {
		bps, err := parseSlippage(slippageFlag)
		if err != nil {
			return aggregator.QuoteRequest{}, err
		}
		req.SlippageBps = &bps
	}
	return req, nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	verbose, jsonOutput := outputFlags(cmd)

	req, err := quoteRequest(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, commandLogger(verbose))
	if err != nil {
		return err
	}
	defer a.Close()

	var quote *domain.QuoteResult
	err = withSpinner(jsonOutput, "Reading pools...", func() error {
		quote, err = a.svc.Quote(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	view := newQuoteView(quote, a.label)
	var needed string
	if targetOutFlag != "" {
		if needed, err = inputForOutput(quote, targetOutFlag, a.cfg.Venue.V2Fee); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(struct {
			quoteView
			TargetOut string `json:"targetOut,omitempty"`
			InputFor  string `json:"inputForTarget,omitempty"`
		}{view, targetOutFlag, needed})
	}

	displayQuote(view)
	if needed != "" {
		fmt.Printf("\n  To receive %s %s on the direct pair, pay %s %s\n\n",
			targetOutFlag, quote.TokenOut.Symbol, color.CyanString(needed), quote.TokenIn.Symbol)
	}
	return nil
}

// inputForOutput inverts the direct pair's formula for the target output.
func inputForOutput(quote *domain.QuoteResult, target string, fee uint16) (string, error) {
	direct, ok := quote.Candidates.Direct.Route.(*domain.DirectV2Route)
	if !ok || direct == nil {
		return "", fmt.Errorf("no direct pair for %s/%s", quote.TokenIn.Symbol, quote.TokenOut.Symbol)
	}
	amountOut, err := registry.ParseAmount(target, quote.TokenOut.Decimals)
	if err != nil {
		return "", err
	}
	reserveIn, reserveOut, ok := direct.Pair.Oriented(quote.TokenIn.Address)
	if !ok {
		return "", fmt.Errorf("pair %s does not hold %s", direct.Pair.Pair.Hex(), quote.TokenIn.Symbol)
	}
	amountIn, err := router.QuoteAmountIn(amountOut, reserveIn, reserveOut, fee)
	if err != nil {
		return "", err
	}
	return registry.FormatAmount(amountIn, quote.TokenIn.Decimals), nil
}

// label names an address by its registry symbol, or its hex form.
func (a *app) label(addr common.Address) string {
	if t, err := a.svc.ResolveToken(addr.Hex()); err == nil {
		return t.Symbol
	}
	return addr.Hex()
}
