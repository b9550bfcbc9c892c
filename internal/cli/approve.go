package cli

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/swap-engine/internal/aggregator"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
)

var ownerFlag string

var approveCmd = &cobra.Command{
	Use:   "approve <amount> <token-in> [to] <token-out>",
	Short: "Approve the best route's router to spend the exact input",
	Long: `Quote the trade, then approve the router of the chosen venue for exactly the
input amount. Nothing is sent when the current allowance already covers it.

Examples:
  swapctl approve 100 USDC to WETH
  swapctl approve 100 USDC WETH --urgency low --yes`,
	Args: cobra.RangeArgs(3, 4),
	Run:  run(runApprove),
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance <amount> <token-in> [to] <token-out>",
	Short: "Check whether a trade needs an approval first",
	Long: `Quote the trade and read the owner's current allowance for the chosen router.
The owner defaults to the configured signer.

Examples:
  swapctl allowance 100 USDC to WETH
  swapctl allowance 100 USDC WETH --owner 0x...`,
	Args: cobra.RangeArgs(3, 4),
	Run:  run(runAllowance),
}

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(allowanceCmd)

	approveCmd.Flags().StringVarP(&slippageFlag, "slippage", "s", "", "Slippage in bps or a preset (low, medium, high)")
	approveCmd.Flags().StringVar(&urgencyFlag, "urgency", "", "Fee urgency: low, medium, high or extreme")
	approveCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	approveCmd.Flags().DurationVar(&waitTimeout, "timeout", defaultWaitTimeout, "How long to wait for the receipt")

	allowanceCmd.Flags().StringVar(&ownerFlag, "owner", "", "Token owner (defaults to the signer)")
}

func runApprove(cmd *cobra.Command, args []string) error {
	verbose, jsonOutput := outputFlags(cmd)
	ctx := cmd.Context()
	if err := checkConfirmable(jsonOutput, noConfirm); err != nil {
		return err
	}

	a, err := newApp(ctx, commandLogger(verbose))
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := swapRequest(a, args)
	if err != nil {
		return err
	}

	rec, err := approve(ctx, a, req, jsonOutput)
	if errors.Is(err, aggregator.ErrApprovalNotNeeded) {
		if jsonOutput {
			return printJSON(map[string]interface{}{"needsApproval": false})
		}
		printSuccess("The current allowance already covers this trade.")
		return nil
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(rec)
	}
	displayRecord(rec)
	return nil
}

type allowanceView struct {
	Token         string    `json:"token"`
	Owner         string    `json:"owner"`
	Spender       string    `json:"spender"`
	Current       string    `json:"current"`
	Required      string    `json:"required"`
	NeedsApproval bool      `json:"needsApproval"`
	Balance       string    `json:"balance,omitempty"`
	Insufficient  bool      `json:"insufficientBalance"`
	Quote         quoteView `json:"quote"`
}

func newAllowanceView(res *aggregator.AllowanceResult, label labeler) allowanceView {
	in := res.Quote.TokenIn
	return allowanceView{
		Token:         in.Symbol,
		Owner:         res.Allowance.Owner.Hex(),
		Spender:       res.Allowance.Spender.Hex(),
		Current:       registry.FormatAmount(res.Allowance.Current, in.Decimals),
		Required:      registry.FormatAmount(res.Quote.AmountIn, in.Decimals),
		NeedsApproval: res.NeedsApproval,
		Balance:       formatOptional(res.Balance, in.Decimals),
		Insufficient:  res.InsufficientBalance(),
		Quote:         newQuoteView(res.Quote, label),
	}
}

func formatOptional(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return ""
	}
	return registry.FormatAmount(raw, decimals)
}

func runAllowance(cmd *cobra.Command, args []string) error {
	verbose, jsonOutput := outputFlags(cmd)
	ctx := cmd.Context()

	a, err := newApp(ctx, commandLogger(verbose))
	if err != nil {
		return err
	}
	defer a.Close()

	qr, err := quoteRequest(args)
	if err != nil {
		return err
	}
	req := aggregator.SwapRequest{QuoteRequest: qr}
	switch {
	case ownerFlag != "":
		if !common.IsHexAddress(ownerFlag) {
			return fmt.Errorf("%w: %q", aggregator.ErrInvalidOwner, ownerFlag)
		}
		req.Owner = common.HexToAddress(ownerFlag)
	case a.svc.Signer() != nil:
		req.Owner = a.svc.Signer().Address()
	default:
		return fmt.Errorf("%w: pass --owner or set SWAP_ENGINE_SIGNER_KEY", aggregator.ErrInvalidOwner)
	}

	var res *aggregator.AllowanceResult
	err = withSpinner(jsonOutput, "Reading allowance...", func() error {
		res, err = a.svc.CheckAllowance(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	view := newAllowanceView(res, a.label)
	if jsonOutput {
		return printJSON(view)
	}

	fmt.Println("\n" + rule)
	fmt.Printf("  Token:          %s\n", view.Token)
	fmt.Printf("  Owner:          %s\n", view.Owner)
	fmt.Printf("  Spender:        %s (%s router)\n", view.Spender, view.Quote.Route)
	fmt.Printf("  Allowance:      %s\n", view.Current)
	fmt.Printf("  Required:       %s\n", view.Required)
	if view.Balance != "" {
		fmt.Printf("  Balance:        %s\n", view.Balance)
	}
	if view.Insufficient {
		color.Red("  Balance is below the input amount.")
	}
	if view.NeedsApproval {
		color.Yellow("  Approval required: run 'swapctl approve %s %s to %s'", view.Quote.AmountIn, view.Token, view.Quote.TokenOut)
	} else {
		color.Green("  No approval needed")
	}
	fmt.Println(rule)
	return nil
}
