package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/domain"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
)

const defaultWaitTimeout = 3 * time.Minute

// ErrConfirmationRequired is returned for --json runs without --yes.
var ErrConfirmationRequired = errors.New("--json cannot prompt for confirmation, pass --yes to sign")

var (
	recipientFlag string
	deadlineFlag  int
	urgencyFlag   string
	noConfirm     bool
	waitTimeout   time.Duration
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <token-in> [to] <token-out>",
	Short: "Quote, approve if needed and execute a swap",
	Long: `Quote the swap afresh, approve the router for the exact input when the allowance is
short, then sign the swap with the configured key and wait for its receipt.

A failed transaction is reported with its reason and never retried. JSON output cannot
prompt, so --json also needs --yes.

Examples:
  swapctl swap 100 USDC to WETH
  swapctl swap 0.5 WETH USDC --slippage 30 --deadline 10 --urgency high
  swapctl swap 100 USDC to WETH --recipient 0x... --yes`,
	Args: cobra.RangeArgs(3, 4),
	Run:  run(runSwap),
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVarP(&slippageFlag, "slippage", "s", "", "Slippage in bps or a preset (low, medium, high)")
	swapCmd.Flags().StringVar(&recipientFlag, "recipient", "", "Address receiving the output (defaults to the signer)")
	swapCmd.Flags().IntVar(&deadlineFlag, "deadline", 0, "Deadline in minutes, 1 to 120 (default from config)")
	swapCmd.Flags().StringVar(&urgencyFlag, "urgency", "", "Fee urgency: low, medium, high or extreme")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().DurationVar(&waitTimeout, "timeout", defaultWaitTimeout, "How long to wait for each receipt")
}

// swapRequest binds a trade to the signer's account.
func swapRequest(a *app, args []string) (aggregator.SwapRequest, error) {
	signer := a.svc.Signer()
	if signer == nil {
		return aggregator.SwapRequest{}, fmt.Errorf("%w: set SWAP_ENGINE_SIGNER_KEY", aggregator.ErrNoSigner)
	}
	qr, err := quoteRequest(args)
	if err != nil {
		return aggregator.SwapRequest{}, err
	}
	req := aggregator.SwapRequest{
		QuoteRequest:    qr,
		Owner:           signer.Address(),
		DeadlineMinutes: deadlineFlag,
		Urgency:         urgencyFlag,
	}
	if recipientFlag != "" {
		if !common.IsHexAddress(recipientFlag) {
			return aggregator.SwapRequest{}, fmt.Errorf("invalid recipient %q", recipientFlag)
		}
		req.Recipient = common.HexToAddress(recipientFlag)
	}
	return req, nil
}

// checkConfirmable refuses JSON runs that did not opt out of the prompt explicitly.
func checkConfirmable(jsonOutput, skipPrompt bool) error {
	if jsonOutput && !skipPrompt {
		return ErrConfirmationRequired
	}
	return nil
}

func runSwap(cmd *cobra.Command, args []string) error {
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

	var plan *aggregator.Plan
	err = withSpinner(jsonOutput, "Preparing swap...", func() error {
		plan, err = a.svc.PrepareSwap(ctx, req)
		return err
	})
	if errors.Is(err, aggregator.ErrApprovalRequired) {
		if !jsonOutput {
			q := plan.Quote
			color.Yellow("\nThe router may not spend %s %s yet.", registry.FormatAmount(q.AmountIn, q.TokenIn.Decimals), q.TokenIn.Symbol)
		}
		if _, err := approve(ctx, a, req, jsonOutput); err != nil {
			return err
		}
		err = withSpinner(jsonOutput, "Preparing swap...", func() error {
			plan, err = a.svc.PrepareSwap(ctx, req)
			return err
		})
	}
	if err != nil {
		if plan != nil && plan.Prepared != nil && !jsonOutput {
			displayPlan(newPlanView(plan, a.label))
		}
		return err
	}

	rec, err := execute(ctx, a, plan, jsonOutput)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(struct {
			Plan   planView         `json:"plan"`
			Result *domain.TxRecord `json:"result"`
		}{newPlanView(plan, a.label), rec})
	}
	displayRecord(rec)
	if rec.State == domain.TxConfirmed {
		printSuccess("Swap confirmed.")
		return nil
	}
	return fmt.Errorf("swap %s: %s", rec.State, rec.Reason)
}

// approve prepares and executes an approval for the trade's exact input.
func approve(ctx context.Context, a *app, req aggregator.SwapRequest, jsonOutput bool) (*domain.TxRecord, error) {
	var plan *aggregator.Plan
	var err error
	err = withSpinner(jsonOutput, "Preparing approval...", func() error {
		plan, err = a.svc.PrepareApprove(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	rec, err := execute(ctx, a, plan, jsonOutput)
	if err != nil {
		return nil, err
	}
	if rec.State != domain.TxConfirmed {
		return rec, fmt.Errorf("approval %s: %s", rec.State, rec.Reason)
	}
	if !jsonOutput {
		color.Green("Approval confirmed in block %d.", rec.Block)
	}
	return rec, nil
}

// execute shows the prepared transaction, asks for confirmation, signs it and waits for the
// receipt. A declined prompt rejects the transaction.
func execute(ctx context.Context, a *app, plan *aggregator.Plan, jsonOutput bool) (*domain.TxRecord, error) {
	id := plan.Prepared.Record.ID
	if !jsonOutput {
		displayPlan(newPlanView(plan, a.label))
	}
	if err := checkConfirmable(jsonOutput, noConfirm); err != nil {
		if _, rerr := a.svc.Reject(ctx, id, "confirmation required"); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}
	if !noConfirm && !jsonOutput && !confirm(fmt.Sprintf("Sign and send this %s?", plan.Prepared.Record.Kind)) {
		if _, err := a.svc.Reject(ctx, id, "cancelled by user"); err != nil {
			return nil, err
		}
		return nil, errors.New("cancelled")
	}

	rec, err := a.svc.SignAndSubmit(ctx, id)
	if err != nil {
		return rec, err
	}
	hash := rec.Hash
	if !jsonOutput {
		fmt.Printf("\n  Sent %s\n", color.CyanString(hash))
	}

	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	err = withSpinner(jsonOutput, "Waiting for receipt...", func() error {
		rec, err = a.svc.Wait(waitCtx, id)
		return err
	})
	if rec != nil && rec.State.Terminal() {
		// reverts come back as a failed record
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("transaction %s was sent but not confirmed yet, check 'swapctl status %s': %w", hash, id, err)
	}
	return rec, nil
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
