package cli

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/domain"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

const rule = "============================================================"

// labeler names a token address for display.
type labeler func(common.Address) string

type candidateView struct {
	Route     string `json:"route"`
	AmountOut string `json:"amountOut,omitempty"`
	Error     string `json:"error,omitempty"`
}

type quoteView struct {
	TokenIn        string          `json:"tokenIn"`
	TokenOut       string          `json:"tokenOut"`
	AmountIn       string          `json:"amountIn"`
	AmountOut      string          `json:"amountOut"`
	MinOut         string          `json:"minOut"`
	Route          string          `json:"route"`
	Path           []string        `json:"path"`
	SlippageBps    uint16          `json:"slippageBps"`
	PriceImpactBps *uint16         `json:"priceImpactBps,omitempty"`
	Warning        string          `json:"warning,omitempty"`
	Candidates     []candidateView `json:"candidates"`
}

func newQuoteView(q *domain.QuoteResult, label labeler) quoteView {
	v := quoteView{
		TokenIn:     q.TokenIn.Symbol,
		TokenOut:    q.TokenOut.Symbol,
		AmountIn:    registry.FormatAmount(q.AmountIn, q.TokenIn.Decimals),
		AmountOut:   registry.FormatAmount(q.Best.AmountOut(), q.TokenOut.Decimals),
		MinOut:      registry.FormatAmount(q.MinOut, q.TokenOut.Decimals),
		Route:       q.Best.Kind().String(),
		SlippageBps: q.SlippageBps,
	}
	for _, addr := range q.Best.Path() {
		v.Path = append(v.Path, label(addr))
	}
	if q.PriceImpactKnown {
		bps := q.PriceImpactBps
		v.PriceImpactBps = &bps
		v.Warning = router.GetPriceImpactWarning(bps)
	}
	for _, c := range q.Candidates.All() {
		cv := candidateView{Route: c.Kind.String()}
		switch {
		case c.Err != nil:
			cv.Error = c.Err.Error()
		case c.Available():
			cv.AmountOut = registry.FormatAmount(c.Route.AmountOut(), q.TokenOut.Decimals)
		}
		v.Candidates = append(v.Candidates, cv)
	}
	return v
}

type feeView struct {
	GasLimit     uint64 `json:"gasLimit"`
	MaxFeeGwei   string `json:"maxFeeGwei"`
	TipGwei      string `json:"tipGwei"`
	MaxCostEth   string `json:"maxCostEth"`
	Urgency      string `json:"urgency"`
	GasDefaulted bool   `json:"gasDefaulted,omitempty"`
}

type planView struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	State    string     `json:"state"`
	To       string     `json:"to"`
	Nonce    uint64     `json:"nonce"`
	Deadline int64      `json:"deadline,omitempty"`
	Fees     *feeView   `json:"fees,omitempty"`
	Quote    *quoteView `json:"quote,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func newPlanView(plan *aggregator.Plan, label labeler) planView {
	var v planView
	if plan.Quote != nil {
		q := newQuoteView(plan.Quote, label)
		v.Quote = &q
	}
	if plan.Prepared == nil {
		return v
	}
	rec := plan.Prepared.Record
	v.ID = rec.ID
	v.Kind = string(rec.Kind)
	v.State = rec.State.String()
	v.To = rec.To
	v.Nonce = rec.Nonce
	v.Deadline = rec.Deadline
	v.Reason = rec.Reason
	v.Fees = newFeeView(plan.Prepared)
	return v
}

func newFeeView(p *executor.Prepared) *feeView {
	if p.Priority == nil {
		return nil
	}
	return &feeView{
		GasLimit:     p.Priority.GasLimit,
		MaxFeeGwei:   formatUnits(p.Priority.MaxFee, 9),
		TipGwei:      formatUnits(p.Priority.TipCap, 9),
		MaxCostEth:   formatUnits(p.Priority.MaxCost, 18),
		Urgency:      p.Priority.Urgency.String(),
		GasDefaulted: p.Priority.Defaulted,
	}
}

func formatUnits(v *big.Int, decimals uint8) string {
	return registry.FormatAmount(v, decimals)
}

// formatBps renders basis points as a percentage, e.g. 50 -> "0.50%".
func formatBps(bps uint16) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}

// parseSlippage accepts a preset name or a number of basis points.
func parseSlippage(raw string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return domain.SlippageLowBps, nil
	case "medium":
		return domain.SlippageMediumBps, nil
	case "high":
		return domain.SlippageHighBps, nil
	}
	bps, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is neither a preset nor basis points", domain.ErrSlippageOutOfRange, raw)
	}
	if err := domain.ValidateSlippageBps(uint16(bps)); err != nil {
		return 0, err
	}
	return uint16(bps), nil
}

// parseTradeArgs reads "<amount> <token-in> <token-out>" with an optional "to" between the
// tokens.
func parseTradeArgs(args []string) (amount, tokenIn, tokenOut string, err error) {
	switch {
	case len(args) == 3:
		return args[0], args[1], args[2], nil
	case len(args) == 4 && strings.EqualFold(args[2], "to"):
		return args[0], args[1], args[3], nil
	}
	return "", "", "", fmt.Errorf("expected <amount> <token-in> [to] <token-out>, got %q", strings.Join(args, " "))
}

func printJSON(v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func displayQuote(v quoteView) {
	fmt.Println("\n" + rule)
	color.Cyan("  QUOTE")
	fmt.Println(rule)
	fmt.Printf("  You pay:        %s %s\n", v.AmountIn, v.TokenIn)
	fmt.Printf("  You receive:    %s %s\n", color.GreenString(v.AmountOut), v.TokenOut)
	fmt.Printf("  Minimum out:    %s %s\n", v.MinOut, v.TokenOut)
	fmt.Printf("  Slippage:       %s\n", formatBps(v.SlippageBps))
	fmt.Printf("  Route:          %s (%s)\n", strings.Join(v.Path, " -> "), v.Route)
	if v.PriceImpactBps != nil {
		impact := formatBps(*v.PriceImpactBps)
		switch router.GetPriceImpactSeverity(*v.PriceImpactBps) {
		case router.SeverityNone, router.SeverityLow:
			fmt.Printf("  Price impact:   %s\n", impact)
		case router.SeverityModerate:
			fmt.Printf("  Price impact:   %s\n", color.YellowString(impact))
		default:
			fmt.Printf("  Price impact:   %s\n", color.RedString(impact))
		}
	}
	if v.Warning != "" {
		color.Yellow("  %s", v.Warning)
	}

	fmt.Println("\n  Candidates:")
	for _, c := range v.Candidates {
		switch {
		case c.Error != "":
			fmt.Printf("    %-12s %s\n", c.Route, color.RedString("unavailable: %s", c.Error))
		case c.AmountOut == "":
			fmt.Printf("    %-12s %s\n", c.Route, color.HiBlackString("no liquidity"))
		default:
			fmt.Printf("    %-12s %s %s\n", c.Route, c.AmountOut, v.TokenOut)
		}
	}
	fmt.Println(rule)
}

func displayPlan(v planView) {
	if v.Quote != nil {
		displayQuote(*v.Quote)
	}
	fmt.Printf("\n  Transaction:    %s (%s)\n", color.CyanString(v.ID), v.Kind)
	fmt.Printf("  To:             %s\n", v.To)
	fmt.Printf("  Nonce:          %d\n", v.Nonce)
	if v.Fees != nil {
		fmt.Printf("  Gas limit:      %d\n", v.Fees.GasLimit)
		fmt.Printf("  Max fee:        %s gwei (tip %s, %s)\n", v.Fees.MaxFeeGwei, v.Fees.TipGwei, v.Fees.Urgency)
		fmt.Printf("  Max cost:       %s ETH\n", v.Fees.MaxCostEth)
	}
}

func displayRecord(rec *domain.TxRecord) {
	fmt.Println("\n" + rule)
	fmt.Printf("  Transaction:    %s\n", color.CyanString(rec.ID))
	fmt.Println(rule)
	fmt.Printf("  Kind:           %s\n", rec.Kind)
	fmt.Printf("  State:          %s\n", stateColor(rec.State))
	fmt.Printf("  From:           %s\n", rec.From)
	fmt.Printf("  To:             %s\n", rec.To)
	if rec.Hash != "" {
		fmt.Printf("  Hash:           %s\n", rec.Hash)
	}
	if rec.Block != 0 {
		fmt.Printf("  Block:          %d (gas used %d)\n", rec.Block, rec.GasUsed)
	}
	if rec.Reason != "" {
		fmt.Printf("  Reason:         %s\n", color.RedString(rec.Reason))
	}
	fmt.Printf("  Updated:        %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Println(rule)
}

func stateColor(s domain.TxState) string {
	switch s {
	case domain.TxConfirmed:
		return color.GreenString(s.String())
	case domain.TxFailed:
		return color.RedString(s.String())
	case domain.TxSubmitted, domain.TxPendingSignature:
		return color.YellowString(s.String())
	default:
		return s.String()
	}
}
