package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/swap-engine/internal/domain"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List the tokens swapctl knows by symbol",
	Long: `List the registered Base tokens. Any other ERC-20 must be given by address and
is not supported for amounts, since decimals come only from this list.

Examples:
  swapctl tokens
  swapctl tokens --symbol usd`,
	Args: cobra.NoArgs,
	Run:  run(runTokens),
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by symbol substring")
}

func runTokens(cmd *cobra.Command, args []string) error {
	_, jsonOutput := outputFlags(cmd)

	tokens := filterTokens(registry.NewDefaultTokenRegistry().List(), filterSymbol)
	if jsonOutput {
		return printJSON(tokens)
	}
	if len(tokens) == 0 {
		color.Yellow("\nNo tokens match %q\n", filterSymbol)
		return nil
	}

	fmt.Printf("\n%-8s %-44s %-8s %s\n", "SYMBOL", "ADDRESS", "DECIMALS", "NAME")
	fmt.Println(strings.Repeat("-", 80))
	for _, t := range tokens {
		fmt.Printf("%s %-44s %-8d %s\n", color.CyanString("%-8s", t.Symbol), t.Address.Hex(), t.Decimals, t.Name)
	}
	fmt.Println()
	return nil
}

func filterTokens(tokens []domain.Token, symbol string) []domain.Token {
	if symbol == "" {
		return tokens
	}
	needle := strings.ToUpper(symbol)
	var out []domain.Token
	for _, t := range tokens {
		if strings.Contains(strings.ToUpper(t.Symbol), needle) {
			out = append(out, t)
		}
	}
	return out
}
