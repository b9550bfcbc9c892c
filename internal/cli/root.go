package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swapctl",
	Short: "Quote and execute token swaps on Base",
	Long: `swapctl quotes a swap across the constant-product and concentrated liquidity
venues on Base, picks the best route and executes it with the configured key.

Configuration is read from .env, swap-engine.yaml and SWAP_ENGINE_* variables.
Set SWAP_ENGINE_SIGNER_KEY to sign transactions.

Examples:
  swapctl tokens
  swapctl quote 1 WETH to USDC
  swapctl allowance 100 USDC to WETH
  swapctl swap 100 USDC to WETH --slippage high
  swapctl status <tx-id> --watch`,
	Version: "0.1.0",
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}

// run adapts fn to cobra's Run, printing its error and exiting with status 1.
func run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(cmd, args); err != nil {
			printError(err)
			os.Exit(1)
		}
	}
}

func outputFlags(cmd *cobra.Command) (verbose, jsonOutput bool) {
	verbose, _ = cmd.Flags().GetBool("verbose")
	jsonOutput, _ = cmd.Flags().GetBool("json")
	return verbose, jsonOutput
}
