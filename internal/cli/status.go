package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/swap-engine/internal/domain"
)

var (
	watchStatus   bool
	watchInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-id>",
	Short: "Show a journaled transaction",
	Long: `Show an approve or swap transaction from the journal. A submitted transaction is
settled from its receipt when it has been mined since.

Examples:
  swapctl status 6f1c2a8e-...
  swapctl status 6f1c2a8e-... --watch --interval 5s`,
	Args: cobra.ExactArgs(1),
	Run:  run(runStatus),
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transaction is confirmed or failed")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Polling interval when watching")
}

func runStatus(cmd *cobra.Command, args []string) error {
	verbose, jsonOutput := outputFlags(cmd)
	ctx := cmd.Context()
	id := args[0]

	if watchStatus && jsonOutput {
		return fmt.Errorf("watch mode is not supported with JSON output")
	}

	a, err := newApp(ctx, commandLogger(verbose))
	if err != nil {
		return err
	}
	defer a.Close()

	var rec *domain.TxRecord
	err = withSpinner(jsonOutput, "Checking transaction...", func() error {
		rec, err = a.svc.TxStatus(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(rec)
	}
	displayRecord(rec)
	if !watchStatus || rec.State.Terminal() {
		return nil
	}

	fmt.Printf("\nWatching %s every %s. Press Ctrl+C to stop.\n", color.CyanString(id), watchInterval)
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		next, err := a.svc.TxStatus(ctx, id)
		if err != nil {
			color.Red("Error: %v", err)
			continue
		}
		if next.State != rec.State {
			displayRecord(next)
		}
		rec = next
		if rec.State.Terminal() {
			return nil
		}
	}
}
