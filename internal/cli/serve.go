package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hxuan190/swap-engine/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Long: `Serve the quote and execution API on the configured host and port until
interrupted. Logs follow the configured level and environment.

Examples:
  swapctl serve
  SWAP_ENGINE_HTTP_PORT=9000 swapctl serve`,
	Args: cobra.NoArgs,
	Run:  run(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, serverLogger)
	if err != nil {
		return err
	}
	defer a.Close()

	httpSvc := http.NewHTTPService(a.cfg.General, a.svc)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSvc.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("[swapctl] shutting down")
	return httpSvc.Stop()
}
