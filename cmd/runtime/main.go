package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/http"
)

// @title Swap Engine API
// @version 1.0-beta
// @description Token swap quoting and execution on Base across a constant-product venue and an optional concentrated liquidity venue.
// @description
// @description ## - Features
// @description - **Route Selection**: Direct pair, two hops through WETH, or a single concentrated liquidity pool
// @description - **Price Impact Analysis**: Mid-price impact of constant-product routes with severity warnings
// @description - **Transaction Simulation**: Pre-flight eth_call of every swap before it is handed out for signing
// @description - **Slippage Protection**: Minimum output from a configurable tolerance, 0 to 5000 bps
// @description - **External Signing**: Prepare unsigned EIP-1559 transactions and submit the signed envelope
// @description
// @description ## - Usage Tips
// @description - Amounts are decimal strings in whole tokens, e.g. `1.5` WETH or `100` USDC
// @description - Tokens are symbols from `/api/v1/tokens` or 0x addresses
// @description - Default slippage is 50 bps (0.5%), default deadline 20 minutes
// @description - Send `X-Session-ID` so a newer quote supersedes an older one in flight; allowance and prepare calls are never superseded
// @description - Rate limit: 10 requests/second (burst: 20)
// @BasePath /
// @schemes https http
// @tag.name quote
// @tag.description Best route, minimum output and price impact for a trade
// @tag.name swap
// @tag.description Allowance checks and unsigned approve and swap transactions
// @tag.name tx
// @tag.description Submission and status of prepared transactions
// @tag.name tokens
// @tag.description Registered Base tokens

func main() {
	common.InitRuntime()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	common.InitLogger(common.LoggerOptions{
		Level:  cfg.General.LogLevel,
		Pretty: cfg.General.Env == config.DevEnv,
		File:   cfg.General.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("swap engine stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	chain, err := blockchain.Dial(ctx, cfg.RPC.RPCUrl)
	if err != nil {
		return err
	}
	defer chain.Close()
	if err := blockchain.CheckChainID(ctx, chain, cfg.Venue.ChainID); err != nil {
		return err
	}

	journal, err := persistence.Open(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer journal.Close()

	var signer executor.Signer
	if cfg.RPC.SignerKey != "" {
		local, err := executor.NewLocalSigner(cfg.RPC.SignerKey)
		if err != nil {
			return err
		}
		signer = local
		log.Info().Str("address", local.Address().Hex()).Msg("server-side signing enabled")
	}

	aggregatorSvc := aggregator.NewService(cfg, chain, journal, signer)
	if err := aggregatorSvc.Start(); err != nil {
		return err
	}
	defer aggregatorSvc.Stop()

	httpSvc := http.NewHTTPService(cfg.General, aggregatorSvc)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSvc.Start()
	}()

	// waits for SIGINT/SIGTERM
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down services...")
	return httpSvc.Stop()
}
