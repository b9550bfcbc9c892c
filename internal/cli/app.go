package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
)

// app is the engine wired for one command invocation.
type app struct {
	cfg     config.Config
	svc     *aggregator.Service
	chain   *ethclient.Client
	journal persistence.Journal
}

// loggerFor derives the logger options from the loaded configuration.
type loggerFor func(cfg config.Config) common.LoggerOptions

// commandLogger logs to stderr at warn level unless verbose is set, so that command output
// stays readable.
func commandLogger(verbose bool) loggerFor {
	return func(cfg config.Config) common.LoggerOptions {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return common.LoggerOptions{Level: level, Pretty: true, File: cfg.General.LogFile}
	}
}

// serverLogger follows the configured level and environment.
func serverLogger(cfg config.Config) common.LoggerOptions {
	return common.LoggerOptions{
		Level:  cfg.General.LogLevel,
		Pretty: cfg.General.Env == config.DevEnv,
		File:   cfg.General.LogFile,
	}
}

// newApp loads the configuration, sets up logging and connects to the chain.
func newApp(ctx context.Context, logger loggerFor) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	common.InitLogger(logger(cfg))

	chain, err := blockchain.Dial(ctx, cfg.RPC.RPCUrl)
	if err != nil {
		return nil, err
	}
	if err := blockchain.CheckChainID(ctx, chain, cfg.Venue.ChainID); err != nil {
		chain.Close()
		return nil, err
	}

	journal, err := persistence.Open(ctx, cfg.Journal)
	if err != nil {
		chain.Close()
		return nil, err
	}

	signer, err := newSigner(cfg.RPC.SignerKey)
	if err != nil {
		journal.Close()
		chain.Close()
		return nil, err
	}

	svc := aggregator.NewService(cfg, chain, journal, signer)
	if err := svc.Start(); err != nil {
		journal.Close()
		chain.Close()
		return nil, err
	}

	return &app{cfg: cfg, svc: svc, chain: chain, journal: journal}, nil
}

func (a *app) Close() {
	if err := a.svc.Stop(); err != nil {
		log.Warn().Err(err).Msg("[swapctl] failed to stop aggregator")
	}
	if err := a.journal.Close(); err != nil {
		log.Warn().Err(err).Msg("[swapctl] failed to close journal")
	}
	a.chain.Close()
}

// newSigner returns nil without a key.
func newSigner(hexKey string) (executor.Signer, error) {
	if hexKey == "" {
		return nil, nil
	}
	signer, err := executor.NewLocalSigner(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	return signer, nil
}

// withSpinner runs fn behind a spinner unless the output is JSON.
func withSpinner(jsonOutput bool, suffix string, fn func() error) error {
	if jsonOutput {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()
	return fn()
}
