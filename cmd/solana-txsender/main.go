package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"

	"github.com/smartcontractkit/solana-txsender/pkg/config"
	"github.com/smartcontractkit/solana-txsender/pkg/relay"
	"github.com/smartcontractkit/solana-txsender/pkg/rpcserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "solana-txsender",
		Short:        "Relays signed Solana transactions until they land or expire",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the JSON-RPC server and the transaction sender",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML config file")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file and print it with defaults applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			s, err := cfg.TOMLString()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), s)
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	lggr, err := logger.New()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read configs: %w", err)
	}

	chain, err := relay.NewChain(cfg, relay.ChainOpts{Logger: lggr})
	if err != nil {
		return fmt.Errorf("failed to create Solana chain: %w", err)
	}
	relayer := relay.NewRelayer(lggr, chain, relay.NewService(chain))

	gin.SetMode(gin.ReleaseMode)
	server := rpcserver.New(lggr, *cfg.ListenAddr, relayer.TxSender(), relayer)

	var ms services.MultiStart
	if err := ms.Start(ctx, relayer, server); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	lggr.Infow("solana-txsender started", "chainID", chain.ID(), "listenAddr", server.Addr(), "nodes", len(cfg.Nodes))

	<-ctx.Done()
	lggr.Info("shutting down")
	return services.CloseAll(server, relayer)
}
