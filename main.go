package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpeeps/coordinator/internal/adapter/agentclient"
	"github.com/mcpeeps/coordinator/internal/config"
	"github.com/mcpeeps/coordinator/internal/directory"
	"github.com/mcpeeps/coordinator/internal/hub"
	"github.com/mcpeeps/coordinator/internal/logger"
	"github.com/mcpeeps/coordinator/internal/metrics"
	"github.com/mcpeeps/coordinator/internal/policy"
	"github.com/mcpeeps/coordinator/internal/repository"
	"github.com/mcpeeps/coordinator/internal/service"
	httpserver "github.com/mcpeeps/coordinator/internal/transport/http"
	"github.com/mcpeeps/coordinator/internal/transport/rpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "coordinator",
		Short:         "Relay conversations between a user and a directory of agents",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	log.Info("starting coordinator",
		"http_port", cfg.HTTPPort,
		"rpc_port", cfg.RPCPort,
		"store", cfg.Store.Type,
		"agents", len(cfg.Agents),
		"max_rounds", cfg.Conversation.MaxRounds,
	)

	// Initialize store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	dir, err := directory.New(cfg.DomainAgents())
	if err != nil {
		return fmt.Errorf("failed to build agent directory: %w", err)
	}

	agentClient := agentclient.NewClient(
		agentclient.WithCallTimeout(cfg.Conversation.CallTimeout),
		agentclient.WithRateLimit(cfg.AgentRate.QPS, cfg.AgentRate.Burst),
		agentclient.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	m := metrics.New()
	h := hub.New(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go h.Run(hubCtx)

	svc := service.New(db, agentClient, dir, policyEngine, h, m, cfg.Conversation, log)

	server := httpserver.NewServer(svc, h, m, log)
	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	log.Info("http api started", "port", cfg.HTTPPort)

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, log)
		if err != nil {
			return err
		}
		go func() {
			if err := rpcServer.Start(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
		log.Info("rpc api started", "port", cfg.RPCPort)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server failed", "error", err)
		return err
	}

	log.Info("shutting down coordinator")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to shutdown http server gracefully", "error", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shutdown rpc server gracefully", "error", err)
		}
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Warn("conversations still running at shutdown", "error", err)
	}
	stopHub()

	log.Info("coordinator stopped")
	return nil
}
