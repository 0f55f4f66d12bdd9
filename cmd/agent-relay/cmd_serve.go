// ABOUTME: "agent-relay serve" starts the HTTP relay (and optional gRPC health endpoint)
// ABOUTME: Prints the banner and startup summary, then blocks until interrupted

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agent-relay/internal/config"
	"github.com/2389/agent-relay/internal/gateway"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	printBanner()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	statusLine("Config", configPath)
	statusLine("HTTP", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		statusLine("gRPC", cfg.Server.GRPCAddr)
	}
	statusLine("Agents", cfg.AgentService.Endpoint)
	statusLine("Mode", cfg.AgentService.Mode)
	if cfg.AgentService.DefaultAgentID != "" {
		statusLine("Agent", cfg.AgentService.DefaultAgentID)
	}
	if cfg.Auth.JWTSecret == "" {
		color.New(color.FgYellow).Print("    ! ")
		fmt.Println("auth disabled (auth.jwt_secret is empty)")
	}
	fmt.Println()

	logger.Info("starting agent-relay",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"mode", cfg.AgentService.Mode,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(cmd.Context())
}
