// ABOUTME: Entry point for agent-relay, the chat relay in front of a hosted agent service
// ABOUTME: Cobra root command; subcommands live in cmd_*.go

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agent-relay/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                         _                    _
  __ _  __ _  ___ _ __ | |_      _ __ ___| | __ _ _   _
 / _' |/ _' |/ _ \ '_ \| __|____| '__/ _ \ |/ _' | | | |
| (_| | (_| |  __/ | | | ||_____| | |  __/ | (_| | |_| |
 \__,_|\__, |\___|_| |_|\__|    |_|  \___|_|\__,_|\__, |
       |___/                                      |___/
`

const defaultRelayURL = "http://localhost:8000"

// envToken supplies --token when the flag is not given.
const envToken = "AGENT_RELAY_TOKEN"

var (
	configPath string
	relayURL   string
	relayToken string
)

var rootCmd = &cobra.Command{
	Use:   "agent-relay",
	Short: "Relay web chat turns to a hosted agent service",
	Long: `agent-relay accepts a chat message and an optional thread id, drives an
agent run on the hosted agent service, and streams the result back as
newline-delimited JSON events.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&relayURL, "url", "", "relay base URL for client commands (default: from config)")
	rootCmd.PersistentFlags().StringVar(&relayToken, "token", "", "bearer token for client commands (default: $"+envToken+")")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func printBanner() {
	color.New(color.FgCyan).Print(banner)
	color.New(color.FgHiBlack).Printf("    version: %s\n\n", version)
}

// statusLine prints one "▶ label value" startup line.
func statusLine(label, value string) {
	color.New(color.FgGreen).Print("    ▶ ")
	fmt.Printf("%-10s %s\n", label+":", value)
}

// resolveBaseURL picks the relay address for client commands: the flag, else
// the config's http_addr, else the default local address.
func resolveBaseURL(flagURL string) string {
	if flagURL != "" {
		return strings.TrimRight(flagURL, "/")
	}
	cfg, err := config.Load(configPath)
	if err != nil || cfg.Server.HTTPAddr == "" {
		return defaultRelayURL
	}
	return "http://" + dialableAddr(cfg.Server.HTTPAddr)
}

func bearerToken() string {
	if relayToken != "" {
		return relayToken
	}
	return os.Getenv(envToken)
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// dialableAddr swaps a wildcard listen host for localhost.
func dialableAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
