// ABOUTME: Gateway orchestrator that wires the agent service client, sources, and servers
// ABOUTME: Manages HTTP and gRPC health server lifecycle, store, and readiness probes

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/2389/agent-relay/internal/agent"
	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/auth"
	"github.com/2389/agent-relay/internal/config"
	"github.com/2389/agent-relay/internal/conversation"
	"github.com/2389/agent-relay/internal/dedupe"
	"github.com/2389/agent-relay/internal/metrics"
	"github.com/2389/agent-relay/internal/store"
)

// readyProbeTimeout bounds the agent lookup behind /health/ready.
const readyProbeTimeout = 5 * time.Second

// AgentProber looks up an agent definition; readiness succeeds when it answers.
type AgentProber interface {
	GetAgent(ctx context.Context, agentID string) (*agentsvc.Agent, error)
}

// Gateway serves the chat API in front of the agent service.
type Gateway struct {
	config       *config.Config
	prober       AgentProber
	store        store.Store
	conversation *conversation.Service
	sources      agent.Sources
	dedupe       *dedupe.Cache
	metrics      *metrics.Metrics
	registry     *prometheus.Registry
	verifier     auth.TokenVerifier
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server
	logger       *slog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the thread registry named by database.path. An empty path
// disables it.
func initStore(cfg *config.Config) (store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		return store.NopStore{}, nil
	}
	if path != store.MemoryPath {
		path = config.ExpandHome(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initVerifier returns a nil verifier when auth is disabled.
func initVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
		return nil, nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("HTTP auth middleware enabled")
	return verifier, nil
}

// newMetricsRegistry returns a private registry carrying the runtime
// collectors and the relay's own metrics.
func newMetricsRegistry() (*prometheus.Registry, *metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, m, nil
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := agentsvc.New(agentsvc.Config{
		Endpoint:       cfg.AgentService.Endpoint,
		APIVersion:     cfg.AgentService.APIVersion,
		APIKey:         cfg.AgentService.APIKey,
		BearerToken:    cfg.AgentService.BearerToken,
		RequestTimeout: cfg.AgentService.RequestTimeout,
		RunTimeout:     cfg.AgentService.RunTimeout,
		PollInterval:   cfg.AgentService.PollInterval,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent service client: %w", err)
	}

	mode, err := agent.ParseMode(cfg.AgentService.Mode)
	if err != nil {
		return nil, err
	}

	verifier, err := initVerifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry, m, err := newMetricsRegistry()
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	convService := conversation.New(client, s, logger)
	sources := agent.Sources{
		Poll: agent.NewPollSource(client, convService, agent.PollOptions{
			Ledger:       s,
			MessageLimit: cfg.AgentService.MessageLimit,
			Logger:       logger,
		}),
		Push: agent.NewPushSource(client, convService, agent.PushOptions{
			Ledger:      s,
			IdleTimeout: cfg.AgentService.StreamIdleTimeout,
			Logger:      logger,
		}),
		Default: mode,
	}

	gw := &Gateway{
		config:       cfg,
		prober:       client,
		store:        s,
		conversation: convService,
		sources:      sources,
		dedupe:       dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries),
		metrics:      m,
		registry:     registry,
		verifier:     verifier,
		logger:       logger.With("component", "gateway"),
	}

	if cfg.Server.GRPCAddr != "" {
		gw.grpcServer, gw.health = newGRPCServer()
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler serving every route.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run listens on the configured addresses and serves until ctx is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	var grpcLn net.Listener
	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return g.Serve(ctx, httpLn, grpcLn)
}

// Serve serves HTTP on httpLn and, when gRPC is configured, the health
// service on grpcLn. It shuts everything down when ctx is canceled or a
// server fails.
func (g *Gateway) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if grpcLn != nil && g.grpcServer != nil {
		eg.Go(func() error {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops both servers and releases the store and dedupe cache.
// Calls after the first return the first call's result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		g.shutdownGRPCServer(ctx)
		errs = appendCloseError(errs, "store close", g.store.Close())
		g.dedupe.Close()

		if len(errs) > 0 {
			g.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return g.shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the agent service answers a lookup of the
// default agent. Without a default agent the relay is ready once it serves.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	agentID := g.config.AgentService.DefaultAgentID
	if agentID == "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready (no default agent)"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
	defer cancel()

	a, err := g.prober.GetAgent(ctx, agentID)
	if err != nil {
		g.logger.Warn("readiness probe failed", "agent_id", agentID, "error", err)
		g.setServing(false)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "agent service unavailable: %v", err)
		return
	}

	g.setServing(true)
	w.WriteHeader(http.StatusOK)
	name := a.Name
	if name == "" {
		name = a.ID
	}
	_, _ = fmt.Fprintf(w, "ready (agent %s)", name)
}
