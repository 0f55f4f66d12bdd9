// ABOUTME: Tests for gateway construction, lifecycle, health endpoints, and metrics exposure
// ABOUTME: Runs the full stack against the in-process fake agent service

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/agent-relay/internal/agentsvc/agentsvctest"
	"github.com/2389/agent-relay/internal/config"
	"github.com/2389/agent-relay/internal/store"
)

const testAgentID = "asst_test"

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		AgentService: config.AgentServiceConfig{
			Endpoint:          endpoint,
			DefaultAgentID:    testAgentID,
			Mode:              config.ModePoll,
			RequestTimeout:    2 * time.Second,
			RunTimeout:        2 * time.Second,
			PollInterval:      5 * time.Millisecond,
			StreamIdleTimeout: 2 * time.Second,
			MessageLimit:      20,
		},
		Database: config.DatabaseConfig{Path: store.MemoryPath},
		Dedupe:   config.DedupeConfig{TTL: time.Minute, MaxEntries: 100},
		Logging:  config.LoggingConfig{Level: "debug", Format: "text"},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// newTestGateway serves a Gateway in front of upstream. mutate may adjust
// the config before construction.
func newTestGateway(t *testing.T, upstream http.Handler, mutate ...func(*config.Config)) (*Gateway, *httptest.Server) {
	t.Helper()

	agentSvc := httptest.NewServer(upstream)
	t.Cleanup(agentSvc.Close)

	cfg := testConfig(agentSvc.URL)
	for _, m := range mutate {
		m(cfg)
	}

	gw, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return gw, srv
}

func newFake(opts ...agentsvctest.Option) *agentsvctest.Server {
	return agentsvctest.New(append([]agentsvctest.Option{agentsvctest.WithAgent(testAgentID, "Helper")}, opts...)...)
}

func postJSON(t *testing.T, url, body string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// readLines decodes every NDJSON line of resp.
func readLines(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line), "line %q", scanner.Text())
		out = append(out, line)
	}
	require.NoError(t, scanner.Err())
	return out
}

func lineTypes(lines []map[string]any) []string {
	types := make([]string, 0, len(lines))
	for _, l := range lines {
		if typ, ok := l["type"].(string); ok {
			types = append(types, typ)
		} else {
			types = append(types, "<untyped>")
		}
	}
	return types
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing endpoint", func(c *config.Config) { c.AgentService.Endpoint = "" }},
		{"unknown mode", func(c *config.Config) { c.AgentService.Mode = "websocket" }},
		{"weak secret", func(c *config.Config) { c.Auth.JWTSecret = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://127.0.0.1:1")
			tt.mutate(cfg)
			_, err := New(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestNew_WithoutDatabase(t *testing.T) {
	gw, _ := newTestGateway(t, newFake(), func(c *config.Config) { c.Database.Path = "" })
	_, ok := gw.store.(store.NopStore)
	assert.True(t, ok, "empty database.path should use NopStore, got %T", gw.store)
}

func TestHealth(t *testing.T) {
	_, srv := newTestGateway(t, newFake())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestReady(t *testing.T) {
	t.Run("agent answers", func(t *testing.T) {
		_, srv := newTestGateway(t, newFake())
		resp, err := http.Get(srv.URL + "/health/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ready (agent Helper)", string(body))
	})

	t.Run("unknown agent", func(t *testing.T) {
		_, srv := newTestGateway(t, agentsvctest.New(agentsvctest.WithAgent("asst_other", "Other")))
		resp, err := http.Get(srv.URL + "/health/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, string(body), "agent service unavailable")
	})

	t.Run("no default agent", func(t *testing.T) {
		_, srv := newTestGateway(t, newFake(), func(c *config.Config) { c.AgentService.DefaultAgentID = "" })
		resp, err := http.Get(srv.URL + "/health/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, newFake())

	resp := postJSON(t, srv.URL+"/chat", `{"message":"hello"}`)
	readLines(t, resp)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)

	assert.Equal(t, http.StatusOK, mresp.StatusCode)
	assert.Contains(t, string(body), `agent_relay_events_total{type="text"} 1`)
	assert.Contains(t, string(body), `agent_relay_chat_requests_total{mode="poll"} 1`)
	assert.Contains(t, string(body), "agent_relay_streams_active 0")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	_, srv := newTestGateway(t, newFake(), func(c *config.Config) { c.Metrics.Enabled = false })

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_GRPCHealthAndShutdown(t *testing.T) {
	gw, _ := newTestGateway(t, newFake(), func(c *config.Config) { c.Server.GRPCAddr = "127.0.0.1:0" })
	require.NotNil(t, gw.grpcServer)

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- gw.Serve(ctx, httpLn, grpcLn) }()

	conn, err := grpc.NewClient(grpcLn.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	httpResp, err := http.Get("http://" + httpLn.Addr().String() + "/health")
	require.NoError(t, err)
	_ = httpResp.Body.Close()
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	gw, _ := newTestGateway(t, newFake())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, gw.Shutdown(ctx))
	assert.NoError(t, gw.Shutdown(ctx))
}
