// ABOUTME: Configuration loading and parsing for agent-relay
// ABOUTME: Supports YAML files with environment variable expansion, overrides, and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Normalizer modes accepted by agent_service.mode.
const (
	ModePoll   = "poll"
	ModeStream = "stream"
)

// Defaults applied when the file leaves a field empty.
const (
	DefaultHTTPAddr          = "0.0.0.0:8000"
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRunTimeout        = 5 * time.Minute
	DefaultPollInterval      = time.Second
	DefaultStreamIdleTimeout = 2 * time.Minute
	DefaultMessageLimit      = 20
	DefaultDedupeTTL         = 10 * time.Minute
	DefaultDedupeMaxEntries  = 10000
	DefaultMetricsPath       = "/metrics"
)

// MinJWTSecretLength is the shortest accepted auth.jwt_secret.
const MinJWTSecretLength = 32

// Environment variables that override file values.
const (
	EnvConfigPath = "AGENT_RELAY_CONFIG"
	EnvEndpoint   = "AGENT_SERVICE_ENDPOINT"
	EnvAPIKey     = "AGENT_SERVICE_API_KEY"
	EnvAgentID    = "AGENT_ID"
	EnvDBPath     = "AGENT_RELAY_DB_PATH"
)

// Config represents the complete agent-relay configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	AgentService AgentServiceConfig `yaml:"agent_service"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Dedupe       DedupeConfig       `yaml:"dedupe"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// GRPCAddr serves the gRPC health protocol; empty disables it.
	GRPCAddr string `yaml:"grpc_addr"`
}

// AgentServiceConfig describes the hosted agent service and how runs are driven.
type AgentServiceConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIVersion     string `yaml:"api_version"`
	APIKey         string `yaml:"api_key"`
	BearerToken    string `yaml:"bearer_token"`
	DefaultAgentID string `yaml:"default_agent_id"`
	Mode           string `yaml:"mode"`
	MessageLimit   int    `yaml:"message_limit"`

	RequestTimeout    time.Duration `yaml:"-"`
	RunTimeout        time.Duration `yaml:"-"`
	PollInterval      time.Duration `yaml:"-"`
	StreamIdleTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw    string `yaml:"request_timeout"`
	RunTimeoutRaw        string `yaml:"run_timeout"`
	PollIntervalRaw      string `yaml:"poll_interval"`
	StreamIdleTimeoutRaw string `yaml:"stream_idle_timeout"`
}

// DatabaseConfig holds the thread registry location. Empty disables the
// registry; ":memory:" keeps it in process.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DedupeConfig bounds the Idempotency-Key cache.
type DedupeConfig struct {
	TTL        time.Duration `yaml:"-"`
	TTLRaw     string        `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// AGENT_SERVICE_* / AGENT_ID / AGENT_RELAY_DB_PATH variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.AgentService.Endpoint = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.AgentService.APIKey = v
	}
	if v := os.Getenv(EnvAgentID); v != "" {
		cfg.AgentService.DefaultAgentID = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Database.Path = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}

	as := &cfg.AgentService
	if as.Mode == "" {
		as.Mode = ModePoll
	}
	as.Mode = strings.ToLower(as.Mode)
	if as.RequestTimeout == 0 {
		as.RequestTimeout = DefaultRequestTimeout
	}
	if as.RunTimeout == 0 {
		as.RunTimeout = DefaultRunTimeout
	}
	if as.PollInterval == 0 {
		as.PollInterval = DefaultPollInterval
	}
	if as.StreamIdleTimeout == 0 {
		as.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	if as.MessageLimit == 0 {
		as.MessageLimit = DefaultMessageLimit
	}

	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = DefaultDedupeTTL
	}
	if cfg.Dedupe.MaxEntries == 0 {
		cfg.Dedupe.MaxEntries = DefaultDedupeMaxEntries
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.AgentService.Endpoint == "" {
		return fmt.Errorf("agent_service.endpoint is required (or set %s)", EnvEndpoint)
	}
	switch c.AgentService.Mode {
	case ModePoll, ModeStream:
	default:
		return fmt.Errorf("agent_service.mode must be %q or %q, got %q", ModePoll, ModeStream, c.AgentService.Mode)
	}
	if c.AgentService.MessageLimit < 0 {
		return fmt.Errorf("agent_service.message_limit must not be negative")
	}
	if c.AgentService.RequestTimeout < 0 || c.AgentService.RunTimeout < 0 || c.AgentService.PollInterval < 0 {
		return fmt.Errorf("agent_service timeouts must not be negative")
	}
	if secret := c.Auth.JWTSecret; secret != "" && len(secret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.Dedupe.TTL < 0 || c.Dedupe.MaxEntries < 0 {
		return fmt.Errorf("dedupe.ttl and dedupe.max_entries must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"request_timeout", cfg.AgentService.RequestTimeoutRaw, &cfg.AgentService.RequestTimeout},
		{"run_timeout", cfg.AgentService.RunTimeoutRaw, &cfg.AgentService.RunTimeout},
		{"poll_interval", cfg.AgentService.PollIntervalRaw, &cfg.AgentService.PollInterval},
		{"stream_idle_timeout", cfg.AgentService.StreamIdleTimeoutRaw, &cfg.AgentService.StreamIdleTimeout},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath returns the config file location.
// Priority: AGENT_RELAY_CONFIG > $XDG_CONFIG_HOME/agent-relay/relay.yaml > ~/.config/agent-relay/relay.yaml
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agent-relay", "relay.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "relay.yaml"
	}
	return filepath.Join(home, ".config", "agent-relay", "relay.yaml")
}

// Template is the starter file written by "agent-relay init".
const Template = `# agent-relay configuration
server:
  http_addr: "0.0.0.0:8000"
  # grpc_addr: "0.0.0.0:50051"   # gRPC health endpoint

agent_service:
  endpoint: "${AGENT_SERVICE_ENDPOINT}"
  api_key: "${AGENT_SERVICE_API_KEY}"
  default_agent_id: "${AGENT_ID}"
  mode: "poll"                   # poll or stream
  request_timeout: "30s"
  run_timeout: "5m"
  poll_interval: "1s"
  stream_idle_timeout: "2m"
  message_limit: 20

database:
  path: "~/.local/share/agent-relay/relay.db"

auth:
  jwt_secret: "${AGENT_RELAY_JWT_SECRET}"   # empty disables auth

dedupe:
  ttl: "10m"
  max_entries: 10000

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`

// WriteTemplate writes Template to path, creating parent directories. It
// refuses to overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
