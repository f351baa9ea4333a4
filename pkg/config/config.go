package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aixgo-dev/agentkit/agent"
	"github.com/aixgo-dev/agentkit/pkg/statusstore"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Admission policies applied when an agent has MaxConcurrentTasks tasks in flight.
const (
	AdmissionBlock  = "block"
	AdmissionReject = "reject"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config represents the host configuration
type Config struct {
	Host          HostConfig          `yaml:"host"`
	Heartbeat     HeartbeatConfig     `yaml:"heartbeat"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Agents are created from the agent registry by agent_type, in order.
	Agents []agent.Config `yaml:"agents"`
}

// HostConfig holds host policy
type HostConfig struct {
	// Admission is "block" (wait for a slot) or "reject" (fail immediately).
	Admission string `yaml:"admission"`

	// FanoutLimit bounds the goroutines used by Publish and ExecuteParallel.
	FanoutLimit int `yaml:"fanout_limit"`

	// TaskRetention is the number of finished task records kept.
	TaskRetention int `yaml:"task_retention"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
}

// RateLimitConfig limits message delivery per agent. Zero disables it.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// BreakerConfig opens an agent's circuit after MaxFailures consecutive
// infrastructure failures. Zero disables it.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// HeartbeatConfig schedules heartbeat emission
type HeartbeatConfig struct {
	// Schedule is a cron spec such as "@every 10s". Empty disables heartbeats.
	Schedule string `yaml:"schedule"`
}

// StoreConfig selects the status store backend
type StoreConfig struct {
	Backend string                  `yaml:"backend"`
	Redis   statusstore.RedisConfig `yaml:"redis"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	// MetricsPort serves /metrics and /health. Zero disables the server.
	MetricsPort int `yaml:"metrics_port"`

	// TracingExporter is "none", "stdout" or "otlp".
	TracingExporter string `yaml:"tracing_exporter"`
}

// Default returns a configuration with every default applied and no agents
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads, completes and validates configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and environment
// overrides, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := NewSafeYAMLParser(DefaultYAMLLimits()).Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host.Admission == "" {
		c.Host.Admission = AdmissionBlock
	}
	if c.Host.FanoutLimit == 0 {
		c.Host.FanoutLimit = 8
	}
	if c.Host.TaskRetention == 0 {
		c.Host.TaskRetention = 1024
	}
	if c.Host.RateLimit.MessagesPerSecond > 0 && c.Host.RateLimit.Burst == 0 {
		c.Host.RateLimit.Burst = 1
	}
	if c.Host.Breaker.MaxFailures > 0 && c.Host.Breaker.Timeout == 0 {
		c.Host.Breaker.Timeout = 30 * time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	if c.Observability.TracingExporter == "" {
		c.Observability.TracingExporter = "none"
	}
	for i := range c.Agents {
		if c.Agents[i].Capabilities == nil {
			c.Agents[i].Capabilities = []string{}
		}
		if c.Agents[i].Settings == nil {
			c.Agents[i].Settings = map[string]string{}
		}
	}
}

// applyEnv applies AGENTKIT_REDIS_ADDR, AGENTKIT_METRICS_PORT and
// OTEL_TRACES_EXPORTER on top of the file.
func (c *Config) applyEnv() error {
	if addr := os.Getenv("AGENTKIT_REDIS_ADDR"); addr != "" {
		c.Store.Redis.Addr = addr
	}
	if port := os.Getenv("AGENTKIT_METRICS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("AGENTKIT_METRICS_PORT: %w", err)
		}
		c.Observability.MetricsPort = p
	}
	if exporter := os.Getenv("OTEL_TRACES_EXPORTER"); exporter != "" {
		c.Observability.TracingExporter = exporter
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Host.Admission {
	case AdmissionBlock, AdmissionReject:
	default:
		return fmt.Errorf("host.admission: unknown policy %q (want block or reject)", c.Host.Admission)
	}
	if c.Host.FanoutLimit < 0 {
		return fmt.Errorf("host.fanout_limit must be >= 0")
	}
	if c.Host.TaskRetention < 0 {
		return fmt.Errorf("host.task_retention must be >= 0")
	}
	if c.Host.RateLimit.MessagesPerSecond < 0 || c.Host.RateLimit.Burst < 0 {
		return fmt.Errorf("host.rate_limit values must be >= 0")
	}
	if c.Host.Breaker.Timeout < 0 {
		return fmt.Errorf("host.breaker.timeout must be >= 0")
	}

	if c.Heartbeat.Schedule != "" {
		if _, err := cron.ParseStandard(c.Heartbeat.Schedule); err != nil {
			return fmt.Errorf("heartbeat.schedule: %w", err)
		}
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}

	if p := c.Observability.MetricsPort; p < 0 || p > 65535 {
		return fmt.Errorf("observability.metrics_port %d out of range", p)
	}
	switch c.Observability.TracingExporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("observability.tracing_exporter: unknown exporter %q", c.Observability.TracingExporter)
	}

	seen := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if _, dup := seen[a.AgentID]; dup {
			return fmt.Errorf("agents[%d]: duplicate agent_id %q", i, a.AgentID)
		}
		seen[a.AgentID] = struct{}{}
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// AgentIDs returns the configured agent ids in order
func (c *Config) AgentIDs() []string {
	ids := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		ids[i] = a.AgentID
	}
	return ids
}

// String summarizes the configuration for logs
func (c *Config) String() string {
	return fmt.Sprintf("agents=[%s] admission=%s store=%s heartbeat=%q",
		strings.Join(c.AgentIDs(), ","), c.Host.Admission, c.Store.Backend, c.Heartbeat.Schedule)
}
