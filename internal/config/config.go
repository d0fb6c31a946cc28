package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Runtime names accepted by agent.runtime.
const (
	RuntimeDeterministic = "deterministic"
	RuntimeLLM           = "llm"
)

// Config is the complete start-up configuration of aibankd.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	Maps    MapsConfig    `yaml:"maps"`
	Events  EventsConfig  `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerting AlertingConfig `yaml:"alerting"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address                 string `yaml:"address"`
	PublicURL               string `yaml:"public_url"`
	ReadHeaderTimeoutSecond int    `yaml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds  int    `yaml:"shutdown_timeout_seconds"`
}

// ReadHeaderTimeout returns the configured header timeout.
func (s ServerConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(s.ReadHeaderTimeoutSecond) * time.Second
}

// ShutdownTimeout returns the graceful shutdown window.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// AgentConfig selects the runtime behind the API.
type AgentConfig struct {
	Runtime string `yaml:"runtime"`
}

// LLMConfig configures the OpenAI-compatible client used by the llm runtime.
type LLMConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxToolRounds  int    `yaml:"max_tool_rounds"`
}

// Timeout returns the per-request LLM timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// MapsConfig configures the geocoding MCP server.
type MapsConfig struct {
	ServerURL      string        `yaml:"server_url"`
	ToolName       string        `yaml:"tool_name"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Cache          CacheConfig   `yaml:"cache"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// Enabled reports whether a map server endpoint is configured.
func (m MapsConfig) Enabled() bool {
	return m.ServerURL != ""
}

// Timeout returns the single-attempt geocode timeout.
func (m MapsConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// CacheConfig selects where geocode results are cached.
type CacheConfig struct {
	Driver     string      `yaml:"driver"`
	TTLSeconds int         `yaml:"ttl_seconds"`
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RedisConfig describes a Redis connection.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BreakerConfig tunes the circuit breaker in front of the map server.
type BreakerConfig struct {
	MaxFailures     uint32 `yaml:"max_failures"`
	OpenSeconds     int    `yaml:"open_seconds"`
	HalfOpenProbes  uint32 `yaml:"half_open_probes"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// EventsConfig selects where interaction events are published.
type EventsConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// RabbitMQConfig describes the RabbitMQ publisher.
type RabbitMQConfig struct {
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
	Durable bool   `yaml:"durable"`
}

// KafkaConfig describes the Kafka publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether /metrics is served. Metrics default to on.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// AlertingConfig selects alert channels. Alerts are always logged; a
// webhook URL adds a chat webhook channel.
type AlertingConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the webhook request timeout.
func (a AlertingConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level   string      `yaml:"level"`
	Format  string      `yaml:"format"`
	Outputs []string    `yaml:"outputs"`
	Audit   AuditConfig `yaml:"audit"`
}

// AuditConfig mirrors logger.AuditConfig.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// LookupFunc resolves environment variables. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML (or JSON) file at path, applies defaults and then the
// process environment. A missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	return LoadWithEnv(path, required, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, required bool, lookup LookupFunc) (*Config, error) {
	var cfg Config
	baseDir := "."

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			baseDir = filepath.Dir(path)
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if required {
		return nil, errors.New("config path is empty")
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays the supported environment variables.
func (c *Config) applyEnv(lookup LookupFunc) error {
	if v, ok := lookup("AIBANK_ADDR"); ok && strings.TrimSpace(v) != "" {
		c.Server.Address = strings.TrimSpace(v)
	}
	if v, ok := lookup("AGENT_RUNTIME"); ok && strings.TrimSpace(v) != "" {
		c.Agent.Runtime = strings.TrimSpace(v)
	}
	if v, ok := lookup("LLM_MODEL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.Model = strings.TrimSpace(v)
	}
	if v, ok := lookup("LLM_API_KEY"); ok && strings.TrimSpace(v) != "" {
		c.LLM.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("MAP_SERVER_URL"); ok {
		c.Maps.ServerURL = v
	}
	if v, ok := lookup("MAP_SERVER_TIMEOUT_SECONDS"); ok && strings.TrimSpace(v) != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MAP_SERVER_TIMEOUT_SECONDS: %w", err)
		}
		c.Maps.TimeoutSeconds = seconds
	}
	if v, ok := lookup("ALERT_WEBHOOK_URL"); ok {
		c.Alerting.WebhookURL = strings.TrimSpace(v)
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv != "" {
		if v, ok := lookup(c.LLM.APIKeyEnv); ok {
			c.LLM.APIKey = strings.TrimSpace(v)
		}
	}
	return nil
}

// applyDefaults fills every field the file and environment left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if c.Server.ReadHeaderTimeoutSecond <= 0 {
		c.Server.ReadHeaderTimeoutSecond = 5
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	c.Agent.Runtime = strings.ToLower(strings.TrimSpace(c.Agent.Runtime))
	if c.Agent.Runtime == "" {
		c.Agent.Runtime = RuntimeDeterministic
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-5-mini"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.MaxToolRounds <= 0 {
		c.LLM.MaxToolRounds = 5
	}

	// Whitespace-only endpoints disable geocoding.
	c.Maps.ServerURL = strings.TrimSpace(c.Maps.ServerURL)
	if c.Maps.ToolName == "" {
		c.Maps.ToolName = "geocode"
	}
	if c.Maps.TimeoutSeconds <= 0 {
		c.Maps.TimeoutSeconds = 10
	}
	if c.Maps.Cache.Driver == "" {
		c.Maps.Cache.Driver = "memory"
	}
	if c.Maps.Cache.TTLSeconds <= 0 {
		c.Maps.Cache.TTLSeconds = 3600
	}
	if c.Maps.Cache.Redis.Prefix == "" {
		c.Maps.Cache.Redis.Prefix = "aibank:geocode:"
	}
	if c.Maps.Breaker.MaxFailures == 0 {
		c.Maps.Breaker.MaxFailures = 5
	}
	if c.Maps.Breaker.OpenSeconds <= 0 {
		c.Maps.Breaker.OpenSeconds = 30
	}
	if c.Maps.Breaker.HalfOpenProbes == 0 {
		c.Maps.Breaker.HalfOpenProbes = 1
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "log"
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "aibank.interactions"
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "aibank.interactions"
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "aibank"
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled {
		if c.Log.Audit.Path == "" {
			c.Log.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else if !filepath.IsAbs(c.Log.Audit.Path) {
			c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
		}
	}
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch c.Agent.Runtime {
	case RuntimeDeterministic, RuntimeLLM:
	default:
		return fmt.Errorf("unknown agent runtime %q", c.Agent.Runtime)
	}
	switch c.Maps.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown geocode cache driver %q", c.Maps.Cache.Driver)
	}
	if c.Maps.Cache.Driver == "redis" && c.Maps.Cache.Redis.Address == "" {
		return errors.New("maps.cache.redis.address is required for the redis cache")
	}
	switch c.Events.Driver {
	case "log", "none":
	case "rabbitmq":
		if c.Events.RabbitMQ.URL == "" {
			return errors.New("events.rabbitmq.url is required for the rabbitmq driver")
		}
	case "kafka":
		if len(c.Events.Kafka.Brokers) == 0 {
			return errors.New("events.kafka.brokers is required for the kafka driver")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	return nil
}
