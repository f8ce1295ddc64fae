// Package config loads the compiler's runtime configuration: which model
// backend to route each role to, replan/rate-limit knobs, and the streaming
// and run-log backends to wire up. Grounded on TinyAgent's
// original_source/src/tiny_agent/config.py's TinyAgentConfig (per-provider
// model routing: API key, model name, context length) translated from JSON
// + environment-variable overrides into Go structs loaded via
// github.com/spf13/viper (the teacher's go.mod dependency for layered
// config: flags > env > file > defaults) with gopkg.in/yaml.v3 as the file
// format, since the teacher is a code-generation framework with no runtime
// YAML config file of its own to ground the shape on directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ModelProvider selects which model.Client adapter backs a role.
type ModelProvider string

const (
	ProviderAnthropic ModelProvider = "anthropic"
	ProviderOpenAI    ModelProvider = "openai"
	ProviderBedrock   ModelProvider = "bedrock"
)

// ModelConfig configures one model.Client adapter instance (grounded on
// config.py's get_model_config: provider + api key + model name + context
// window, here per role rather than per agent-type prefix).
type ModelConfig struct {
	Provider    ModelProvider `mapstructure:"provider" yaml:"provider"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Region      string        `mapstructure:"region" yaml:"region"` // Bedrock only.
}

// StreamBackend selects the streamch.Sink implementation the orchestrator
// publishes planner tokens to.
type StreamBackend string

const (
	StreamBackendInProcess StreamBackend = "inprocess"
	StreamBackendRedis     StreamBackend = "redis"
)

// StreamConfig configures the Streaming Output Channel (spec §4.6, C7).
type StreamConfig struct {
	Backend   StreamBackend `mapstructure:"backend" yaml:"backend"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	MaxLen    int64         `mapstructure:"max_len" yaml:"max_len"`
}

// EngineBackend selects the engine.Engine implementation the orchestrator's
// replan loop runs on.
type EngineBackend string

const (
	EngineBackendInMemory EngineBackend = "inmemory"
	EngineBackendTemporal EngineBackend = "temporal"
)

// EngineConfig configures the durable execution backend (runtime/compiler/engine).
type EngineConfig struct {
	Backend          EngineBackend `mapstructure:"backend" yaml:"backend"`
	TemporalHostPort string        `mapstructure:"temporal_host_port" yaml:"temporal_host_port"`
	TemporalQueue    string        `mapstructure:"temporal_queue" yaml:"temporal_queue"`
}

// RunLogBackend selects where compiler run events are durably recorded.
type RunLogBackend string

const (
	RunLogBackendNone  RunLogBackend = "none"
	RunLogBackendMongo RunLogBackend = "mongo"
)

// RunLogConfig configures the runtime/compiler/runlog store.
type RunLogConfig struct {
	Backend    RunLogBackend `mapstructure:"backend" yaml:"backend"`
	MongoURI   string        `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	Database   string        `mapstructure:"database" yaml:"database"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
}

// Config is the compiler's full runtime configuration.
type Config struct {
	// Planner backs the Streaming Planner (C3).
	Planner ModelConfig `mapstructure:"planner" yaml:"planner"`
	// Joinner backs the Joinner (C5). Defaults to Planner's settings when
	// its Model field is empty, mirroring config.py's per-agent-type prefix
	// scheme (main vs sub-agent) collapsing to the same provider.
	Joinner ModelConfig `mapstructure:"joinner" yaml:"joinner"`

	// CustomInstructions is appended to the planner system prompt (spec
	// §4.2's "Optional custom instructions"; grounded on config.py's
	// `customInstructions` field).
	CustomInstructions string `mapstructure:"custom_instructions" yaml:"custom_instructions"`

	// MaxReplans bounds the orchestrator's replan loop (spec §4.5).
	MaxReplans int `mapstructure:"max_replans" yaml:"max_replans"`

	// PlannerRateLimitPerSecond throttles LLM calls from the planner
	// (golang.org/x/time/rate).
	PlannerRateLimitPerSecond float64 `mapstructure:"planner_rate_limit_per_second" yaml:"planner_rate_limit_per_second"`

	// PendingDeadline bounds how long the Task Fetching Unit (C4) waits for
	// an unreachable dependency before failing the task (spec §9 Open
	// Question). Zero means wait forever.
	PendingDeadline time.Duration `mapstructure:"pending_deadline" yaml:"pending_deadline"`

	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	RunLog RunLogConfig `mapstructure:"run_log" yaml:"run_log"`
}

// defaults mirrors config.py's DEFAULT_SAFE_CONTEXT_LENGTH-style constants:
// conservative values a deployment can override.
func defaults(v *viper.Viper) {
	v.SetDefault("planner.provider", string(ProviderAnthropic))
	v.SetDefault("planner.max_tokens", 4096)
	v.SetDefault("max_replans", 2)
	v.SetDefault("planner_rate_limit_per_second", 2.0)
	v.SetDefault("stream.backend", string(StreamBackendInProcess))
	v.SetDefault("stream.max_len", 10000)
	v.SetDefault("engine.backend", string(EngineBackendInMemory))
	v.SetDefault("run_log.backend", string(RunLogBackendNone))
	v.SetDefault("run_log.collection", "compiler_run_events")
}

// Load reads configuration from path (YAML) if non-empty, then overlays
// environment variables prefixed LLMCOMPILER_ (e.g.
// LLMCOMPILER_PLANNER_API_KEY maps to planner.api_key), matching the
// teacher's flags>env>file>defaults viper layering.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	defaults(v)

	v.SetEnvPrefix("LLMCOMPILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about, and Unmarshal
	// only decodes known keys, so bind every key for env overrides to apply.
	for _, role := range []string{"planner", "joinner"} {
		for _, f := range []string{"provider", "api_key", "base_url", "model", "max_tokens", "temperature", "region"} {
			_ = v.BindEnv(role + "." + f)
		}
	}
	for _, key := range []string{"custom_instructions", "max_replans", "planner_rate_limit_per_second", "pending_deadline",
		"stream.backend", "stream.redis_addr", "stream.max_len", "engine.backend", "engine.temporal_host_port",
		"engine.temporal_queue", "run_log.backend", "run_log.mongo_uri", "run_log.database", "run_log.collection"} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Joinner.Model == "" {
		cfg.Joinner.Provider = cfg.Planner.Provider
		cfg.Joinner.APIKey = cfg.Planner.APIKey
		cfg.Joinner.BaseURL = cfg.Planner.BaseURL
		cfg.Joinner.Model = cfg.Planner.Model
		cfg.Joinner.MaxTokens = cfg.Planner.MaxTokens
		cfg.Joinner.Temperature = cfg.Planner.Temperature
		cfg.Joinner.Region = cfg.Planner.Region
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields are present.
func (c *Config) Validate() error {
	if c.Planner.Model == "" {
		return fmt.Errorf("config: planner.model is required")
	}
	switch c.Planner.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderBedrock:
	default:
		return fmt.Errorf("config: unknown planner provider %q", c.Planner.Provider)
	}
	if c.Stream.Backend == StreamBackendRedis && c.Stream.RedisAddr == "" {
		return fmt.Errorf("config: stream.redis_addr is required when stream.backend is redis")
	}
	if c.Engine.Backend == EngineBackendTemporal && c.Engine.TemporalHostPort == "" {
		return fmt.Errorf("config: engine.temporal_host_port is required when engine.backend is temporal")
	}
	if c.RunLog.Backend == RunLogBackendMongo && c.RunLog.MongoURI == "" {
		return fmt.Errorf("config: run_log.mongo_uri is required when run_log.backend is mongo")
	}
	return nil
}
