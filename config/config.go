// Package config loads service configuration from defaults, an optional YAML
// file and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/KamdynS/payroll-agents/llm/anthropic"
	"github.com/KamdynS/payroll-agents/llm/openai"
)

// EnvPrefix prefixes every environment override, e.g. PAYROLL_AGENTS_SERVER_ADDR.
const EnvPrefix = "PAYROLL_AGENTS"

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Log       LogConfig        `mapstructure:"log"`
	OpenAI    openai.Config    `mapstructure:"openai"`
	Anthropic anthropic.Config `mapstructure:"anthropic"`
	Agents    AgentsConfig     `mapstructure:"agents"`
	Relevance RelevanceConfig  `mapstructure:"relevance"`
	Aggregate AggregateConfig  `mapstructure:"aggregate"`
	Store     StoreConfig      `mapstructure:"store"`
	Knowledge KnowledgeConfig  `mapstructure:"knowledge"`
	Trace     TraceConfig      `mapstructure:"trace"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr         string          `mapstructure:"addr"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds request rate per client address.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AgentsConfig holds agent unit settings.
type AgentsConfig struct {
	// CatalogFile optionally overrides built-in catalog entries.
	CatalogFile string        `mapstructure:"catalog_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// MaxInputChars truncates oversized queries before they reach a model.
	MaxInputChars int      `mapstructure:"max_input_chars"`
	DenyTerms     []string `mapstructure:"deny_terms"`
}

// RelevanceConfig holds analyzer settings.
type RelevanceConfig struct {
	// Mode is "llm" or "keyword".
	Mode      string        `mapstructure:"mode"`
	Model     string        `mapstructure:"model"`
	Cutoff    float64       `mapstructure:"cutoff"`
	MaxAgents int           `mapstructure:"max_agents"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AggregateConfig holds synthesis settings.
type AggregateConfig struct {
	Synthesize bool   `mapstructure:"synthesize"`
	Model      string `mapstructure:"model"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	// Backend is one of memory, sqlite, badger, redis.
	Backend    string        `mapstructure:"backend"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	BadgerPath string        `mapstructure:"badger_path"`
	TTL        time.Duration `mapstructure:"ttl"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// TraceConfig routes spans to OpenTelemetry. The process-wide
// TracerProvider decides where they are exported.
type TraceConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// KnowledgeConfig configures the pgvector knowledge base.
type KnowledgeConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	DSN            string  `mapstructure:"dsn"`
	Table          string  `mapstructure:"table"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	TopK           int     `mapstructure:"top_k"`
	MinScore       float64 `mapstructure:"min_score"`
}

// Load reads configuration. An empty path searches ./payroll-agents.yaml and
// $XDG_CONFIG_HOME/payroll-agents/config.yaml; a missing file is not an error.
// Precedence (highest to lowest): environment, file, built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("payroll-agents")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(dir + "/payroll-agents")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("anthropic.api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("knowledge.dsn", EnvPrefix+"_KNOWLEDGE_DSN", "DATABASE_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.OpenAI.APIKey = os.ExpandEnv(cfg.OpenAI.APIKey)
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rps", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("anthropic.timeout", "60s")

	v.SetDefault("agents.catalog_file", "")
	v.SetDefault("agents.timeout", "60s")
	v.SetDefault("agents.max_input_chars", 4000)
	v.SetDefault("agents.deny_terms", []string{})

	v.SetDefault("relevance.mode", "llm")
	v.SetDefault("relevance.model", "gpt-4o-mini")
	v.SetDefault("relevance.cutoff", 0.5)
	v.SetDefault("relevance.max_agents", 3)
	v.SetDefault("relevance.cache_ttl", "10m")
	v.SetDefault("relevance.cache_size", 512)
	v.SetDefault("relevance.timeout", "30s")

	v.SetDefault("aggregate.synthesize", true)
	v.SetDefault("aggregate.model", "gpt-4o-mini")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sqlite_path", "data/conversations.db")
	v.SetDefault("store.badger_path", "data/conversations")
	v.SetDefault("store.ttl", "0s")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.prefix", "payroll")

	v.SetDefault("knowledge.enabled", false)
	v.SetDefault("knowledge.table", "documents")
	v.SetDefault("knowledge.embedding_model", "text-embedding-3-small")
	v.SetDefault("knowledge.top_k", 4)
	v.SetDefault("knowledge.min_score", 0.25)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.service_name", "payroll-agents")
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "badger", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Relevance.Mode {
	case "llm", "keyword":
	default:
		return fmt.Errorf("unknown relevance mode %q", c.Relevance.Mode)
	}
	if c.Relevance.Cutoff < 0 || c.Relevance.Cutoff > 1 {
		return fmt.Errorf("relevance cutoff must be within [0,1]")
	}
	if c.Relevance.MaxAgents < 1 {
		return fmt.Errorf("relevance max_agents must be at least 1")
	}
	if c.Knowledge.Enabled && c.Knowledge.DSN == "" {
		return fmt.Errorf("knowledge base enabled without a dsn")
	}
	return nil
}
