// Package config provides configuration for the coordinator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. COORDINATOR_HTTP_PORT.
const EnvPrefix = "COORDINATOR"

// Config holds the coordinator configuration.
type Config struct {
	// Server settings
	HTTPPort int `mapstructure:"http_port"`
	RPCPort  int `mapstructure:"rpc_port"` // 0 disables the JSON-RPC listener

	Store        StoreConfig        `mapstructure:"store"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Agents       []AgentConfig      `mapstructure:"agents"`
	AgentRate    RateConfig         `mapstructure:"agent_rate"`
	Log          LogConfig          `mapstructure:"log"`
}

// StoreConfig selects the context/task store backend.
type StoreConfig struct {
	Type string `mapstructure:"type"` // memory | sqlite | bolt
	DSN  string `mapstructure:"dsn"`  // sqlite only
	Path string `mapstructure:"path"` // bolt only
}

// ConversationConfig holds orchestration tunables.
type ConversationConfig struct {
	MaxRounds       int           `mapstructure:"max_rounds"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	RecentTaskLimit int           `mapstructure:"recent_task_limit"`
	StrictAcyclic   bool          `mapstructure:"strict_acyclic"`
}

// AgentConfig is one static agent directory entry.
type AgentConfig struct {
	Name  string `mapstructure:"name"`
	URL   string `mapstructure:"url"`
	Emoji string `mapstructure:"emoji"`
}

// RateConfig limits outbound calls per agent. QPS <= 0 disables limiting.
type RateConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

// DefaultAgents is the agent directory used when none is configured.
var DefaultAgents = []AgentConfig{
	{Name: "game-tester", URL: "http://localhost:8001", Emoji: "🎮"},
	{Name: "swe-agent", URL: "http://localhost:8002", Emoji: "👨‍💻"},
	{Name: "product-manager", URL: "http://localhost:8003", Emoji: "📋"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8000)
	v.SetDefault("rpc_port", 0)
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.dsn", "file:coordinator.db?cache=shared&mode=rwc")
	v.SetDefault("store.path", "data/coordinator.bolt")
	v.SetDefault("conversation.max_rounds", 3)
	v.SetDefault("conversation.poll_interval", "500ms")
	v.SetDefault("conversation.poll_timeout", "300s")
	v.SetDefault("conversation.call_timeout", "30s")
	v.SetDefault("conversation.recent_task_limit", 200)
	v.SetDefault("conversation.strict_acyclic", false)
	v.SetDefault("agent_rate.qps", 0)
	v.SetDefault("agent_rate.burst", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = append([]AgentConfig(nil), DefaultAgents...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the tunables for values the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.Conversation.MaxRounds < 0 {
		return fmt.Errorf("conversation.max_rounds must be >= 0, got %d", c.Conversation.MaxRounds)
	}
	if c.Conversation.PollInterval <= 0 {
		return fmt.Errorf("conversation.poll_interval must be positive")
	}
	if c.Conversation.PollTimeout <= 0 {
		return fmt.Errorf("conversation.poll_timeout must be positive")
	}
	if c.Conversation.CallTimeout <= 0 {
		return fmt.Errorf("conversation.call_timeout must be positive")
	}
	if c.Conversation.RecentTaskLimit <= 0 {
		return fmt.Errorf("conversation.recent_task_limit must be positive")
	}
	switch c.Store.Type {
	case "memory", "sqlite", "bolt":
	default:
		return fmt.Errorf("unknown store.type %q", c.Store.Type)
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent entry with url %q has no name", a.URL)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// DomainAgents converts the configured directory entries to domain agents.
func (c *Config) DomainAgents() []domain.Agent {
	agents := make([]domain.Agent, 0, len(c.Agents))
	for _, a := range c.Agents {
		agents = append(agents, domain.Agent{
			Name:  a.Name,
			URL:   strings.TrimSuffix(a.URL, "/"),
			Emoji: a.Emoji,
		})
	}
	return agents
}
