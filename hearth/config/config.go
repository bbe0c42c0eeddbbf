package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/embervale/hearth-agent/hearth"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Hearth    HearthConfig    `mapstructure:"hearth"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
}

// DatabaseConfig stores the embedded database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HearthConfig stores host-level settings shared across components.
type HearthConfig struct {
	Timezone string         `mapstructure:"timezone"` // IANA name; empty means the host zone
	Locale   string         `mapstructure:"locale"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ProviderConfig stores language-model service settings. The API key is
// usually supplied via the GEMINI_API_KEY environment variable or the
// settings table instead of the config file.
type ProviderConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	APIKey      string  `mapstructure:"api_key"`
}

// AgentConfig stores conversation-engine settings.
type AgentConfig struct {
	TurnBudget      int           `mapstructure:"turn_budget"`      // Max model round-trips per command
	HistoryCapacity int           `mapstructure:"history_capacity"` // Max retained conversation turns
	ToolConcurrency int           `mapstructure:"tool_concurrency"` // Max concurrent tool executions
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`     // Per tool-call deadline
	Instruction     string        `mapstructure:"instruction"`      // Overrides the built-in system prompt
}

// CacheConfig stores context-cache settings.
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TTL          time.Duration `mapstructure:"ttl"`
	SafetyMargin time.Duration `mapstructure:"safety_margin"` // Re-create this long before expiry
}

// RetryConfig stores model-call retry settings.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	AttemptCeiling time.Duration `mapstructure:"attempt_ceiling"`
	TotalCeiling   time.Duration `mapstructure:"total_ceiling"`
}

// SchedulerConfig stores deferred-command queue settings.
type SchedulerConfig struct {
	TimerThreshold time.Duration `mapstructure:"timer_threshold"` // Delays up to this get a one-shot timer
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`  // Polling cadence for distant commands
	MaxHorizon     time.Duration `mapstructure:"max_horizon"`     // Furthest schedulable instant
	PastGrace      time.Duration `mapstructure:"past_grace"`      // Tolerated clock skew into the past
}

// ServerConfig stores the management HTTP listener settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// BridgeConfig stores the device-bridge endpoint. An empty URL runs the
// engine with the built-in tools only.
type BridgeConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("hearth.timezone", "")
	viper.SetDefault("hearth.locale", "en-US")
	viper.SetDefault("hearth.database.path", internal.DefaultDatabasePath)

	// Provider defaults
	viper.SetDefault("provider.model", internal.DefaultModel)
	viper.SetDefault("provider.temperature", 0.3)
	viper.SetDefault("provider.api_key", "")

	// Agent defaults
	viper.SetDefault("agent.turn_budget", 15)
	viper.SetDefault("agent.history_capacity", 50)
	viper.SetDefault("agent.tool_concurrency", 5)
	viper.SetDefault("agent.tool_timeout", "30s")
	viper.SetDefault("agent.instruction", "")

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", "30m")
	viper.SetDefault("cache.safety_margin", "1m")

	// Retry defaults
	viper.SetDefault("retry.max_attempts", 4)
	viper.SetDefault("retry.base_delay", "1s")
	viper.SetDefault("retry.attempt_ceiling", "15s")
	viper.SetDefault("retry.total_ceiling", "45s")

	// Scheduler defaults
	viper.SetDefault("scheduler.timer_threshold", "24h")
	viper.SetDefault("scheduler.sweep_interval", "10m")
	viper.SetDefault("scheduler.max_horizon", "8760h") // 365 days
	viper.SetDefault("scheduler.past_grace", "1m")

	// Server defaults
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.listen", internal.DefaultListenAddr)

	// Bridge defaults
	viper.SetDefault("bridge.url", "")
	viper.SetDefault("bridge.timeout", "30s")

	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. provider.api_key becomes PROVIDER_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults and environment cover everything.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
