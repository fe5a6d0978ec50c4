// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Camunda  CamundaConfig  `mapstructure:"camunda"`
	Database DatabaseConfig `mapstructure:"database"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress string `mapstructure:"broker_address"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int   `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GeminiConfig configures the generative model provider.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Tier selects the quota profile for the process-wide rate
	// limiter: "free" enforces a conservative inter-call delay,
	// "paid" a near-zero one.
	Tier string `mapstructure:"tier"`
	// RequestDelayMS overrides the tier delay when non-zero.
	RequestDelayMS int `mapstructure:"request_delay_ms"`

	CallTimeoutSec int `mapstructure:"call_timeout_sec"`
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffBaseMS  int `mapstructure:"backoff_base_ms"`
	BackoffMaxMS   int `mapstructure:"backoff_max_ms"`
}

// RequestDelay resolves the inter-call delay for the configured tier.
func (g GeminiConfig) RequestDelay() time.Duration {
	if g.RequestDelayMS > 0 {
		return time.Duration(g.RequestDelayMS) * time.Millisecond
	}
	switch g.Tier {
	case "paid":
		return 100 * time.Millisecond
	default:
		// Free tier: stay well under the provider's per-minute quota
		// even with several runs in flight.
		return 4 * time.Second
	}
}

// CallTimeout resolves the per-call wall-clock timeout.
func (g GeminiConfig) CallTimeout() time.Duration {
	if g.CallTimeoutSec > 0 {
		return time.Duration(g.CallTimeoutSec) * time.Second
	}
	return 60 * time.Second
}

// PromptsConfig pins the prompt template version used for new runs.
type PromptsConfig struct {
	Version string `mapstructure:"version"`
}

type APIConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
