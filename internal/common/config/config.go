// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port                     int `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
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

// ClarifyPolicy controls what happens when a question is ambiguous.
type ClarifyPolicy string

const (
	ClarifyAsk       ClarifyPolicy = "ask"
	ClarifyBestGuess ClarifyPolicy = "best_guess"
)

// EngineConfig holds the pipeline tunables. All of these have working
// defaults.
type EngineConfig struct {
	UseLLMForQuerySelection bool          `mapstructure:"use_llm_for_query_selection"`
	UseLLMForNarrative      bool          `mapstructure:"use_llm_for_narrative"`
	CacheTTLSeconds         int           `mapstructure:"cache_ttl_seconds"`
	MaxRetries              int           `mapstructure:"max_retries"`
	RequestDeadlineSeconds  int           `mapstructure:"request_deadline_seconds"`
	QueryConcurrency        int           `mapstructure:"query_concurrency"`
	QueryTimeoutSeconds     int           `mapstructure:"query_timeout_seconds"`
	LLMTimeoutSeconds       int           `mapstructure:"llm_timeout_seconds"`
	ClarifyPolicy           ClarifyPolicy `mapstructure:"clarify_policy"`
	MemoryContextMessages   int           `mapstructure:"memory_context_messages"`
}

// LLMProviderConfig describes one model endpoint.
type LLMProviderConfig struct {
	Provider string `mapstructure:"provider"` // "anthropic" or "gemini"
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
}

// LLMConfig holds the primary and fallback providers. The fallback is
// optional; when present the engine switches to it on rate limits.
type LLMConfig struct {
	Primary  LLMProviderConfig `mapstructure:"primary"`
	Fallback LLMProviderConfig `mapstructure:"fallback"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
