// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from config.yaml, an optional per-environment
// overlay and environment variables. Every key can be overridden with an
// INSIGHT_ prefixed env var (INSIGHT_ENGINE_CACHE_TTL_SECONDS, ...), so the
// whole engine runs off a single configuration schema.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("INSIGHT_APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "insight-engine"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "0.1.0"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadHeaderTimeoutSeconds == 0 {
		cfg.Server.ReadHeaderTimeoutSeconds = 10
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Engine.CacheTTLSeconds == 0 {
		cfg.Engine.CacheTTLSeconds = 900
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 3
	}
	if cfg.Engine.RequestDeadlineSeconds == 0 {
		cfg.Engine.RequestDeadlineSeconds = 180
	}
	if cfg.Engine.QueryConcurrency == 0 {
		cfg.Engine.QueryConcurrency = 3
	}
	if cfg.Engine.QueryTimeoutSeconds == 0 {
		cfg.Engine.QueryTimeoutSeconds = 30
	}
	if cfg.Engine.LLMTimeoutSeconds == 0 {
		cfg.Engine.LLMTimeoutSeconds = 60
	}
	if cfg.Engine.ClarifyPolicy == "" {
		cfg.Engine.ClarifyPolicy = ClarifyAsk
	}
	if cfg.Engine.MemoryContextMessages == 0 {
		cfg.Engine.MemoryContextMessages = 10
	}
	if cfg.LLM.Primary.Provider == "" {
		cfg.LLM.Primary.Provider = "anthropic"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Engine.ClarifyPolicy != ClarifyAsk && cfg.Engine.ClarifyPolicy != ClarifyBestGuess {
		return fmt.Errorf("engine.clarify_policy must be %q or %q, got %q",
			ClarifyAsk, ClarifyBestGuess, cfg.Engine.ClarifyPolicy)
	}
	if cfg.Engine.QueryConcurrency < 1 {
		return fmt.Errorf("engine.query_concurrency must be >= 1")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0")
	}
	switch cfg.LLM.Primary.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("llm.primary.provider must be anthropic or gemini, got %q", cfg.LLM.Primary.Provider)
	}
	if cfg.LLM.Fallback.Provider != "" {
		switch cfg.LLM.Fallback.Provider {
		case "anthropic", "gemini":
		default:
			return fmt.Errorf("llm.fallback.provider must be anthropic or gemini, got %q", cfg.LLM.Fallback.Provider)
		}
	}
	return nil
}
