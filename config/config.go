package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/modelgrid/provider-router/services/providers"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Router        RouterConfig
	Providers     []ProviderConfig
	Outcome       OutcomeConfig
	Health        HealthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RouterConfig holds routing behavior configuration
type RouterConfig struct {
	MaxAttempts    int
	DefaultTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// ProviderConfig holds one upstream provider's configuration
type ProviderConfig struct {
	ID                    string
	Name                  string
	Kind                  string
	Enabled               bool
	Priority              int
	Models                []string
	MaxRequestsPerMinute  int
	Timeout               time.Duration
	MaxRetries            int
	BaseURL               string
	APIKey                string
	CostPerThousandTokens float64
}

// OutcomeConfig holds outcome persistence configuration.
// When DatabaseURL is empty, outcomes stay in memory.
type OutcomeConfig struct {
	DatabaseURL string
	BufferSize  int
	WorkerCount int
	Retention   time.Duration
}

// HealthConfig holds health probing configuration
type HealthConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Router: RouterConfig{
			MaxAttempts:    getEnvAsInt("ROUTER_MAX_ATTEMPTS", 3),
			DefaultTimeout: getEnvAsDuration("ROUTER_DEFAULT_TIMEOUT", 30*time.Second),
			BackoffBase:    getEnvAsDuration("ROUTER_BACKOFF_BASE", 500*time.Millisecond),
			BackoffMax:     getEnvAsDuration("ROUTER_BACKOFF_MAX", 10*time.Second),
		},
		Providers: loadProviderConfigs(),
		Outcome: OutcomeConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
			BufferSize:  getEnvAsInt("OUTCOME_BUFFER_SIZE", 10000),
			WorkerCount: getEnvAsInt("OUTCOME_WORKER_COUNT", 4),
			Retention:   getEnvAsDuration("OUTCOME_RETENTION", 30*24*time.Hour),
		},
		Health: HealthConfig{
			ProbeInterval: getEnvAsDuration("HEALTH_PROBE_INTERVAL", 30*time.Second),
			ProbeTimeout:  getEnvAsDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadProviderConfigs builds provider blocks from PROVIDERS, a comma-separated
// list of env prefixes. For each prefix P, the block reads P_NAME, P_KIND,
// P_MODELS, P_BASE_URL and so on. An empty PROVIDERS yields the built-in
// three-provider default layout.
func loadProviderConfigs() []ProviderConfig {
	prefixes := splitList(getEnv("PROVIDERS", "OPENAI,ANTHROPIC,LOCAL"))

	configs := make([]ProviderConfig, 0, len(prefixes))
	for i, prefix := range prefixes {
		id := strings.ToLower(prefix)
		configs = append(configs, ProviderConfig{
			ID:                    getEnv(prefix+"_ID", id),
			Name:                  getEnv(prefix+"_NAME", id),
			Kind:                  getEnv(prefix+"_KIND", defaultKind(id)),
			Enabled:               getEnvAsBool(prefix+"_ENABLED", true),
			Priority:              getEnvAsInt(prefix+"_PRIORITY", i+1),
			Models:                splitList(getEnv(prefix+"_MODELS", "")),
			MaxRequestsPerMinute:  getEnvAsInt(prefix+"_MAX_RPM", 60),
			Timeout:               getEnvAsDuration(prefix+"_TIMEOUT", 60*time.Second),
			MaxRetries:            getEnvAsInt(prefix+"_MAX_RETRIES", 3),
			BaseURL:               getEnv(prefix+"_BASE_URL", defaultBaseURL(id)),
			APIKey:                getEnv(prefix+"_API_KEY", ""),
			CostPerThousandTokens: getEnvAsFloat(prefix+"_COST_PER_1K_TOKENS", 0),
		})
	}
	return configs
}

func defaultKind(id string) string {
	switch id {
	case "openai":
		return string(providers.KindOpenAI)
	case "anthropic":
		return string(providers.KindAnthropic)
	case "google":
		return string(providers.KindGoogle)
	case "local":
		return string(providers.KindLocal)
	default:
		return string(providers.KindOpenAI)
	}
}

func defaultBaseURL(id string) string {
	switch id {
	case "openai":
		return "https://api.openai.com/v1"
	case "anthropic":
		return "https://api.anthropic.com/v1"
	case "local":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}

// Descriptors converts the configured provider blocks into catalog
// descriptors, preserving configuration order.
func (c *Config) Descriptors() []providers.ProviderDescriptor {
	descriptors := make([]providers.ProviderDescriptor, 0, len(c.Providers))
	for _, p := range c.Providers {
		descriptors = append(descriptors, providers.ProviderDescriptor{
			ID:                    p.ID,
			Name:                  p.Name,
			Kind:                  providers.Kind(p.Kind),
			Enabled:               p.Enabled,
			Priority:              p.Priority,
			Models:                p.Models,
			MaxRequestsPerMinute:  p.MaxRequestsPerMinute,
			Timeout:               p.Timeout,
			MaxRetries:            p.MaxRetries,
			BaseURL:               p.BaseURL,
			APIKey:                p.APIKey,
			CostPerThousandTokens: p.CostPerThousandTokens,
		})
	}
	return descriptors
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider ID cannot be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider ID %q", p.ID)
		}
		seen[p.ID] = true
	}

	if c.Router.MaxAttempts <= 0 {
		return fmt.Errorf("router max attempts must be positive")
	}

	if c.IsProduction() {
		anyKey := false
		for _, p := range c.Providers {
			if p.APIKey != "" || p.Kind == string(providers.KindLocal) {
				anyKey = true
				break
			}
		}
		if !anyKey {
			return fmt.Errorf("at least one provider must carry an API key in production")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
