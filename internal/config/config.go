package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Superset   SupersetConfig   `mapstructure:"superset"`
	Metastore  MetastoreConfig  `mapstructure:"metastore"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Layout     LayoutConfig     `mapstructure:"layout"`
	Session    SessionConfig    `mapstructure:"session"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Events     EventsConfig     `mapstructure:"events"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Env               string        `mapstructure:"env"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig points at the service's own Postgres (round ledger)
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SupersetConfig struct {
	URL                    string        `mapstructure:"url"`
	ExternalURL            string        `mapstructure:"external_url"`
	AdminUser              string        `mapstructure:"admin_user"`
	AdminPassword          string        `mapstructure:"admin_password"`
	Timeout                time.Duration `mapstructure:"timeout"`
	SessionTTL             time.Duration `mapstructure:"session_ttl"`
	CrossCheckDatasets     bool          `mapstructure:"cross_check_datasets"`
	SchemaCacheTTL         time.Duration `mapstructure:"schema_cache_ttl"`
	MaterializeParallelism int           `mapstructure:"materialize_parallelism"`
}

// MetastoreConfig selects how dashboard/chart links are written.
// Driver is one of postgres, mysql, sqlite or rest.
type MetastoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type LLMConfig struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
	DeepSeek        DeepSeekConfig  `mapstructure:"deepseek"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
	Ark             ArkConfig       `mapstructure:"ark"`
}

// OpenAIConfig also covers OpenAI-compatible gateways such as LiteLLM
type OpenAIConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	BaseURL       string `mapstructure:"base_url"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type DeepSeekConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ArkConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	Region  string `mapstructure:"region"`
}

type GenerationConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	HistoryTurns int    `mapstructure:"history_turns"`
	MaxCharts    int    `mapstructure:"max_charts"`
}

type FootprintConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type LayoutConfig struct {
	CanvasWidth    int                        `mapstructure:"canvas_width"`
	StretchLastRow bool                       `mapstructure:"stretch_last_row"`
	Footprints     map[string]FootprintConfig `mapstructure:"footprints"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	EncryptionKey string        `mapstructure:"encryption_key"`
}

type PolicyConfig struct {
	RegoPath string `mapstructure:"rego_path"`
}

type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level    string        `mapstructure:"level"`
	Format   string        `mapstructure:"format"`
	FilePath string        `mapstructure:"file_path"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.middleware_timeout", "170s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:9088"})

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bigenie")
	v.SetDefault("database.database", "bigenie")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 1)

	// Superset
	v.SetDefault("superset.url", "http://superset:8088")
	v.SetDefault("superset.external_url", "http://localhost:9088")
	v.SetDefault("superset.admin_user", "admin")
	v.SetDefault("superset.admin_password", "admin")
	v.SetDefault("superset.timeout", "30s")
	v.SetDefault("superset.session_ttl", "10m")
	v.SetDefault("superset.cross_check_datasets", false)
	v.SetDefault("superset.schema_cache_ttl", "5m")
	v.SetDefault("superset.materialize_parallelism", 6)

	// Metastore
	v.SetDefault("metastore.driver", "postgres")
	v.SetDefault("metastore.dsn", "postgresql://superset:superset@db:5432/superset")
	v.SetDefault("metastore.max_conns", 4)

	// LLM
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.openai.model", "claude-haiku-4-5@20251001")
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.default_model", "llama3")
	v.SetDefault("llm.gemini.model", "gemini-1.5-flash")
	v.SetDefault("llm.ark.region", "cn-beijing")

	// Generation
	v.SetDefault("generation.history_turns", 6)
	v.SetDefault("generation.max_charts", 6)

	// Layout
	v.SetDefault("layout.canvas_width", 12)
	v.SetDefault("layout.stretch_last_row", true)

	// Session
	v.SetDefault("session.backend", "redis")
	v.SetDefault("session.ttl", "30m")

	// Events
	v.SetDefault("events.subject", "bigenie.rounds")

	// Tracing
	v.SetDefault("tracing.service_name", "bi-genie")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 20)
	v.SetDefault("security.rate_limit.burst", 5)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age", "168h")
}

func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.password", "POSTGRES_PASSWORD")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Superset
	v.BindEnv("superset.url", "SUPERSET_URL")
	v.BindEnv("superset.external_url", "SUPERSET_EXTERNAL_URL")
	v.BindEnv("superset.admin_user", "SUPERSET_ADMIN_USER")
	v.BindEnv("superset.admin_password", "SUPERSET_ADMIN_PASSWORD")

	// Metastore
	v.BindEnv("metastore.dsn", "DATABASE_URL")

	// LLM
	v.BindEnv("llm.openai.api_key", "LITELLM_API_KEY")
	v.BindEnv("llm.openai.base_url", "LITELLM_URL")
	v.BindEnv("llm.openai.model", "LLM_MODEL")
	v.BindEnv("llm.openai.skip_tls_verify", "LLM_SKIP_TLS_VERIFY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.ark.api_key", "ARK_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")

	// Session
	v.BindEnv("session.encryption_key", "SESSION_ENCRYPTION_KEY")

	// Events and tracing
	v.BindEnv("events.nats_url", "NATS_URL")
	v.BindEnv("tracing.enabled", "OTEL_ENABLED")
	v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}
