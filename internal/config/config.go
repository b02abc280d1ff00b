package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FirecrawlConfig holds Firecrawl API settings (fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	ParseModel  string `yaml:"parse_model" mapstructure:"parse_model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	VisionModel    string `yaml:"vision_model" mapstructure:"vision_model"`
	EmbedModel     string `yaml:"embed_model" mapstructure:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension" mapstructure:"embed_dimension"`
}

// MatchConfig tunes fuzzy cache matching.
type MatchConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxCandidates       int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// RetryConfig tunes the provider retry policy.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownSecs   int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
	MaxImageBytes  int64    `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
	MaxImagePages  int      `yaml:"max_image_pages" mapstructure:"max_image_pages"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLATEFUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "plateful.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_secs", 15)
	v.SetDefault("server.max_image_bytes", 20<<20)
	v.SetDefault("server.max_image_pages", 8)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.rate_per_sec", 5)
	v.SetDefault("jina.rate_burst", 5)
	v.SetDefault("jina.timeout_secs", 30)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.parse_model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.vision_model", "gemini-2.0-flash")
	v.SetDefault("gemini.embed_model", "gemini-embedding-001")
	v.SetDefault("gemini.embed_dimension", 768)
	v.SetDefault("match.similarity_threshold", 0.92)
	v.SetDefault("match.max_candidates", 3)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 400)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.backoff_multiplier", 2.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
