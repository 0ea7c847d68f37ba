// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/domain-scout/internal/batch"
	"github.com/sells-group/domain-scout/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	RDAP      RDAPConfig      `yaml:"rdap" mapstructure:"rdap"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Registrar RegistrarConfig `yaml:"registrar" mapstructure:"registrar"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Score     ScoreConfig     `yaml:"score" mapstructure:"score"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Generate  GenerateConfig  `yaml:"generate" mapstructure:"generate"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RDAPConfig configures the availability lookup client.
type RDAPConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AnthropicConfig holds scoring API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// RegistrarConfig holds registrar API credentials and endpoint.
type RegistrarConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIUser     string `yaml:"api_user" mapstructure:"api_user"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	Username    string `yaml:"username" mapstructure:"username"`
	ClientIP    string `yaml:"client_ip" mapstructure:"client_ip"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures the batch dispatcher. Every threshold the
// dispatcher uses is set here rather than hard-coded.
type BatchConfig struct {
	Size                   int     `yaml:"size" mapstructure:"size"`
	Concurrency            int     `yaml:"concurrency" mapstructure:"concurrency"`
	MinConcurrency         int     `yaml:"min_concurrency" mapstructure:"min_concurrency"`
	MaxConcurrency         int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	ConcurrencyStepUp      int     `yaml:"concurrency_step_up" mapstructure:"concurrency_step_up"`
	ConcurrencyStepDown    int     `yaml:"concurrency_step_down" mapstructure:"concurrency_step_down"`
	RateLimitTolerance     int     `yaml:"rate_limit_tolerance" mapstructure:"rate_limit_tolerance"`
	SuccessFraction        float64 `yaml:"success_fraction" mapstructure:"success_fraction"`
	BatchRetries           int     `yaml:"batch_retries" mapstructure:"batch_retries"`
	MaxRetries             int     `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelaySecs          float64 `yaml:"base_delay_secs" mapstructure:"base_delay_secs"`
	LongCooldownSecs       int     `yaml:"long_cooldown_secs" mapstructure:"long_cooldown_secs"`
	MaxErrors              int     `yaml:"max_errors" mapstructure:"max_errors"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
}

// ScoreConfig configures the scoring stage.
type ScoreConfig struct {
	HighScoreThreshold float64 `yaml:"high_score_threshold" mapstructure:"high_score_threshold"`
	Limit              int     `yaml:"limit" mapstructure:"limit"`
}

// PricingConfig configures the pricing stage.
type PricingConfig struct {
	MinScore           float64 `yaml:"min_score" mapstructure:"min_score"`
	MaxPrice           float64 `yaml:"max_price" mapstructure:"max_price"`
	SortField          string  `yaml:"sort_field" mapstructure:"sort_field"`
	Limit              int     `yaml:"limit" mapstructure:"limit"`
	IncludeTaken       bool    `yaml:"include_taken" mapstructure:"include_taken"`
	RetryFiltered      bool    `yaml:"retry_filtered" mapstructure:"retry_filtered"`
	HighScoreThreshold float64 `yaml:"high_score_threshold" mapstructure:"high_score_threshold"`
	TLDCacheTTLMins    int     `yaml:"tld_cache_ttl_mins" mapstructure:"tld_cache_ttl_mins"`
}

// GenerateConfig configures candidate generation.
type GenerateConfig struct {
	WordlistPath string   `yaml:"wordlist_path" mapstructure:"wordlist_path"`
	TLDs         []string `yaml:"tlds" mapstructure:"tlds"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // "memory" or "redis"
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BaseDelay returns the inter-batch base delay as a Duration.
func (b BatchConfig) BaseDelay() time.Duration {
	return time.Duration(b.BaseDelaySecs * float64(time.Second))
}

// LongCooldown returns the consecutive-failure cooldown as a Duration.
func (b BatchConfig) LongCooldown() time.Duration {
	return time.Duration(b.LongCooldownSecs) * time.Second
}

// Dispatcher maps the loaded settings onto a dispatcher configuration.
func (b BatchConfig) Dispatcher() batch.Config {
	return batch.Config{
		BatchSize:          b.Size,
		Concurrency:        b.Concurrency,
		MinConcurrency:     b.MinConcurrency,
		MaxConcurrency:     b.MaxConcurrency,
		StepUp:             b.ConcurrencyStepUp,
		StepDown:           b.ConcurrencyStepDown,
		RateLimitTolerance: b.RateLimitTolerance,
		SuccessFraction:    b.SuccessFraction,
		BatchRetries:       b.BatchRetries,
		Retry: resilience.RetryConfig{
			MaxAttempts: b.MaxRetries,
			BaseDelay:   b.BaseDelay(),
		},
		BaseDelay:              b.BaseDelay(),
		LongCooldown:           b.LongCooldown(),
		MaxConsecutiveFailures: b.MaxConsecutiveFailures,
		MaxErrors:              b.MaxErrors,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOMAINSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "domains.db")
	v.SetDefault("rdap.base_url", "https://rdap.org")
	v.SetDefault("rdap.timeout_secs", 15)
	v.SetDefault("rdap.rate_per_sec", 10)
	v.SetDefault("rdap.rate_burst", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("registrar.base_url", "https://api.namecheap.com/xml.response")
	v.SetDefault("registrar.timeout_secs", 30)
	v.SetDefault("batch.size", 100)
	v.SetDefault("batch.concurrency", 20)
	v.SetDefault("batch.min_concurrency", 5)
	v.SetDefault("batch.max_concurrency", 40)
	v.SetDefault("batch.concurrency_step_up", 2)
	v.SetDefault("batch.concurrency_step_down", 5)
	v.SetDefault("batch.rate_limit_tolerance", 5)
	v.SetDefault("batch.success_fraction", 0.5)
	v.SetDefault("batch.batch_retries", 2)
	v.SetDefault("batch.max_retries", 3)
	v.SetDefault("batch.base_delay_secs", 1.0)
	v.SetDefault("batch.long_cooldown_secs", 60)
	v.SetDefault("batch.max_errors", 0) // 0 = no cap
	v.SetDefault("batch.max_consecutive_failures", 3)
	v.SetDefault("score.high_score_threshold", 8.0)
	v.SetDefault("score.limit", 0)
	v.SetDefault("pricing.min_score", 7.0)
	v.SetDefault("pricing.max_price", 0.0) // 0 = no ceiling
	v.SetDefault("pricing.sort_field", "average_score")
	v.SetDefault("pricing.limit", 50)
	v.SetDefault("pricing.include_taken", false)
	v.SetDefault("pricing.retry_filtered", false)
	v.SetDefault("pricing.high_score_threshold", 7.0)
	v.SetDefault("pricing.tld_cache_ttl_mins", 60)
	v.SetDefault("generate.wordlist_path", "data/words.txt")
	v.SetDefault("generate.tlds", []string{"io", "me", "ai", "us", "co", "to"})
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
