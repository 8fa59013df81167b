// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"APP_ENV"`
	JWTSecret  string `mapstructure:"JWT_SECRET"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	RedisURL   string `mapstructure:"REDIS_URL"`

	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	// Comment domain policy values. Injected, never hardcoded.
	MaxTreeDepth        int `mapstructure:"MAX_TREE_DEPTH"`
	ReportHideThreshold int `mapstructure:"REPORT_HIDE_THRESHOLD"`
	EditWindowMinutes   int `mapstructure:"EDIT_WINDOW_MINUTES"`
	MaxBodyLength       int `mapstructure:"MAX_BODY_LENGTH"`

	// Moderation pipeline.
	LexiconPath         string  `mapstructure:"MODERATION_LEXICON_PATH"`
	ModerationReject    float64 `mapstructure:"MODERATION_REJECT_SCORE"`
	ModerationFlag      float64 `mapstructure:"MODERATION_FLAG_SCORE"`
	ClassifierTimeoutMS int     `mapstructure:"CLASSIFIER_TIMEOUT_MS"`

	// Cache.
	CacheTTLSeconds int `mapstructure:"CACHE_TTL_SECONDS"`

	// Per-actor rate limits, fixed one-minute windows.
	CreateLimitPerMinute int `mapstructure:"CREATE_LIMIT_PER_MINUTE"`
	LikeLimitPerMinute   int `mapstructure:"LIKE_LIMIT_PER_MINUTE"`
	ReportLimitPerMinute int `mapstructure:"REPORT_LIMIT_PER_MINUTE"`

	// Fan-out dispatcher.
	FanoutBuffer  int `mapstructure:"FANOUT_BUFFER"`
	FanoutWorkers int `mapstructure:"FANOUT_WORKERS"`

	// Tracing.
	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// EditWindow returns the author edit window as a duration.
func (c *Config) EditWindow() time.Duration {
	return time.Duration(c.EditWindowMinutes) * time.Minute
}

// ClassifierTimeout returns the per-call classifier budget as a duration.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutMS) * time.Millisecond
}

// CacheTTL returns the read-model cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The config file is optional; environment variables and defaults cover
	// every key.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err == nil {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	viper.SetDefault("PORT", "8460")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "murmur")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	viper.SetDefault("MAX_TREE_DEPTH", 6)
	viper.SetDefault("REPORT_HIDE_THRESHOLD", 5)
	viper.SetDefault("EDIT_WINDOW_MINUTES", 15)
	viper.SetDefault("MAX_BODY_LENGTH", 10000)

	viper.SetDefault("MODERATION_LEXICON_PATH", "lexicon.yml")
	viper.SetDefault("MODERATION_REJECT_SCORE", 0.9)
	viper.SetDefault("MODERATION_FLAG_SCORE", 0.6)
	viper.SetDefault("CLASSIFIER_TIMEOUT_MS", 800)

	viper.SetDefault("CACHE_TTL_SECONDS", 60)

	viper.SetDefault("CREATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("LIKE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("REPORT_LIMIT_PER_MINUTE", 10)

	viper.SetDefault("FANOUT_BUFFER", 256)
	viper.SetDefault("FANOUT_WORKERS", 2)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxTreeDepth < 1 || c.MaxTreeDepth > 10 {
		return errors.New("MAX_TREE_DEPTH must be between 1 and 10")
	}
	if c.ReportHideThreshold < 1 {
		return errors.New("REPORT_HIDE_THRESHOLD must be at least 1")
	}
	if c.ModerationFlag >= c.ModerationReject {
		return errors.New("MODERATION_FLAG_SCORE must be below MODERATION_REJECT_SCORE")
	}
	if c.FanoutBuffer < 1 || c.FanoutWorkers < 1 {
		return errors.New("FANOUT_BUFFER and FANOUT_WORKERS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
	}

	return nil
}
