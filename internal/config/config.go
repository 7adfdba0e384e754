/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the donation-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	PawaPayAPIBaseURL         string `mapstructure:"PAWAPAY_API_BASE_URL"`
	PawaPayAPIKey             string `mapstructure:"PAWAPAY_API_KEY"`
	JWKSURL                   string `mapstructure:"JWKS_URL"`
	AuthServiceURL            string `mapstructure:"AUTH_SERVICE_URL"`
	AuthServiceInternalAPIKey string `mapstructure:"AUTH_SERVICE_INTERNAL_API_KEY"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	PollIntervalMs            int    `mapstructure:"POLL_INTERVAL_MS"`
	PollMaxAttempts           int    `mapstructure:"POLL_MAX_ATTEMPTS"`
	ReconcileSchedule         string `mapstructure:"RECONCILE_SCHEDULE"`
	ReconcileGraceMinutes     int    `mapstructure:"RECONCILE_GRACE_MINUTES"`
	ReconcileBatchLimit       int    `mapstructure:"RECONCILE_BATCH_LIMIT"`
	PaymentRateLimitPerMinute int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAWAPAY_API_BASE_URL", "https://api.sandbox.pawapay.io")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "nmd:rate_limit")
	viper.SetDefault("POLL_INTERVAL_MS", 4000)
	viper.SetDefault("POLL_MAX_ATTEMPTS", 10)
	viper.SetDefault("RECONCILE_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("RECONCILE_GRACE_MINUTES", 30)
	viper.SetDefault("RECONCILE_BATCH_LIMIT", 100)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "DONATION_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAWAPAY_API_BASE_URL")
	_ = viper.BindEnv("PAWAPAY_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("AUTH_SERVICE_URL")
	_ = viper.BindEnv("AUTH_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "DONATION_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("POLL_INTERVAL_MS")
	_ = viper.BindEnv("POLL_MAX_ATTEMPTS")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_GRACE_MINUTES")
	_ = viper.BindEnv("RECONCILE_BATCH_LIMIT")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("DONATION_SERVICE_INTERNAL_API_KEY"))
	}
	config.AuthServiceInternalAPIKey = strings.TrimSpace(config.AuthServiceInternalAPIKey)
	if config.AuthServiceInternalAPIKey == "" {
		config.AuthServiceInternalAPIKey = config.InternalAPIKey
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "nmd:rate_limit"
	}

	if config.PollIntervalMs <= 0 {
		log.Printf("level=warn component=config msg=\"invalid poll interval; using default\" interval_ms=%d", config.PollIntervalMs)
		config.PollIntervalMs = 4000
	}
	if config.PollMaxAttempts <= 0 {
		log.Printf("level=warn component=config msg=\"invalid poll max attempts; using default\" max_attempts=%d", config.PollMaxAttempts)
		config.PollMaxAttempts = 10
	}
	if strings.TrimSpace(config.ReconcileSchedule) == "" {
		config.ReconcileSchedule = "*/15 * * * *"
	}
	if config.ReconcileGraceMinutes <= 0 {
		config.ReconcileGraceMinutes = 30
	}
	if config.ReconcileBatchLimit <= 0 {
		config.ReconcileBatchLimit = 100
	}
	if config.PaymentRateLimitPerMinute <= 0 {
		config.PaymentRateLimitPerMinute = 10
	}

	return
}
