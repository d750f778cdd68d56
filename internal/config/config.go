/**
 * @description
 * This file handles the configuration management for the withdrawal-account-service.
 * It uses the Viper library to read settings from environment variables or a .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerPort            = "8086"
	defaultRateLimitPrefix       = "transfa:withdrawal_rate_limit"
	defaultCreateRateLimit       = 30
	defaultEventsExchange        = "withdrawal_account_events"
	defaultCleanupQueue          = "withdrawal_account_service.recipient_cleanup"
	defaultFlutterwaveEnv        = "sandbox"
	defaultFlutterwaveTokenURL   = "https://idp.flutterwave.com/realms/flutterwave/protocol/openid-connect/token"
	defaultReconcileSchedule     = "@every 5m"
	defaultPendingStaleAfterMins = 15
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	CreateRateLimitPerMinute int    `mapstructure:"-"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	WithdrawalEventsExchange string `mapstructure:"WITHDRAWAL_EVENTS_EXCHANGE"`
	RecipientCleanupQueue    string `mapstructure:"RECIPIENT_CLEANUP_QUEUE"`
	FlutterwaveEnv           string `mapstructure:"FLUTTERWAVE_ENV"`
	FlutterwaveBaseURL       string `mapstructure:"FLUTTERWAVE_BASE_URL"`
	FlutterwaveTokenURL      string `mapstructure:"FLUTTERWAVE_TOKEN_URL"`
	FlutterwaveClientID      string `mapstructure:"FLUTTERWAVE_CLIENT_ID"`
	FlutterwaveClientSecret  string `mapstructure:"FLUTTERWAVE_CLIENT_SECRET"`
	ClerkJWKSURL             string `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer              string `mapstructure:"CLERK_ISSUER"`
	ClerkAudience            string `mapstructure:"CLERK_AUDIENCE"`
	TrustGatewayUserHeader   bool   `mapstructure:"-"`
	CORSAllowedOrigins       string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	PendingReconcileSchedule string `mapstructure:"PENDING_RECONCILE_SCHEDULE"`
	PendingStaleAfterMinutes int    `mapstructure:"-"`
}

// LoadConfig reads configuration from the optional .env file in path and from
// environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("CREATE_RATE_LIMIT_PER_MINUTE", defaultCreateRateLimit)
	viper.SetDefault("WITHDRAWAL_EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("RECIPIENT_CLEANUP_QUEUE", defaultCleanupQueue)
	viper.SetDefault("FLUTTERWAVE_ENV", defaultFlutterwaveEnv)
	viper.SetDefault("FLUTTERWAVE_TOKEN_URL", defaultFlutterwaveTokenURL)
	viper.SetDefault("TRUST_GATEWAY_USER_HEADER", false)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("PENDING_RECONCILE_SCHEDULE", defaultReconcileSchedule)
	viper.SetDefault("PENDING_STALE_AFTER_MINUTES", defaultPendingStaleAfterMins)

	// Bind envs explicitly so containers pick them up reliably
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WITHDRAWAL_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CREATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("WITHDRAWAL_EVENTS_EXCHANGE")
	_ = viper.BindEnv("RECIPIENT_CLEANUP_QUEUE")
	_ = viper.BindEnv("FLUTTERWAVE_ENV")
	_ = viper.BindEnv("FLUTTERWAVE_BASE_URL")
	_ = viper.BindEnv("FLUTTERWAVE_TOKEN_URL")
	_ = viper.BindEnv("FLUTTERWAVE_CLIENT_ID")
	_ = viper.BindEnv("FLUTTERWAVE_CLIENT_SECRET")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("CLERK_AUDIENCE")
	_ = viper.BindEnv("TRUST_GATEWAY_USER_HEADER")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("PENDING_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("PENDING_STALE_AFTER_MINUTES")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}

	config.FlutterwaveEnv = strings.ToLower(strings.TrimSpace(config.FlutterwaveEnv))
	if config.FlutterwaveEnv == "" {
		config.FlutterwaveEnv = defaultFlutterwaveEnv
	}
	config.FlutterwaveBaseURL = strings.TrimRight(strings.TrimSpace(config.FlutterwaveBaseURL), "/")

	// Numeric and boolean settings are parsed here so a malformed value falls
	// back to its default instead of failing Unmarshal.
	config.CreateRateLimitPerMinute = positiveIntSetting("CREATE_RATE_LIMIT_PER_MINUTE", defaultCreateRateLimit)
	config.PendingStaleAfterMinutes = positiveIntSetting("PENDING_STALE_AFTER_MINUTES", defaultPendingStaleAfterMins)
	config.TrustGatewayUserHeader = boolSetting("TRUST_GATEWAY_USER_HEADER", false)
	if strings.TrimSpace(config.PendingReconcileSchedule) == "" {
		config.PendingReconcileSchedule = defaultReconcileSchedule
	}

	return
}

func positiveIntSetting(key string, fallback int) int {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid integer setting; using default\" key=%s value=%q default=%d err=%v", key, raw, fallback, err)
		return fallback
	}
	if value <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive setting; using default\" key=%s value=%d default=%d", key, value, fallback)
		return fallback
	}
	return value
}

func boolSetting(key string, fallback bool) bool {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid boolean setting; using default\" key=%s value=%q default=%t", key, raw, fallback)
		return fallback
	}
	return value
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into a list.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
