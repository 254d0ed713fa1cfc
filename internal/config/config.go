/**
 * @description
 * Configuration for the back-office service. Values come from environment variables
 * and an optional .env file in the working directory.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
	StoreDriverMemory    = "memory"

	EventsDriverNone     = "none"
	EventsDriverRabbitMQ = "rabbitmq"
	EventsDriverPubSub   = "pubsub"
)

// Config holds all configuration for the back-office service.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	AppEnv         string `mapstructure:"APP_ENV"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	StoreDriver             string `mapstructure:"STORE_DRIVER"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseCredentialsJSON string `mapstructure:"FIREBASE_CREDENTIALS_JSON"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`

	SessionSecret          string `mapstructure:"SESSION_SECRET"`
	SessionMaxAgeHours     int    `mapstructure:"SESSION_MAX_AGE_HOURS"`
	SessionCacheTTLSeconds int    `mapstructure:"SESSION_CACHE_TTL_SECONDS"`
	FirebaseCertsURL       string `mapstructure:"FIREBASE_CERTS_URL"`

	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix            string `mapstructure:"REDIS_KEY_PREFIX"`
	SessionRateLimitPerMinute int    `mapstructure:"SESSION_RATE_LIMIT_PER_MINUTE"`

	EventsDriver   string `mapstructure:"EVENTS_DRIVER"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
	PubSubTopic    string `mapstructure:"PUBSUB_TOPIC"`

	KycBucket              string `mapstructure:"KYC_BUCKET"`
	KycSignedURLTTLMinutes int    `mapstructure:"KYC_SIGNED_URL_TTL_MINUTES"`

	BranchRefreshSchedule string `mapstructure:"BRANCH_REFRESH_SCHEDULE"`
}

// IsProduction reports whether cookies must be marked Secure.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Proxies splits TRUSTED_PROXIES (IPs or CIDRs) on commas.
func (c Config) Proxies() []string {
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// FirebaseCredentialsConfigured reports whether explicit credentials were supplied.
func (c Config) FirebaseCredentialsConfigured() bool {
	return c.FirebaseCredentialsJSON != "" || c.FirebaseCredentialsFile != ""
}

// LoadConfig reads configuration from environment variables and an optional .env
// file located in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("STORE_DRIVER", StoreDriverFirestore)
	viper.SetDefault("SESSION_MAX_AGE_HOURS", 12)
	viper.SetDefault("SESSION_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("REDIS_KEY_PREFIX", "backoffice")
	viper.SetDefault("SESSION_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("EVENTS_DRIVER", EventsDriverNone)
	viper.SetDefault("EVENTS_EXCHANGE", "backoffice_events")
	viper.SetDefault("KYC_SIGNED_URL_TTL_MINUTES", 15)
	viper.SetDefault("BRANCH_REFRESH_SCHEDULE", "@every 5m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_FORMAT")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("TRUSTED_PROXIES")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("FIREBASE_PROJECT_ID", "FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	_ = viper.BindEnv("FIREBASE_CREDENTIALS_FILE", "FIREBASE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = viper.BindEnv("FIREBASE_CREDENTIALS_JSON")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("SESSION_SECRET")
	_ = viper.BindEnv("SESSION_MAX_AGE_HOURS")
	_ = viper.BindEnv("SESSION_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("FIREBASE_CERTS_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("SESSION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("EVENTS_DRIVER")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("PUBSUB_TOPIC")
	_ = viper.BindEnv("KYC_BUCKET")
	_ = viper.BindEnv("KYC_SIGNED_URL_TTL_MINUTES")
	_ = viper.BindEnv("BRANCH_REFRESH_SCHEDULE")

	// The .env file is optional.
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

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case StoreDriverFirestore, StoreDriverPostgres, StoreDriverMemory:
	default:
		log.Printf("level=warn component=config msg=\"unknown STORE_DRIVER; using firestore\" value=%q", config.StoreDriver)
		config.StoreDriver = StoreDriverFirestore
	}

	config.EventsDriver = strings.ToLower(strings.TrimSpace(config.EventsDriver))
	switch config.EventsDriver {
	case EventsDriverNone, EventsDriverRabbitMQ, EventsDriverPubSub:
	case "":
		config.EventsDriver = EventsDriverNone
	default:
		log.Printf("level=warn component=config msg=\"unknown EVENTS_DRIVER; events disabled\" value=%q", config.EventsDriver)
		config.EventsDriver = EventsDriverNone
	}

	config.FirebaseProjectID = strings.TrimSpace(config.FirebaseProjectID)
	config.FirebaseCredentialsFile = strings.TrimSpace(config.FirebaseCredentialsFile)
	config.FirebaseCredentialsJSON = strings.TrimSpace(config.FirebaseCredentialsJSON)
	config.SessionSecret = strings.TrimSpace(config.SessionSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "backoffice"
	}
	config.KycBucket = strings.TrimSpace(config.KycBucket)
	if strings.TrimSpace(config.BranchRefreshSchedule) == "" {
		config.BranchRefreshSchedule = "@every 5m"
	}

	if config.SessionMaxAgeHours <= 0 {
		log.Printf("level=warn component=config msg=\"invalid SESSION_MAX_AGE_HOURS; using default\" value=%d", config.SessionMaxAgeHours)
		config.SessionMaxAgeHours = 12
	}
	if config.SessionCacheTTLSeconds <= 0 {
		config.SessionCacheTTLSeconds = 60
	}
	if config.SessionRateLimitPerMinute < 0 {
		config.SessionRateLimitPerMinute = 0
	}
	if config.KycSignedURLTTLMinutes <= 0 {
		config.KycSignedURLTTLMinutes = 15
	}

	return
}
