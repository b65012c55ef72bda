package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	LogLevel       string

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	RedisURL string

	JWTSecret string
	JWTTTL    time.Duration

	MeiliSearchHost string
	MeiliMasterKey  string

	StorageDriver string
	CloudinaryURL string
	UploadFolder  string
	S3Region      string
	S3Bucket      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3PublicURL   string

	APNSKeyPath    string
	APNSKeyID      string
	APNSTeamID     string
	APNSTopic      string
	APNSProduction bool

	RatingUpdateRetries int

	EventBufferSize int
	EventWorkers    int

	ListingExpirySchedule string

	RateLimitPickupRequest time.Duration
	RateLimitMessage       time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnv("DB_NAME", "bottlebuddy"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		RedisURL: os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		StorageDriver: getEnv("STORAGE_DRIVER", "cloudinary"),
		CloudinaryURL: os.Getenv("CLOUDINARY_URL"),
		UploadFolder:  getEnv("UPLOAD_FOLDER", "bottlebuddy"),
		S3Region:      getEnv("S3_REGION", "eu-central-1"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		S3PublicURL:   os.Getenv("S3_PUBLIC_URL"),

		APNSKeyPath: os.Getenv("APNS_KEY_PATH"),
		APNSKeyID:   os.Getenv("APNS_KEY_ID"),
		APNSTeamID:  os.Getenv("APNS_TEAM_ID"),
		APNSTopic:   os.Getenv("APNS_TOPIC"),

		ListingExpirySchedule: getEnv("LISTING_EXPIRY_SCHEDULE", "@every 15m"),
	}

	if cfg.JWTSecret == "" {
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret"
	}

	var err error
	if cfg.APNSProduction, err = strconv.ParseBool(getEnv("APNS_PRODUCTION", "false")); err != nil {
		return nil, fmt.Errorf("invalid APNS_PRODUCTION: %w", err)
	}

	ttlMinutes, err := parseInt("JWT_TTL_MINUTES", 1440)
	if err != nil {
		return nil, err
	}
	cfg.JWTTTL = time.Duration(ttlMinutes) * time.Minute

	if cfg.RatingUpdateRetries, err = parseInt("RATING_UPDATE_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.EventBufferSize, err = parseInt("EVENT_BUFFER_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.EventWorkers, err = parseInt("EVENT_WORKERS", 4); err != nil {
		return nil, err
	}

	cfg.RateLimitPickupRequest, err = parseDuration(getEnv("RATE_LIMIT_PICKUP_REQUEST", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PICKUP_REQUEST: %w", err)
	}
	cfg.RateLimitMessage, err = parseDuration(getEnv("RATE_LIMIT_MESSAGE", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_MESSAGE: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
