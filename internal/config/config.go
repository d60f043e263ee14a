package config

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
}

// PlanLimits holds the per-plan creation caps consumed at download creation.
type PlanLimits struct {
	MaxAssetCount    int
	MaxTotalBytes    int64
	MaxExpiryDays    int
	AllowNonExpiring bool
}

// BuildConfig holds the archive pipeline tunables. They are read once at
// startup and handed to the worker and delivery components explicitly.
type BuildConfig struct {
	ChunkSize               int           // assets per progress-reporting chunk
	StallThreshold          time.Duration // building + no progress for this long => stalled
	StreamingEnabled        bool
	StreamingThresholdBytes int64 // estimated selection size above which the streaming path is chosen
	MaxConcurrentBuilds     int64
}

type RetentionConfig struct {
	GraceDays        int // purge this many days after expiry
	MaxRetentionDays int // retention ceiling for non-expiring downloads
	SweepInterval    time.Duration
}

type Config struct {
	DB_URL        string
	Port          string
	JWTSecret     string
	Environment   string
	PublicBaseURL string
	PresignTTL    time.Duration
	CorsConfig    cors.Options
	R2            R2Config
	Plan          PlanLimits
	Build         BuildConfig
	Retention     RetentionConfig
}

var Envs = initConfig()

func initConfig() Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No", envFile, "file found")
	}

	return Config{
		DB_URL:        getEnv("DB_URL", ""),
		Port:          getEnv("PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "not-so-secret-now-is-it?"),
		Environment:   getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		PresignTTL:    getEnvDuration("PRESIGN_TTL", 15*time.Minute),
		CorsConfig:    CorsConfig(),
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Region:          getEnv("R2_REGION", "auto"),
		},
		Plan: PlanLimits{
			MaxAssetCount:    getEnvInt("PLAN_MAX_ASSET_COUNT", 1000),
			MaxTotalBytes:    getEnvInt64("PLAN_MAX_TOTAL_BYTES", 10<<30), // 10 GiB
			MaxExpiryDays:    getEnvInt("PLAN_MAX_EXPIRY_DAYS", 30),
			AllowNonExpiring: getEnvBool("PLAN_ALLOW_NON_EXPIRING", true),
		},
		Build: BuildConfig{
			ChunkSize:               getEnvInt("ZIP_CHUNK_SIZE", 100),
			StallThreshold:          getEnvDuration("ZIP_STALL_THRESHOLD", 180*time.Second),
			StreamingEnabled:        getEnvBool("STREAMING_ENABLED", true),
			StreamingThresholdBytes: getEnvInt64("STREAMING_THRESHOLD_BYTES", 500<<20), // 500 MiB
			MaxConcurrentBuilds:     int64(getEnvInt("MAX_CONCURRENT_BUILDS", 4)),
		},
		Retention: RetentionConfig{
			GraceDays:        getEnvInt("RETENTION_GRACE_DAYS", 30),
			MaxRetentionDays: getEnvInt("RETENTION_MAX_DAYS", 365),
			SweepInterval:    getEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		},
	}
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Invalid value for %s, using default %v", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid value for %s, using default %s", key, fallback)
	}
	return fallback
}

func CorsConfig() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://app.bundlevault.io"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}
