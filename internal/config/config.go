package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB     DBConfig
	S3     S3Config
	Server ServerConfig
	Admin  AdminConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// SignedURLExpiry bounds how long a resolved PDF link stays valid.
	SignedURLExpiry time.Duration
}

type ServerConfig struct {
	Port               string
	CORSAllowedOrigins []string

	// UploadsDir is where PDFs land when S3 is disabled or unreachable.
	UploadsDir string
}

type AdminConfig struct {
	Email    string
	Password string
}

func Load() *Config {
	// Missing .env files are fine; env vars and defaults still apply.
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "mindleaf"),
			Password: getEnv("DB_PASSWORD", "mindleaf_secret"),
			Name:     getEnv("DB_NAME", "mindleaf"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		S3: S3Config{
			Enabled:         getEnvAsBool("AWS_S3_ENABLED", false),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", "s3.amazonaws.com"),
			Region:          getEnv("AWS_REGION", "eu-west-1"),
			AccessKey:       getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("AWS_S3_BUCKET_NAME", ""),
			UseSSL:          getEnvAsBool("AWS_S3_USE_SSL", true),
			SignedURLExpiry: getEnvAsDuration("S3_SIGNED_URL_EXPIRY", time.Hour),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			CORSAllowedOrigins: getEnvAsList(
				"CORS_ALLOWED_ORIGINS",
				"https://mind-leaf.netlify.app,http://localhost:3000,http://127.0.0.1:3000",
			),
			UploadsDir: getEnv("UPLOADS_DIR", "uploads"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@mindleaf.local"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
