package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Import validation policies
const (
	PolicyPermissive = "permissive"
	PolicyStrict     = "strict"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	Port        string
	GinMode     string
	JWTSecret   string
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	// cron spec for the periodic superadmin repair; empty disables it
	RepairSchedule string
	ImportPolicy   string
	MaxUploadBytes int64
}

// Load reads configs/.env when present, then the process environment
func Load() Config {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables with development defaults
func FromEnv() Config {
	cfg := Config{
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "postgres"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		Port:           getEnv("PORT", "8080"),
		GinMode:        os.Getenv("GIN_MODE"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		RepairSchedule: getEnv("SUPERADMIN_REPAIR_SCHEDULE", "@every 10m"),
		ImportPolicy:   strings.ToLower(getEnv("IMPORT_VALIDATION_POLICY", PolicyPermissive)),
	}

	origins := getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173,http://localhost:5174")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	maxMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_MB", "20"))
	if err != nil || maxMB <= 0 {
		maxMB = 20
	}
	cfg.MaxUploadBytes = int64(maxMB) << 20

	if cfg.ImportPolicy != PolicyStrict {
		cfg.ImportPolicy = PolicyPermissive
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			log.Fatal("FATAL: JWT_SECRET environment variable is required in production mode")
		}
		cfg.JWTSecret = "default_super_secret_key" // development fallback only
	}

	return cfg
}

// DSN returns the postgres connection string
func (c Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
