package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/sirupsen/logrus"
)

// Supported cart store backends
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds application configuration
type Config struct {
	Port                string
	Environment         string
	LogLevel            string
	CartStore           string
	CartFileDir         string
	CartKeyPrefix       string
	CartTTL             time.Duration
	DatabaseURL         string
	RedisURL            string
	NatsURL             string
	ProductsServiceURL  string
	ExpirationInterval  time.Duration
	IdleLedgerAge       time.Duration
	AllowGuestCarts     bool
	ProductCacheEnabled bool
}

// New creates a new configuration from environment variables
// It automatically fetches secrets from GCP Secret Manager when USE_GCP_SECRET_MANAGER=true
func New() *Config {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		CartStore:           strings.ToLower(getEnv("CART_STORE", StoreMemory)),
		CartFileDir:         getEnv("CART_FILE_DIR", "./data/carts"),
		CartKeyPrefix:       getEnv("CART_KEY_PREFIX", "cart:"),
		CartTTL:             time.Duration(getEnvInt("CART_TTL_DAYS", 30)) * 24 * time.Hour,
		RedisURL:            os.Getenv("REDIS_URL"),
		NatsURL:             getEnv("NATS_URL", "nats://nats.nats.svc.cluster.local:4222"),
		ProductsServiceURL:  getEnv("PRODUCTS_SERVICE_URL", "http://products-service.marketplace.svc.cluster.local:8080"),
		ExpirationInterval:  getEnvDuration("EXPIRATION_INTERVAL", time.Hour),
		IdleLedgerAge:       getEnvDuration("IDLE_LEDGER_AGE", 30*time.Minute),
		AllowGuestCarts:     getEnvBool("ALLOW_GUEST_CARTS", true),
		ProductCacheEnabled: getEnvBool("PRODUCT_CACHE_ENABLED", true),
	}

	// The database is only dialed for the postgres store
	if cfg.CartStore == StorePostgres {
		cfg.DatabaseURL = buildDatabaseURL()
	}

	return cfg
}

// Validate reports configuration that cannot start the service
func (c *Config) Validate() error {
	switch c.CartStore {
	case StoreMemory, StoreFile, StorePostgres:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("CART_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown CART_STORE %q", c.CartStore)
	}
	if c.CartStore == StoreFile && c.CartFileDir == "" {
		return fmt.Errorf("CART_STORE=file requires CART_FILE_DIR")
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_DAYS must not be negative")
	}
	return nil
}

// buildDatabaseURL constructs the database URL from individual components
// Password is fetched from GCP Secret Manager if enabled
func buildDatabaseURL() string {
	// First check if DATABASE_URL is explicitly set
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	dbname := getEnv("DB_NAME", "tesseract_hub")
	sslmode := getEnv("DB_SSLMODE", "disable")

	password := getPasswordFromGCPOrEnv()

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}

// getPasswordFromGCPOrEnv fetches the database password from GCP Secret Manager
// or falls back to environment variable
func getPasswordFromGCPOrEnv() string {
	if os.Getenv("USE_GCP_SECRET_MANAGER") != "true" {
		return getEnv("DB_PASSWORD", "password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secretFetcher, err := secrets.NewEnvSecretFetcher(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to initialize GCP Secret Manager, using env var")
		return getEnv("DB_PASSWORD", "password")
	}
	defer secretFetcher.Close()

	password := secrets.LoadDatabasePassword(ctx, secretFetcher)
	if password == "" || password == "password" {
		logrus.Warn("Got empty/default password from GCP Secret Manager, using env var")
		return getEnv("DB_PASSWORD", "password")
	}

	logrus.Info("Database password loaded from GCP Secret Manager")
	return password
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		logrus.WithField("key", key).Warn("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		logrus.WithField("key", key).Warn("Invalid boolean, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		logrus.WithField("key", key).Warn("Invalid duration, using default")
	}
	return defaultValue
}
