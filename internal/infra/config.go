package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by storeopen.Open.
const (
	StoreDriverPostgres  = "postgres"
	StoreDriverSQLite    = "sqlite"
	StoreDriverFirestore = "firestore"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	FirestoreProjectID       string
	FirestoreEmulatorHost    string
	FirestoreCredentialsFile string

	WebhookSecret         string
	WebhookBodyLimitBytes int64
	JWTSecret             string
	AdminAPIToken         string

	CatalogPath       string
	FreeSpecAllowance int
	SnowflakeNode     int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	// ReconcileInterval is how often the API process scans for processed
	// events without their effect. Zero disables the scan.
	ReconcileInterval time.Duration
	ReconcileWindow   time.Duration
}

// LoadDotEnv reads .env files into the process environment when present.
// Variables already set win over file values.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                   getEnv("APP_ENV", "development"),
		Port:                     getEnv("PORT", "8080"),
		StoreDriver:              strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		SQLitePath:               getEnv("SQLITE_PATH", "specledger.db"),
		FirestoreProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreEmulatorHost:    os.Getenv("FIRESTORE_EMULATOR_HOST"),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		WebhookSecret:            os.Getenv("WEBHOOK_SECRET"),
		WebhookBodyLimitBytes:    int64(getEnvInt("WEBHOOK_BODY_LIMIT_BYTES", 1<<20)),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		AdminAPIToken:            os.Getenv("ADMIN_API_TOKEN"),
		CatalogPath:              getEnv("CATALOG_PATH", "catalog.yaml"),
		FreeSpecAllowance:        getEnvInt("FREE_SPEC_ALLOWANCE", 1),
		SnowflakeNode:            int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		HTTPReadTimeout:          time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:         time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:          time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:          getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ReconcileInterval:        time.Minute * time.Duration(getEnvInt("RECONCILE_INTERVAL_MINUTES", 15)),
		ReconcileWindow:          time.Hour * time.Duration(getEnvInt("RECONCILE_WINDOW_HOURS", 72)),
	}

	if err := cfg.validateStore(); err != nil {
		return nil, err
	}

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.FreeSpecAllowance < 0 {
		return nil, fmt.Errorf("FREE_SPEC_ALLOWANCE must not be negative")
	}

	return cfg, nil
}

// LoadStoreConfig loads only what is needed to open the store. Operator
// tooling uses it so it does not need the HTTP secrets.
func LoadStoreConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                   getEnv("APP_ENV", "development"),
		StoreDriver:              strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		SQLitePath:               getEnv("SQLITE_PATH", "specledger.db"),
		FirestoreProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreEmulatorHost:    os.Getenv("FIRESTORE_EMULATOR_HOST"),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		CatalogPath:              getEnv("CATALOG_PATH", "catalog.yaml"),
		FreeSpecAllowance:        getEnvInt("FREE_SPEC_ALLOWANCE", 1),
		SnowflakeNode:            int64(getEnvInt("SNOWFLAKE_NODE", 1)),
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case StoreDriverFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
