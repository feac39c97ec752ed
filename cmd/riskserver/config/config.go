// Package config provides configuration parsing for the risk server.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence over environment variables. The Config struct holds:
//   - Listen addresses (HTTP, optional gRPC health)
//   - Model selection (artifact bundle, classifier kind, threshold, BYOM URL)
//   - Storage backend (memory, sqlite, postgres, redis) and its settings
//   - Logging configuration (level, format)
//   - TLS configuration for the HTTPS listener and for BYOM calls
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/tls"
)

const (
	ClassifierArtifact = "artifact"
	ClassifierBYOM     = "byom"

	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds all risk server configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Artifacts   string
	Classifier  string
	Threshold   float64
	BYOMURL     string
	BYOMTimeout time.Duration
	BYOMTLS     tls.Config

	Storage       string
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	RequestTimeout time.Duration
	TLS            tls.Config
}

// ParseFlags parses command-line flags and environment variables into a
// Config and exits the process when the result is invalid.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Artifacts, "artifacts", getEnv("ARTIFACTS", "examples/artifacts/diabetes_v1.json"), "Model artifact bundle (JSON)")
	flag.StringVar(&cfg.Classifier, "classifier", getEnv("CLASSIFIER", ClassifierArtifact), "Classifier: artifact or byom")
	flag.Float64Var(&cfg.Threshold, "threshold", getEnvFloat("THRESHOLD", 0), "Decision threshold override (0 keeps the bundle's)")
	flag.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", ""), "BYOM service URL (required when classifier=byom)")
	flag.DurationVar(&cfg.BYOMTimeout, "byom-timeout", getEnvDuration("BYOM_TIMEOUT", 10*time.Second), "BYOM request timeout")
	flag.BoolVar(&cfg.BYOMTLS.Enabled, "byom-tls-enabled", getEnvBool("BYOM_TLS_ENABLED", false), "Use TLS for BYOM calls")
	flag.StringVar(&cfg.BYOMTLS.CertFile, "byom-tls-cert-file", getEnv("BYOM_TLS_CERT_FILE", ""), "Client certificate for BYOM calls")
	flag.StringVar(&cfg.BYOMTLS.KeyFile, "byom-tls-key-file", getEnv("BYOM_TLS_KEY_FILE", ""), "Client key for BYOM calls")
	flag.StringVar(&cfg.BYOMTLS.CAFile, "byom-tls-ca-file", getEnv("BYOM_TLS_CA_FILE", ""), "CA certificate for verifying the BYOM service")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", StorageMemory), "Storage backend: memory, sqlite, postgres or redis")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "glucoguard.db"), "SQLite database file or DSN")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", getEnv("POSTGRES_DSN", ""), "PostgreSQL connection string")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", "glucoguard"), "Redis key prefix")

	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 5*time.Second), "Per-request handler timeout")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks option combinations that flag parsing cannot.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.Artifacts == "" {
		return errors.New("artifacts path cannot be empty")
	}

	switch c.Classifier {
	case ClassifierArtifact:
	case ClassifierBYOM:
		if c.BYOMURL == "" {
			return errors.New("byom-url is required when classifier=byom")
		}
		if c.BYOMTimeout <= 0 {
			return errors.New("byom-timeout must be > 0")
		}
		if err := c.BYOMTLS.Validate(); err != nil {
			return fmt.Errorf("byom tls: %w", err)
		}
	default:
		return fmt.Errorf("invalid classifier %q (must be artifact or byom)", c.Classifier)
	}

	if c.Threshold != 0 {
		if err := models.ValidateThreshold(c.Threshold); err != nil {
			return err
		}
	}

	switch c.Storage {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite-path is required when storage=sqlite")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres-dsn is required when storage=postgres")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required when storage=redis")
		}
		if c.RedisDB < 0 {
			return errors.New("redis-db must be >= 0")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory, sqlite, postgres or redis)", c.Storage)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("request-timeout must be > 0")
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("tls-cert-file and tls-key-file are required when TLS is enabled")
	}
	return c.TLS.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
