// Package config loads the schema graph's ambient settings from
// environment variables, the same env-var-driven approach the
// teacher codebase uses for its Neo4j-compatible configuration: one
// Config struct, one LoadFromEnv constructor, and small typed getEnv*
// helpers rather than a config file parser.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven setting the schema graph
// needs at startup.
type Config struct {
	Store    StoreConfig
	Logging  LoggingConfig
	Bootstrap BootstrapConfig
}

// StoreConfig controls how the backing kv.Store is opened.
type StoreConfig struct {
	// DataDir is the directory BadgerDB persists to. Ignored when
	// InMemory is true.
	DataDir string
	// InMemory runs the schema graph without touching disk, using
	// pkg/kv/memstore instead of pkg/kv/badgerstore.
	InMemory bool
	// SyncWrites forces fsync on every BadgerDB commit.
	SyncWrites bool
	// CommitTimeout bounds how long a transaction's Commit call waits
	// to acquire the backing store's write lock before failing with
	// kv.ErrCommitTimeout.
	CommitTimeout time.Duration
}

// LoggingConfig holds the log level and format settings. Validate
// checks them and String prints the level; nothing in this module
// reads them to configure a logger.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string
	// Format is either "json" or "text".
	Format string
}

// BootstrapConfig controls the optional declarative-schema load step.
type BootstrapConfig struct {
	// SchemaFile is a path to a YAML schema document applied on
	// startup. Empty disables bootstrap loading.
	SchemaFile string
	// FailOnError aborts startup if the bootstrap file fails to
	// apply. When false, a failed bootstrap only logs a warning.
	FailOnError bool
}

// LoadFromEnv builds a Config from environment variables, falling
// back to the documented defaults for anything unset.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Store.DataDir = getEnv("SCHEMAGRAPH_DATA_DIR", "./data")
	cfg.Store.InMemory = getEnvBool("SCHEMAGRAPH_IN_MEMORY", false)
	cfg.Store.SyncWrites = getEnvBool("SCHEMAGRAPH_SYNC_WRITES", true)
	cfg.Store.CommitTimeout = getEnvDuration("SCHEMAGRAPH_COMMIT_TIMEOUT", 10*time.Second)

	cfg.Logging.Level = getEnv("SCHEMAGRAPH_LOG_LEVEL", "INFO")
	cfg.Logging.Format = getEnv("SCHEMAGRAPH_LOG_FORMAT", "text")

	cfg.Bootstrap.SchemaFile = getEnv("SCHEMAGRAPH_BOOTSTRAP_FILE", "")
	cfg.Bootstrap.FailOnError = getEnvBool("SCHEMAGRAPH_BOOTSTRAP_FAIL_ON_ERROR", true)

	return cfg
}

// Validate checks the configuration for logical errors: invalid
// timeouts, unknown log levels, and a non-existent bootstrap file.
func (c *Config) Validate() error {
	if c.Store.CommitTimeout <= 0 {
		return fmt.Errorf("commit timeout must be positive, got %s", c.Store.CommitTimeout)
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Bootstrap.SchemaFile != "" {
		if _, err := os.Stat(c.Bootstrap.SchemaFile); err != nil {
			return fmt.Errorf("bootstrap schema file: %w", err)
		}
	}

	return nil
}

// String returns a representation safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, CommitTimeout: %s, LogLevel: %s}",
		c.Store.DataDir, c.Store.InMemory, c.Store.CommitTimeout, c.Logging.Level,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
