// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aristath/mpmeasure/internal/modules/measurement"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the sample store (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Numerical defaults applied when a request leaves them unset
	Eps            float64
	Method         string
	NGroup         int
	PMPSImpl       string
	Workers        int
	MemoryFraction float64
	Seed           uint64

	Retention *RetentionConfig
	Archive   *ArchiveConfig
}

// RetentionConfig controls the periodic cleanup of stored sample runs
type RetentionConfig struct {
	Enabled  bool
	MaxAgeH  int    // runs older than this many hours are deleted
	Schedule string // cron expression with seconds field
}

// ArchiveConfig controls copying stored sample runs to S3-compatible storage
type ArchiveConfig struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional, for S3-compatible services
	AccessKey string
	SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := fromEnv(getEnv("MPOVM_DATA_DIR", ""))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("GO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		Eps:            getEnvAsFloat("MPOVM_EPS", 1e-10),
		Method:         getEnv("MPOVM_METHOD", string(measurement.MethodAuto)),
		NGroup:         getEnvAsInt("MPOVM_NGROUP", 4),
		PMPSImpl:       getEnv("MPOVM_PMPS_IMPL", string(measurement.PMPSDefault)),
		Workers:        getEnvAsInt("MPOVM_WORKERS", runtime.NumCPU()),
		MemoryFraction: getEnvAsFloat("MPOVM_MEMORY_FRACTION", 0.25),
		Seed:           uint64(getEnvAsInt("MPOVM_SEED", 0)),
		Retention:      loadRetentionConfig(),
		Archive:        loadArchiveConfig(),
	}
	return cfg, nil
}

// Config file keys understood by FromViper.
const (
	KeyDataDir        = "data_dir"
	KeyLogLevel       = "log_level"
	KeyPort           = "port"
	KeyEps            = "eps"
	KeyMethod         = "method"
	KeyNGroup         = "n_group"
	KeyPMPSImpl       = "pmps_impl"
	KeyWorkers        = "workers"
	KeyMemoryFraction = "memory_fraction"
	KeySeed           = "seed"
	KeyRetentionHours = "retention.hours"
	KeyArchiveEnabled = "archive.enabled"
	KeyArchiveBucket  = "archive.bucket"
	KeyArchivePrefix  = "archive.prefix"
)

// FromViper starts from the environment configuration and overrides every
// key set in v, from a config file, bound flags or MPOVM_ variables.
func FromViper(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("MPOVM_DATA_DIR", "")
	if v.IsSet(KeyDataDir) {
		dataDir = v.GetString(KeyDataDir)
	}
	cfg, err := fromEnv(dataDir)
	if err != nil {
		return nil, err
	}

	if v.IsSet(KeyLogLevel) {
		cfg.LogLevel = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyPort) {
		cfg.Port = v.GetInt(KeyPort)
	}
	if v.IsSet(KeyEps) {
		cfg.Eps = v.GetFloat64(KeyEps)
	}
	if v.IsSet(KeyMethod) {
		cfg.Method = v.GetString(KeyMethod)
	}
	if v.IsSet(KeyNGroup) {
		cfg.NGroup = v.GetInt(KeyNGroup)
	}
	if v.IsSet(KeyPMPSImpl) {
		cfg.PMPSImpl = v.GetString(KeyPMPSImpl)
	}
	if v.IsSet(KeyWorkers) {
		cfg.Workers = v.GetInt(KeyWorkers)
	}
	if v.IsSet(KeyMemoryFraction) {
		cfg.MemoryFraction = v.GetFloat64(KeyMemoryFraction)
	}
	if v.IsSet(KeySeed) {
		cfg.Seed = v.GetUint64(KeySeed)
	}
	if v.IsSet(KeyRetentionHours) {
		cfg.Retention.MaxAgeH = v.GetInt(KeyRetentionHours)
	}
	if v.IsSet(KeyArchiveEnabled) {
		cfg.Archive.Enabled = v.GetBool(KeyArchiveEnabled)
	}
	if v.IsSet(KeyArchiveBucket) {
		cfg.Archive.Bucket = v.GetString(KeyArchiveBucket)
	}
	if v.IsSet(KeyArchivePrefix) {
		cfg.Archive.Prefix = v.GetString(KeyArchivePrefix)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the numerical defaults are usable
func (c *Config) Validate() error {
	if c.Eps <= 0 {
		return fmt.Errorf("MPOVM_EPS must be positive, got %g", c.Eps)
	}
	if _, err := measurement.ParseMethod(c.Method); err != nil {
		return fmt.Errorf("invalid MPOVM_METHOD: %w", err)
	}
	if _, err := measurement.ParsePMPSImpl(c.PMPSImpl); err != nil {
		return fmt.Errorf("invalid MPOVM_PMPS_IMPL: %w", err)
	}
	if c.NGroup < 1 {
		return fmt.Errorf("MPOVM_NGROUP must be at least 1, got %d", c.NGroup)
	}
	if c.Workers < 1 {
		return fmt.Errorf("MPOVM_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.MemoryFraction <= 0 || c.MemoryFraction > 1 {
		return fmt.Errorf("MPOVM_MEMORY_FRACTION must be in (0, 1], got %g", c.MemoryFraction)
	}
	if c.Archive != nil && c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("MPOVM_ARCHIVE_BUCKET is required when archiving is enabled")
	}
	return nil
}

// ServiceSettings returns the measurement defaults derived from the
// configuration. Validate must have succeeded.
func (c *Config) ServiceSettings() measurement.Settings {
	method, _ := measurement.ParseMethod(c.Method)
	impl, _ := measurement.ParsePMPSImpl(c.PMPSImpl)
	return measurement.Settings{
		Eps:            c.Eps,
		Method:         method,
		NGroup:         c.NGroup,
		PMPSImpl:       impl,
		MemoryFraction: c.MemoryFraction,
		Seed:           c.Seed,
	}
}

// StorePath returns the path of the sample store database.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "samples.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func loadRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Enabled:  getEnvAsBool("MPOVM_RETENTION_ENABLED", true),
		MaxAgeH:  getEnvAsInt("MPOVM_RETENTION_HOURS", 24*30),
		Schedule: getEnv("MPOVM_RETENTION_SCHEDULE", "0 0 3 * * *"), // daily at 03:00
	}
}

func loadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Enabled:   getEnvAsBool("MPOVM_ARCHIVE_ENABLED", false),
		Bucket:    getEnv("MPOVM_ARCHIVE_BUCKET", ""),
		Prefix:    getEnv("MPOVM_ARCHIVE_PREFIX", "runs/"),
		Region:    getEnv("AWS_REGION", "us-east-1"),
		Endpoint:  getEnv("MPOVM_ARCHIVE_ENDPOINT", ""),
		AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}
}
