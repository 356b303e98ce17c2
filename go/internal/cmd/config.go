package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/splitkeeper/go/internal/dbconfig"
)

type Config struct {
	LogLevel       string `yaml:"log_level"`
	ControlPort    int    `yaml:"control_port"`
	NATSURL        string `yaml:"nats_url"`
	KVBucketPrefix string `yaml:"kv_bucket_prefix"`
	KVReplicas     int    `yaml:"kv_replicas"`
	LocalDriver    string `yaml:"local_driver"`
	LocalDSN       string `yaml:"local_dsn"`
	LegacyPath     string `yaml:"legacy_path"`
	SplitsIOURL    string `yaml:"splitsio_url"`
	RemoteURL      string `yaml:"remote_url"`
	TickIntervalMS int    `yaml:"tick_interval_ms"`
	TicksStream    string `yaml:"ticks_stream"`
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func defaultConfig() *Config {
	dir := dbconfig.DataDir()
	return &Config{
		LogLevel:       "info",
		ControlPort:    8090,
		KVBucketPrefix: "splitkeeper",
		KVReplicas:     1,
		LocalDriver:    dbconfig.DriverSQLite,
		LegacyPath:     filepath.Join(dir, "legacy.json"),
		SplitsIOURL:    "https://splits.io",
		TickIntervalMS: 1000,
		TicksStream:    "SPLITKEEPER_TICKS",
	}
}

func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "splitkeeper", "config.yaml")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "splitkeeper", "config.yaml")
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig builds the configuration from defaults, the YAML file at path
// and the environment, in increasing order of precedence. A missing file is
// only an error when the path was given explicitly.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.ControlPort = getEnvAsInt("CONTROL_PORT", config.ControlPort)
	config.NATSURL = getEnv("NATS_URL", config.NATSURL)
	config.KVBucketPrefix = getEnv("KV_BUCKET_PREFIX", config.KVBucketPrefix)
	config.KVReplicas = getEnvAsInt("KV_REPLICAS", config.KVReplicas)
	config.LocalDriver = getEnv("LOCAL_DRIVER", config.LocalDriver)
	config.LocalDSN = getEnv("LOCAL_DSN", config.LocalDSN)
	config.LegacyPath = getEnv("LEGACY_PATH", config.LegacyPath)
	config.SplitsIOURL = getEnv("SPLITSIO_URL", config.SplitsIOURL)
	config.RemoteURL = getEnv("REMOTE_URL", config.RemoteURL)
	config.TickIntervalMS = getEnvAsInt("TICK_INTERVAL", config.TickIntervalMS)
	config.TicksStream = getEnv("TICKS_STREAM", config.TicksStream)

	dsn, err := dbconfig.Resolve(config.LocalDriver, config.LocalDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local store: %w", err)
	}
	config.LocalDSN = dsn

	return config, nil
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
