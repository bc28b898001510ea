package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GraphPath string `yaml:"graph"`
	SavePath  string `yaml:"save"` // optional, evaluated graph is written here

	LogFormat       string        `yaml:"log_format"`
	LogLevel        string        `yaml:"log_level"`
	HealthcheckPort int           `yaml:"healthcheck_port"`
	WorkerCount     int           `yaml:"workers"`
	Timeout         time.Duration `yaml:"timeout"`

	Editor    EditorConfig    `yaml:"editor"`
	Exclusive ExclusiveConfig `yaml:"exclusive"`
}

// EditorConfig points at a socket.io editor receiving evaluation events.
type EditorConfig struct {
	URL                string `yaml:"url"`
	Namespace          string `yaml:"namespace"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ExclusiveConfig selects where exclusivity tokens live.
type ExclusiveConfig struct {
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	Prefix    string `yaml:"prefix"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		LogFormat: "text",
		LogLevel:  "info",
		Timeout:   time.Minute,
		Exclusive: ExclusiveConfig{
			Backend: BackendLocal,
			Prefix:  "intelligraph:",
		},
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys missing from
// the file keep their current value.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// NewConfig validates cfg and returns a normalized copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" {
		return nil, errors.New("GraphPath is a required configuration field and cannot be empty")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	if cfg.WorkerCount < 0 {
		return nil, errors.New("invalid workers: must not be negative")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("invalid timeout: must not be negative")
	}

	if cfg.Exclusive.Backend == "" {
		cfg.Exclusive.Backend = BackendLocal
	}
	switch cfg.Exclusive.Backend {
	case BackendLocal:
	case BackendRedis:
		if cfg.Exclusive.RedisAddr == "" {
			return nil, errors.New("the redis exclusivity backend needs a redis address")
		}
	default:
		return nil, fmt.Errorf("invalid exclusivity backend %q: must be 'local' or 'redis'", cfg.Exclusive.Backend)
	}

	return &cfg, nil
}
