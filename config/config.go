// Package config provides loading and parsing of pql.yaml engine configuration files.
// The configuration bounds query execution, sizes the graph and query caches,
// and configures the Redis batch worker and logging.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a pql.yaml configuration file.
type Config struct {
	Limits *LimitsConfig `yaml:"limits,omitempty"`
	Cache  *CacheConfig  `yaml:"cache,omitempty"`
	Worker *WorkerConfig `yaml:"worker,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

// LimitsConfig bounds the work a single query may do.
type LimitsConfig struct {
	// MaxMatchClauses caps the MATCH clauses of a query. 0 means unlimited.
	MaxMatchClauses int `yaml:"max_match_clauses,omitempty"`

	// MaxCandidates caps the Cartesian product evaluated by one query.
	// 0 means unlimited.
	MaxCandidates int `yaml:"max_candidates,omitempty"`
}

// GetMaxMatchClauses returns the configured limit, 0 when unset.
func (l *LimitsConfig) GetMaxMatchClauses() int {
	if l == nil || l.MaxMatchClauses < 0 {
		return 0
	}
	return l.MaxMatchClauses
}

// GetMaxCandidates returns the configured limit, 0 when unset.
func (l *LimitsConfig) GetMaxCandidates() int {
	if l == nil || l.MaxCandidates < 0 {
		return 0
	}
	return l.MaxCandidates
}

// CacheConfig sizes the engine caches.
type CacheConfig struct {
	// MaxGraphs is the number of built graphs kept.
	// Default: 16
	MaxGraphs int `yaml:"max_graphs,omitempty"`

	// MaxQueries is the number of parsed queries kept.
	// Default: 256
	MaxQueries int `yaml:"max_queries,omitempty"`
}

// GetMaxGraphs returns the configured graph cache size or the default value.
func (c *CacheConfig) GetMaxGraphs() int {
	if c == nil || c.MaxGraphs <= 0 {
		return 16
	}
	return c.MaxGraphs
}

// GetMaxQueries returns the configured query cache size or the default value.
func (c *CacheConfig) GetMaxQueries() int {
	if c == nil || c.MaxQueries <= 0 {
		return 256
	}
	return c.MaxQueries
}

// WorkerConfig defines configuration for queue-based batch execution.
type WorkerConfig struct {
	// RedisURL is the Redis connection URL.
	// Default: "redis://localhost:6379"
	RedisURL string `yaml:"redis_url,omitempty"`

	// Concurrency is the number of concurrent worker goroutines. It also
	// bounds Engine.RunBatch.
	// Default: 4
	Concurrency int `yaml:"concurrency,omitempty"`

	// QueuePrefix is the Redis key prefix.
	// Default: "pql" (resulting in "pql:queue")
	QueuePrefix string `yaml:"queue_prefix,omitempty"`

	// ShutdownTimeout is the time to wait for graceful shutdown.
	// Format: Go duration string (e.g., "30s", "1m")
	// Default: 30s
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`

	// PopTimeout is how long one BRPOP blocks before the worker re-checks
	// for shutdown.
	// Default: 5s
	PopTimeout string `yaml:"pop_timeout,omitempty"`
}

// GetRedisURL returns the Redis URL or the default value.
func (w *WorkerConfig) GetRedisURL() string {
	if w == nil || w.RedisURL == "" {
		return "redis://localhost:6379"
	}
	return w.RedisURL
}

// GetConcurrency returns the configured concurrency or the default value.
func (w *WorkerConfig) GetConcurrency() int {
	if w == nil || w.Concurrency <= 0 {
		return 4
	}
	return w.Concurrency
}

// GetQueuePrefix returns the queue prefix or the default value.
func (w *WorkerConfig) GetQueuePrefix() string {
	if w == nil || w.QueuePrefix == "" {
		return "pql"
	}
	return w.QueuePrefix
}

// GetShutdownTimeout parses the shutdown timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(w, func(w *WorkerConfig) string { return w.ShutdownTimeout }, 30*time.Second)
}

// GetPopTimeout parses the pop timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (w *WorkerConfig) GetPopTimeout() time.Duration {
	return parseDuration(w, func(w *WorkerConfig) string { return w.PopTimeout }, 5*time.Second)
}

func parseDuration(w *WorkerConfig, field func(*WorkerConfig) string, def time.Duration) time.Duration {
	if w == nil || field(w) == "" {
		return def
	}
	d, err := time.ParseDuration(field(w))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level,omitempty"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format,omitempty"`
}

// GetLevel returns the configured slog level or slog.LevelInfo.
func (l *LogConfig) GetLevel() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetFormat returns "json" or "text".
func (l *LogConfig) GetFormat() string {
	if l != nil && strings.EqualFold(l.Format, "text") {
		return "text"
	}
	return "json"
}

// NewLogger builds a logger writing to w with the configured level and format.
func (l *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.GetLevel()}
	if l.GetFormat() == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Validate reports configuration values that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Worker != nil {
		if c.Worker.ShutdownTimeout != "" {
			if _, err := time.ParseDuration(c.Worker.ShutdownTimeout); err != nil {
				return fmt.Errorf("worker.shutdown_timeout: %w", err)
			}
		}
		if c.Worker.PopTimeout != "" {
			if _, err := time.ParseDuration(c.Worker.PopTimeout); err != nil {
				return fmt.Errorf("worker.pop_timeout: %w", err)
			}
		}
	}
	if c.Log != nil && c.Log.Format != "" {
		switch strings.ToLower(c.Log.Format) {
		case "json", "text":
		default:
			return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
		}
	}
	return nil
}

// Parse decodes and validates pql.yaml content.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Load reads and parses a pql.yaml file from the given path.
// If the path is a directory, it looks for pql.yaml or pql.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"pql.yaml", "pql.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no pql.yaml or pql.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadFromDir searches for pql.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no pql.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}

// Default returns an empty configuration; every getter yields its default.
func Default() *Config {
	return &Config{}
}
