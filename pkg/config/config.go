// Package config holds the engine configuration and its YAML representation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"heapstore/pkg/logging"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBufferPoolPages = 50
	DefaultPageSize        = 4096
	DefaultLockTimeout     = 3000 * time.Millisecond
	DefaultLogBufferSize   = 64 * 1024
	DefaultEvictionPolicy  = "fifo"
)

// Duration is a time.Duration that reads and writes as "3s", "250ms", ...
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoggingConfig mirrors logging.Config in YAML form.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// Config is the full set of knobs of a heapstore database.
type Config struct {
	DataDir           string        `yaml:"data_dir"`
	LogPath           string        `yaml:"log_path"`
	BufferPoolPages   int           `yaml:"buffer_pool_pages"`
	PageSize          int           `yaml:"page_size"`
	LockTimeout       Duration      `yaml:"lock_timeout"`
	DeadlockDetection bool          `yaml:"deadlock_detection"`
	EvictionPolicy    string        `yaml:"eviction_policy"`
	LogBufferSize     int           `yaml:"log_buffer_size"`
	Logging           LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:         "data",
		LogPath:         "",
		BufferPoolPages: DefaultBufferPoolPages,
		PageSize:        DefaultPageSize,
		LockTimeout:     Duration(DefaultLockTimeout),
		EvictionPolicy:  DefaultEvictionPolicy,
		LogBufferSize:   DefaultLogBufferSize,
		Logging: LoggingConfig{
			Level:  string(logging.LevelInfo),
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o600), "write config %s", path)
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.BufferPoolPages <= 0 {
		return fmt.Errorf("buffer_pool_pages must be positive, got %d", c.BufferPoolPages)
	}
	if c.PageSize < 64 {
		return fmt.Errorf("page_size must be at least 64 bytes, got %d", c.PageSize)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	if c.LogBufferSize < 0 {
		return fmt.Errorf("log_buffer_size must not be negative")
	}
	switch strings.ToLower(c.EvictionPolicy) {
	case "fifo", "lru":
	default:
		return fmt.Errorf("unknown eviction_policy %q (want fifo or lru)", c.EvictionPolicy)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ResolvedLogPath returns LogPath, or the default log file inside DataDir.
func (c Config) ResolvedLogPath() string {
	if c.LogPath != "" {
		return c.LogPath
	}
	return filepath.Join(c.DataDir, "wal.log")
}

// LoggerConfig converts the YAML logging section for logging.Init.
func (c Config) LoggerConfig() logging.Config {
	lvl, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:      lvl,
		Format:     c.Logging.Format,
		OutputPath: c.Logging.OutputPath,
	}
}
