// Package config loads the node's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

const defaultConfigPath = "~/.lightnode/config.toml"

type Config struct {
	Node     NodeConfig     `toml:"node"`
	Storage  StorageConfig  `toml:"storage"`
	Kademlia KademliaConfig `toml:"kademlia"`
	Logging  LoggingConfig  `toml:"logging"`
}

type NodeConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`
}

type StorageConfig struct {
	// Path of the database file, relative to the data dir unless absolute.
	Path        string   `toml:"path"`
	OpenTimeout Duration `toml:"open_timeout"`
	NoSync      bool     `toml:"no_sync"`
}

type KademliaConfig struct {
	MaxRecords      int      `toml:"max_records"`
	CleanupInterval Duration `toml:"cleanup_interval"`
	RecordTTL       Duration `toml:"record_ttl"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string in TOML ("30s", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "lightnode"
	}
	return &Config{
		Node: NodeConfig{
			Name:    hostname,
			DataDir: "~/.lightnode",
		},
		Storage: StorageConfig{
			Path:        "node.db",
			OpenTimeout: Duration{5 * time.Second},
		},
		Kademlia: KademliaConfig{
			MaxRecords:      1024,
			CleanupInterval: Duration{time.Minute},
			RecordTTL:       Duration{36 * time.Hour},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file over the defaults. If path is empty, the
// default location is tried and a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome(defaultConfigPath)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys: %s", strings.Join(keys, ", "))
	}

	return cfg, nil
}

// DBPath returns the database file location.
func (c *Config) DBPath() string {
	p := expandHome(c.Storage.Path)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Node.DataDir), p)
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Node.DataDir) == "" {
		err = multierr.Append(err, errors.New("node.data_dir: must not be empty"))
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		err = multierr.Append(err, errors.New("storage.path: must not be empty"))
	}
	err = multierr.Append(err, nonNegative("storage.open_timeout", c.Storage.OpenTimeout))
	if c.Kademlia.MaxRecords < 0 {
		err = multierr.Append(err, fmt.Errorf("kademlia.max_records: must not be negative, got %d", c.Kademlia.MaxRecords))
	}
	err = multierr.Append(err, nonNegative("kademlia.cleanup_interval", c.Kademlia.CleanupInterval))
	err = multierr.Append(err, nonNegative("kademlia.record_ttl", c.Kademlia.RecordTTL))
	if e := validateLogLevel(c.Logging.Level); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging.level: %w", e))
	}
	if e := validateLogFormat(c.Logging.Format); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging.format: %w", e))
	}
	return err
}

// nonNegative allows zero, which selects the built-in default.
func nonNegative(field string, d Duration) error {
	if d.Duration < 0 {
		return fmt.Errorf("%s: must not be negative, got %s", field, d.Duration)
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown level %q", level)
}

func validateLogFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
