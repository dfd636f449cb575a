// Package config loads this server's YAML configuration, grounded on the
// teacher's config package: a single Config struct with nested groups,
// sensible defaults baked into Load, and gopkg.in/yaml.v3 for decoding.
// The teacher's Config carries dozens of subsystems (replication, TLS,
// tracing, security, query server) that this store's Non-goals exclude;
// this Config keeps only the groups the engine, network front end, and
// logger actually consume.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds network front end configuration.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// MemtableConfig holds memtable rotation configuration.
type MemtableConfig struct {
	SizeThresholdBytes int64 `yaml:"size_threshold_bytes"`
}

// CompactionConfig holds compaction trigger configuration.
type CompactionConfig struct {
	MaxSegmentCount int `yaml:"max_segment_count"`
}

// SSTableConfig holds on-disk segment configuration.
type SSTableConfig struct {
	Compression string `yaml:"compression"`
}

// EngineConfig groups everything the storage engine needs.
type EngineConfig struct {
	DataDir    string           `yaml:"data_dir"`
	Memtable   MemtableConfig   `yaml:"memtable"`
	SSTable    SSTableConfig    `yaml:"sstable"`
	Compaction CompactionConfig `yaml:"compaction"`
}

// LoggingConfig controls the slog handler cmd/server builds at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "file"
	File   string `yaml:"file"`  // path, used when Output is "file"
}

// Config is the top-level configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads configuration from r, filling unset fields with defaults.
// A nil reader returns the defaults unchanged, matching the teacher's
// Load(nil) convention for "no config file supplied."
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddress: "127.0.0.1:9001",
		},
		Engine: EngineConfig{
			DataDir: "./data",
			Memtable: MemtableConfig{
				SizeThresholdBytes: 32 * 1024 * 1024, // 32 MiB
			},
			SSTable: SSTableConfig{
				Compression: "snappy",
			},
			Compaction: CompactionConfig{
				MaxSegmentCount: 100,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration file at path. A
// missing file is not an error: it returns the defaults, the same as
// passing a nil reader to Load, so a server can run unconfigured.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("open config file %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Validate rejects configurations the engine or server cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}
	if c.Engine.DataDir == "" {
		return fmt.Errorf("engine.data_dir must not be empty")
	}
	if c.Engine.Memtable.SizeThresholdBytes <= 0 {
		return fmt.Errorf("engine.memtable.size_threshold_bytes must be positive")
	}
	if c.Engine.Compaction.MaxSegmentCount <= 0 {
		return fmt.Errorf("engine.compaction.max_segment_count must be positive")
	}
	return nil
}
