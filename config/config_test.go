package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNilReaderReturnsDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.Server.ListenAddress)
	assert.Equal(t, "./data", cfg.Engine.DataDir)
	assert.Equal(t, int64(32*1024*1024), cfg.Engine.Memtable.SizeThresholdBytes)
	assert.Equal(t, 100, cfg.Engine.Compaction.MaxSegmentCount)
	assert.Equal(t, "snappy", cfg.Engine.SSTable.Compression)
}

func TestLoadOverridesDefaults(t *testing.T) {
	yamlContent := `
server:
  listen_address: "0.0.0.0:7000"
engine:
  data_dir: "/tmp/kv"
  memtable:
    size_threshold_bytes: 1048576
  sstable:
    compression: "zstd"
`
	cfg, err := Load(strings.NewReader(yamlContent))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.Server.ListenAddress)
	assert.Equal(t, "/tmp/kv", cfg.Engine.DataDir)
	assert.Equal(t, int64(1048576), cfg.Engine.Memtable.SizeThresholdBytes)
	assert.Equal(t, "zstd", cfg.Engine.SSTable.Compression)
	// Untouched default survives a partial override.
	assert.Equal(t, 100, cfg.Engine.Compaction.MaxSegmentCount)
}

func TestLoadRejectsEmptyListenAddress(t *testing.T) {
	cfg, err := Load(strings.NewReader(`server:
  listen_address: ""
`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadRejectsNonPositiveMemtableThreshold(t *testing.T) {
	cfg, err := Load(strings.NewReader(`engine:
  memtable:
    size_threshold_bytes: 0
`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadEmptyReaderReturnsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.Server.ListenAddress)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.Server.ListenAddress)
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_address: \"0.0.0.0:9000\"\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddress)
}
