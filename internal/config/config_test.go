package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
max_workers: 8
output_dir: ./out
mode: append
keyspace:
  first_excluded: "DFIQUV"
  reserved: ["BG", "ZZ"]
ledger:
  redis_url: redis://localhost:6379/0
metrics:
  addr: ":9090"
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, config.MaxWorkers)
	assert.Equal(t, "./out", config.OutputDir)
	assert.Equal(t, "append", config.Mode)
	assert.Equal(t, []string{"BG", "ZZ"}, config.Keyspace.Reserved)
	assert.Equal(t, "DFIQUVO", *config.Keyspace.SecondExcluded, "unset fields get defaults")
	assert.Equal(t, "redis://localhost:6379/0", config.Ledger.RedisURL)
	assert.Equal(t, ":9090", config.Metrics.Addr)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/ninogen.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
max_workers:
  - this is invalid
    yaml syntax
`)

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
max_workers: -2
`)

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max_workers must be a positive integer, got -2")
}

func TestDefault(t *testing.T) {
	config := Default()
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, DefaultMaxWorkers, config.MaxWorkers)
	assert.Equal(t, ".", config.OutputDir)
	assert.Equal(t, "truncate", config.Mode)
	assert.Equal(t, int64(100_000), config.BatchSize)
	assert.Equal(t, 6, config.Keyspace.BodyLength)
	assert.Equal(t, "ABCD", config.Keyspace.Trailing)

	units, err := config.Keyspace.Units()
	require.NoError(t, err)
	assert.Len(t, units, 20*19-7)
	assert.Equal(t, int64(4_000_000), config.Keyspace.Params().PerUnit())
}

func TestValidate(t *testing.T) {
	empty := ""

	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{"unsupported version", Config{Version: "2.0"}, "unsupported version: 2.0"},
		{"negative workers", Config{MaxWorkers: -1}, "max_workers must be a positive integer"},
		{"unknown mode", Config{Mode: "overwrite"}, "unknown output mode"},
		{"negative batch", Config{BatchSize: -5}, "batch_size must be positive"},
		{"bad reserved prefix", Config{Keyspace: KeyspaceConfig{Reserved: []string{"A"}}}, "keyspace.reserved"},
		{"bad trailing", Config{Keyspace: KeyspaceConfig{Trailing: "AA"}}, "listed twice"},
		{"all letters excluded", Config{Keyspace: KeyspaceConfig{
			FirstExcluded:  stringPtr("ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
			SecondExcluded: &empty,
		}}, "every letter is excluded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestKeyspace_EmptyExclusionsAreKept(t *testing.T) {
	empty := ""
	config := Config{Keyspace: KeyspaceConfig{FirstExcluded: &empty, SecondExcluded: &empty, Reserved: []string{}}}
	require.NoError(t, config.Validate())

	units, err := config.Keyspace.Units()
	require.NoError(t, err)
	assert.Len(t, units, 26*26)
}

func TestKeyspace_Only(t *testing.T) {
	config := Config{Keyspace: KeyspaceConfig{Only: []string{"AB", "AA"}}}
	require.NoError(t, config.Validate())

	units, err := config.Keyspace.Units()
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "AA", units[0].String())

	config.Keyspace.Only = []string{"ZZ"}
	_, err = config.Keyspace.Units()
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := writeConfig(t, "version: \"1.0\"\nmax_workers: 2\n")
		config, err := LoadOrDefault(path)
		require.NoError(t, err)
		assert.Equal(t, 2, config.MaxWorkers)
	})

	t.Run("falls back to defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		config, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxWorkers, config.MaxWorkers)
	})

	t.Run("picks up ninogen.yml in working directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("max_workers: 6\n"), 0644))
		t.Chdir(dir)

		config, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, 6, config.MaxWorkers)
	})
}

func stringPtr(s string) *string {
	return &s
}
