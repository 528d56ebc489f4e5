package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/memory.db
user_id: alice
max_results: 25
mirror_git: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/memory.db", cfg.GetString("db_path"))
	assert.Equal(t, "alice", cfg.GetStringOrDefault("user_id", "default"))
	assert.Equal(t, 25, cfg.GetIntOrDefault("max_results", 10))
	assert.True(t, cfg.GetBoolOrDefault("mirror_git", false))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetters_Defaults(t *testing.T) {
	cfg := Empty()

	assert.Equal(t, "", cfg.GetString("missing"))
	assert.Equal(t, "fallback", cfg.GetStringOrDefault("missing", "fallback"))
	assert.Equal(t, 7, cfg.GetIntOrDefault("missing", 7))
	assert.True(t, cfg.GetBoolOrDefault("missing", true))
}

func TestGetters_WrongType(t *testing.T) {
	path := writeConfig(t, `
count: not_a_number
flag: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.GetIntOrDefault("count", 5))
	assert.False(t, cfg.GetBoolOrDefault("flag", false))
}
