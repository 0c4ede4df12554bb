package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"max_concurrency": 4,
		"registered": [
			{"id": "local0", "type": "localfile", "description": "inbox",
			 "options": {"queue_path": "/q", "archive_path": "/a"}}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxConcurrency)
	require.Len(t, cfg.Registered, 1)
	assert.Equal(t, "local0", cfg.Registered[0].ID)
	assert.Equal(t, "localfile", cfg.Registered[0].Type)
	assert.JSONEq(t, `{"queue_path": "/q", "archive_path": "/a"}`, string(cfg.Registered[0].Options))
}

func TestLoadDefaultsConcurrency(t *testing.T) {
	path := writeConfig(t, `{"registered": []}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxConcurrency)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	var cfgErr *SourceConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "does not exist")
}

func TestLoadBadJSON(t *testing.T) {
	path := writeConfig(t, `{"registered": [,]}`)

	var cfgErr *SourceConfigurationError
	_, err := Load(path)
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "JSON parse failed")
}

func TestLoadMissingRegisteredNode(t *testing.T) {
	path := writeConfig(t, `{"max_concurrency": 2}`)

	var cfgErr *SourceConfigurationError
	_, err := Load(path)
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "missing the 'registered' node")
}

func TestLoadRequiresNodeBasics(t *testing.T) {
	path := writeConfig(t, `{"registered": [{"id": "local0", "type": "localfile"}]}`)

	var cfgErr *SourceConfigurationError
	_, err := Load(path)
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "'description' is missing")
	assert.Contains(t, cfgErr.Details(), "local0")
}

func TestRequireParam(t *testing.T) {
	node := Node{ID: "x"}
	assert.NoError(t, RequireParam(node, "id", "x"))
	assert.Error(t, RequireParam(node, "queue_path", "   "))
}
