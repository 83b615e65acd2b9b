package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.5, cfg.Relevance.Cutoff)
	assert.Equal(t, 3, cfg.Relevance.MaxAgents)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 60*time.Second, cfg.Agents.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Relevance.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Relevance.Timeout)
	assert.False(t, cfg.Trace.Enabled)
	assert.Equal(t, "payroll-agents", cfg.Trace.ServiceName)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payroll-agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
store:
  backend: sqlite
  sqlite_path: /tmp/conv.db
relevance:
  mode: keyword
  max_agents: 2
openai:
  api_key: ${TEST_OPENAI_KEY}
`), 0o644))

	t.Setenv("TEST_OPENAI_KEY", "sk-from-file")
	t.Setenv("PAYROLL_AGENTS_SERVER_ADDR", ":7070")
	t.Setenv("ANTHROPIC_API_KEY", "ak-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr, "env overrides file")
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "keyword", cfg.Relevance.Mode)
	assert.Equal(t, 2, cfg.Relevance.MaxAgents)
	assert.Equal(t, "sk-from-file", cfg.OpenAI.APIKey)
	assert.Equal(t, "ak-env", cfg.Anthropic.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		Store:     StoreConfig{Backend: "memory"},
		Relevance: RelevanceConfig{Mode: "llm", Cutoff: 0.5, MaxAgents: 3},
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.Store.Backend = "mongo"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Relevance.Cutoff = 1.5
	assert.Error(t, bad.Validate())

	bad = base
	bad.Relevance.MaxAgents = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.Knowledge.Enabled = true
	assert.Error(t, bad.Validate())
}
