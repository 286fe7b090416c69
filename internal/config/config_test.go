package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "tei", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, "reposearch_documents", cfg.Index.CollectionName)
	assert.Equal(t, 5, cfg.Indexing.MaxConcurrentIndexingOperations)
	assert.Equal(t, 10, cfg.Indexing.MaxConcurrentContentFetches)
	assert.Equal(t, 3, cfg.Indexing.RetryAttempts)
	assert.Contains(t, cfg.Indexing.IndexableFileExtensions, ".go")
	assert.Contains(t, cfg.Indexing.IgnoredDirectories, "node_modules")
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8181
embedding:
  provider: openai
  base_url: https://api.openai.com/v1
  model: text-embedding-3-small
  dimension: 1536
index:
  backend: qdrant
indexing:
  max_batch_size: 32
  extract_code_symbols: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, 32, cfg.Indexing.MaxBatchSize)
	assert.True(t, cfg.Indexing.ExtractCodeSymbols)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REPOSEARCH_SERVER_PORT", "7070")
	t.Setenv("REPOSEARCH_EMBEDDING_DIMENSION", "768")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "bad embedding provider",
			mutate: func(c *Config) { c.Embedding.Provider = "local" },
			errMsg: "unknown embedding provider",
		},
		{
			name:   "bad index backend",
			mutate: func(c *Config) { c.Index.Backend = "bleve" },
			errMsg: "unknown index backend",
		},
		{
			name:   "bad port",
			mutate: func(c *Config) { c.Server.Port = -1 },
			errMsg: "invalid server port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
