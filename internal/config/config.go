// Package config provides configuration loading for reposearch.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. Defaults cover a local development setup (embedded index, TEI
// embedder on localhost).
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
)

// Config holds the complete reposearch configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Index     IndexConfig     `koanf:"index"`
	Indexing  IndexingConfig  `koanf:"indexing"`
	GitHub    GitHubConfig    `koanf:"github"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	// Provider is "tei" (HTTP embed endpoint) or "openai" (OpenAI-compatible API).
	Provider string `koanf:"provider"`

	// BaseURL is the embedding API base URL.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey is required for OpenAI, optional for TEI.
	APIKey string `koanf:"api_key"`

	// Dimension is the fixed embedding dimensionality. Documents whose
	// vectors do not match this length are never indexed.
	Dimension int `koanf:"dimension"`

	// RequestTimeout bounds a single embedding call.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// IndexConfig holds document index backend configuration.
type IndexConfig struct {
	// Backend is "qdrant" or "chromem".
	Backend string `koanf:"backend"`

	// CollectionName is the index collection. Must match ^[a-z0-9_]{1,64}$.
	CollectionName string `koanf:"collection_name"`

	Qdrant QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds Qdrant gRPC connection settings. The chromem backend
// is embedded and needs no connection settings of its own.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey string `koanf:"api_key"`
}

// IndexingConfig holds the repository indexing pipeline options.
type IndexingConfig struct {
	// IndexableFileExtensions is the extension allow-list (with leading dot).
	IndexableFileExtensions []string `koanf:"indexable_file_extensions"`

	// IgnoredDirectories are path segments that exclude a file from indexing.
	IgnoredDirectories []string `koanf:"ignored_directories"`

	// MaxFileContentLength is the content truncation budget in characters.
	MaxFileContentLength int `koanf:"max_file_content_length"`

	// MaxConcurrentIndexingOperations bounds concurrent file processing and
	// sets the orchestrator chunk size.
	MaxConcurrentIndexingOperations int `koanf:"max_concurrent_indexing_operations"`

	// MaxConcurrentContentFetches bounds simultaneous content-provider reads.
	MaxConcurrentContentFetches int `koanf:"max_concurrent_content_fetches"`

	// ExtractCodeSymbols enables regex symbol extraction per file.
	ExtractCodeSymbols bool `koanf:"extract_code_symbols"`

	// EnableIncrementalIndexing gates the refresh path. Refresh currently
	// performs a full reindex regardless; see orchestrator.RefreshRepositoryIndex.
	EnableIncrementalIndexing bool `koanf:"enable_incremental_indexing"`

	// MaxBatchSize caps embedding batches and bulk index chunks.
	MaxBatchSize int `koanf:"max_batch_size"`

	// EnableRateLimitProtection turns on the embedder's rate window.
	EnableRateLimitProtection bool `koanf:"enable_rate_limit_protection"`

	// RetryAttempts is the maximum number of embedding call attempts.
	RetryAttempts int `koanf:"retry_attempts"`
}

// GitHubConfig holds GitHub content-provider settings.
type GitHubConfig struct {
	Token string `koanf:"token"`
}

// DefaultIndexableExtensions is the built-in extension allow-list.
var DefaultIndexableExtensions = []string{
	".cs", ".js", ".jsx", ".ts", ".tsx", ".py", ".java", ".go", ".rs",
	".c", ".h", ".cpp", ".hpp", ".rb", ".php", ".swift", ".kt", ".scala",
	".sh", ".sql", ".html", ".css", ".scss", ".json", ".yaml", ".yml",
	".toml", ".md", ".txt", ".xml", ".proto",
}

// DefaultIgnoredDirectories are directories skipped during indexing.
var DefaultIgnoredDirectories = []string{
	".git", ".svn", ".hg", "node_modules", "vendor", ".venv", "venv",
	"__pycache__", ".idea", ".vscode", "bin", "obj", "dist", "build",
	".next", "target", "packages",
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	c.Logging.ApplyDefaults()

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "tei"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:8080"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	if c.Embedding.RequestTimeout == 0 {
		c.Embedding.RequestTimeout = 10 * time.Second
	}

	if c.Index.Backend == "" {
		c.Index.Backend = "chromem"
	}
	if c.Index.CollectionName == "" {
		c.Index.CollectionName = "reposearch_documents"
	}
	if c.Index.Qdrant.Host == "" {
		c.Index.Qdrant.Host = "localhost"
	}
	if c.Index.Qdrant.Port == 0 {
		c.Index.Qdrant.Port = 6334
	}

	if len(c.Indexing.IndexableFileExtensions) == 0 {
		c.Indexing.IndexableFileExtensions = DefaultIndexableExtensions
	}
	if len(c.Indexing.IgnoredDirectories) == 0 {
		c.Indexing.IgnoredDirectories = DefaultIgnoredDirectories
	}
	if c.Indexing.MaxFileContentLength == 0 {
		c.Indexing.MaxFileContentLength = 32000
	}
	if c.Indexing.MaxConcurrentIndexingOperations == 0 {
		c.Indexing.MaxConcurrentIndexingOperations = 5
	}
	if c.Indexing.MaxConcurrentContentFetches == 0 {
		c.Indexing.MaxConcurrentContentFetches = 10
	}
	if c.Indexing.MaxBatchSize == 0 {
		c.Indexing.MaxBatchSize = 16
	}
	if c.Indexing.RetryAttempts == 0 {
		c.Indexing.RetryAttempts = 3
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Embedding.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	switch c.Index.Backend {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	if c.Indexing.MaxConcurrentIndexingOperations <= 0 {
		return fmt.Errorf("max_concurrent_indexing_operations must be positive")
	}
	if c.Indexing.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive")
	}
	if c.Indexing.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be positive")
	}
	return nil
}
