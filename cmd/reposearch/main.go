// Package main implements the reposearch CLI.
//
// reposearch indexes source repositories into a vector index and serves
// hybrid semantic and keyword search over the indexed documents.
//
// Usage:
//
//	# Start the HTTP server
//	reposearch serve
//
//	# Index a GitHub repository
//	reposearch index owner/repo
//
//	# Index a local clone
//	reposearch index myrepo --local /path/to/clone
//
//	# Search the index
//	reposearch search "rate limiter" --type hybrid --top 5
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/config"
	"github.com/fyrsmithlabs/reposearch/internal/docindex"
	"github.com/fyrsmithlabs/reposearch/internal/embeddings"
	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/orchestrator"
	"github.com/fyrsmithlabs/reposearch/internal/processor"
	"github.com/fyrsmithlabs/reposearch/internal/source"
)

var (
	configPath string
	localPath  string

	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reposearch",
	Short:   "Repository indexing and hybrid code search",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
}

// app holds the wired services shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	index  docindex.Index
	orch   *orchestrator.Orchestrator
}

// newApp loads configuration and wires the embedder, index, content provider,
// and orchestrator. When localPath is set, repository content is read from the
// local git clone instead of the GitHub API.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		Provider:        cfg.Embedding.Provider,
		BaseURL:         cfg.Embedding.BaseURL,
		Model:           cfg.Embedding.Model,
		APIKey:          cfg.Embedding.APIKey,
		Dimension:       cfg.Embedding.Dimension,
		MaxBatchSize:    cfg.Indexing.MaxBatchSize,
		RetryAttempts:   cfg.Indexing.RetryAttempts,
		RequestTimeout:  cfg.Embedding.RequestTimeout,
		EnableRateLimit: cfg.Indexing.EnableRateLimitProtection,
		MaxContentChars: cfg.Indexing.MaxFileContentLength,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	index, err := docindex.NewIndex(cfg, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	if err := index.CreateIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	proc, err := processor.New(cfg.Indexing, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	var (
		metadata source.MetadataStore
		content  source.ContentProvider
	)
	if localPath != "" {
		local, err := source.NewLocalGitSource(localPath)
		if err != nil {
			return nil, fmt.Errorf("opening local repository: %w", err)
		}
		metadata, content = local, local
	} else {
		gh := source.NewGitHubSource(ctx, cfg.GitHub.Token, logger)
		metadata, content = gh, gh
	}

	orch, err := orchestrator.New(metadata, content, proc, index, cfg.Indexing, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return &app{cfg: cfg, logger: logger, index: index, orch: orch}, nil
}

// Close releases the orchestrator and flushes the logger.
func (a *app) Close() {
	_ = a.orch.Close()
	_ = a.logger.Sync()
}
