package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reposearch/internal/orchestrator"
)

var (
	indexForce   bool
	indexRefresh bool
)

var indexCmd = &cobra.Command{
	Use:   "index <owner/repo>",
	Short: "Index a repository",
	Long: `Index a repository into the search index.

The repository is resolved through the GitHub API by default. With --local,
metadata and content are read from a git clone on disk and the argument is
used as the repository identifier.

Examples:
  # Index a GitHub repository (GITHUB_TOKEN or github.token in config)
  reposearch index golang/go

  # Reindex from scratch, dropping existing documents first
  reposearch index golang/go --force

  # Index a local clone
  reposearch index myproject --local ~/src/myproject`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var statusCmd = &cobra.Command{
	Use:   "status <owner/repo>",
	Short: "Show indexing status for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "delete existing documents before indexing")
	indexCmd.Flags().BoolVar(&indexRefresh, "refresh", false, "refresh an existing index")
	indexCmd.Flags().StringVar(&localPath, "local", "", "index a local git clone at this path")
	statusCmd.Flags().StringVar(&localPath, "local", "", "path to a local git clone")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	repositoryID := args[0]
	var status *orchestrator.IndexStatus
	if indexRefresh {
		status = a.orch.RefreshRepositoryIndex(ctx, repositoryID)
	} else {
		status = a.orch.IndexRepository(ctx, repositoryID, indexForce)
	}

	printStatus(status)
	if status.Status == orchestrator.StatusError {
		return fmt.Errorf("indexing failed: %s", status.Error)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printStatus(a.orch.GetIndexingStatus(ctx, args[0]))
	return nil
}

func printStatus(s *orchestrator.IndexStatus) {
	fmt.Printf("Repository: %s\n", s.RepositoryID)
	fmt.Printf("Status:     %s\n", s.Status)
	if s.TotalFiles > 0 {
		fmt.Printf("Files:      %d processed, %d skipped of %d\n",
			s.ProcessedFiles, s.SkippedFiles, s.TotalFiles)
	}
	if s.TotalDocuments > 0 {
		fmt.Printf("Documents:  %d\n", s.TotalDocuments)
	}
	if !s.LastIndexed.IsZero() {
		fmt.Printf("Indexed:    %s\n", s.LastIndexed.Format("2006-01-02 15:04:05"))
	}
	if s.Error != "" {
		fmt.Printf("Error:      %s\n", s.Error)
	}
}
