// Package orchestrator coordinates repository indexing end to end: resolve
// metadata, list the file tree, fetch and process content in chunks, and
// bulk-index the resulting documents. Failures surface as a terminal status
// on the repository, never as an error to the caller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/reposearch/internal/config"
	"github.com/fyrsmithlabs/reposearch/internal/docindex"
	"github.com/fyrsmithlabs/reposearch/internal/processor"
	"github.com/fyrsmithlabs/reposearch/internal/source"
)

// Orchestrator drives the indexing pipeline for repositories.
type Orchestrator struct {
	metadata  source.MetadataStore
	content   source.ContentProvider
	processor *processor.Processor
	index     docindex.Index
	cfg       config.IndexingConfig
	fetchSem  *semaphore.Weighted
	tracker   *statusTracker
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(
	metadata source.MetadataStore,
	content source.ContentProvider,
	proc *processor.Processor,
	index docindex.Index,
	cfg config.IndexingConfig,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if metadata == nil || content == nil || proc == nil || index == nil {
		return nil, errors.New("metadata store, content provider, processor, and index are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.MaxConcurrentIndexingOperations <= 0 {
		cfg.MaxConcurrentIndexingOperations = 5
	}
	if cfg.MaxConcurrentContentFetches <= 0 {
		cfg.MaxConcurrentContentFetches = 10
	}
	return &Orchestrator{
		metadata:  metadata,
		content:   content,
		processor: proc,
		index:     index,
		cfg:       cfg,
		fetchSem:  semaphore.NewWeighted(int64(cfg.MaxConcurrentContentFetches)),
		tracker:   newStatusTracker(),
		logger:    logger,
	}, nil
}

// Close stops the status tracker.
func (o *Orchestrator) Close() error {
	o.tracker.close()
	return nil
}

// IndexRepository indexes a repository's default branch. If an indexing
// operation is already running for the repository, the live status is
// returned unchanged. With force, existing documents are deleted first.
func (o *Orchestrator) IndexRepository(ctx context.Context, repositoryID string, force bool) *IndexStatus {
	return o.runPipeline(ctx, repositoryID, StatusInProgress, force)
}

// RefreshRepositoryIndex re-indexes a repository. Incremental diffing is not
// implemented; refresh performs a full forced reindex under the Refreshing
// status.
func (o *Orchestrator) RefreshRepositoryIndex(ctx context.Context, repositoryID string) *IndexStatus {
	return o.runPipeline(ctx, repositoryID, StatusRefreshing, true)
}

// RemoveRepositoryFromIndex deletes a repository's documents and forgets its
// status. Removal is refused while an operation is running.
func (o *Orchestrator) RemoveRepositoryFromIndex(ctx context.Context, repositoryID string) *IndexStatus {
	if live := o.tracker.get(repositoryID); live != nil && !live.Status.terminal() {
		return live
	}
	if err := o.index.DeleteRepositoryDocuments(ctx, repositoryID); err != nil {
		o.logger.Error("failed to remove repository from index",
			zap.String("repository_id", repositoryID),
			zap.Error(err),
		)
		return o.failStatus(repositoryID, fmt.Errorf("removing repository documents: %w", err))
	}
	o.tracker.remove(repositoryID)
	o.logger.Info("repository removed from index", zap.String("repository_id", repositoryID))
	return &IndexStatus{RepositoryID: repositoryID, Status: StatusNotStarted}
}

// GetIndexingStatus returns the live status when one exists, otherwise a
// best-effort status derived from the index. It never returns an error.
func (o *Orchestrator) GetIndexingStatus(ctx context.Context, repositoryID string) *IndexStatus {
	if live := o.tracker.get(repositoryID); live != nil {
		return live
	}

	derived, err := o.index.GetIndexStatus(ctx, repositoryID)
	if err != nil {
		o.logger.Warn("failed to derive index status",
			zap.String("repository_id", repositoryID),
			zap.Error(err),
		)
		return &IndexStatus{
			RepositoryID: repositoryID,
			Status:       StatusError,
			Error:        "index status unavailable",
		}
	}
	if derived.DocumentCount == 0 {
		return &IndexStatus{RepositoryID: repositoryID, Status: StatusNotStarted}
	}
	return &IndexStatus{
		RepositoryID:       repositoryID,
		Status:             StatusCompleted,
		ProgressPercentage: 100,
		TotalDocuments:     derived.DocumentCount,
		LastIndexed:        derived.LastIndexed,
	}
}

// StartIndexRepository claims the repository and runs the pipeline in the
// background, returning the claimed (or live) status immediately. The
// background run is independent of the caller's request lifetime.
func (o *Orchestrator) StartIndexRepository(repositoryID string, force bool) *IndexStatus {
	status, started := o.tracker.tryStart(repositoryID, StatusInProgress, time.Now())
	if !started {
		return status
	}
	go o.execute(context.Background(), repositoryID, force)
	return status
}

// StartRefreshRepositoryIndex is the background variant of
// RefreshRepositoryIndex.
func (o *Orchestrator) StartRefreshRepositoryIndex(repositoryID string) *IndexStatus {
	status, started := o.tracker.tryStart(repositoryID, StatusRefreshing, time.Now())
	if !started {
		return status
	}
	go o.execute(context.Background(), repositoryID, true)
	return status
}

// runPipeline executes the full indexing flow under an exclusive claim on
// the repository.
func (o *Orchestrator) runPipeline(ctx context.Context, repositoryID string, activeStatus Status, force bool) *IndexStatus {
	status, started := o.tracker.tryStart(repositoryID, activeStatus, time.Now())
	if !started {
		o.logger.Info("indexing already in progress",
			zap.String("repository_id", repositoryID),
			zap.String("status", string(status.Status)),
		)
		return status
	}
	return o.execute(ctx, repositoryID, force)
}

// execute runs the pipeline for an already-claimed repository and settles
// its terminal status.
func (o *Orchestrator) execute(ctx context.Context, repositoryID string, force bool) *IndexStatus {
	o.logger.Info("indexing started",
		zap.String("repository_id", repositoryID),
		zap.Bool("force", force),
	)

	final, err := o.indexRepository(ctx, repositoryID, force)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return o.cancelStatus(repositoryID)
		}
		return o.failStatus(repositoryID, err)
	}
	return final
}

func (o *Orchestrator) indexRepository(ctx context.Context, repositoryID string, force bool) (*IndexStatus, error) {
	repo, err := o.metadata.GetByID(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("resolving repository: %w", err)
	}
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	if force {
		if err := o.index.DeleteRepositoryDocuments(ctx, repositoryID); err != nil {
			return nil, fmt.Errorf("clearing existing documents: %w", err)
		}
	}

	tree, err := o.content.GetFileTree(ctx, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("listing repository tree: %w", err)
	}

	// Filter up front so progress percentages track indexable files only.
	indexable := make([]source.TreeEntry, 0, len(tree))
	for _, entry := range tree {
		if o.processor.IsIndexable(entry.Path) {
			indexable = append(indexable, entry)
		}
	}

	o.tracker.update(repositoryID, func(s *IndexStatus) {
		s.TotalFiles = len(indexable)
		s.SkippedFiles = len(tree) - len(indexable)
	})

	if len(indexable) == 0 {
		return o.completeStatus(repositoryID, 0), nil
	}

	ref := processor.RepositoryRef{
		ID:     repo.ID,
		Name:   repo.Name,
		Owner:  repo.Owner,
		URL:    repo.CloneURL,
		Branch: branch,
	}

	var (
		docs      []*docindex.Document
		processed int
		startedAt = time.Now()
		chunkSize = o.cfg.MaxConcurrentIndexingOperations
	)
	for start := 0; start < len(indexable); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunkSize
		if end > len(indexable) {
			end = len(indexable)
		}
		chunk := indexable[start:end]

		files, fetchFailures := o.fetchChunk(ctx, repo, branch, chunk)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunkDocs, report, err := o.processor.ProcessFiles(ctx, ref, files)
		if err != nil {
			return nil, fmt.Errorf("processing files: %w", err)
		}
		docs = append(docs, chunkDocs...)
		processed += len(chunk)

		progress := float64(processed) / float64(len(indexable)) * 100
		eta := estimateCompletion(startedAt, processed, len(indexable))
		o.tracker.update(repositoryID, func(s *IndexStatus) {
			s.ProcessedFiles = processed
			s.SkippedFiles += report.Skipped + fetchFailures
			s.ProgressPercentage = progress
			s.EstimatedCompletion = eta
		})

		o.logger.Debug("chunk processed",
			zap.String("repository_id", repositoryID),
			zap.Int("processed", processed),
			zap.Int("total", len(indexable)),
			zap.Int("documents", len(chunkDocs)),
		)
	}

	if len(docs) > 0 {
		if err := o.index.IndexDocuments(ctx, docs); err != nil {
			return nil, fmt.Errorf("bulk indexing %d documents: %w", len(docs), err)
		}
	}

	o.logger.Info("indexing completed",
		zap.String("repository_id", repositoryID),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	return o.completeStatus(repositoryID, len(docs)), nil
}

// fetchChunk fetches file contents under the fetch semaphore. Individual
// fetch failures skip the file; only context cancellation stops the chunk.
func (o *Orchestrator) fetchChunk(ctx context.Context, repo *source.Repository, branch string, entries []source.TreeEntry) ([]processor.File, int) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		files    []processor.File
		failures int
	)
	for _, entry := range entries {
		if err := o.fetchSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(entry source.TreeEntry) {
			defer wg.Done()
			defer o.fetchSem.Release(1)

			content, err := o.content.GetFileContent(ctx, repo, branch, entry.Path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				o.logger.Warn("failed to fetch file content",
					zap.String("repository_id", repo.ID),
					zap.String("path", entry.Path),
					zap.Error(err),
				)
				return
			}
			files = append(files, processor.File{
				Path:         entry.Path,
				Content:      content,
				SizeInBytes:  entry.Size,
				LastModified: repo.UpdatedAt,
			})
		}(entry)
	}
	wg.Wait()
	return files, failures
}

// estimateCompletion projects the finish time from elapsed per-file pace.
func estimateCompletion(startedAt time.Time, processed, total int) time.Time {
	if processed == 0 || processed >= total {
		return time.Time{}
	}
	elapsed := time.Since(startedAt)
	perFile := elapsed / time.Duration(processed)
	return time.Now().Add(perFile * time.Duration(total-processed))
}

func (o *Orchestrator) completeStatus(repositoryID string, documents int) *IndexStatus {
	return o.tracker.update(repositoryID, func(s *IndexStatus) {
		s.Status = StatusCompleted
		s.ProgressPercentage = 100
		s.TotalDocuments = documents
		s.LastIndexed = time.Now()
		s.EstimatedCompletion = time.Time{}
		s.Error = ""
	})
}

func (o *Orchestrator) failStatus(repositoryID string, err error) *IndexStatus {
	o.logger.Error("indexing failed",
		zap.String("repository_id", repositoryID),
		zap.Error(err),
	)
	return o.tracker.update(repositoryID, func(s *IndexStatus) {
		s.Status = StatusError
		s.Error = err.Error()
	})
}

func (o *Orchestrator) cancelStatus(repositoryID string) *IndexStatus {
	o.logger.Warn("indexing cancelled", zap.String("repository_id", repositoryID))
	return o.tracker.update(repositoryID, func(s *IndexStatus) {
		s.Status = StatusCancelled
		s.EstimatedCompletion = time.Time{}
	})
}
