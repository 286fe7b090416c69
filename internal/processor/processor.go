// Package processor turns repository files into searchable documents. It
// runs preprocessing and symbol extraction concurrently under a semaphore,
// batches embedding generation, and skips unprocessable files without
// aborting the batch.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/reposearch/internal/config"
	"github.com/fyrsmithlabs/reposearch/internal/docindex"
	"github.com/fyrsmithlabs/reposearch/internal/embeddings"
	"github.com/fyrsmithlabs/reposearch/internal/preprocess"
	"github.com/fyrsmithlabs/reposearch/internal/symbols"
)

// ErrNotIndexable indicates a file excluded by extension or directory rules.
var ErrNotIndexable = errors.New("file is not indexable")

// RepositoryRef identifies the repository a batch of files belongs to.
type RepositoryRef struct {
	ID     string
	Name   string
	Owner  string
	URL    string
	Branch string
}

// File is one repository file with fetched content.
type File struct {
	Path         string
	Content      string
	SizeInBytes  int
	LastModified time.Time
}

// Report summarizes a batch. Skipped files never fail the batch.
type Report struct {
	Processed int
	Skipped   int
}

// Processor builds documents from files.
type Processor struct {
	pre       *preprocess.Preprocessor
	extractor *symbols.Extractor
	embedder  embeddings.Client
	cfg       config.IndexingConfig
	sem       *semaphore.Weighted
	logger    *zap.Logger

	extensions map[string]bool
}

// New creates a file processor.
func New(cfg config.IndexingConfig, embedder embeddings.Client, logger *zap.Logger) (*Processor, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.MaxConcurrentIndexingOperations <= 0 {
		cfg.MaxConcurrentIndexingOperations = 5
	}
	if cfg.MaxFileContentLength <= 0 {
		cfg.MaxFileContentLength = 32000
	}
	if len(cfg.IndexableFileExtensions) == 0 {
		cfg.IndexableFileExtensions = config.DefaultIndexableExtensions
	}
	if len(cfg.IgnoredDirectories) == 0 {
		cfg.IgnoredDirectories = config.DefaultIgnoredDirectories
	}

	extensions := make(map[string]bool, len(cfg.IndexableFileExtensions))
	for _, ext := range cfg.IndexableFileExtensions {
		extensions[strings.ToLower(ext)] = true
	}

	return &Processor{
		pre:        preprocess.New(cfg.MaxFileContentLength),
		extractor:  symbols.NewExtractor(logger),
		embedder:   embedder,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentIndexingOperations)),
		logger:     logger,
		extensions: extensions,
	}, nil
}

// IsIndexable reports whether a file path passes the extension allow-list
// and the ignored-directory rules.
func (p *Processor) IsIndexable(filePath string) bool {
	ext := strings.ToLower(path.Ext(filePath))
	if !p.extensions[ext] {
		return false
	}
	for _, segment := range strings.Split(path.Dir(filePath), "/") {
		for _, ignored := range p.cfg.IgnoredDirectories {
			if strings.EqualFold(segment, ignored) {
				return false
			}
		}
	}
	return true
}

// DocumentID derives the stable document key for a repository file. The same
// repository, branch, and path always map to the same ID, so reindexing
// upserts instead of duplicating.
func DocumentID(repositoryID, branch, filePath string) string {
	sum := sha256.Sum256([]byte(repositoryID + "\x00" + branch + "\x00" + filePath))
	return hex.EncodeToString(sum[:])
}

// prepared is a file that survived preprocessing and awaits its embedding.
type prepared struct {
	file    File
	content string
	tokens  []symbols.Token
}

// ProcessFiles converts files into documents. Files that are not indexable,
// binary, empty, or unembeddable are skipped and counted; a failed batch
// embedding falls back to per-file embedding so one poisoned request cannot
// discard the whole batch. Only cancellation aborts.
func (p *Processor) ProcessFiles(ctx context.Context, repo RepositoryRef, files []File) ([]*docindex.Document, Report, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		ready  []prepared
		report Report
		ctxErr error
	)

	for _, file := range files {
		if !p.IsIndexable(file.Path) {
			report.Skipped++
			continue
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			ctxErr = err
			break
		}
		wg.Add(1)
		go func(file File) {
			defer wg.Done()
			defer p.sem.Release(1)

			prep, err := p.prepare(file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Skipped++
				p.logger.Debug("skipping file",
					zap.String("path", file.Path),
					zap.String("repository_id", repo.ID),
					zap.Error(err),
				)
				return
			}
			ready = append(ready, prep)
		}(file)
	}
	wg.Wait()
	if ctxErr != nil {
		return nil, report, ctxErr
	}
	if len(ready) == 0 {
		return nil, report, nil
	}

	texts := make([]string, len(ready))
	for i, prep := range ready {
		texts[i] = prep.content
	}
	vectors, err := p.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil || len(vectors) != len(ready) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, report, err
		}
		p.logger.Warn("batch embedding failed, falling back to per-file embedding",
			zap.String("repository_id", repo.ID),
			zap.Int("files", len(ready)),
			zap.Error(err),
		)
		return p.embedEachFile(ctx, repo, ready, report)
	}

	docs := make([]*docindex.Document, len(ready))
	for i, prep := range ready {
		docs[i] = p.buildDocument(repo, prep, vectors[i])
	}
	report.Processed = len(docs)
	return docs, report, nil
}

// embedEachFile embeds prepared files one at a time so a single bad file
// only skips itself. Cancellation still aborts the remainder.
func (p *Processor) embedEachFile(ctx context.Context, repo RepositoryRef, ready []prepared, report Report) ([]*docindex.Document, Report, error) {
	var docs []*docindex.Document
	for _, prep := range ready {
		vector, err := p.embedder.GenerateEmbedding(ctx, prep.content)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, report, err
			}
			report.Skipped++
			p.logger.Warn("skipping file after embedding failure",
				zap.String("path", prep.file.Path),
				zap.String("repository_id", repo.ID),
				zap.Error(err),
			)
			continue
		}
		docs = append(docs, p.buildDocument(repo, prep, vector))
	}
	report.Processed = len(docs)
	return docs, report, nil
}

// ProcessFile converts a single file. Callers batching many files should
// prefer ProcessFiles for embedding efficiency.
func (p *Processor) ProcessFile(ctx context.Context, repo RepositoryRef, file File) (*docindex.Document, error) {
	if !p.IsIndexable(file.Path) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexable, file.Path)
	}
	prep, err := p.prepare(file)
	if err != nil {
		return nil, err
	}
	vector, err := p.embedder.GenerateEmbedding(ctx, prep.content)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", file.Path, err)
	}
	return p.buildDocument(repo, prep, vector), nil
}

func (p *Processor) prepare(file File) (prepared, error) {
	language := LanguageForPath(file.Path)
	content, err := p.pre.Process(file.Content, path.Base(file.Path), file.Path, language)
	if err != nil {
		return prepared{}, err
	}
	var tokens []symbols.Token
	if p.cfg.ExtractCodeSymbols {
		tokens = p.extractor.Extract(file.Content, language)
	}
	return prepared{file: file, content: content, tokens: tokens}, nil
}

func (p *Processor) buildDocument(repo RepositoryRef, prep prepared, vector []float32) *docindex.Document {
	codeSymbols := make([]string, len(prep.tokens))
	for i, tok := range prep.tokens {
		codeSymbols[i] = tok.String()
	}

	size := prep.file.SizeInBytes
	if size == 0 {
		size = len(prep.file.Content)
	}

	return &docindex.Document{
		ID:            DocumentID(repo.ID, repo.Branch, prep.file.Path),
		RepositoryID:  repo.ID,
		FilePath:      prep.file.Path,
		FileName:      path.Base(prep.file.Path),
		FileExtension: strings.ToLower(path.Ext(prep.file.Path)),
		BranchName:    repo.Branch,
		Content:       prep.content,
		ContentVector: vector,
		Language:      LanguageForPath(prep.file.Path),
		LineCount:     strings.Count(prep.file.Content, "\n") + 1,
		SizeInBytes:   size,
		LastModified:  prep.file.LastModified,
		Metadata: docindex.Metadata{
			RepositoryName:  repo.Name,
			RepositoryOwner: repo.Owner,
			RepositoryURL:   repo.URL,
			CodeSymbols:     codeSymbols,
		},
	}
}

// languageByExtension maps file extensions to language names.
var languageByExtension = map[string]string{
	".cs":    "csharp",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".java":  "java",
	".go":    "go",
	".rs":    "rust",
	".c":     "cpp",
	".h":     "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".txt":   "text",
	".xml":   "xml",
	".proto": "protobuf",
}

// LanguageForPath maps a file path to its language name, or "unknown".
func LanguageForPath(filePath string) string {
	if lang, ok := languageByExtension[strings.ToLower(path.Ext(filePath))]; ok {
		return lang
	}
	return "unknown"
}
