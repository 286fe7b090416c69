package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/config"
	"github.com/fyrsmithlabs/reposearch/internal/docindex"
	"github.com/fyrsmithlabs/reposearch/internal/processor"
	"github.com/fyrsmithlabs/reposearch/internal/source"
)

type stubEmbedder struct{ dimension int }

func (s stubEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, s.dimension)
	if strings.Contains(strings.ToLower(text), "limiter") {
		v[0] = 1
	} else {
		v[1] = 1
	}
	return v, nil
}

func (s stubEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i], _ = s.GenerateEmbedding(ctx, t)
	}
	return vecs, nil
}

func (stubEmbedder) Validate(context.Context) error { return nil }
func (s stubEmbedder) Dimension() int               { return s.dimension }

// fakeContent serves an in-memory file set. An optional gate blocks content
// fetches until released, and fetches are counted.
type fakeContent struct {
	mu      sync.Mutex
	files   map[string]string
	gate    chan struct{}
	fetches int
}

func (f *fakeContent) GetFileTree(_ context.Context, _ *source.Repository, _ string) ([]source.TreeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]source.TreeEntry, 0, len(f.files))
	for path, content := range f.files {
		entries = append(entries, source.TreeEntry{Path: path, Size: len(content)})
	}
	return entries, nil
}

func (f *fakeContent) GetFileContent(ctx context.Context, _ *source.Repository, _, path string) (string, error) {
	f.mu.Lock()
	gate := f.gate
	f.fetches++
	content, ok := f.files[path]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if !ok {
		return "", source.ErrFileNotFound
	}
	return content, nil
}

func (f *fakeContent) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fixture struct {
	orch    *Orchestrator
	index   docindex.Index
	content *fakeContent
	store   *source.StaticMetadataStore
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()

	embedder := stubEmbedder{dimension: 3}
	idx, err := docindex.NewChromemIndex(&docindex.ChromemConfig{
		CollectionName: "test_documents",
		Dimension:      3,
	}, embedder, zap.NewNop())
	require.NoError(t, err)

	cfg := config.IndexingConfig{
		MaxConcurrentIndexingOperations: 2,
		MaxConcurrentContentFetches:     4,
		ExtractCodeSymbols:              true,
	}
	proc, err := processor.New(cfg, embedder, zap.NewNop())
	require.NoError(t, err)

	store := source.NewStaticMetadataStore(&source.Repository{
		ID:            "owner/repo",
		Name:          "repo",
		Owner:         "owner",
		CloneURL:      "https://github.com/owner/repo",
		DefaultBranch: "main",
		UpdatedAt:     time.Now().Add(-time.Hour),
	})

	content := &fakeContent{files: files}
	orch, err := New(store, content, proc, idx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	return &fixture{orch: orch, index: idx, content: content, store: store}
}

func defaultFiles() map[string]string {
	return map[string]string{
		"limiter.go": "package ratelimit\n\nfunc NewLimiter() {}\n",
		"parser.py":  "def parse(data):\n    return data\n",
		"binary.bin": "\x00\x01\x02\x03",
	}
}

func TestIndexRepositoryFullPipeline(t *testing.T) {
	f := newFixture(t, defaultFiles())

	status := f.orch.IndexRepository(context.Background(), "owner/repo", false)
	require.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 2, status.TotalDocuments, "binary.bin is excluded, not fatal")
	assert.Equal(t, float64(100), status.ProgressPercentage)
	assert.Equal(t, 2, status.TotalFiles)
	assert.Equal(t, 1, status.SkippedFiles)
	assert.False(t, status.LastIndexed.IsZero())

	res, err := f.index.SearchRepository(context.Background(), "owner/repo", docindex.Query{Text: "limiter"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "limiter.go", res.Results[0].Document.FileName)
}

func TestIndexRepositoryIdempotent(t *testing.T) {
	f := newFixture(t, defaultFiles())

	first := f.orch.IndexRepository(context.Background(), "owner/repo", false)
	require.Equal(t, StatusCompleted, first.Status)
	second := f.orch.IndexRepository(context.Background(), "owner/repo", false)
	require.Equal(t, StatusCompleted, second.Status)

	derived, err := f.index.GetIndexStatus(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, 2, derived.DocumentCount, "stable IDs upsert instead of duplicating")
}

func TestIndexRepositoryAtMostOnePerRepo(t *testing.T) {
	f := newFixture(t, defaultFiles())
	f.content.gate = make(chan struct{})

	done := make(chan *IndexStatus, 1)
	go func() {
		done <- f.orch.IndexRepository(context.Background(), "owner/repo", false)
	}()

	// Wait until the first operation is live, then try to start another.
	require.Eventually(t, func() bool {
		return f.orch.GetIndexingStatus(context.Background(), "owner/repo").Status == StatusInProgress
	}, 2*time.Second, 10*time.Millisecond)

	fetchesBefore := f.content.fetchCount()
	concurrent := f.orch.IndexRepository(context.Background(), "owner/repo", false)
	assert.Equal(t, StatusInProgress, concurrent.Status, "second start returns live status")
	assert.Equal(t, fetchesBefore, f.content.fetchCount(), "no second pipeline started")

	close(f.content.gate)
	final := <-done
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestIndexRepositoryUnknownRepository(t *testing.T) {
	f := newFixture(t, defaultFiles())

	status := f.orch.IndexRepository(context.Background(), "owner/missing", false)
	assert.Equal(t, StatusError, status.Status)
	assert.Contains(t, status.Error, "resolving repository")
}

func TestIndexRepositoryCancellation(t *testing.T) {
	f := newFixture(t, defaultFiles())
	f.content.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *IndexStatus, 1)
	go func() {
		done <- f.orch.IndexRepository(ctx, "owner/repo", false)
	}()

	require.Eventually(t, func() bool {
		return f.content.fetchCount() > 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	status := <-done
	assert.Equal(t, StatusCancelled, status.Status)
}

func TestRefreshPerformsFullReindex(t *testing.T) {
	f := newFixture(t, defaultFiles())

	first := f.orch.IndexRepository(context.Background(), "owner/repo", false)
	require.Equal(t, StatusCompleted, first.Status)

	f.content.mu.Lock()
	f.content.files["limiter.go"] = "package ratelimit\n\nfunc NewLimiter() {}\nfunc Burst() {}\n"
	f.content.mu.Unlock()

	refreshed := f.orch.RefreshRepositoryIndex(context.Background(), "owner/repo")
	require.Equal(t, StatusCompleted, refreshed.Status)
	assert.Equal(t, 2, refreshed.TotalDocuments)

	res, err := f.index.SearchRepository(context.Background(), "owner/repo", docindex.Query{Text: "limiter"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Contains(t, res.Results[0].Document.Content, "Burst")
}

func TestRemoveRepositoryFromIndex(t *testing.T) {
	f := newFixture(t, defaultFiles())

	require.Equal(t, StatusCompleted, f.orch.IndexRepository(context.Background(), "owner/repo", false).Status)

	removed := f.orch.RemoveRepositoryFromIndex(context.Background(), "owner/repo")
	assert.Equal(t, StatusNotStarted, removed.Status)

	derived, err := f.index.GetIndexStatus(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Zero(t, derived.DocumentCount)

	assert.Equal(t, StatusNotStarted, f.orch.GetIndexingStatus(context.Background(), "owner/repo").Status)
}

func TestRemoveRepositoryNeverIndexed(t *testing.T) {
	f := newFixture(t, defaultFiles())

	// No prior indexing run; removal succeeds trivially.
	removed := f.orch.RemoveRepositoryFromIndex(context.Background(), "owner/repo")
	assert.Equal(t, StatusNotStarted, removed.Status)
	assert.Empty(t, removed.Error)
}

func TestGetIndexingStatusFallsBackToIndex(t *testing.T) {
	f := newFixture(t, defaultFiles())
	require.Equal(t, StatusCompleted, f.orch.IndexRepository(context.Background(), "owner/repo", false).Status)

	// A second orchestrator sharing the index has no live status and must
	// derive one from document counts.
	proc, err := processor.New(config.IndexingConfig{}, stubEmbedder{dimension: 3}, zap.NewNop())
	require.NoError(t, err)
	other, err := New(f.store, f.content, proc, f.index, config.IndexingConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer other.Close()

	status := other.GetIndexingStatus(context.Background(), "owner/repo")
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 2, status.TotalDocuments)

	assert.Equal(t, StatusNotStarted,
		other.GetIndexingStatus(context.Background(), "owner/never-indexed").Status)
}
