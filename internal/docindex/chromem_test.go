package docindex

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbedder maps topic words onto fixed axes so vector similarity is
// predictable in tests.
type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "limiter") {
		v[0] = 1
	}
	if strings.Contains(lower, "parser") {
		v[1] = 1
	}
	if v[0] == 0 && v[1] == 0 {
		v[2] = 1
	}
	return v, nil
}

func newTestChromemIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(&ChromemConfig{
		CollectionName: "test_documents",
		Dimension:      3,
		BatchSize:      2,
	}, fakeEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, idx.CreateIndex(context.Background()))
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testDoc(id, repo, fileName, content string, vec []float32) *Document {
	return &Document{
		ID:            id,
		RepositoryID:  repo,
		FilePath:      "internal/" + fileName,
		FileName:      fileName,
		FileExtension: ".go",
		BranchName:    "main",
		Content:       content,
		ContentVector: vec,
		Language:      "go",
		LastModified:  time.Now().Add(-48 * time.Hour),
		Metadata:      Metadata{RepositoryName: repo},
	}
}

func seedDocs(t *testing.T, idx *ChromemIndex) {
	t.Helper()
	docs := []*Document{
		testDoc("r1:limiter.go", "repo-1", "limiter.go", "token bucket limiter", []float32{1, 0, 0}),
		testDoc("r1:parser.go", "repo-1", "parser.go", "recursive descent parser", []float32{0, 1, 0}),
		testDoc("r2:other.go", "repo-2", "other.go", "something else entirely", []float32{0, 0, 1}),
	}
	require.NoError(t, idx.IndexDocuments(context.Background(), docs))
}

func TestChromemIndexHybridSearch(t *testing.T) {
	idx := newTestChromemIndex(t)
	seedDocs(t, idx)

	res, err := idx.Search(context.Background(), Query{Text: "limiter"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "r1:limiter.go", res.Results[0].DocumentID,
		"vector and keyword signals agree on the limiter document")
	assert.Equal(t, 2, res.Facets["repositoryName"]["repo-1"])
}

func TestChromemIndexSearchRepositoryScoping(t *testing.T) {
	idx := newTestChromemIndex(t)
	seedDocs(t, idx)

	res, err := idx.SearchRepository(context.Background(), "repo-1", Query{Text: "limiter"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		assert.Equal(t, "repo-1", r.Document.RepositoryID)
	}
}

func TestChromemIndexKeywordFilterOnly(t *testing.T) {
	idx := newTestChromemIndex(t)
	seedDocs(t, idx)

	res, err := idx.Search(context.Background(), Query{
		Type:    Keyword,
		Filters: []Filter{{Field: "repositoryId", Operator: OpEq, Value: "repo-2"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, "r2:other.go", res.Results[0].DocumentID)
}

func TestChromemIndexUpsertIsIdempotent(t *testing.T) {
	idx := newTestChromemIndex(t)
	doc := testDoc("r1:limiter.go", "repo-1", "limiter.go", "v1", []float32{1, 0, 0})
	require.NoError(t, idx.IndexDocument(context.Background(), doc))

	updated := testDoc("r1:limiter.go", "repo-1", "limiter.go", "v2 limiter", []float32{1, 0, 0})
	require.NoError(t, idx.IndexDocument(context.Background(), updated))

	status, err := idx.GetIndexStatus(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.DocumentCount, "same ID indexed twice stays one document")

	got, err := idx.GetDocument(context.Background(), "r1:limiter.go")
	require.NoError(t, err)
	assert.Equal(t, "v2 limiter", got.Content)
}

func TestChromemIndexInvalidDimensionRejected(t *testing.T) {
	idx := newTestChromemIndex(t)
	doc := testDoc("bad", "repo-1", "bad.go", "x", []float32{1, 0})
	err := idx.IndexDocument(context.Background(), doc)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestChromemIndexDeleteRepositoryDocuments(t *testing.T) {
	idx := newTestChromemIndex(t)
	seedDocs(t, idx)

	require.NoError(t, idx.DeleteRepositoryDocuments(context.Background(), "repo-1"))

	status, err := idx.GetIndexStatus(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Zero(t, status.DocumentCount)

	// Other repositories are untouched.
	other, err := idx.GetIndexStatus(context.Background(), "repo-2")
	require.NoError(t, err)
	assert.Equal(t, 1, other.DocumentCount)

	_, err = idx.GetDocument(context.Background(), "r1:limiter.go")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestChromemIndexEmptyCollectionSearch(t *testing.T) {
	idx := newTestChromemIndex(t)
	res, err := idx.Search(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
	assert.Empty(t, res.Results)
}

func TestChromemIndexDeleteIndex(t *testing.T) {
	idx := newTestChromemIndex(t)
	seedDocs(t, idx)
	require.NoError(t, idx.DeleteIndex(context.Background()))

	res, err := idx.Search(context.Background(), Query{Text: "limiter"})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
}
