package docindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordScoreFieldWeights(t *testing.T) {
	terms := queryTerms("limiter")

	inFileName := &Document{FileName: "limiter.go"}
	inSymbols := &Document{Metadata: Metadata{CodeSymbols: []string{"struct:Limiter"}}}
	inPath := &Document{FilePath: "internal/limiter/x.go"}
	inRepoName := &Document{Metadata: Metadata{RepositoryName: "rate-limiter"}}
	inContent := &Document{Content: "a token bucket limiter"}

	scores := []float64{
		keywordScore(inFileName, terms),
		keywordScore(inSymbols, terms),
		keywordScore(inPath, terms),
		keywordScore(inRepoName, terms),
		keywordScore(inContent, terms),
	}
	for i := 1; i < len(scores); i++ {
		assert.Greater(t, scores[i-1], scores[i],
			"field weight order fileName > codeSymbols > filePath > repositoryName > content")
	}
	assert.Zero(t, keywordScore(&Document{Content: "unrelated"}, terms))
}

func TestKeywordScoreNormalized(t *testing.T) {
	doc := &Document{
		FileName: "limiter.go",
		FilePath: "internal/limiter/limiter.go",
		Content:  "token bucket limiter with burst",
		Metadata: Metadata{RepositoryName: "limiter", CodeSymbols: []string{"struct:limiter"}},
	}
	score := keywordScore(doc, queryTerms("limiter"))
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0, "score hitting every field is still bounded")
}

func TestCombineScores(t *testing.T) {
	assert.Equal(t, 0.8, combineScores(Semantic, 0.8, 0.2))
	assert.Equal(t, 0.2, combineScores(Keyword, 0.8, 0.2))
	hybrid := combineScores(Hybrid, 0.8, 0.2)
	assert.Greater(t, hybrid, 0.2)
	assert.Less(t, hybrid, 0.8)
}

func TestHighlights(t *testing.T) {
	doc := &Document{
		Content: "File: limiter.go (Language: go)\nPath: internal/limiter.go\n\nfunc NewLimiter() *Limiter { return &Limiter{} }",
	}
	snippets := highlights(doc, queryTerms("newlimiter"))
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0], "NewLimiter")

	assert.Nil(t, highlights(doc, nil))
	assert.Empty(t, highlights(doc, queryTerms("absent")))
}

func TestRankCandidatesOrderingAndPaging(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-90 * 24 * time.Hour)

	docs := []*Document{
		{ID: "a", FileName: "limiter.go", Language: "go", FileExtension: ".go", LastModified: old},
		{ID: "b", Content: "limiter in content only", Language: "go", FileExtension: ".go", LastModified: old},
		{ID: "c", Content: "unrelated", Language: "python", FileExtension: ".py", LastModified: old},
	}
	cands := make([]candidate, len(docs))
	for i, d := range docs {
		cands[i] = candidate{doc: d}
	}

	query := Query{Text: "limiter", Type: Keyword, Top: 10}
	require.NoError(t, query.Validate())
	res := rankCandidates(cands, query, now)

	require.Equal(t, 3, res.TotalCount)
	assert.Equal(t, "a", res.Results[0].DocumentID, "file name match outranks content match")
	assert.Equal(t, "b", res.Results[1].DocumentID)

	// Facets count the whole filtered set.
	assert.Equal(t, 2, res.Facets["language"]["go"])
	assert.Equal(t, 1, res.Facets["language"]["python"])
	assert.Equal(t, 2, res.Facets["fileExtension"][".go"])

	// Paging slices after scoring.
	paged := rankCandidates(cands, Query{Text: "limiter", Type: Keyword, Top: 1, Skip: 1}, now)
	require.Len(t, paged.Results, 1)
	assert.Equal(t, 3, paged.TotalCount)
	assert.Equal(t, "b", paged.Results[0].DocumentID)

	// Skip beyond the set yields an empty page, not an error.
	empty := rankCandidates(cands, Query{Text: "limiter", Type: Keyword, Top: 10, Skip: 50}, now)
	assert.Empty(t, empty.Results)
	assert.Equal(t, 3, empty.TotalCount)
}

func TestRankCandidatesFreshnessTieBreak(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	fresh := &Document{ID: "fresh", Content: "limiter", LastModified: now.Add(-24 * time.Hour)}
	stale := &Document{ID: "stale", Content: "limiter", LastModified: now.Add(-60 * 24 * time.Hour)}

	res := rankCandidates(
		[]candidate{{doc: stale}, {doc: fresh}},
		Query{Text: "limiter", Type: Keyword, Top: 10},
		now,
	)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "fresh", res.Results[0].DocumentID,
		"recently modified document wins on identical relevance")
}

func TestRankCandidatesAppliesFilters(t *testing.T) {
	now := time.Now()
	cands := []candidate{
		{doc: &Document{ID: "go", Content: "limiter", Language: "go"}},
		{doc: &Document{ID: "py", Content: "limiter", Language: "python"}},
	}
	res := rankCandidates(cands, Query{
		Text:    "limiter",
		Type:    Keyword,
		Top:     10,
		Filters: []Filter{{Field: "language", Operator: OpEq, Value: "go"}},
	}, now)
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, "go", res.Results[0].DocumentID)
}
