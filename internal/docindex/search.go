package docindex

import (
	"sort"
	"time"
)

// candidate pairs a document with its backend-reported vector similarity.
// Keyword-only queries carry a zero similarity.
type candidate struct {
	doc        *Document
	similarity float64
}

// rankCandidates applies the shared ranking pipeline over a filtered
// candidate set: score, sort, facet, page. Both backends funnel their raw
// matches through here so filter, scoring, facet, and paging semantics are
// identical regardless of where the vectors live.
func rankCandidates(cands []candidate, query Query, now time.Time) *Results {
	terms := queryTerms(query.Text)

	scored := make([]Result, 0, len(cands))
	for _, c := range cands {
		if !matchesAll(c.doc, query.Filters) {
			continue
		}
		kw := keywordScore(c.doc, terms)
		score := combineScores(query.Type, c.similarity, kw)
		score *= freshnessBoost(c.doc.LastModified, now)
		scored = append(scored, Result{
			DocumentID: c.doc.ID,
			Score:      score,
			Document:   c.doc,
			Highlights: highlights(c.doc, terms),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DocumentID < scored[j].DocumentID
	})

	facets := computeFacets(scored)

	total := len(scored)
	start := query.Skip
	if start > total {
		start = total
	}
	end := start + query.Top
	if end > total {
		end = total
	}

	return &Results{
		TotalCount: total,
		Results:    scored[start:end],
		Facets:     facets,
	}
}

// computeFacets counts facet values across the whole filtered result set,
// not just the returned page.
func computeFacets(results []Result) map[string]map[string]int {
	facets := make(map[string]map[string]int, len(FacetFields))
	for _, field := range FacetFields {
		facets[field] = make(map[string]int)
	}
	for _, r := range results {
		for _, field := range FacetFields {
			if v := r.Document.fieldValue(field); v != "" {
				facets[field][v]++
			}
		}
	}
	return facets
}
