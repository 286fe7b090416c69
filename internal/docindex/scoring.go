package docindex

import (
	"strings"
	"time"
)

// fieldWeights is the scoring profile for keyword matches. File names beat
// symbols beat paths beat repository names beat raw content.
var fieldWeights = []struct {
	field  string
	weight float64
}{
	{"fileName", 2.0},
	{"codeSymbols", 1.8},
	{"filePath", 1.5},
	{"repositoryName", 1.2},
	{"content", 1.0},
}

const (
	// freshnessWindow is the horizon beyond which documents receive no
	// recency boost. The boost decays linearly to zero across the window.
	freshnessWindow = 30 * 24 * time.Hour

	// freshnessWeight caps the recency multiplier at 1+freshnessWeight for
	// a document modified right now.
	freshnessWeight = 0.25

	// hybridVectorWeight balances vector similarity against keyword score
	// in hybrid mode.
	hybridVectorWeight = 0.6

	highlightContext = 60
	maxHighlights    = 3
)

// queryTerms lowercases and splits the query text for keyword matching.
func queryTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// keywordScore computes the weighted field-match score for a document,
// normalized to [0,1] by the number of terms and the total field weight.
func keywordScore(doc *Document, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	var total, max float64
	symbols := strings.ToLower(strings.Join(doc.Metadata.CodeSymbols, " "))
	for _, fw := range fieldWeights {
		max += fw.weight
		var text string
		if fw.field == "codeSymbols" {
			text = symbols
		} else {
			text = strings.ToLower(doc.fieldValue(fw.field))
		}
		if text == "" {
			continue
		}
		for _, term := range terms {
			if strings.Contains(text, term) {
				total += fw.weight
			}
		}
	}
	return total / (max * float64(len(terms)))
}

// freshnessBoost returns a multiplier in [1, 1+freshnessWeight] that decays
// linearly with document age over the freshness window.
func freshnessBoost(lastModified time.Time, now time.Time) float64 {
	if lastModified.IsZero() {
		return 1
	}
	age := now.Sub(lastModified)
	if age < 0 {
		age = 0
	}
	if age >= freshnessWindow {
		return 1
	}
	remaining := 1 - float64(age)/float64(freshnessWindow)
	return 1 + freshnessWeight*remaining
}

// combineScores merges vector similarity and keyword score per search type.
func combineScores(searchType SearchType, vector, keyword float64) float64 {
	switch searchType {
	case Semantic:
		return vector
	case Keyword:
		return keyword
	default:
		return hybridVectorWeight*vector + (1-hybridVectorWeight)*keyword
	}
}

// highlights extracts short content snippets around term matches.
func highlights(doc *Document, terms []string) []string {
	if len(terms) == 0 || doc.Content == "" {
		return nil
	}
	lower := strings.ToLower(doc.Content)
	var snippets []string
	seen := make(map[int]bool)
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		start := idx - highlightContext
		if start < 0 {
			start = 0
		}
		end := idx + len(term) + highlightContext
		if end > len(doc.Content) {
			end = len(doc.Content)
		}
		// Round to rune boundaries so snippets stay valid UTF-8.
		for start > 0 && doc.Content[start]&0xC0 == 0x80 {
			start--
		}
		for end < len(doc.Content) && doc.Content[end]&0xC0 == 0x80 {
			end++
		}
		if seen[start] {
			continue
		}
		seen[start] = true
		snippet := strings.TrimSpace(strings.ReplaceAll(doc.Content[start:end], "\n", " "))
		if snippet != "" {
			snippets = append(snippets, snippet)
		}
		if len(snippets) >= maxHighlights {
			break
		}
	}
	return snippets
}
