// Package preprocess normalizes raw file content for embedding and storage.
package preprocess

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyContent indicates null or whitespace-only input.
	ErrEmptyContent = errors.New("empty content")

	// ErrBinaryContent indicates content rejected by the binary heuristic.
	ErrBinaryContent = errors.New("binary content")
)

// binaryControlThreshold is the fraction of control characters above which
// content is treated as binary.
const binaryControlThreshold = 0.30

// lineBoundaryLossBudget is the maximum fraction of content we are willing
// to lose by cutting at a line boundary instead of the hard limit.
const lineBoundaryLossBudget = 0.10

// Preprocessor normalizes, truncates, and annotates file content.
type Preprocessor struct {
	maxLength int
}

// New creates a preprocessor with the given content length budget.
func New(maxLength int) *Preprocessor {
	if maxLength <= 0 {
		maxLength = 32000
	}
	return &Preprocessor{maxLength: maxLength}
}

// Process returns the annotated, normalized content ready for embedding and
// storage. The synthetic header gives the embedding model explicit file
// context and must be identical for both uses.
func (p *Preprocessor) Process(content, fileName, filePath, language string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	if IsBinary(content) {
		return "", ErrBinaryContent
	}

	normalized := NormalizeLineEndings(content)
	truncated := p.truncate(normalized)

	header := fmt.Sprintf("File: %s (Language: %s)\nPath: %s\n\n", fileName, language, filePath)
	return header + truncated, nil
}

// NormalizeLineEndings converts CRLF and bare CR to LF.
func NormalizeLineEndings(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// IsBinary reports whether content looks binary: more than 30% control
// characters, excluding CR, LF, and TAB.
func IsBinary(content string) bool {
	if content == "" {
		return false
	}
	control := 0
	total := 0
	for _, r := range content {
		total++
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if r < 0x20 || r == 0x7f {
			control++
		}
	}
	return float64(control)/float64(total) > binaryControlThreshold
}

// truncate cuts content exceeding the budget, preferring the nearest line
// boundary when that loses no more than 10% of the budget.
func (p *Preprocessor) truncate(content string) string {
	if len(content) <= p.maxLength {
		return content
	}

	hard := content[:p.maxLength]
	if cut := strings.LastIndexByte(hard, '\n'); cut > 0 {
		if float64(p.maxLength-cut) <= float64(p.maxLength)*lineBoundaryLossBudget {
			return hard[:cut]
		}
	}
	return hard
}
