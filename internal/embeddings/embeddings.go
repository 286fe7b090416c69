// Package embeddings provides embedding generation via remote providers.
//
// The Service wraps a provider transport (TEI or OpenAI-compatible) and owns
// rate limiting, retry with exponential backoff, and batch submission. Text
// is preprocessed before dispatch to stay under the model's token ceiling.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyInput indicates empty or whitespace-only input text. It is an
	// explicit "no embedding" result, distinct from a failed remote call.
	ErrEmptyInput = errors.New("empty or whitespace-only input")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Client generates vector embeddings from text.
type Client interface {
	// GenerateEmbedding generates an embedding for a single text.
	// Returns ErrEmptyInput without calling the remote service when text is
	// empty or whitespace-only.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateEmbeddings generates embeddings for multiple texts. Texts are
	// chunked to the configured max batch size before dispatch.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// Validate probes the remote service with a single embedding call.
	Validate(ctx context.Context) error

	// Dimension returns the fixed embedding dimensionality.
	Dimension() int
}

// transport performs one remote batch call. Implementations must not retry.
type transport interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// maxEmbeddingChars is a conservative character budget that keeps inputs
// under typical embedding model token ceilings.
const maxEmbeddingChars = 8000

// preprocessText collapses whitespace and truncates to the character budget,
// cutting at the last whitespace boundary before the limit. The hard-cut
// fallback never splits a multi-byte rune.
func preprocessText(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 {
		maxChars = maxEmbeddingChars
	}
	if len(text) <= maxChars {
		return text
	}
	cut := strings.LastIndex(text[:maxChars], " ")
	if cut <= 0 {
		cut = maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
	}
	return text[:cut]
}

// chunkTexts splits texts into chunks of at most size elements.
func chunkTexts(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var chunks [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		chunks = append(chunks, texts[start:end])
	}
	return chunks
}

// validateDimension checks a returned vector against the expected dimension.
func validateDimension(vector []float32, want int) error {
	if want > 0 && len(vector) != want {
		return fmt.Errorf("%w: expected dimension %d, got %d", ErrEmbeddingFailed, want, len(vector))
	}
	return nil
}
