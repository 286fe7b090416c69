package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// openaiTransport calls an OpenAI-compatible embeddings API via langchaingo.
// This covers both api.openai.com and TEI's OpenAI-compatible /v1 surface.
type openaiTransport struct {
	embedder *lcembeddings.EmbedderImpl
}

func newOpenAITransport(cfg Config) (*openaiTransport, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for key-less local servers.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &openaiTransport{embedder: embedder}, nil
}

func (t *openaiTransport) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return t.embedder.EmbedDocuments(ctx, texts)
}
