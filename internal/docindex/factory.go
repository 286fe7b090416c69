package docindex

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/config"
)

// NewIndex creates a document index from configuration.
//
// The backend is selected by cfg.Index.Backend:
//   - "chromem" (default): embedded in-process index, no external service
//   - "qdrant": external Qdrant server over gRPC
func NewIndex(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Index, error) {
	switch cfg.Index.Backend {
	case "chromem", "":
		return NewChromemIndex(&ChromemConfig{
			CollectionName: cfg.Index.CollectionName,
			Dimension:      cfg.Embedding.Dimension,
			BatchSize:      cfg.Indexing.MaxBatchSize,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantIndex(&QdrantConfig{
			Host:           cfg.Index.Qdrant.Host,
			Port:           cfg.Index.Qdrant.Port,
			UseTLS:         cfg.Index.Qdrant.UseTLS,
			APIKey:         cfg.Index.Qdrant.APIKey,
			CollectionName: cfg.Index.CollectionName,
			Dimension:      cfg.Embedding.Dimension,
			BatchSize:      cfg.Indexing.MaxBatchSize,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported index backend %q (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.Index.Backend)
	}
}
