package docindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	CollectionName string `koanf:"collection_name"`
	Dimension      int    `koanf:"dimension"`
	BatchSize      int    `koanf:"batch_size"`
}

// ApplyDefaults sets defaults for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.CollectionName == "" {
		c.CollectionName = "reposearch_documents"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

// ChromemIndex is an embedded, in-process document index backed by
// chromem-go. It serves local development and tests without an external
// vector database.
//
// chromem-go stores only content, embedding, and string metadata, so the
// index keeps the full documents in an in-memory mirror keyed by ID. The
// mirror is authoritative for document lookups, keyword-only search, and
// counts; chromem provides the vector similarity ordering. Data lives for
// the process lifetime only.
type ChromemIndex struct {
	db       *chromem.DB
	config   *ChromemConfig
	embedder Embedder
	logger   *zap.Logger

	mu   sync.RWMutex
	docs map[string]*Document
}

// NewChromemIndex creates an in-memory chromem-backed index.
func NewChromemIndex(config *ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	if config == nil {
		config = &ChromemConfig{}
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	idx := &ChromemIndex{
		db:       chromem.NewDB(),
		config:   config,
		embedder: embedder,
		logger:   logger,
		docs:     make(map[string]*Document),
	}
	logger.Info("chromem index initialized",
		zap.String("collection", config.CollectionName),
		zap.Int("dimension", config.Dimension),
	)
	return idx, nil
}

// embeddingFunc adapts the embedder for chromem. Documents carry their own
// vectors, so this only runs for text queries chromem embeds itself.
func (c *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.embedder.GenerateEmbedding(ctx, text)
	}
}

func (c *ChromemIndex) collection() (*chromem.Collection, error) {
	col, err := c.db.GetOrCreateCollection(c.config.CollectionName, nil, c.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", c.config.CollectionName, err)
	}
	return col, nil
}

// CreateIndex materializes the collection. Idempotent.
func (c *ChromemIndex) CreateIndex(ctx context.Context) error {
	_, err := c.collection()
	return err
}

// DeleteIndex drops the collection and the document mirror.
func (c *ChromemIndex) DeleteIndex(ctx context.Context) error {
	if err := c.db.DeleteCollection(c.config.CollectionName); err != nil {
		return fmt.Errorf("deleting collection %s: %w", c.config.CollectionName, err)
	}
	c.mu.Lock()
	c.docs = make(map[string]*Document)
	c.mu.Unlock()
	return nil
}

// IndexDocument upserts one document.
func (c *ChromemIndex) IndexDocument(ctx context.Context, doc *Document) error {
	return c.IndexDocuments(ctx, []*Document{doc})
}

// IndexDocuments upserts documents in batches. Upsert is by document ID:
// chromem replaces documents with the same ID in place.
func (c *ChromemIndex) IndexDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if err := doc.Validate(c.config.Dimension); err != nil {
			return err
		}
	}

	col, err := c.collection()
	if err != nil {
		return err
	}

	for start := 0; start < len(docs); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		chromemDocs := make([]chromem.Document, len(batch))
		for i, doc := range batch {
			chromemDocs[i] = chromem.Document{
				ID:        doc.ID,
				Content:   doc.Content,
				Embedding: doc.ContentVector,
				Metadata: map[string]string{
					"repositoryId": doc.RepositoryID,
				},
			}
		}
		// Concurrency 1: embeddings are precomputed.
		if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
			return fmt.Errorf("%w: batch at offset %d: %v", ErrBulkIndexFailed, start, err)
		}

		c.mu.Lock()
		for _, doc := range batch {
			c.docs[doc.ID] = doc
		}
		c.mu.Unlock()
	}

	c.logger.Debug("documents upserted", zap.Int("count", len(docs)))
	return nil
}

// DeleteDocument removes one document by ID.
func (c *ChromemIndex) DeleteDocument(ctx context.Context, documentID string) error {
	col, err := c.collection()
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	c.mu.Lock()
	delete(c.docs, documentID)
	c.mu.Unlock()
	return nil
}

// DeleteRepositoryDocuments removes every document under a repository,
// re-listing from the mirror until none remain.
func (c *ChromemIndex) DeleteRepositoryDocuments(ctx context.Context, repositoryID string) error {
	for attempt := 0; attempt < deleteVerifyAttempts; attempt++ {
		ids := c.repositoryDocumentIDs(repositoryID)
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if err := c.DeleteDocument(ctx, id); err != nil {
				return err
			}
		}
	}
	if n := len(c.repositoryDocumentIDs(repositoryID)); n > 0 {
		return fmt.Errorf("documents remain for repository %s after %d delete passes",
			repositoryID, deleteVerifyAttempts)
	}
	return nil
}

func (c *ChromemIndex) repositoryDocumentIDs(repositoryID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, doc := range c.docs {
		if doc.RepositoryID == repositoryID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Search executes a query. Vector candidates come from chromem; keyword-only
// queries scan the mirror.
func (c *ChromemIndex) Search(ctx context.Context, query Query) (*Results, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	cands, err := c.fetchCandidates(ctx, query)
	if err != nil {
		return nil, err
	}
	return rankCandidates(cands, query, time.Now()), nil
}

// SearchRepository scopes Search to one repository.
func (c *ChromemIndex) SearchRepository(ctx context.Context, repositoryID string, query Query) (*Results, error) {
	query.Filters = append(query.Filters, repositoryFilter(repositoryID))
	return c.Search(ctx, query)
}

func (c *ChromemIndex) fetchCandidates(ctx context.Context, query Query) ([]candidate, error) {
	if query.Type == Keyword {
		return c.allCandidates(), nil
	}

	col, err := c.collection()
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the document count.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	n := (query.Skip + query.Top) * 3
	if n < candidatePoolFloor {
		n = candidatePoolFloor
	}
	if n > count {
		n = count
	}

	vector, err := c.embedder.GenerateEmbedding(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", c.config.CollectionName, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	cands := make([]candidate, 0, len(results))
	for _, r := range results {
		doc, ok := c.docs[r.ID]
		if !ok {
			continue
		}
		cands = append(cands, candidate{doc: doc, similarity: clampSimilarity(float64(r.Similarity))})
	}
	return cands, nil
}

func (c *ChromemIndex) allCandidates() []candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cands := make([]candidate, 0, len(c.docs))
	for _, doc := range c.docs {
		cands = append(cands, candidate{doc: doc})
	}
	return cands
}

// GetDocument fetches one document by ID.
func (c *ChromemIndex) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[documentID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// GetIndexStatus derives a repository status from the document mirror.
func (c *ChromemIndex) GetIndexStatus(ctx context.Context, repositoryID string) (*RepositoryStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	repoStatus := &RepositoryStatus{RepositoryID: repositoryID}
	for _, doc := range c.docs {
		if doc.RepositoryID != repositoryID {
			continue
		}
		repoStatus.DocumentCount++
		if doc.LastModified.After(repoStatus.LastIndexed) {
			repoStatus.LastIndexed = doc.LastModified
		}
	}
	return repoStatus, nil
}

// Close is a no-op; chromem holds no external resources here.
func (c *ChromemIndex) Close() error {
	return nil
}

var _ Index = (*ChromemIndex)(nil)
