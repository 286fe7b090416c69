package docindex

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidDocument indicates a document that violates index invariants.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrDocumentNotFound is returned when a document id does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidQuery indicates a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnsupportedOperator indicates an unknown filter operator.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the search backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to index backend")

	// ErrBulkIndexFailed indicates at least one per-document failure in a
	// bulk operation.
	ErrBulkIndexFailed = errors.New("bulk index failed")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollectionName
	}
	return nil
}

// SearchType selects the query execution mode.
type SearchType string

const (
	// Semantic ranks by vector similarity only.
	Semantic SearchType = "semantic"
	// Keyword ranks by weighted text match only.
	Keyword SearchType = "keyword"
	// Hybrid combines vector similarity and keyword match in one ranked
	// query. This is the default.
	Hybrid SearchType = "hybrid"
)

// Query describes one search request.
type Query struct {
	Text    string     `json:"text"`
	Type    SearchType `json:"type"`
	Filters []Filter   `json:"filters,omitempty"`

	// Top is the page size; Skip the offset.
	Top  int `json:"top"`
	Skip int `json:"skip"`
}

// Validate normalizes and validates the query. Filter validation happens at
// query-build time: an unsupported operator is a hard error.
func (q *Query) Validate() error {
	switch q.Type {
	case "":
		q.Type = Hybrid
	case Semantic, Keyword, Hybrid:
	default:
		return ErrInvalidQuery
	}
	// Vector modes need text to embed; keyword mode may be filter-only.
	if q.Text == "" && (q.Type != Keyword || len(q.Filters) == 0) {
		return ErrInvalidQuery
	}
	if q.Top <= 0 {
		q.Top = 10
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Result is one ranked hit.
type Result struct {
	DocumentID string    `json:"documentId"`
	Score      float64   `json:"score"`
	Document   *Document `json:"document"`
	Highlights []string  `json:"highlights,omitempty"`
}

// Results is a ranked, paged result set with facet counts.
type Results struct {
	TotalCount int                       `json:"totalCount"`
	Results    []Result                  `json:"results"`
	Facets     map[string]map[string]int `json:"facets"`
}

// FacetFields are always requested on every search.
var FacetFields = []string{"language", "fileExtension", "repositoryName", "branchName"}

// RepositoryStatus is a best-effort view of a repository's footprint in the
// index, used when no live orchestration status exists.
type RepositoryStatus struct {
	RepositoryID  string    `json:"repositoryId"`
	DocumentCount int       `json:"documentCount"`
	LastIndexed   time.Time `json:"lastIndexed"`
}

// Index is the port to the document search backend.
type Index interface {
	// CreateIndex creates the collection and its schema. Idempotent.
	CreateIndex(ctx context.Context) error

	// DeleteIndex drops the collection and all documents.
	DeleteIndex(ctx context.Context) error

	// IndexDocument upserts one document keyed by its ID.
	IndexDocument(ctx context.Context, doc *Document) error

	// IndexDocuments upserts documents in chunks of the configured batch
	// size. Success requires zero per-document failures across all chunks.
	IndexDocuments(ctx context.Context, docs []*Document) error

	// DeleteDocument removes one document by ID.
	DeleteDocument(ctx context.Context, documentID string) error

	// DeleteRepositoryDocuments removes every document under a repository,
	// repeating until none remain.
	DeleteRepositoryDocuments(ctx context.Context, repositoryID string) error

	// Search executes a hybrid, semantic, or keyword query.
	Search(ctx context.Context, query Query) (*Results, error)

	// SearchRepository scopes Search to one repository.
	SearchRepository(ctx context.Context, repositoryID string, query Query) (*Results, error)

	// GetDocument fetches one document by ID.
	GetDocument(ctx context.Context, documentID string) (*Document, error)

	// GetIndexStatus derives a best-effort status from document counts.
	GetIndexStatus(ctx context.Context, repositoryID string) (*RepositoryStatus, error)

	// Close releases backend resources.
	Close() error
}

// Embedder turns query text into a vector. Satisfied by the embedding
// service client.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// repositoryFilter returns the filter that scopes a query to one repository.
func repositoryFilter(repositoryID string) Filter {
	return Filter{Field: "repositoryId", Operator: OpEq, Value: repositoryID}
}
