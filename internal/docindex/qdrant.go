package docindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// HNSW graph parameters for the collection. Tuned for recall over build
// speed on code corpora.
const (
	hnswM              = 4
	hnswEfConstruction = 400
	hnswEfSearch       = 500
)

// candidatePoolFloor is the minimum number of vector candidates fetched per
// query so facet counts and post-filtering stay meaningful on small pages.
const candidatePoolFloor = 100

// deleteVerifyAttempts bounds the delete-then-recount loop for repository
// removal.
const deleteVerifyAttempts = 5

// documentPayloadKey holds the full document JSON inside a point payload.
const documentPayloadKey = "document"

// QdrantConfig configures the Qdrant-backed index.
type QdrantConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	UseTLS         bool          `koanf:"use_tls"`
	APIKey         string        `koanf:"api_key"`
	CollectionName string        `koanf:"collection_name"`
	Dimension      int           `koanf:"dimension"`
	BatchSize      int           `koanf:"batch_size"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxMessageSize int           `koanf:"max_message_size"`
}

// ApplyDefaults sets defaults for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionName == "" {
		c.CollectionName = "reposearch_documents"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

// QdrantIndex is the Qdrant-backed document index. Vector search runs
// server-side; keyword scoring, facets, and paging run through the shared
// ranking pipeline so both backends behave identically.
type QdrantIndex struct {
	client   *qdrant.Client
	config   *QdrantConfig
	embedder Embedder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewQdrantIndex connects to Qdrant and verifies reachability.
func NewQdrantIndex(config *QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantIndex, error) {
	if config == nil {
		config = &QdrantConfig{}
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

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client:   client,
		config:   config,
		embedder: embedder,
		tracer:   otel.Tracer("reposearch.docindex.qdrant"),
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		logger.Error("qdrant health check failed",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
	)
	return idx, nil
}

// pointID derives the deterministic Qdrant point UUID for a document ID so
// re-indexing the same document always upserts the same point.
func pointID(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID)).String()
}

// CreateIndex creates the collection with the HNSW profile. Idempotent.
func (q *QdrantIndex) CreateIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, q.config.CollectionName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(hnswM)),
			EfConstruct: qdrant.PtrOf(uint64(hnswEfConstruction)),
		},
	})
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create collection: %w", err)
	}
	q.logger.Info("collection created",
		zap.String("collection", q.config.CollectionName),
		zap.Int("dimension", q.config.Dimension),
	)
	return nil
}

// DeleteIndex drops the collection and all documents.
func (q *QdrantIndex) DeleteIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	if err := q.client.DeleteCollection(ctx, q.config.CollectionName); err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// IndexDocument upserts one document.
func (q *QdrantIndex) IndexDocument(ctx context.Context, doc *Document) error {
	return q.IndexDocuments(ctx, []*Document{doc})
}

// IndexDocuments upserts documents in batches. Every document is validated
// before any network call so a bad document fails the batch up front.
func (q *QdrantIndex) IndexDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, span := q.tracer.Start(ctx, "QdrantIndex.IndexDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	for _, doc := range docs {
		if err := doc.Validate(q.config.Dimension); err != nil {
			span.RecordError(err)
			return err
		}
	}

	for start := 0; start < len(docs); start += q.config.BatchSize {
		end := start + q.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := q.upsertBatch(ctx, docs[start:end]); err != nil {
			err = fmt.Errorf("%w: batch at offset %d: %v", ErrBulkIndexFailed, start, err)
			span.RecordError(err)
			return err
		}
	}
	return nil
}

func (q *QdrantIndex) upsertBatch(ctx context.Context, docs []*Document) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		point, err := q.toPoint(doc)
		if err != nil {
			return err
		}
		points = append(points, point)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.config.CollectionName,
		Points:         points,
	})
	if err != nil {
		return err
	}
	q.logger.Debug("documents upserted", zap.Int("count", len(docs)))
	return nil
}

func (q *QdrantIndex) toPoint(doc *Document) (*qdrant.PointStruct, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal document %s: %v", ErrInvalidDocument, doc.ID, err)
	}
	payload := map[string]*qdrant.Value{
		documentPayloadKey: stringValue(string(body)),
		"repositoryId":     stringValue(doc.RepositoryID),
		"language":         stringValue(doc.Language),
		"fileExtension":    stringValue(doc.FileExtension),
		"repositoryName":   stringValue(doc.Metadata.RepositoryName),
		"branchName":       stringValue(doc.BranchName),
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(doc.ID)),
		Vectors: qdrant.NewVectors(doc.ContentVector...),
		Payload: payload,
	}, nil
}

// DeleteDocument removes one document by ID.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.config.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewIDUUID(pointID(documentID))},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// DeleteRepositoryDocuments removes every document under a repository and
// verifies by recount, repeating the delete until the count reaches zero.
func (q *QdrantIndex) DeleteRepositoryDocuments(ctx context.Context, repositoryID string) error {
	ctx, span := q.tracer.Start(ctx, "QdrantIndex.DeleteRepositoryDocuments")
	defer span.End()
	span.SetAttributes(attribute.String("repository_id", repositoryID))

	filter := repoQdrantFilter(repositoryID)

	for attempt := 0; attempt < deleteVerifyAttempts; attempt++ {
		if err := q.deleteByFilter(ctx, filter); err != nil {
			return err
		}
		remaining, err := q.countByFilter(ctx, filter)
		if err != nil {
			return err
		}
		if remaining == 0 {
			q.logger.Info("repository documents removed",
				zap.String("repository_id", repositoryID),
				zap.Int("delete_passes", attempt+1),
			)
			return nil
		}
		q.logger.Warn("documents remain after delete pass, retrying",
			zap.String("repository_id", repositoryID),
			zap.Uint64("remaining", remaining),
		)
	}
	return fmt.Errorf("documents remain for repository %s after %d delete passes",
		repositoryID, deleteVerifyAttempts)
}

func (q *QdrantIndex) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.config.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

func (q *QdrantIndex) countByFilter(ctx context.Context, filter *qdrant.Filter) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.config.CollectionName,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}

// Search executes a query. Vector candidates come from Qdrant; keyword-only
// queries scroll the (filtered) collection instead.
func (q *QdrantIndex) Search(ctx context.Context, query Query) (*Results, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	ctx, span := q.tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search_type", string(query.Type)),
		attribute.Int("top", query.Top),
	)

	cands, err := q.fetchCandidates(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	results := rankCandidates(cands, query, time.Now())
	span.SetAttributes(attribute.Int("results_count", len(results.Results)))
	return results, nil
}

// SearchRepository scopes Search to one repository.
func (q *QdrantIndex) SearchRepository(ctx context.Context, repositoryID string, query Query) (*Results, error) {
	query.Filters = append(query.Filters, repositoryFilter(repositoryID))
	return q.Search(ctx, query)
}

func (q *QdrantIndex) fetchCandidates(ctx context.Context, query Query) ([]candidate, error) {
	filter := qdrantFilterFromQuery(query)

	if query.Type == Keyword {
		return q.scrollCandidates(ctx, filter)
	}

	vector, err := q.embedder.GenerateEmbedding(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	limit := uint64((query.Skip + query.Top) * 3)
	if limit < candidatePoolFloor {
		limit = candidatePoolFloor
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.config.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(uint64(hnswEfSearch)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	cands := make([]candidate, 0, len(points))
	for _, p := range points {
		doc, err := documentFromPayload(p.Payload)
		if err != nil {
			q.logger.Warn("skipping undecodable point", zap.Error(err))
			continue
		}
		cands = append(cands, candidate{doc: doc, similarity: clampSimilarity(float64(p.Score))})
	}
	return cands, nil
}

// scrollCandidates page-walks the collection for keyword-only queries.
func (q *QdrantIndex) scrollCandidates(ctx context.Context, filter *qdrant.Filter) ([]candidate, error) {
	var cands []candidate
	var offset *qdrant.PointId
	for {
		scrollCtx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
		points, err := q.client.Scroll(scrollCtx, &qdrant.ScrollPoints{
			CollectionName: q.config.CollectionName,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("scroll failed: %w", err)
		}
		if len(points) == 0 {
			return cands, nil
		}
		for _, p := range points {
			doc, err := documentFromPayload(p.Payload)
			if err != nil {
				q.logger.Warn("skipping undecodable point", zap.Error(err))
				continue
			}
			cands = append(cands, candidate{doc: doc})
		}
		offset = points[len(points)-1].Id
		if len(points) < 256 {
			return cands, nil
		}
	}
}

// GetDocument fetches one document by ID.
func (q *QdrantIndex) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.config.CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointID(documentID))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	if len(points) == 0 {
		return nil, ErrDocumentNotFound
	}
	return documentFromPayload(points[0].Payload)
}

// GetIndexStatus derives a best-effort repository status from point counts.
func (q *QdrantIndex) GetIndexStatus(ctx context.Context, repositoryID string) (*RepositoryStatus, error) {
	filter := repoQdrantFilter(repositoryID)
	count, err := q.countByFilter(ctx, filter)
	if err != nil {
		return nil, err
	}

	repoStatus := &RepositoryStatus{
		RepositoryID:  repositoryID,
		DocumentCount: int(count),
	}
	if count == 0 {
		return repoStatus, nil
	}

	cands, err := q.scrollCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, c := range cands {
		if c.doc.LastModified.After(repoStatus.LastIndexed) {
			repoStatus.LastIndexed = c.doc.LastModified
		}
	}
	return repoStatus, nil
}

// Close releases the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// qdrantFilterFromQuery pushes equality filters on payload-indexed fields
// down to Qdrant. All filters are re-evaluated client-side either way; the
// push-down only narrows the candidate pool.
func qdrantFilterFromQuery(query Query) *qdrant.Filter {
	indexed := map[string]bool{
		"repositoryId":   true,
		"language":       true,
		"fileExtension":  true,
		"repositoryName": true,
		"branchName":     true,
	}
	var must []*qdrant.Condition
	for _, f := range query.Filters {
		if f.Operator != OpEq || !indexed[f.Field] {
			continue
		}
		must = append(must, keywordCondition(f.Field, f.Value))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func repoQdrantFilter(repositoryID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{keywordCondition("repositoryId", repositoryID)},
	}
}

func keywordCondition(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: field,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func documentFromPayload(payload map[string]*qdrant.Value) (*Document, error) {
	raw := payload[documentPayloadKey]
	if raw == nil {
		return nil, fmt.Errorf("%w: point payload missing document", ErrInvalidDocument)
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw.GetStringValue()), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

var _ Index = (*QdrantIndex)(nil)

// clampSimilarity maps a cosine score into [0,1].
func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
