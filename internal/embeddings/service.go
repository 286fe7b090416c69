package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// maxRateDelay caps the delay imposed by the rate window on a single call.
const maxRateDelay = 10 * time.Second

// Config holds configuration for the embedding service.
type Config struct {
	// Provider is "tei" or "openai".
	Provider string

	// BaseURL is the embedding API base URL.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey is required for OpenAI, optional for TEI.
	APIKey string

	// Dimension is the fixed embedding dimensionality.
	Dimension int

	// MaxBatchSize caps texts per remote call and concurrent in-flight calls.
	MaxBatchSize int

	// RetryAttempts is the maximum number of attempts per remote call.
	RetryAttempts int

	// RetryBaseDelay is the initial backoff delay.
	RetryBaseDelay time.Duration

	// RequestTimeout bounds a single remote call.
	RequestTimeout time.Duration

	// RateWindow is the counting window for rate-limit protection.
	RateWindow time.Duration

	// EnableRateLimit turns on the rate window.
	EnableRateLimit bool

	// MaxContentChars overrides the per-text character budget.
	MaxContentChars int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "tei"
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 16
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.MaxContentChars <= 0 {
		c.MaxContentChars = maxEmbeddingChars
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension required", ErrInvalidConfig)
	}
	switch c.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

// Service provides embedding generation with rate limiting, retry, and
// batch submission on top of a provider transport.
type Service struct {
	config    Config
	transport transport
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *Metrics
}

// NewService creates an embedding service for the configured provider.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var tp transport
	var err error
	switch config.Provider {
	case "tei":
		tp = newTEITransport(config)
	case "openai":
		tp, err = newOpenAITransport(config)
		if err != nil {
			return nil, fmt.Errorf("creating openai transport: %w", err)
		}
	}

	s := &Service{
		config:    config,
		transport: tp,
		sem:       semaphore.NewWeighted(int64(config.MaxBatchSize)),
		logger:    logger,
		metrics:   NewMetrics(logger),
	}

	if config.EnableRateLimit {
		// Token bucket sized to the batch capacity over the counting window:
		// once the recent-call budget is spent, callers are delayed in
		// proportion to how far ahead of the window they are.
		interval := config.RateWindow / time.Duration(config.MaxBatchSize)
		s.limiter = rate.NewLimiter(rate.Every(interval), config.MaxBatchSize)
	}

	return s, nil
}

// Dimension returns the fixed embedding dimensionality.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

// GenerateEmbedding generates an embedding for a single text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vectors, err := s.embedChunk(ctx, []string{preprocessText(text, s.config.MaxContentChars)}, "embed")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	if err := validateDimension(vectors[0], s.config.Dimension); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings generates embeddings for multiple texts. Whitespace-only
// entries are rejected up front; texts are chunked to the configured batch
// size before dispatch.
func (s *Service) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
		prepared[i] = preprocessText(t, s.config.MaxContentChars)
	}

	results := make([][]float32, 0, len(prepared))
	for _, chunk := range chunkTexts(prepared, s.config.MaxBatchSize) {
		vectors, err := s.embedChunk(ctx, chunk, "batch_embed")
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(chunk) {
			// Best-effort: keep whatever the provider returned.
			s.logger.Warn("embedding batch length mismatch",
				zap.Int("requested", len(chunk)),
				zap.Int("returned", len(vectors)))
		}
		results = append(results, vectors...)
	}

	return results, nil
}

// Validate probes the remote service with a single embedding call.
func (s *Service) Validate(ctx context.Context) error {
	vector, err := s.GenerateEmbedding(ctx, "reposearch embedding probe")
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	return validateDimension(vector, s.config.Dimension)
}

// embedChunk dispatches one chunk through the rate gate, the in-flight
// semaphore, and the retry loop.
func (s *Service) embedChunk(ctx context.Context, chunk []string, operation string) ([][]float32, error) {
	start := time.Now()
	var callErr error
	var attempts int
	defer func() {
		retries := attempts - 1
		if retries < 0 {
			retries = 0
		}
		s.metrics.RecordGeneration(ctx, s.config.Provider, s.config.Model, operation,
			time.Since(start), len(chunk), retries, callErr)
	}()

	if err := s.waitTurn(ctx); err != nil {
		callErr = err
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		callErr = err
		return nil, err
	}
	defer s.sem.Release(1)

	vectors, err := retryWithBackoff(ctx, s.config.RetryAttempts, s.config.RetryBaseDelay, func() ([][]float32, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
		return s.transport.embedBatch(callCtx, chunk)
	})
	if err != nil {
		callErr = err
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// waitTurn delays the caller when the recent-call window is saturated.
func (s *Service) waitTurn(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	reservation := s.limiter.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}
	if delay > maxRateDelay {
		delay = maxRateDelay
	}
	s.logger.Debug("rate limit delay", zap.Duration("delay", delay))
	s.metrics.RecordRateDelay(ctx, s.config.Provider, delay)
	select {
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

var _ Client = (*Service)(nil)
