package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTEIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func teiHandler(dimension int, failures *atomic.Int32, failStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if failures != nil && failures.Load() > 0 {
			failures.Add(-1)
			http.Error(w, "try later", failStatus)
			return
		}
		var req teiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = make([]float32, dimension)
			vectors[i][0] = float32(i + 1)
		}
		_ = json.NewEncoder(w).Encode(vectors)
	}
}

func newTestService(t *testing.T, baseURL string, mutate func(*Config)) *Service {
	t.Helper()
	cfg := Config{
		Provider:       "tei",
		BaseURL:        baseURL,
		Model:          "test-model",
		Dimension:      4,
		MaxBatchSize:   2,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestGenerateEmbedding(t *testing.T) {
	server := newTEIServer(t, teiHandler(4, nil, 0))
	svc := newTestService(t, server.URL, nil)

	vector, err := svc.GenerateEmbedding(context.Background(), "func main() {}")
	require.NoError(t, err)
	assert.Len(t, vector, 4)
}

func TestGenerateEmbeddingEmptyInput(t *testing.T) {
	var calls atomic.Int32
	server := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		teiHandler(4, nil, 0)(w, r)
	})
	svc := newTestService(t, server.URL, nil)

	_, err := svc.GenerateEmbedding(context.Background(), "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, calls.Load(), "remote service must not be called for empty input")
}

func TestGenerateEmbeddingsChunksBatches(t *testing.T) {
	var calls atomic.Int32
	server := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		teiHandler(4, nil, 0)(w, r)
	})
	svc := newTestService(t, server.URL, nil) // MaxBatchSize = 2

	vectors, err := svc.GenerateEmbeddings(context.Background(), []string{"a1", "b2", "c3", "d4", "e5"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, int32(3), calls.Load(), "5 texts at batch size 2 means 3 calls")
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	// Embedding service returns HTTP 429 twice then 200.
	var failures atomic.Int32
	failures.Store(2)
	server := newTEIServer(t, teiHandler(4, &failures, http.StatusTooManyRequests))
	svc := newTestService(t, server.URL, nil)

	vector, err := svc.GenerateEmbedding(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vector, 4)
	assert.Equal(t, int32(0), failures.Load())
}

func TestRetryExhaustionPropagatesLastError(t *testing.T) {
	var failures atomic.Int32
	failures.Store(100)
	server := newTEIServer(t, teiHandler(4, &failures, http.StatusServiceUnavailable))
	svc := newTestService(t, server.URL, nil)

	_, err := svc.GenerateEmbedding(context.Background(), "doomed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestPermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	svc := newTestService(t, server.URL, nil)

	_, err := svc.GenerateEmbedding(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCancellationNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	svc := newTestService(t, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GenerateEmbedding(ctx, "cancelled")
	require.Error(t, err)
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestDimensionMismatchRejected(t *testing.T) {
	server := newTEIServer(t, teiHandler(3, nil, 0))
	svc := newTestService(t, server.URL, nil) // expects 4

	_, err := svc.GenerateEmbedding(context.Background(), "wrong size")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "dimension")
}

func TestValidate(t *testing.T) {
	server := newTEIServer(t, teiHandler(4, nil, 0))
	svc := newTestService(t, server.URL, nil)
	assert.NoError(t, svc.Validate(context.Background()))
}

func TestNewServiceConfigValidation(t *testing.T) {
	_, err := NewService(Config{Provider: "tei", Dimension: 4}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewService(Config{Provider: "carrier-pigeon", BaseURL: "http://x", Dimension: 4}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
