package embeddings

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "429", err: &HTTPError{StatusCode: 429}, want: true},
		{name: "408", err: &HTTPError{StatusCode: 408}, want: true},
		{name: "500", err: &HTTPError{StatusCode: 500}, want: true},
		{name: "503", err: &HTTPError{StatusCode: 503}, want: true},
		{name: "400", err: &HTTPError{StatusCode: 400}, want: false},
		{name: "404", err: &HTTPError{StatusCode: 404}, want: false},
		{name: "timeout", err: context.DeadlineExceeded, want: true},
		{name: "cancellation", err: context.Canceled, want: false},
		{name: "net error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "conn reset", err: syscall.ECONNRESET, want: true},
		{name: "plain error", err: errors.New("nope"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryWithBackoffBound(t *testing.T) {
	// Fails the first k calls with a retryable error, succeeds on k+1.
	k := 2
	calls := 0
	result, err := retryWithBackoff(context.Background(), 4, time.Millisecond, func() (int, error) {
		calls++
		if calls <= k {
			return 0, &HTTPError{StatusCode: 429}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, k+1, calls)
}

func TestRetryWithBackoffExhaustion(t *testing.T) {
	lastErr := &HTTPError{StatusCode: 503, Body: "down"}
	calls := 0
	_, err := retryWithBackoff(context.Background(), 3, time.Millisecond, func() (int, error) {
		calls++
		return 0, lastErr
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 503, httpErr.StatusCode)
}

func TestRetryWithBackoffPermanentError(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), 5, time.Millisecond, func() (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPreprocessText(t *testing.T) {
	assert.Equal(t, "a b c", preprocessText("  a\n\nb\t c ", 100))

	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	got := preprocessText(long, 52)
	assert.LessOrEqual(t, len(got), 52)
	assert.NotEqual(t, " ", got[len(got)-1:], "cut lands on a word boundary")
}

func TestPreprocessTextHardCutKeepsValidUTF8(t *testing.T) {
	// No spaces, so only the hard cut applies. Each rune is 3 bytes and 10
	// is not a multiple of 3, so a byte-index cut would split a rune.
	text := strings.Repeat("世", 20)
	got := preprocessText(text, 10)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 10)
	assert.NotEmpty(t, got)
}

func TestChunkTexts(t *testing.T) {
	chunks := chunkTexts([]string{"a", "b", "c", "d", "e"}, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"e"}, chunks[2])
}
