package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	searchErr := New(KindUpstreamUnavailable, ErrCodeEmbeddingUnavailable, "embedding provider down", originalErr)

	require.NotNil(t, searchErr)
	assert.Equal(t, originalErr, errors.Unwrap(searchErr))
	assert.True(t, errors.Is(searchErr, originalErr))
}

func TestSearchError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		code     string
		message  string
		expected string
	}{
		{
			name:     "invalid input",
			kind:     KindInvalidInput,
			code:     ErrCodeQueryEmpty,
			message:  "query must not be empty",
			expected: "[ERR_101_QUERY_EMPTY] query must not be empty",
		},
		{
			name:     "store unavailable",
			kind:     KindStoreUnavailable,
			code:     ErrCodeVectorStoreUnavailable,
			message:  "vector store connection refused",
			expected: "[ERR_401_VECTOR_STORE_UNAVAILABLE] vector store connection refused",
		},
		{
			name:     "upstream unavailable",
			kind:     KindUpstreamUnavailable,
			code:     ErrCodeEmbeddingUnavailable,
			message:  "embedding request failed",
			expected: "[ERR_301_EMBEDDING_UNAVAILABLE] embedding request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.kind, tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestSearchError_Is_MatchesByCode(t *testing.T) {
	err1 := New(KindStoreUnavailable, ErrCodeVectorStoreUnavailable, "store A down", nil)
	err2 := New(KindStoreUnavailable, ErrCodeVectorStoreUnavailable, "store B down", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestSearchError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(KindStoreUnavailable, ErrCodeVectorStoreUnavailable, "store down", nil)
	err2 := New(KindInvalidInput, ErrCodeQueryEmpty, "empty query", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestSearchError_WithDetails_AddsContext(t *testing.T) {
	err := New(KindInvalidInput, ErrCodeQueryTooLong, "query too long", nil)

	err = err.WithDetail("query_len", "4096")
	err = err.WithDetail("max_len", "512")

	assert.Equal(t, "4096", err.Details["query_len"])
	assert.Equal(t, "512", err.Details["max_len"])
}

func TestSearchError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(KindUpstreamUnavailable, ErrCodeEmbeddingUnavailable, "embedding provider unreachable", nil)

	err = err.WithSuggestion("retry after the circuit breaker resets")

	assert.Equal(t, "retry after the circuit breaker resets", err.Suggestion)
}

func TestSearchError_WithRetryAfter_SetsDuration(t *testing.T) {
	err := New(KindThrottled, ErrCodeInboundThrottled, "too many requests", nil)

	err = err.WithRetryAfter(2 * time.Second)

	assert.Equal(t, 2*time.Second, err.RetryAfter)
}

func TestSearchError_CategoryForKind(t *testing.T) {
	tests := []struct {
		kind         Kind
		wantCategory Category
	}{
		{KindInvalidInput, CategoryValidation},
		{KindThrottled, CategoryRateLimit},
		{KindUpstreamUnavailable, CategoryUpstream},
		{KindStoreUnavailable, CategoryStorage},
		{KindQueryTimeout, CategoryStorage},
		{KindNotFound, CategoryStorage},
		{KindIntegrityError, CategoryInternal},
		{KindCancelled, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, ErrCodeInternal, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestSearchError_RetryableForKind(t *testing.T) {
	tests := []struct {
		kind          Kind
		wantRetryable bool
	}{
		{KindThrottled, true},
		{KindUpstreamUnavailable, true},
		{KindStoreUnavailable, true},
		{KindQueryTimeout, true},
		{KindInvalidInput, false},
		{KindIntegrityError, false},
		{KindCancelled, false},
		{KindNotFound, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, ErrCodeInternal, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesSearchErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	searchErr := Wrap(KindIntegrityError, ErrCodeInternal, originalErr)

	require.NotNil(t, searchErr)
	assert.Equal(t, ErrCodeInternal, searchErr.Code)
	assert.Equal(t, "something went wrong", searchErr.Message)
	assert.Equal(t, originalErr, searchErr.Cause)
}

func TestWrap_NilError_ReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindIntegrityError, ErrCodeInternal, nil))
}

func TestInvalidInput_CreatesValidationCategoryError(t *testing.T) {
	err := InvalidInput(ErrCodeQueryEmpty, "query cannot be empty", nil)

	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, KindInvalidInput, err.Kind)
}

func TestThrottled_CreatesRetryableRateLimitError(t *testing.T) {
	err := Throttled(ErrCodeInboundThrottled, "too many requests", 500*time.Millisecond)

	assert.Equal(t, CategoryRateLimit, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, 500*time.Millisecond, err.RetryAfter)
}

func TestUpstreamUnavailable_CreatesRetryableError(t *testing.T) {
	err := UpstreamUnavailable(ErrCodeEmbeddingUnavailable, "connection refused", nil)

	assert.Equal(t, CategoryUpstream, err.Category)
	assert.True(t, err.Retryable)
}

func TestIntegrityError_IsNotRetryable(t *testing.T) {
	err := IntegrityError(ErrCodeDimensionMismatch, "embedding dimension mismatch", nil)

	assert.Equal(t, CategoryInternal, err.Category)
	assert.False(t, err.Retryable)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable SearchError",
			err:      New(KindUpstreamUnavailable, ErrCodeEmbeddingUnavailable, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable SearchError",
			err:      New(KindInvalidInput, ErrCodeQueryEmpty, "empty query", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(KindQueryTimeout, ErrCodeQueryTimeout, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestGetKind_ExtractsKind(t *testing.T) {
	assert.Equal(t, KindThrottled, GetKind(New(KindThrottled, ErrCodeInboundThrottled, "throttled", nil)))
	assert.Equal(t, Kind(""), GetKind(errors.New("standard error")))
}
