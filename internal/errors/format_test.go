package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(KindStoreUnavailable, ErrCodeVectorStoreUnavailable, "vector store unreachable", nil)

	result := FormatForUser(err, false)

	assert.Contains(t, result, "vector store unreachable")
	assert.Contains(t, result, "[ERR_401_VECTOR_STORE_UNAVAILABLE]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	err := New(KindUpstreamUnavailable, ErrCodeEmbeddingUnavailable, "embedding provider is not running", nil).
		WithSuggestion("check the provider endpoint and retry")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "check the provider endpoint")
}

func TestFormatForUser_DebugModeIncludesKind(t *testing.T) {
	err := New(KindIntegrityError, ErrCodeInternal, "unexpected error", nil)

	result := FormatForUser(err, true)

	assert.Contains(t, result, "kind=")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	result := FormatForUser(nil, false)

	assert.Empty(t, result)
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(KindStoreUnavailable, ErrCodeVectorStoreUnavailable, "store unreachable", nil).
		WithDetail("store", "primary").
		WithSuggestion("check the store connection")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeVectorStoreUnavailable, result["code"])
	assert.Equal(t, "store unreachable", result["message"])
	assert.Equal(t, string(CategoryStorage), result["category"])
	assert.Equal(t, string(KindStoreUnavailable), result["kind"])
	assert.Equal(t, "check the store connection", result["suggestion"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "primary", details["store"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(KindIntegrityError, ErrCodeInternal, "operation failed", cause)

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForCLI_IntegrityError(t *testing.T) {
	err := New(KindIntegrityError, ErrCodeDimensionMismatch, "embedding dimension mismatch", nil).
		WithSuggestion("verify the embedding provider's configured dimension")

	result := FormatForCLI(err)

	assert.Contains(t, result, "embedding dimension mismatch")
	assert.Contains(t, result, "ERR_501_DIMENSION_MISMATCH")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := New(KindStoreUnavailable, ErrCodeVectorStoreUnavailable, "store unreachable", nil)

	result := FormatForCLI(err)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "Should be concise")
}
