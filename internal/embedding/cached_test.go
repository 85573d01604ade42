package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
)

// recordingProvider records exactly the texts it was asked to embed,
// so tests can assert on what actually crossed the provider boundary
// rather than what was merely used to key the cache.
type recordingProvider struct {
	calls [][]string
	dims  int
}

func (p *recordingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls = append(p.calls, append([]string(nil), texts...))
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, p.dims)
	}
	return vecs, nil
}

func (p *recordingProvider) Dimensions() int   { return p.dims }
func (p *recordingProvider) ModelName() string { return "test-model" }
func (p *recordingProvider) Close() error      { return nil }

func TestEmbedBatch_SendsCanonicalizedTextToProvider(t *testing.T) {
	// Given: a client with an upper-case, padded query
	provider := &recordingProvider{dims: 4}
	client, err := NewCachedClient(provider, 16)
	require.NoError(t, err)

	// When: embedding it
	_, err = client.EmbedBatch(context.Background(), []string{"  Running Shoes  "})
	require.NoError(t, err)

	// Then: the provider sees the canonicalized form, not the raw text
	require.Len(t, provider.calls, 1)
	assert.Equal(t, []string{canonicalize("  Running Shoes  ")}, provider.calls[0])
	assert.NotEqual(t, "  Running Shoes  ", provider.calls[0][0])
}

func TestEmbedBatch_CacheHitAndMissShareCanonicalForm(t *testing.T) {
	// Given: a client that has already embedded a canonical form
	provider := &recordingProvider{dims: 4}
	client, err := NewCachedClient(provider, 16)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "running shoes")
	require.NoError(t, err)
	require.Len(t, provider.calls, 1)

	// When: embedding a differently-cased, differently-spaced variant
	_, err = client.Embed(context.Background(), "  RUNNING   shoes ")
	require.NoError(t, err)

	// Then: it hits the cache instead of calling the provider again
	assert.Len(t, provider.calls, 1, "canonicalized variant should be a cache hit")
}

func TestEmbedBatch_RejectsWhitespaceOnlyText(t *testing.T) {
	// Given: a client
	provider := &recordingProvider{dims: 4}
	client, err := NewCachedClient(provider, 16)
	require.NoError(t, err)

	// When: embedding text that canonicalizes to empty
	_, err = client.Embed(context.Background(), "   \t  ")

	// Then: it fails with InvalidInput before ever reaching the provider
	require.Error(t, err)
	assert.Equal(t, searcherrors.KindInvalidInput, searcherrors.GetKind(err))
	assert.Empty(t, provider.calls, "empty text must never reach the provider")
}
