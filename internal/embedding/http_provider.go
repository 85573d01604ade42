package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPProvider calls a remote embedding model server over HTTP, in the
// same request/response shape as the teacher's Ollama embedder
// (POST {endpoint}/api/embed with a model + input body).
type HTTPProvider struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	modelName string
	dims      int
}

type httpEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type httpEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewHTTPProvider builds a provider targeting endpoint with the given
// model name and dimension. apiKeyEnv, if non-empty, names an
// environment variable holding a bearer token.
func NewHTTPProvider(endpoint, modelName string, dims int, apiKeyEnv string, timeout time.Duration) *HTTPProvider {
	var apiKey string
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	return &HTTPProvider{
		client:    &http.Client{Timeout: timeout},
		endpoint:  endpoint,
		apiKey:    apiKey,
		modelName: modelName,
		dims:      dims,
	}
}

// EmbedBatch sends every text in one request and normalizes each
// returned vector to unit length.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(httpEmbedRequest{Model: p.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed request returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed httpEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed response returned %d vectors for %d inputs", len(parsed.Embeddings), len(texts))
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, raw := range parsed.Embeddings {
		if p.dims > 0 && len(raw) != p.dims {
			return nil, ErrDimensionMismatch{Expected: p.dims, Got: len(raw)}
		}
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		out[i] = normalizeVector(vec)
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (p *HTTPProvider) Dimensions() int { return p.dims }

// ModelName returns the configured model identifier.
func (p *HTTPProvider) ModelName() string { return p.modelName }

// Close releases the provider's HTTP connection pool.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
