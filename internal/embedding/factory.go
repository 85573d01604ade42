package embedding

import (
	"github.com/aman-cerp/shopsearch/internal/config"
)

// NewFromConfig builds the cached, resilient embedding client the
// orchestrator uses, wiring config.EmbeddingConfig's endpoint, model,
// dimension, and LRU capacity into an HTTPProvider.
func NewFromConfig(cfg config.EmbeddingConfig) (*CachedClient, error) {
	provider := NewHTTPProvider(cfg.Endpoint, cfg.ModelName, cfg.Dim, cfg.APIKeyEnv, cfg.ImageTimeout)
	return NewCachedClient(provider, cfg.LRUCapacity)
}
