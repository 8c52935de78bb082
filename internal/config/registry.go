package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
)

// ErrProviderNotRegistered is returned by CreateEmbedding when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// EmbeddingFactory constructs an embedding provider from its configuration
// entry and the resolved credential.
type EmbeddingFactory func(entry ProviderEntry, token string) (voiceembed.Provider, error)

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	embedding map[string]EmbeddingFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{embedding: make(map[string]EmbeddingFactory)}
}

// RegisterEmbedding registers an embedding provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding[name] = factory
}

// CreateEmbedding instantiates the embedding provider selected by entry.Name
// with the given credential.
func (r *Registry) CreateEmbedding(entry ProviderEntry, token string) (voiceembed.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embedding[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embedding provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, token)
}
