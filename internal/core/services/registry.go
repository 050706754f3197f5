package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/logger"
)

// Builder functions construct capability implementations from generic
// config. Config is a map of provider-specific settings parsed from the
// TOML config file.
type (
	CompletionBuilder  func(cfg map[string]any) (driven.CompletionService, error)
	EmbeddingBuilder   func(cfg map[string]any) (driven.EmbeddingService, error)
	VectorStoreBuilder func(cfg map[string]any) (driven.VectorStore, error)
	RerankerBuilder    func(cfg map[string]any) (driven.Reranker, error)
	ParserBuilder      func(cfg map[string]any) (driven.DocumentParser, error)
)

// ProviderRegistry maps configured provider names to concrete capability
// implementations. Registration is push-based: each adapter package is
// wired in by a bootstrap registration call, never hardcoded here.
// Resolution is lazy and instances are cached as singletons for the
// registry's lifetime. The registry is constructed once at startup and
// passed by handle; Close tears the cached instances down.
type ProviderRegistry struct {
	mu sync.Mutex

	completionBuilders  map[string]CompletionBuilder
	embeddingBuilders   map[string]EmbeddingBuilder
	vectorStoreBuilders map[string]VectorStoreBuilder
	rerankerBuilders    map[string]RerankerBuilder
	parserBuilders      map[string]ParserBuilder

	completions  map[string]driven.CompletionService
	embeddings   map[string]driven.EmbeddingService
	vectorStores map[string]driven.VectorStore
	rerankers    map[string]driven.Reranker
	parsers      map[string]driven.DocumentParser
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		completionBuilders:  make(map[string]CompletionBuilder),
		embeddingBuilders:   make(map[string]EmbeddingBuilder),
		vectorStoreBuilders: make(map[string]VectorStoreBuilder),
		rerankerBuilders:    make(map[string]RerankerBuilder),
		parserBuilders:      make(map[string]ParserBuilder),
		completions:         make(map[string]driven.CompletionService),
		embeddings:          make(map[string]driven.EmbeddingService),
		vectorStores:        make(map[string]driven.VectorStore),
		rerankers:           make(map[string]driven.Reranker),
		parsers:             make(map[string]driven.DocumentParser),
	}
}

// RegisterCompletion adds a completion provider builder.
func (r *ProviderRegistry) RegisterCompletion(name string, builder CompletionBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completionBuilders[name] = builder
}

// RegisterEmbedding adds an embedding provider builder.
func (r *ProviderRegistry) RegisterEmbedding(name string, builder EmbeddingBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingBuilders[name] = builder
}

// RegisterVectorStore adds a vector store provider builder.
func (r *ProviderRegistry) RegisterVectorStore(name string, builder VectorStoreBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStoreBuilders[name] = builder
}

// RegisterReranker adds a reranker provider builder.
func (r *ProviderRegistry) RegisterReranker(name string, builder RerankerBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rerankerBuilders[name] = builder
}

// RegisterParser adds a document parser provider builder.
func (r *ProviderRegistry) RegisterParser(name string, builder ParserBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parserBuilders[name] = builder
}

// Completion resolves a completion provider by name, constructing and
// caching it on first use. Unknown names are fatal configuration errors.
func (r *ProviderRegistry) Completion(name string, cfg map[string]any) (driven.CompletionService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.completions[name]; ok {
		return svc, nil
	}
	builder, ok := r.completionBuilders[name]
	if !ok {
		return nil, unknownProvider("completion", name, keys(r.completionBuilders))
	}
	svc, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build completion provider %q: %w", name, err)
	}
	r.completions[name] = svc
	logger.Debug("Resolved completion provider: %s", name)
	return svc, nil
}

// Embedding resolves an embedding provider by name.
func (r *ProviderRegistry) Embedding(name string, cfg map[string]any) (driven.EmbeddingService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.embeddings[name]; ok {
		return svc, nil
	}
	builder, ok := r.embeddingBuilders[name]
	if !ok {
		return nil, unknownProvider("embedding", name, keys(r.embeddingBuilders))
	}
	svc, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedding provider %q: %w", name, err)
	}
	r.embeddings[name] = svc
	logger.Debug("Resolved embedding provider: %s", name)
	return svc, nil
}

// VectorStore resolves a vector store provider by name.
func (r *ProviderRegistry) VectorStore(name string, cfg map[string]any) (driven.VectorStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.vectorStores[name]; ok {
		return svc, nil
	}
	builder, ok := r.vectorStoreBuilders[name]
	if !ok {
		return nil, unknownProvider("vectorstore", name, keys(r.vectorStoreBuilders))
	}
	svc, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build vectorstore provider %q: %w", name, err)
	}
	r.vectorStores[name] = svc
	logger.Debug("Resolved vectorstore provider: %s", name)
	return svc, nil
}

// Reranker resolves a reranker provider by name.
func (r *ProviderRegistry) Reranker(name string, cfg map[string]any) (driven.Reranker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.rerankers[name]; ok {
		return svc, nil
	}
	builder, ok := r.rerankerBuilders[name]
	if !ok {
		return nil, unknownProvider("reranker", name, keys(r.rerankerBuilders))
	}
	svc, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build reranker provider %q: %w", name, err)
	}
	r.rerankers[name] = svc
	logger.Debug("Resolved reranker provider: %s", name)
	return svc, nil
}

// Parser resolves a document parser provider by name.
func (r *ProviderRegistry) Parser(name string, cfg map[string]any) (driven.DocumentParser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.parsers[name]; ok {
		return svc, nil
	}
	builder, ok := r.parserBuilders[name]
	if !ok {
		return nil, unknownProvider("parser", name, keys(r.parserBuilders))
	}
	svc, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build parser provider %q: %w", name, err)
	}
	r.parsers[name] = svc
	logger.Debug("Resolved parser provider: %s", name)
	return svc, nil
}

// Close releases every cached instance. The registry is not usable
// afterwards.
func (r *ProviderRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, svc := range r.completions {
		_ = svc.Close()
	}
	for _, svc := range r.embeddings {
		_ = svc.Close()
	}
	for _, svc := range r.vectorStores {
		_ = svc.Close()
	}
	for _, svc := range r.rerankers {
		_ = svc.Close()
	}

	r.completions = make(map[string]driven.CompletionService)
	r.embeddings = make(map[string]driven.EmbeddingService)
	r.vectorStores = make(map[string]driven.VectorStore)
	r.rerankers = make(map[string]driven.Reranker)
	r.parsers = make(map[string]driven.DocumentParser)
}

// unknownProvider builds the fatal configuration error, listing the
// registered names for the category.
func unknownProvider(category, name string, available []string) error {
	sort.Strings(available)
	return fmt.Errorf("%w: no %s provider named %q (registered: %v)",
		domain.ErrUnknownProvider, category, name, available)
}

// keys returns the map's keys.
func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
