// Package providers registers the built-in capability adapters with a
// provider registry. Keeping the registration here, on the adapter side
// of the hexagon, means the core services never import a concrete
// backend.
package providers

import (
	ollamaembed "github.com/custodia-labs/arbiter/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/arbiter/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/arbiter/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/arbiter/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/arbiter/internal/adapters/driven/parser/docstrip"
	"github.com/custodia-labs/arbiter/internal/adapters/driven/reranker/cohere"
	"github.com/custodia-labs/arbiter/internal/adapters/driven/reranker/passthrough"
	"github.com/custodia-labs/arbiter/internal/adapters/driven/vectorstore/qdrant"
	sqlitevec "github.com/custodia-labs/arbiter/internal/adapters/driven/vectorstore/sqlite"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/core/services"
)

// RegisterDefaults wires every built-in provider into the registry.
func RegisterDefaults(registry *services.ProviderRegistry) {
	registry.RegisterCompletion("openai", func(cfg map[string]any) (driven.CompletionService, error) {
		return openaillm.New(openaillm.Config{
			APIKey:  cfgString(cfg, "api_key"),
			BaseURL: cfgString(cfg, "base_url"),
			Model:   cfgString(cfg, "model"),
		})
	})
	registry.RegisterCompletion("ollama", func(cfg map[string]any) (driven.CompletionService, error) {
		return ollamallm.New(ollamallm.Config{
			BaseURL: cfgString(cfg, "base_url"),
			Model:   cfgString(cfg, "model"),
		}), nil
	})

	registry.RegisterEmbedding("openai", func(cfg map[string]any) (driven.EmbeddingService, error) {
		return openaiembed.New(openaiembed.Config{
			APIKey:  cfgString(cfg, "api_key"),
			BaseURL: cfgString(cfg, "base_url"),
			Model:   cfgString(cfg, "model"),
		})
	})
	registry.RegisterEmbedding("ollama", func(cfg map[string]any) (driven.EmbeddingService, error) {
		return ollamaembed.New(ollamaembed.Config{
			BaseURL: cfgString(cfg, "base_url"),
			Model:   cfgString(cfg, "model"),
		}), nil
	})

	registry.RegisterVectorStore("qdrant", func(cfg map[string]any) (driven.VectorStore, error) {
		return qdrant.New(qdrant.Config{
			URL:              cfgString(cfg, "url"),
			APIKey:           cfgString(cfg, "api_key"),
			CollectionPrefix: cfgString(cfg, "collection_prefix"),
		}), nil
	})
	registry.RegisterVectorStore("sqlite", func(cfg map[string]any) (driven.VectorStore, error) {
		return sqlitevec.New(cfgString(cfg, "data_dir"))
	})

	registry.RegisterReranker("cohere", func(cfg map[string]any) (driven.Reranker, error) {
		return cohere.New(cohere.Config{
			APIKey:  cfgString(cfg, "api_key"),
			BaseURL: cfgString(cfg, "base_url"),
			Model:   cfgString(cfg, "model"),
		})
	})
	registry.RegisterReranker("none", func(_ map[string]any) (driven.Reranker, error) {
		return passthrough.New(), nil
	})

	registry.RegisterParser("pdftotext", func(_ map[string]any) (driven.DocumentParser, error) {
		if err := docstrip.CheckAvailable(); err != nil {
			return nil, err
		}
		return docstrip.New(), nil
	})
}

// cfgString reads a string value from provider config, empty when the
// key is missing or not a string. Adapters backfill their own defaults.
func cfgString(cfg map[string]any, key string) string {
	val, ok := cfg[key]
	if !ok {
		return ""
	}
	str, _ := val.(string)
	return str
}
