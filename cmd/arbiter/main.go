package main

import (
	"fmt"
	"os"

	audit "github.com/custodia-labs/arbiter/internal/adapters/driven/audit/sqlite"
	"github.com/custodia-labs/arbiter/internal/adapters/driven/config/file"
	nsconfig "github.com/custodia-labs/arbiter/internal/adapters/driven/namespace/config"
	"github.com/custodia-labs/arbiter/internal/adapters/driven/providers"
	quota "github.com/custodia-labs/arbiter/internal/adapters/driven/quota/sqlite"
	"github.com/custodia-labs/arbiter/internal/adapters/driving/cli"
	"github.com/custodia-labs/arbiter/internal/chunker"
	"github.com/custodia-labs/arbiter/internal/core/services"
	"github.com/custodia-labs/arbiter/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configStore, err := file.NewConfigStore(os.Getenv("ARBITER_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	registry := services.NewProviderRegistry()
	providers.RegisterDefaults(registry)
	defer registry.Close()

	completionName := providerName(configStore.GetString("providers.completion"), "ollama")
	embeddingName := providerName(configStore.GetString("providers.embedding"), "ollama")
	vectorName := providerName(configStore.GetString("providers.vectorstore"), "sqlite")
	rerankerName := providerName(configStore.GetString("providers.reranker"), "none")
	parserName := providerName(configStore.GetString("providers.parser"), "pdftotext")

	llm, err := registry.Completion(completionName, configStore.Section("providers."+completionName))
	if err != nil {
		return err
	}
	embedder, err := registry.Embedding(embeddingName, configStore.Section("providers."+embeddingName))
	if err != nil {
		return err
	}
	vectors, err := registry.VectorStore(vectorName, configStore.Section("providers."+vectorName))
	if err != nil {
		return err
	}
	reranker, err := registry.Reranker(rerankerName, configStore.Section("providers."+rerankerName))
	if err != nil {
		return err
	}

	adjudicator := services.NewAdjudicator(llm, embedder, vectors, reranker,
		services.WithContextWindow(configStore.GetInt("adjudication.context_window")))

	cliServices := cli.Services{
		Adjudication: adjudicator,
		Namespaces:   nsconfig.NewResolver(configStore),
		Vectors:      vectors,
	}

	// The parser needs pdftotext on PATH. Adjudication works without
	// it, so a missing tool only disables ingestion.
	parser, err := registry.Parser(parserName, configStore.Section("providers."+parserName))
	if err != nil {
		logger.Warn("Ingestion disabled: %v", err)
	} else {
		quotaChecker, err := quota.New("", quota.WithDailyLimit(configStore.GetInt("ingestion.daily_limit")))
		if err != nil {
			return fmt.Errorf("opening quota store: %w", err)
		}
		defer quotaChecker.Close()

		cliServices.Ingestion = services.NewIngestor(llm, embedder, vectors, parser,
			chunker.New(), services.WithQuotaChecker(quotaChecker))
	}

	auditSink, err := audit.New("")
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer auditSink.Close()
	cliServices.Audit = auditSink
	cliServices.AuditLog = auditSink

	cli.SetServices(cliServices)
	return cli.Execute()
}

// providerName applies the default when the config key is unset.
func providerName(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
