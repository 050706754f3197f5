// Package cli provides the arbiter command line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	audit "github.com/custodia-labs/arbiter/internal/adapters/driven/audit/sqlite"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
	"github.com/custodia-labs/arbiter/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Services the commands depend on, injected at startup. Commands guard
// against nil services so a partially wired binary fails cleanly.
var (
	adjudicationService driving.AdjudicationService
	ingestionService    driving.IngestionService
	namespaceResolver   driven.NamespaceResolver
	auditSink           driven.AuditSink
	auditLog            AuditReader
	vectorStore         driven.VectorStore
)

// AuditReader lists recorded verdicts; satisfied by the SQLite audit sink.
type AuditReader interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]audit.Entry, error)
}

// Services bundles the dependencies the CLI commands use.
type Services struct {
	Adjudication driving.AdjudicationService
	Ingestion    driving.IngestionService
	Namespaces   driven.NamespaceResolver
	Audit        driven.AuditSink
	AuditLog     AuditReader
	Vectors      driven.VectorStore
}

// SetServices wires the command dependencies.
func SetServices(s Services) {
	adjudicationService = s.Adjudication
	ingestionService = s.Ingestion
	namespaceResolver = s.Namespaces
	auditSink = s.Audit
	auditLog = s.AuditLog
	vectorStore = s.Vectors
}

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Rules adjudication for tabletop games",
	Long: `Arbiter answers tabletop rules questions from indexed rulebooks.
Ingest official rulebooks, expansions and errata as PDFs, then ask
questions and get verdicts with page-level citations. Errata overrides
expansions, expansions override the base rules.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
