package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [namespace...]",
	Short: "Show vector counts per namespace",
	Long: `Reports how many vectors each namespace holds.
With no arguments, the session's resolved namespaces are shown.`,
	RunE: runStats,
}

var statsSession string

func init() {
	statsCmd.Flags().StringVarP(&statsSession, "session", "s", "default", "session to resolve namespaces for")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if vectorStore == nil {
		return errors.New("vector store not configured")
	}

	ctx := context.Background()

	namespaces := args
	if len(namespaces) == 0 {
		if namespaceResolver == nil {
			return errors.New("namespace resolver not configured")
		}
		resolved, err := namespaceResolver.Resolve(ctx, statsSession, nil)
		if err != nil {
			return fmt.Errorf("resolving namespaces: %w", err)
		}
		namespaces = resolved
	}
	if len(namespaces) == 0 {
		cmd.Println("No namespaces configured.")
		return nil
	}

	cmd.Println("Namespaces:")
	for _, ns := range namespaces {
		stats, err := vectorStore.NamespaceStats(ctx, ns)
		if err != nil {
			cmd.Printf("  %-30s (unavailable: %v)\n", ns, err)
			continue
		}
		cmd.Printf("  %-30s %d vectors\n", ns, stats.VectorCount)
	}
	return nil
}
