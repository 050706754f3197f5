package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historySession string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past verdicts for a session",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "default", "session to list verdicts for")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum number of verdicts")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if auditLog == nil {
		return errors.New("audit log not configured")
	}

	entries, err := auditLog.Recent(context.Background(), historySession, historyLimit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No verdicts recorded for this session.")
		return nil
	}

	cmd.Printf("Verdicts for session %q:\n\n", historySession)
	for _, e := range entries {
		cmd.Printf("  %s  (confidence %.0f%%, %dms)\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04"), e.Confidence*100, e.LatencyMS)
		cmd.Printf("    %s\n", truncateLine(e.Verdict.Verdict, 100))
		cmd.Println()
	}
	return nil
}

func truncateLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
