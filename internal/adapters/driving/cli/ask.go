package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
	"github.com/custodia-labs/arbiter/internal/logger"
)

var (
	askSession    string
	askGame       string
	askNamespaces []string
	askRulesets   []string
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Adjudicate a rules question",
	Long: `Answers a rules question from the indexed rulebooks.
Retrieval fans out across the session's namespaces, reranks the
passages and resolves conflicts by source hierarchy before the
verdict is written. Every verdict carries page-level citations.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "default", "session to resolve namespaces for")
	askCmd.Flags().StringVarP(&askGame, "game", "g", "", "game name for citation labels")
	askCmd.Flags().StringSliceVar(&askNamespaces, "namespace", nil, "explicit namespaces to search (overrides session)")
	askCmd.Flags().StringSliceVar(&askRulesets, "ruleset", nil, "restrict to specific ruleset ids")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the verdict as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]

	if adjudicationService == nil {
		return errors.New("adjudication service not configured")
	}

	ctx := context.Background()

	namespaces := askNamespaces
	if len(namespaces) == 0 {
		if namespaceResolver == nil {
			return errors.New("namespace resolver not configured")
		}
		resolved, err := namespaceResolver.Resolve(ctx, askSession, askRulesets)
		if err != nil {
			return fmt.Errorf("resolving namespaces: %w", err)
		}
		namespaces = resolved
	}
	if len(namespaces) == 0 {
		return fmt.Errorf("no indexed rulebooks for session %q; run 'arbiter ingest' first", askSession)
	}

	verdict, err := adjudicationService.Adjudicate(ctx, driving.AdjudicationRequest{
		Question:   question,
		Namespaces: namespaces,
		GameName:   askGame,
	})
	if err != nil {
		return fmt.Errorf("adjudication failed: %w", err)
	}

	// Audit is best effort; a logging failure never hides the verdict.
	if auditSink != nil {
		if err := auditSink.Record(ctx, askSession, verdict); err != nil {
			logger.Warn("Failed to record verdict: %v", err)
		}
	}

	if askJSON {
		return outputVerdictJSON(cmd, verdict)
	}
	return outputVerdictText(cmd, verdict)
}

func outputVerdictJSON(cmd *cobra.Command, verdict *domain.Verdict) error {
	data, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputVerdictText(cmd *cobra.Command, verdict *domain.Verdict) error {
	cmd.Println(verdict.Verdict)
	cmd.Println()
	cmd.Printf("Confidence: %.0f%%", verdict.Confidence*100)
	if verdict.ConfidenceReason != "" {
		cmd.Printf(" (%s)", verdict.ConfidenceReason)
	}
	cmd.Println()

	if len(verdict.Conflicts) > 0 {
		cmd.Println()
		cmd.Println("Conflicts:")
		for _, c := range verdict.Conflicts {
			cmd.Printf("  ! %s\n", c.Description)
			if c.Resolution != "" {
				cmd.Printf("    Resolved: %s\n", c.Resolution)
			}
		}
	}

	if len(verdict.Citations) > 0 {
		cmd.Println()
		cmd.Println("Citations:")
		for i, c := range verdict.Citations {
			location := c.Section
			if c.Page > 0 {
				location = fmt.Sprintf("%s, p.%d", location, c.Page)
			}
			official := ""
			if c.IsOfficial {
				official = " [official]"
			}
			cmd.Printf("  [%d] %s - %s%s\n", i+1, c.Source, location, official)
		}
	}

	if verdict.FollowUpHint != "" {
		cmd.Println()
		cmd.Printf("Hint: %s\n", verdict.FollowUpHint)
	}
	return nil
}
