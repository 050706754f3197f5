package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
)

var (
	ingestUser      string
	ingestGame      string
	ingestRuleset   string
	ingestSource    string
	ingestOfficial  bool
	ingestNamespace string
	ingestSession   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Index a rulebook PDF",
	Long: `Validates, classifies and indexes a rulebook PDF.
The file is consumed: it is securely deleted after processing,
whether indexing succeeds or fails. Use --source to place the
document in the hierarchy (BASE, EXPANSION or ERRATA).`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestUser, "user", "u", "local", "user id owning the upload")
	ingestCmd.Flags().StringVarP(&ingestGame, "game", "g", "", "game name (default: derived from filename)")
	ingestCmd.Flags().StringVarP(&ingestRuleset, "ruleset", "r", "", "ruleset id (default: derived from filename)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", string(domain.SourceBase), "source type: BASE, EXPANSION or ERRATA")
	ingestCmd.Flags().BoolVar(&ingestOfficial, "official", false, "mark as publisher-provided content")
	ingestCmd.Flags().StringVar(&ingestNamespace, "namespace", "", "target namespace (default: user_<user>)")
	ingestCmd.Flags().StringVarP(&ingestSession, "session", "s", "", "session to associate with the upload")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	sourceType := domain.SourceType(strings.ToUpper(ingestSource))
	if !sourceType.Valid() {
		return fmt.Errorf("invalid source type %q: must be BASE, EXPANSION or ERRATA", ingestSource)
	}

	rulesetID := ingestRuleset
	if rulesetID == "" {
		rulesetID = fileSlug(filePath)
	}
	game := ingestGame
	if game == "" {
		game = fileTitle(filePath)
	}

	cmd.Printf("Ingesting %s...\n", filepath.Base(filePath))

	result, err := ingestionService.Ingest(context.Background(), driving.IngestionRequest{
		FilePath:   filePath,
		UserID:     ingestUser,
		SessionID:  ingestSession,
		RulesetID:  rulesetID,
		GameName:   game,
		SourceType: sourceType,
		IsOfficial: ingestOfficial,
		Namespace:  ingestNamespace,
	})
	if err != nil {
		var ie *domain.IngestionError
		if errors.As(err, &ie) {
			return fmt.Errorf("ingestion rejected (%s): %s", ie.Code, ie.Message)
		}
		return fmt.Errorf("ingestion failed: %w", err)
	}

	cmd.Printf("Indexed %s as %s (%s)\n", game, rulesetID, sourceType)
	cmd.Printf("  Namespace: %s\n", result.Namespace)
	cmd.Printf("  Pages:     %d\n", result.PageCount)
	cmd.Printf("  Chunks:    %d\n", result.ChunkCount)
	return nil
}

// fileSlug derives a stable ruleset id from the filename.
func fileSlug(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// fileTitle turns "catan_base_rules.pdf" into "catan base rules".
func fileTitle(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	}), " ")
}
