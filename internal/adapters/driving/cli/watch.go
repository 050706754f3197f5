package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/arbiter/internal/adapters/driving/watcher"
	"github.com/custodia-labs/arbiter/internal/core/domain"
)

var (
	watchUser      string
	watchGame      string
	watchSource    string
	watchOfficial  bool
	watchNamespace string
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a spool directory for rulebook PDFs",
	Long: `Watches a directory and ingests every PDF dropped into it.
Files are picked up once writes settle and are consumed by the
pipeline. Press Ctrl-C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchUser, "user", "u", "local", "user id owning the ingested documents")
	watchCmd.Flags().StringVarP(&watchGame, "game", "g", "", "game name (default: derived per file)")
	watchCmd.Flags().StringVar(&watchSource, "source", string(domain.SourceBase), "source type: BASE, EXPANSION or ERRATA")
	watchCmd.Flags().BoolVar(&watchOfficial, "official", false, "mark as publisher-provided content")
	watchCmd.Flags().StringVar(&watchNamespace, "namespace", "", "target namespace (default: user_<user>)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	sourceType := domain.SourceType(strings.ToUpper(watchSource))
	if !sourceType.Valid() {
		return fmt.Errorf("invalid source type %q: must be BASE, EXPANSION or ERRATA", watchSource)
	}

	w, err := watcher.New(ingestionService, watcher.Config{
		Dir:        args[0],
		UserID:     watchUser,
		GameName:   watchGame,
		SourceType: sourceType,
		IsOfficial: watchOfficial,
		Namespace:  watchNamespace,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s (Ctrl-C to stop)...\n", args[0])
	return w.Run(ctx)
}
