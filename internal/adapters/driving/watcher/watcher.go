// Package watcher ingests rulebook PDFs dropped into a spool directory.
// Files are picked up once writes have settled, paced by a rate limiter
// so a bulk drop does not flood the embedding backend.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/arbiter/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
	"github.com/custodia-labs/arbiter/internal/logger"
)

// DefaultSettleDelay is how long a file must stay quiet before it is
// considered fully written.
const DefaultSettleDelay = 500 * time.Millisecond

// Config holds spool watcher configuration.
type Config struct {
	// Dir is the spool directory to watch (required).
	Dir string

	// UserID owns the ingested documents.
	UserID string

	// GameName labels the documents; empty means derive from filename.
	GameName string

	// SourceType defaults to BASE when unset.
	SourceType domain.SourceType

	// IsOfficial marks publisher-provided content.
	IsOfficial bool

	// Namespace overrides the default user namespace when set.
	Namespace string

	// SettleDelay is the quiet period before pickup.
	SettleDelay time.Duration
}

// Watcher feeds spooled PDFs into the ingestion pipeline.
type Watcher struct {
	svc     driving.IngestionService
	limiter *ratelimit.Limiter
	cfg     Config
}

// New creates a spool watcher.
func New(svc driving.IngestionService, cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watcher: spool directory is required")
	}
	if cfg.SourceType == "" {
		cfg.SourceType = domain.SourceBase
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	return &Watcher{
		svc:     svc,
		limiter: ratelimit.New(ratelimit.ServiceIngestion),
		cfg:     cfg,
	}, nil
}

// Run watches the spool directory until the context is cancelled.
// Cancellation is a normal shutdown and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}

	logger.Info("Watching spool directory: %s", w.cfg.Dir)

	// Per-path settle timers; a burst of writes to the same file keeps
	// pushing pickup back until the file goes quiet.
	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}

			path := event.Name
			if t, exists := timers[path]; exists {
				t.Stop()
			}
			timers[path] = time.AfterFunc(w.cfg.SettleDelay, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			w.ingest(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// ingest runs one spooled file through the pipeline.
func (w *Watcher) ingest(ctx context.Context, path string) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	slug := rulesetSlug(path)
	game := w.cfg.GameName
	if game == "" {
		game = gameNameFromPath(path)
	}

	result, err := w.svc.Ingest(ctx, driving.IngestionRequest{
		FilePath:   path,
		UserID:     w.cfg.UserID,
		RulesetID:  slug,
		GameName:   game,
		SourceType: w.cfg.SourceType,
		IsOfficial: w.cfg.IsOfficial,
		Namespace:  w.cfg.Namespace,
	})
	if err != nil {
		logger.Warn("Ingestion failed for %s: %v", filepath.Base(path), err)
		return
	}

	logger.Info("Indexed %s: %d chunks into %s",
		filepath.Base(path), result.ChunkCount, result.Namespace)
}

// rulesetSlug derives a stable ruleset id from the filename, so
// re-dropping the same file reindexes instead of duplicating.
func rulesetSlug(path string) string {
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

// gameNameFromPath turns "catan_seafarers.pdf" into "catan seafarers".
func gameNameFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	}), " ")
}
