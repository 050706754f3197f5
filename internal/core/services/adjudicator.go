package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
	"github.com/custodia-labs/arbiter/internal/logger"
)

// Ensure Adjudicator implements the interface.
var _ driving.AdjudicationService = (*Adjudicator)(nil)

// Pipeline defaults.
const (
	// fanOutTopK is the per-namespace similarity depth.
	fanOutTopK = 50

	// rerankTopN is how many candidates survive reranking.
	rerankTopN = 10

	// DefaultContextWindow is the post-resort truncation depth.
	DefaultContextWindow = 8

	// citationLimit caps the citations projected from resorted chunks.
	citationLimit = 5

	// snippetLimit caps citation snippet length in characters.
	snippetLimit = 300

	// verdictMaxTokens bounds the verdict-generation call.
	verdictMaxTokens = 1200
)

// conflictResolution is the standing tie-break rule quoted in conflicts.
const conflictResolution = "higher-priority source takes precedence: Errata > Expansion > Base"

// scoredChunk is a retrieved chunk annotated with its rerank score.
type scoredChunk struct {
	match       domain.VectorMatch
	rerankScore float64
}

// Adjudicator answers rules questions against indexed namespaces.
// It is stateless across calls; all capabilities are injected at
// construction, so tests substitute deterministic fakes.
type Adjudicator struct {
	llm           driven.CompletionService
	embedder      driven.EmbeddingService
	vectors       driven.VectorStore
	reranker      driven.Reranker
	contextWindow int
}

// AdjudicatorOption configures the engine.
type AdjudicatorOption func(*Adjudicator)

// WithContextWindow sets the post-resort truncation depth (default 8).
func WithContextWindow(n int) AdjudicatorOption {
	return func(a *Adjudicator) {
		if n > 0 {
			a.contextWindow = n
		}
	}
}

// NewAdjudicator creates the adjudication engine.
func NewAdjudicator(
	llm driven.CompletionService,
	embedder driven.EmbeddingService,
	vectors driven.VectorStore,
	reranker driven.Reranker,
	opts ...AdjudicatorOption,
) *Adjudicator {
	a := &Adjudicator{
		llm:           llm,
		embedder:      embedder,
		vectors:       vectors,
		reranker:      reranker,
		contextWindow: DefaultContextWindow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Adjudicate runs the full pipeline: expansion, fan-out retrieval,
// dedup, rerank, hierarchy resort, conflict detection, context assembly
// and verdict generation.
func (a *Adjudicator) Adjudicate(ctx context.Context, req driving.AdjudicationRequest) (*domain.Verdict, error) {
	start := time.Now()
	queryID := uuid.New().String()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("adjudicate: %w: empty question", domain.ErrInvalidInput)
	}
	if len(req.Namespaces) == 0 {
		return nil, domain.ErrNoNamespaces
	}

	defer logger.Stage("Adjudication")()
	logger.Debug("Question: %q", question)
	logger.Debug("Namespaces: %v", req.Namespaces)

	// Step 1: query expansion (auxiliary, never fatal).
	expanded := expandQuery(ctx, a.llm, question)

	// Step 2: retrieval fan-out across queries and namespaces.
	matches, err := a.fanOut(ctx, expanded, req.Namespaces)
	if err != nil {
		return nil, fmt.Errorf("adjudicate: %w", err)
	}

	// Step 3: dedup by vector id, best score wins.
	deduped := dedupeMatches(matches)
	logger.Debug("Deduplicated: %d of %d matches", len(deduped), len(matches))

	if len(deduped) == 0 {
		// Short-circuit: no reranking, no verdict generation.
		logger.Info("No relevant rules found")
		return a.noMatchVerdict(queryID, expanded.ExpandedQuery, start), nil
	}

	// Step 4: rerank the top candidates.
	reranked := a.rerankMatches(ctx, expanded.ExpandedQuery, deduped)

	// Step 5: hierarchy resort and truncation.
	resorted := hierarchyResort(reranked, a.contextWindow)

	// Step 6: conflict detection.
	conflicts := detectConflicts(resorted)
	if len(conflicts) > 0 {
		logger.Info("Detected %d source conflicts", len(conflicts))
	}

	// Step 7: context assembly.
	contextBlock := assembleContext(resorted, conflicts)

	// Step 8: verdict generation with local degradation.
	verdict := a.generateVerdict(ctx, question, contextBlock)

	// Step 9: citation extraction from the resorted chunks.
	verdict.Citations = buildCitations(resorted, req.GameName)
	verdict.Conflicts = conflicts
	verdict.QueryID = queryID
	verdict.ExpandedQuery = expanded.ExpandedQuery
	verdict.LatencyMS = time.Since(start).Milliseconds()

	logger.Info("Verdict ready: confidence=%.2f, citations=%d, latency=%dms",
		verdict.Confidence, len(verdict.Citations), verdict.LatencyMS)

	return verdict, nil
}

// fanOut embeds every query variant once and issues a top-K similarity
// query against every namespace. The per-query-per-namespace searches
// run concurrently; individual failures are logged and skipped, but if
// every similarity call fails the whole retrieval fails.
func (a *Adjudicator) fanOut(
	ctx context.Context, expanded domain.ExpandedQuery, namespaces []string,
) ([]domain.VectorMatch, error) {
	queries := append([]string{expanded.ExpandedQuery}, expanded.SubQueries...)
	logger.Debug("Fan-out: %d queries x %d namespaces", len(queries), len(namespaces))

	// Embed each query variant once.
	type embeddedQuery struct {
		text   string
		vector []float32
	}
	embedded := make([]embeddedQuery, 0, len(queries))
	var embedErr error
	for _, q := range queries {
		vec, err := a.embedder.EmbedQuery(ctx, q)
		if err != nil {
			logger.Warn("Embedding failed for query %q: %v", q, err)
			embedErr = err
			continue
		}
		embedded = append(embedded, embeddedQuery{text: q, vector: vec})
	}
	if len(embedded) == 0 {
		return nil, fmt.Errorf("embed queries: %w", embedErr)
	}

	var (
		mu       sync.Mutex
		matches  []domain.VectorMatch
		calls    int
		failures int
	)

	var wg sync.WaitGroup
	for _, eq := range embedded {
		for _, ns := range namespaces {
			wg.Add(1)
			calls++
			go func(vector []float32, query, namespace string) {
				defer wg.Done()
				hits, err := a.vectors.Query(ctx, vector, fanOutTopK, namespace, nil)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// A failed namespace must not vanish silently.
					logger.Warn("Similarity query failed: namespace=%s query=%q: %v", namespace, query, err)
					failures++
					return
				}
				matches = append(matches, hits...)
			}(eq.vector, eq.text, ns)
		}
	}
	wg.Wait()

	if failures == calls {
		return nil, fmt.Errorf("similarity search failed for all %d fan-out calls", calls)
	}

	logger.Debug("Fan-out: %d raw matches from %d calls (%d failed)", len(matches), calls, failures)
	return matches, nil
}

// dedupeMatches merges matches by vector id keeping the highest score,
// then sorts descending by score.
func dedupeMatches(matches []domain.VectorMatch) []domain.VectorMatch {
	best := make(map[string]domain.VectorMatch, len(matches))
	for _, m := range matches {
		if existing, ok := best[m.ID]; !ok || m.Score > existing.Score {
			best[m.ID] = m
		}
	}

	out := make([]domain.VectorMatch, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// rerankMatches passes the deduplicated texts through the reranker.
// Reranking is auxiliary: on failure the input order is kept with
// decaying synthetic scores rather than aborting the pipeline.
func (a *Adjudicator) rerankMatches(
	ctx context.Context, query string, matches []domain.VectorMatch,
) []scoredChunk {
	if len(matches) > fanOutTopK {
		matches = matches[:fanOutTopK]
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Metadata.Text
	}

	topN := rerankTopN
	if topN > len(matches) {
		topN = len(matches)
	}

	var results []driven.RerankResult
	if a.reranker != nil {
		var err error
		results, err = a.reranker.Rerank(ctx, query, docs, topN)
		if err != nil {
			logger.Warn("Reranking failed: %v (keeping retrieval order)", err)
			results = nil
		}
	}
	if results == nil {
		results = fallbackRanking(len(matches), topN)
	}

	out := make([]scoredChunk, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(matches) {
			continue
		}
		out = append(out, scoredChunk{match: matches[r.Index], rerankScore: r.Score})
	}
	return out
}

// fallbackRanking preserves input order with decaying synthetic scores.
func fallbackRanking(total, topN int) []driven.RerankResult {
	if topN > total {
		topN = total
	}
	out := make([]driven.RerankResult, topN)
	for i := 0; i < topN; i++ {
		out[i] = driven.RerankResult{Index: i, Score: 1.0 - float64(i)*0.05}
	}
	return out
}

// hierarchyResort orders chunks by (-sourcePriority, -rerankScore) so a
// lower-relevance errata chunk still outranks a higher-relevance base
// chunk, then truncates to the context window.
func hierarchyResort(chunks []scoredChunk, window int) []scoredChunk {
	out := make([]scoredChunk, len(chunks))
	copy(out, chunks)

	sort.SliceStable(out, func(i, j int) bool {
		pi := out[i].match.Metadata.SourcePriority
		pj := out[j].match.Metadata.SourcePriority
		if pi != pj {
			return pi > pj
		}
		return out[i].rerankScore > out[j].rerankScore
	})

	if window > 0 && len(out) > window {
		out = out[:window]
	}
	return out
}

// detectConflicts finds sections where multiple source types compete.
// A conflict fires only when Base is among the competing types; two
// non-base sources disagreeing are intentionally not flagged.
func detectConflicts(chunks []scoredChunk) []domain.Conflict {
	bySection := make(map[string]map[domain.SourceType]bool)
	order := make([]string, 0)

	for _, c := range chunks {
		section := c.match.Metadata.SectionHeader
		if section == "" {
			continue
		}
		if bySection[section] == nil {
			bySection[section] = make(map[domain.SourceType]bool)
			order = append(order, section)
		}
		bySection[section][c.match.Metadata.SourceType] = true
	}

	var conflicts []domain.Conflict
	for _, section := range order {
		types := bySection[section]
		if len(types) < 2 || !types[domain.SourceBase] {
			continue
		}

		names := make([]string, 0, len(types))
		for st := range types {
			names = append(names, string(st))
		}
		sort.Strings(names)

		conflicts = append(conflicts, domain.Conflict{
			Description: fmt.Sprintf("section %q has competing rules from %s", section, strings.Join(names, ", ")),
			Resolution:  conflictResolution,
		})
	}
	return conflicts
}

// assembleContext renders the surviving chunks as labelled excerpts,
// followed by an explicit warning block when conflicts were detected.
func assembleContext(chunks []scoredChunk, conflicts []domain.Conflict) string {
	var b strings.Builder

	for i, c := range chunks {
		meta := c.match.Metadata

		label := string(meta.SourceType)
		if meta.SourceType == domain.SourceExpansion || meta.SourceType == domain.SourceErrata {
			label += " OVERRIDE"
		}

		fmt.Fprintf(&b, "[%d] [%s]", i+1, label)
		if meta.Page > 0 {
			fmt.Fprintf(&b, " (page %d", meta.Page)
			if meta.SectionHeader != "" {
				fmt.Fprintf(&b, ", %s", meta.SectionHeader)
			}
			b.WriteString(")")
		} else if meta.SectionHeader != "" {
			fmt.Fprintf(&b, " (%s)", meta.SectionHeader)
		}
		b.WriteString("\n")
		b.WriteString(meta.Text)
		b.WriteString("\n\n")
	}

	if len(conflicts) > 0 {
		b.WriteString("CONFLICT WARNING:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&b, "- %s (%s)\n", c.Description, c.Resolution)
		}
	}

	return strings.TrimSpace(b.String())
}

// verdictPayload is the JSON contract the adjudication prompt requests.
type verdictPayload struct {
	Verdict          string            `json:"verdict"`
	ReasoningChain   string            `json:"reasoning_chain"`
	Confidence       float64           `json:"confidence"`
	ConfidenceReason string            `json:"confidence_reason"`
	Citations        []domain.Citation `json:"citations"`
	Conflicts        []domain.Conflict `json:"conflicts"`
	FollowUpHint     string            `json:"follow_up_hint"`
}

// generateVerdict asks the completion capability for a structured
// ruling. JSON-parse failure degrades to a raw-text verdict at 0.3; any
// other failure degrades to an error verdict at 0.0. A partial answer
// is still more useful than an error.
func (a *Adjudicator) generateVerdict(ctx context.Context, question, contextBlock string) *domain.Verdict {
	user := fmt.Sprintf("RULEBOOK EXCERPTS:\n\n%s\n\nQUESTION: %s", contextBlock, question)

	result, err := a.llm.Complete(ctx, []driven.Message{
		{Role: driven.RoleSystem, Content: adjudicatorPrompt},
		{Role: driven.RoleUser, Content: user},
	}, driven.CompletionOptions{
		Temperature:    0.2,
		MaxTokens:      verdictMaxTokens,
		ResponseFormat: driven.ResponseFormatJSON,
	})
	if err != nil {
		logger.Warn("Verdict generation failed: %v", err)
		return &domain.Verdict{
			Verdict:          "Unable to produce a ruling: the language model is unavailable. Please try again.",
			Confidence:       0.0,
			ConfidenceReason: "verdict generation failed",
		}
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &payload); err != nil {
		logger.Warn("Verdict response was not valid JSON, degrading to raw text")
		return &domain.Verdict{
			Verdict:          strings.TrimSpace(result.Content),
			Confidence:       0.3,
			ConfidenceReason: "failed to parse structured response",
		}
	}

	return &domain.Verdict{
		Verdict:          payload.Verdict,
		ReasoningChain:   payload.ReasoningChain,
		Confidence:       domain.ClampConfidence(payload.Confidence),
		ConfidenceReason: payload.ConfidenceReason,
		FollowUpHint:     payload.FollowUpHint,
	}
}

// buildCitations projects the top resorted chunks into citations.
func buildCitations(chunks []scoredChunk, fallbackGame string) []domain.Citation {
	limit := citationLimit
	if limit > len(chunks) {
		limit = len(chunks)
	}

	citations := make([]domain.Citation, 0, limit)
	for _, c := range chunks[:limit] {
		meta := c.match.Metadata

		source := meta.GameName
		if source == "" {
			source = fallbackGame
		}

		snippet := truncateToRune(meta.Text, snippetLimit)

		citations = append(citations, domain.Citation{
			Source:     source,
			Page:       meta.Page,
			Section:    meta.SectionHeader,
			Snippet:    snippet,
			IsOfficial: meta.IsOfficial,
		})
	}
	return citations
}

// truncateToRune shortens s to at most limit bytes, backing up so a
// multi-byte rune is never cut mid-sequence.
func truncateToRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// noMatchVerdict is the explicit zero-confidence result for empty
// retrieval. Empty retrieval is a valid outcome, not an error.
func (a *Adjudicator) noMatchVerdict(queryID, expandedQuery string, start time.Time) *domain.Verdict {
	return &domain.Verdict{
		Verdict:          "No relevant rules were found in the indexed rulebooks for this question.",
		Confidence:       0.0,
		ConfidenceReason: "no matching passages retrieved",
		Citations:        []domain.Citation{},
		FollowUpHint:     "Try rephrasing the question with terms from the rulebook, or check that the right rulebooks are indexed.",
		QueryID:          queryID,
		ExpandedQuery:    expandedQuery,
		LatencyMS:        time.Since(start).Milliseconds(),
	}
}
