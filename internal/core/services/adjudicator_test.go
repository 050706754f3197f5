package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
)

// --- Mock implementations ---

// mockCompletion implements driven.CompletionService for testing.
// Responses are consumed in order, one per Complete call.
type mockCompletion struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (m *mockCompletion) Complete(_ context.Context, _ []driven.Message, _ driven.CompletionOptions) (*driven.CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &driven.CompletionResult{Content: "", Model: "mock-llm"}, nil
	}
	content := m.responses[0]
	m.responses = m.responses[1:]
	return &driven.CompletionResult{Content: content, Model: "mock-llm"}, nil
}

func (m *mockCompletion) Stream(_ context.Context, _ []driven.Message, _ driven.CompletionOptions) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (m *mockCompletion) ModelName() string { return "mock-llm" }
func (m *mockCompletion) Close() error      { return nil }

func (m *mockCompletion) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockEmbedder implements driven.EmbeddingService for testing.
type mockEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) embedding() []float32 {
	if m.vector != nil {
		return m.vector
	}
	return []float32{0.1, 0.2, 0.3}
}

func (m *mockEmbedder) EmbedTexts(_ context.Context, texts []string) (*driven.EmbedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = m.embedding()
	}
	return &driven.EmbedResult{Vectors: vectors, Model: "mock-embed"}, nil
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.embedding(), nil
}

func (m *mockEmbedder) Dimensions() int   { return 3 }
func (m *mockEmbedder) ModelName() string { return "mock-embed" }
func (m *mockEmbedder) Close() error      { return nil }

// mockVectorStore implements driven.VectorStore for testing. Query
// results are keyed by namespace.
type mockVectorStore struct {
	mu         sync.Mutex
	matches    map[string][]domain.VectorMatch
	queryErr   error
	queryCalls int
	upserted   []domain.VectorRecord
	upsertNS   string
	upsertErr  error
}

func (m *mockVectorStore) Upsert(_ context.Context, records []domain.VectorRecord, namespace string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.upserted = append(m.upserted, records...)
	m.upsertNS = namespace
	return len(records), nil
}

func (m *mockVectorStore) Query(_ context.Context, _ []float32, _ int, namespace string, _ map[string]any) ([]domain.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.matches[namespace], nil
}

func (m *mockVectorStore) DeleteByIDs(_ context.Context, _ []string, _ string) error { return nil }
func (m *mockVectorStore) DeleteNamespace(_ context.Context, _ string) error         { return nil }

func (m *mockVectorStore) NamespaceStats(_ context.Context, _ string) (*driven.NamespaceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &driven.NamespaceStats{VectorCount: len(m.upserted)}, nil
}

func (m *mockVectorStore) Close() error { return nil }

// mockReranker implements driven.Reranker for testing.
type mockReranker struct {
	mu      sync.Mutex
	results []driven.RerankResult
	err     error
	calls   int
}

func (m *mockReranker) Rerank(_ context.Context, _ string, _ []string, _ int) ([]driven.RerankResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockReranker) ModelName() string { return "mock-rerank" }
func (m *mockReranker) Close() error      { return nil }

func (m *mockReranker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Test helpers ---

const expansionJSON = `{"expanded_query": "attack roll modifier rules", "keywords": ["attack", "modifier"], "sub_queries": []}`

func ruleMatch(id, section string, st domain.SourceType, score float64, text string) domain.VectorMatch {
	return domain.VectorMatch{
		ID:    id,
		Score: score,
		Metadata: domain.VectorMetadata{
			Text:           text,
			Page:           12,
			SectionHeader:  section,
			SourceType:     st,
			SourcePriority: st.Priority(),
			RulesetID:      "rs-test",
			GameName:       "Catan",
			IsOfficial:     true,
		},
	}
}

// --- Adjudicate ---

func TestAdjudicate_EmptyQuestion(t *testing.T) {
	adj := NewAdjudicator(&mockCompletion{}, &mockEmbedder{}, &mockVectorStore{}, &mockReranker{})

	_, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question:   "   ",
		Namespaces: []string{"ns1"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAdjudicate_NoNamespaces(t *testing.T) {
	adj := NewAdjudicator(&mockCompletion{}, &mockEmbedder{}, &mockVectorStore{}, &mockReranker{})

	_, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question: "Can I trade during another player's turn?",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoNamespaces)
}

func TestAdjudicate_NoMatches_ShortCircuits(t *testing.T) {
	llm := &mockCompletion{responses: []string{expansionJSON}}
	reranker := &mockReranker{}
	store := &mockVectorStore{matches: map[string][]domain.VectorMatch{}}

	adj := NewAdjudicator(llm, &mockEmbedder{}, store, reranker)

	verdict, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question:   "Can I trade during another player's turn?",
		Namespaces: []string{"ns1", "ns2"},
	})

	require.NoError(t, err)
	require.NotNil(t, verdict)

	assert.Equal(t, 0.0, verdict.Confidence)
	assert.Empty(t, verdict.Citations)
	assert.NotEmpty(t, verdict.FollowUpHint)
	assert.NotEmpty(t, verdict.QueryID)
	assert.Equal(t, "attack roll modifier rules", verdict.ExpandedQuery)

	// Empty retrieval must not invoke reranking or verdict generation.
	assert.Equal(t, 0, reranker.callCount())
	assert.Equal(t, 1, llm.callCount(), "only the expansion call should have run")
}

func TestAdjudicate_FullPipeline(t *testing.T) {
	verdictJSON := `{
		"verdict": "The errata changes the base rule: reroll once.",
		"reasoning_chain": "Errata overrides the base combat rule.",
		"confidence": 1.4,
		"confidence_reason": "direct text match",
		"follow_up_hint": ""
	}`

	llm := &mockCompletion{responses: []string{expansionJSON, verdictJSON}}
	store := &mockVectorStore{matches: map[string][]domain.VectorMatch{
		"ns1": {
			ruleMatch("base-0", "Combat", domain.SourceBase, 0.9, "Roll one die per attack."),
			ruleMatch("errata-0", "Combat", domain.SourceErrata, 0.5, "Errata: you may reroll once."),
			ruleMatch("exp-0", "Setup", domain.SourceExpansion, 0.7, "Place two extra tiles."),
		},
	}}
	// Deduped order is descending by score: base-0, exp-0, errata-0.
	reranker := &mockReranker{results: []driven.RerankResult{
		{Index: 0, Score: 0.9},
		{Index: 1, Score: 0.6},
		{Index: 2, Score: 0.8},
	}}

	adj := NewAdjudicator(llm, &mockEmbedder{}, store, reranker)

	verdict, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question:   "How many dice do I roll when attacking?",
		Namespaces: []string{"ns1"},
		GameName:   "Catan",
	})

	require.NoError(t, err)
	require.NotNil(t, verdict)

	assert.Equal(t, "The errata changes the base rule: reroll once.", verdict.Verdict)
	assert.Equal(t, 1.0, verdict.Confidence, "confidence above 1.0 must clamp")
	assert.Equal(t, 2, llm.callCount(), "expansion and verdict calls")

	// Errata outranks base after hierarchy resort, so it cites first.
	require.NotEmpty(t, verdict.Citations)
	assert.Equal(t, "Errata: you may reroll once.", verdict.Citations[0].Snippet)
	assert.Equal(t, "Catan", verdict.Citations[0].Source)
	assert.True(t, verdict.Citations[0].IsOfficial)

	// Base and errata compete in the Combat section.
	require.Len(t, verdict.Conflicts, 1)
	assert.Contains(t, verdict.Conflicts[0].Description, "Combat")

	assert.NotEmpty(t, verdict.QueryID)
	assert.GreaterOrEqual(t, verdict.LatencyMS, int64(0))
}

func TestAdjudicate_RerankFailureKeepsRetrievalOrder(t *testing.T) {
	verdictJSON := `{"verdict": "ok", "reasoning_chain": "", "confidence": 0.8, "confidence_reason": "inference"}`

	llm := &mockCompletion{responses: []string{expansionJSON, verdictJSON}}
	store := &mockVectorStore{matches: map[string][]domain.VectorMatch{
		"ns1": {
			ruleMatch("a-0", "Trading", domain.SourceBase, 0.9, "top match"),
			ruleMatch("a-1", "Trading", domain.SourceBase, 0.4, "weaker match"),
		},
	}}
	reranker := &mockReranker{err: errors.New("rerank backend down")}

	adj := NewAdjudicator(llm, &mockEmbedder{}, store, reranker)

	verdict, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question:   "Can I trade ore for wheat?",
		Namespaces: []string{"ns1"},
	})

	require.NoError(t, err)
	require.NotEmpty(t, verdict.Citations)
	assert.Equal(t, "top match", verdict.Citations[0].Snippet)
	assert.Equal(t, 0.8, verdict.Confidence)
}

func TestAdjudicate_VerdictCallFailureDegrades(t *testing.T) {
	// Expansion succeeds, then the verdict call fails.
	llm := &mockCompletion{responses: []string{expansionJSON}, err: nil}
	store := &mockVectorStore{matches: map[string][]domain.VectorMatch{
		"ns1": {ruleMatch("a-0", "Trading", domain.SourceBase, 0.9, "some rule")},
	}}

	adj := NewAdjudicator(llm, &mockEmbedder{}, store, &mockReranker{
		results: []driven.RerankResult{{Index: 0, Score: 0.9}},
	})

	// Empty response content is not valid JSON, so the verdict degrades
	// to the raw-text path at 0.3.
	verdict, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question:   "Can I trade?",
		Namespaces: []string{"ns1"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0.3, verdict.Confidence)
}

func TestAdjudicate_AllQueriesFail(t *testing.T) {
	llm := &mockCompletion{responses: []string{expansionJSON}}
	store := &mockVectorStore{queryErr: errors.New("connection refused")}

	adj := NewAdjudicator(llm, &mockEmbedder{}, store, &mockReranker{})

	_, err := adj.Adjudicate(context.Background(), driving.AdjudicationRequest{
		Question:   "Can I trade?",
		Namespaces: []string{"ns1", "ns2"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity search failed")
}

// --- Pipeline stages ---

func TestDedupeMatches(t *testing.T) {
	matches := []domain.VectorMatch{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.9},
		{ID: "a", Score: 0.8},
		{ID: "c", Score: 0.8},
	}

	out := dedupeMatches(matches)

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	// a and c tie at 0.8; id breaks the tie deterministically.
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, 0.8, out[1].Score, "duplicate keeps the higher score")
	assert.Equal(t, "c", out[2].ID)
}

func TestHierarchyResort(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("base-0", "Combat", domain.SourceBase, 0, "base"), rerankScore: 0.95},
		{match: ruleMatch("errata-0", "Combat", domain.SourceErrata, 0, "errata"), rerankScore: 0.40},
		{match: ruleMatch("exp-0", "Setup", domain.SourceExpansion, 0, "expansion"), rerankScore: 0.70},
	}

	out := hierarchyResort(chunks, 8)

	require.Len(t, out, 3)
	assert.Equal(t, "errata-0", out[0].match.ID, "errata outranks despite the lowest rerank score")
	assert.Equal(t, "exp-0", out[1].match.ID)
	assert.Equal(t, "base-0", out[2].match.ID)
}

func TestHierarchyResort_Truncates(t *testing.T) {
	chunks := make([]scoredChunk, 12)
	for i := range chunks {
		chunks[i] = scoredChunk{
			match:       ruleMatch("c", "S", domain.SourceBase, 0, "t"),
			rerankScore: 1.0 - float64(i)*0.01,
		}
	}

	out := hierarchyResort(chunks, 8)
	assert.Len(t, out, 8)
}

func TestDetectConflicts_BaseVsErrata(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("b", "Combat", domain.SourceBase, 0, "base rule")},
		{match: ruleMatch("e", "Combat", domain.SourceErrata, 0, "errata rule")},
	}

	conflicts := detectConflicts(chunks)

	require.Len(t, conflicts, 1)
	assert.Contains(t, conflicts[0].Description, "Combat")
	assert.Contains(t, conflicts[0].Description, "BASE")
	assert.Contains(t, conflicts[0].Description, "ERRATA")
	assert.NotEmpty(t, conflicts[0].Resolution)
}

func TestDetectConflicts_NonBaseSourcesDoNotFlag(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("e", "Combat", domain.SourceErrata, 0, "errata")},
		{match: ruleMatch("x", "Combat", domain.SourceExpansion, 0, "expansion")},
	}

	assert.Empty(t, detectConflicts(chunks))
}

func TestDetectConflicts_SingleSourceType(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("b1", "Combat", domain.SourceBase, 0, "one")},
		{match: ruleMatch("b2", "Combat", domain.SourceBase, 0, "two")},
	}

	assert.Empty(t, detectConflicts(chunks))
}

func TestDetectConflicts_EmptySectionSkipped(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("b", "", domain.SourceBase, 0, "base")},
		{match: ruleMatch("e", "", domain.SourceErrata, 0, "errata")},
	}

	assert.Empty(t, detectConflicts(chunks))
}

func TestFallbackRanking(t *testing.T) {
	out := fallbackRanking(20, 10)

	require.Len(t, out, 10)
	assert.Equal(t, 0, out[0].Index)
	assert.Equal(t, 1.0, out[0].Score)
	assert.Equal(t, 9, out[9].Index)
	assert.InDelta(t, 0.55, out[9].Score, 1e-9)
}

func TestFallbackRanking_FewerThanTopN(t *testing.T) {
	out := fallbackRanking(3, 10)
	assert.Len(t, out, 3)
}

func TestAssembleContext(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("e", "Combat", domain.SourceErrata, 0, "Reroll once.")},
		{match: ruleMatch("b", "Combat", domain.SourceBase, 0, "Roll one die.")},
	}
	conflicts := detectConflicts(chunks)

	block := assembleContext(chunks, conflicts)

	assert.Contains(t, block, "[1] [ERRATA OVERRIDE]")
	assert.Contains(t, block, "[2] [BASE]")
	assert.Contains(t, block, "page 12")
	assert.Contains(t, block, "Reroll once.")
	assert.Contains(t, block, "CONFLICT WARNING:")
}

func TestAssembleContext_NoConflictBlock(t *testing.T) {
	chunks := []scoredChunk{
		{match: ruleMatch("b", "Setup", domain.SourceBase, 0, "Shuffle the deck.")},
	}

	block := assembleContext(chunks, nil)

	assert.NotContains(t, block, "CONFLICT WARNING")
	assert.False(t, strings.Contains(block, "OVERRIDE"))
}

func TestBuildCitations_LimitAndFallbackGame(t *testing.T) {
	chunks := make([]scoredChunk, 7)
	for i := range chunks {
		m := ruleMatch("c", "S", domain.SourceBase, 0, strings.Repeat("x", 400))
		m.Metadata.GameName = ""
		chunks[i] = scoredChunk{match: m}
	}

	citations := buildCitations(chunks, "Gloomhaven")

	require.Len(t, citations, 5)
	assert.Equal(t, "Gloomhaven", citations[0].Source)
	assert.Len(t, citations[0].Snippet, 300)
}

func TestBuildCitations_SnippetTrimmedToRuneBoundary(t *testing.T) {
	// 149 ASCII bytes then three-byte runes: the 300-byte cut lands
	// mid-rune, so the snippet has to back up to the previous boundary.
	text := strings.Repeat("a", 149) + strings.Repeat("→", 60)
	chunks := []scoredChunk{{match: ruleMatch("c1", "Movement", domain.SourceBase, 0.9, text)}}

	citations := buildCitations(chunks, "Catan")

	require.Len(t, citations, 1)
	snippet := citations[0].Snippet
	assert.True(t, utf8.ValidString(snippet))
	assert.LessOrEqual(t, len(snippet), snippetLimit)
	assert.True(t, strings.HasSuffix(snippet, "→"))
}

func TestTruncateToRune(t *testing.T) {
	assert.Equal(t, "abc", truncateToRune("abc", 10))
	assert.Equal(t, "abcd", truncateToRune("abcdef", 4))
	// "é" is two bytes; cutting at 3 would split it.
	assert.Equal(t, "ab", truncateToRune("abéf", 3))
	assert.Equal(t, "", truncateToRune("→", 2))
}

func TestWithContextWindow(t *testing.T) {
	adj := NewAdjudicator(&mockCompletion{}, &mockEmbedder{}, &mockVectorStore{}, &mockReranker{},
		WithContextWindow(4))
	assert.Equal(t, 4, adj.contextWindow)

	// Non-positive values keep the default.
	adj = NewAdjudicator(&mockCompletion{}, &mockEmbedder{}, &mockVectorStore{}, &mockReranker{},
		WithContextWindow(0))
	assert.Equal(t, DefaultContextWindow, adj.contextWindow)
}
