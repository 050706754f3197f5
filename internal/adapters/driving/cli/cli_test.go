package cli

import (
	"context"
	"errors"

	audit "github.com/custodia-labs/arbiter/internal/adapters/driven/audit/sqlite"
	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
)

// Shared test doubles for the command tests.

type mockAdjudication struct {
	lastRequest driving.AdjudicationRequest
	verdict     *domain.Verdict
	err         error
}

func (m *mockAdjudication) Adjudicate(_ context.Context, req driving.AdjudicationRequest) (*domain.Verdict, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.verdict, nil
}

type mockIngestionSvc struct {
	lastRequest driving.IngestionRequest
	result      *domain.IngestionResult
	err         error
}

func (m *mockIngestionSvc) Ingest(_ context.Context, req driving.IngestionRequest) (*domain.IngestionResult, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockResolver struct {
	namespaces []string
	err        error
}

func (m *mockResolver) Resolve(_ context.Context, _ string, _ []string) ([]string, error) {
	return m.namespaces, m.err
}

type mockAudit struct {
	recorded []string
	err      error
}

func (m *mockAudit) Record(_ context.Context, sessionID string, _ *domain.Verdict) error {
	m.recorded = append(m.recorded, sessionID)
	return m.err
}

func (m *mockAudit) Close() error { return nil }

type mockAuditLog struct {
	entries []audit.Entry
	err     error
}

func (m *mockAuditLog) Recent(_ context.Context, _ string, _ int) ([]audit.Entry, error) {
	return m.entries, m.err
}

type mockStatsStore struct {
	counts map[string]int
	err    error
}

func (m *mockStatsStore) Upsert(_ context.Context, _ []domain.VectorRecord, _ string) (int, error) {
	return 0, errors.New("not implemented")
}

func (m *mockStatsStore) Query(_ context.Context, _ []float32, _ int, _ string, _ map[string]any) ([]domain.VectorMatch, error) {
	return nil, errors.New("not implemented")
}

func (m *mockStatsStore) DeleteByIDs(_ context.Context, _ []string, _ string) error { return nil }

func (m *mockStatsStore) DeleteNamespace(_ context.Context, _ string) error { return nil }

func (m *mockStatsStore) NamespaceStats(_ context.Context, namespace string) (*driven.NamespaceStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &driven.NamespaceStats{VectorCount: m.counts[namespace]}, nil
}

func (m *mockStatsStore) Close() error { return nil }

func testVerdict() *domain.Verdict {
	return &domain.Verdict{
		Verdict:          "Yes, the robber blocks production on that hex.",
		Confidence:       0.85,
		ConfidenceReason: "errata and base rules agree",
		QueryID:          "q-123",
		LatencyMS:        311,
		ExpandedQuery:    "robber hex production blocked",
		Citations: []domain.Citation{
			{Source: "Catan", Page: 9, Section: "The Robber", Snippet: "No player receives...", IsOfficial: true},
		},
		Conflicts: []domain.Conflict{
			{Description: "The Robber: ERRATA vs BASE", Resolution: "ERRATA overrides BASE"},
		},
	}
}

// setupTestServices wires mocks into the package-level service vars and
// returns a cleanup restoring the previous wiring.
func setupTestServices() func() {
	oldAdjudication := adjudicationService
	oldIngestion := ingestionService
	oldResolver := namespaceResolver
	oldAudit := auditSink
	oldAuditLog := auditLog
	oldVectors := vectorStore

	adjudicationService = &mockAdjudication{verdict: testVerdict()}
	ingestionService = &mockIngestionSvc{result: &domain.IngestionResult{
		Status:     domain.StatusIndexed,
		Namespace:  "user_local",
		PageCount:  24,
		ChunkCount: 42,
	}}
	namespaceResolver = &mockResolver{namespaces: []string{"official_catan", "user_local"}}
	auditSink = &mockAudit{}
	auditLog = &mockAuditLog{}
	vectorStore = &mockStatsStore{counts: map[string]int{"official_catan": 120, "user_local": 7}}

	return func() {
		adjudicationService = oldAdjudication
		ingestionService = oldIngestion
		namespaceResolver = oldResolver
		auditSink = oldAudit
		auditLog = oldAuditLog
		vectorStore = oldVectors
	}
}
