// Package qdrant provides a vector store adapter using the Qdrant REST
// API. Each namespace maps to its own collection, so deleting a
// namespace is a collection drop and queries never cross partitions.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// Default configuration values.
const (
	DefaultURL              = "http://localhost:6333"
	DefaultTimeout          = 30 * time.Second
	DefaultCollectionPrefix = "rules_"
)

// pointIDSpace is the fixed UUIDv5 namespace for deriving Qdrant point
// ids from deterministic record ids. Qdrant only accepts UUID or
// integer ids; the original record id lives in the payload.
var pointIDSpace = uuid.MustParse("9f2c1a30-44d1-4c6f-8b1e-6a0a4c0d7e21")

// Config holds configuration for the Qdrant vector store.
type Config struct {
	// URL is the Qdrant REST endpoint (default: http://localhost:6333).
	URL string

	// APIKey authenticates requests when the server requires it.
	APIKey string

	// CollectionPrefix namespaces this application's collections on a
	// shared server (default: rules_).
	CollectionPrefix string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// VectorStore is a REST client to Qdrant.
type VectorStore struct {
	client *http.Client
	url    string
	apiKey string
	prefix string
}

// point is the Qdrant upsert point format.
type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// searchResponse is the /points/search response format.
type searchResponse struct {
	Result []struct {
		Score   float64         `json:"score"`
		Payload json.RawMessage `json:"payload"`
	} `json:"result"`
}

// collectionInfoResponse is the GET /collections/{name} response format.
type collectionInfoResponse struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}

// New creates a new Qdrant vector store client.
func New(cfg Config) *VectorStore {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &VectorStore{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		prefix: cfg.CollectionPrefix,
	}
}

// collection maps a namespace to its collection name.
func (s *VectorStore) collection(namespace string) string {
	return s.prefix + namespace
}

// pointID derives the UUID point id for a deterministic record id.
func pointID(recordID string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(recordID)).String()
}

// Upsert writes records into the namespace, creating its collection on
// first use. Deterministic point ids make re-ingestion overwrite.
func (s *VectorStore) Upsert(ctx context.Context, records []domain.VectorRecord, namespace string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	if err := s.ensureCollection(ctx, namespace, len(records[0].Values)); err != nil {
		return 0, domain.NewProviderError("qdrant", "upsert", err)
	}

	points := make([]point, len(records))
	for i, r := range records {
		payload, err := metadataPayload(r.ID, r.Metadata)
		if err != nil {
			return 0, domain.NewProviderError("qdrant", "upsert", err)
		}
		points[i] = point{
			ID:      pointID(r.ID),
			Vector:  r.Values,
			Payload: payload,
		}
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection(namespace))
	if err := s.putJSON(ctx, url, map[string]any{"points": points}, nil); err != nil {
		return 0, domain.NewProviderError("qdrant", "upsert", err)
	}
	return len(records), nil
}

// Query returns up to topK matches ranked descending by similarity.
// A missing collection means the namespace holds nothing; that is an
// empty result, not an error.
func (s *VectorStore) Query(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]any) ([]domain.VectorMatch, error) {
	if topK <= 0 {
		topK = 10
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
		reqBody["filter"] = map[string]any{"must": must}
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection(namespace))
	var resp searchResponse
	status, err := s.postJSON(ctx, url, reqBody, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewProviderError("qdrant", "query", err)
	}

	matches := make([]domain.VectorMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, meta, err := decodePayload(r.Payload)
		if err != nil {
			continue
		}
		matches = append(matches, domain.VectorMatch{
			ID:       id,
			Score:    r.Score,
			Metadata: meta,
		})
	}
	return matches, nil
}

// DeleteByIDs removes specific records from the namespace.
func (s *VectorStore) DeleteByIDs(ctx context.Context, ids []string, namespace string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection(namespace))
	status, err := s.postJSON(ctx, url, map[string]any{"points": points}, nil)
	if status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return domain.NewProviderError("qdrant", "delete", err)
	}
	return nil
}

// DeleteNamespace drops the namespace's whole collection.
func (s *VectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection(namespace))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, http.NoBody)
	if err != nil {
		return domain.NewProviderError("qdrant", "delete namespace", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewProviderError("qdrant", "delete namespace", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return domain.NewProviderError("qdrant", "delete namespace",
			fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// NamespaceStats reports the namespace's vector count. A missing
// collection counts as zero.
func (s *VectorStore) NamespaceStats(ctx context.Context, namespace string) (*driven.NamespaceStats, error) {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection(namespace))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, domain.NewProviderError("qdrant", "stats", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NewProviderError("qdrant", "stats", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &driven.NamespaceStats{VectorCount: 0}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewProviderError("qdrant", "stats",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var info collectionInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, domain.NewProviderError("qdrant", "stats", fmt.Errorf("decode response: %w", err))
	}

	return &driven.NamespaceStats{VectorCount: info.Result.PointsCount}, nil
}

// Close releases resources.
func (s *VectorStore) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// ensureCollection creates the namespace's collection if it is missing.
// Qdrant returns a conflict when the collection already exists; that is
// fine as long as the schema matched at creation time.
func (s *VectorStore) ensureCollection(ctx context.Context, namespace string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection(namespace))

	err := s.putJSON(ctx, url, body, func(status int) bool {
		return status == http.StatusConflict
	})
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// metadataPayload flattens metadata into a Qdrant payload, carrying the
// original record id alongside.
func metadataPayload(recordID string, meta domain.VectorMetadata) (map[string]any, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	payload := make(map[string]any)
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("flatten metadata: %w", err)
	}
	payload["vector_id"] = recordID
	return payload, nil
}

// decodePayload recovers the record id and metadata from a payload.
func decodePayload(raw json.RawMessage) (string, domain.VectorMetadata, error) {
	var meta domain.VectorMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", meta, fmt.Errorf("decode payload: %w", err)
	}

	var idHolder struct {
		VectorID string `json:"vector_id"`
	}
	if err := json.Unmarshal(raw, &idHolder); err != nil {
		return "", meta, fmt.Errorf("decode payload id: %w", err)
	}
	return idHolder.VectorID, meta, nil
}

// setHeaders applies content type and optional auth.
func (s *VectorStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

// putJSON PUTs a JSON body. tolerate, when non-nil, marks additional
// status codes as success.
func (s *VectorStore) putJSON(ctx context.Context, url string, body any, tolerate func(int) bool) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if tolerate != nil && tolerate(resp.StatusCode) {
			return nil
		}
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// postJSON POSTs a JSON body and decodes the response into out when
// non-nil, returning the HTTP status for caller-side 404 handling.
func (s *VectorStore) postJSON(ctx context.Context, url string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
