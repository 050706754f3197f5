package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/custodia-labs/arbiter/internal/chunker"
	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/core/ports/driving"
	"github.com/custodia-labs/arbiter/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driving.IngestionService = (*Ingestor)(nil)

// Ingestion limits and gates.
const (
	// DefaultMaxFileBytes is the upload size ceiling (50MB).
	DefaultMaxFileBytes = 50 << 20

	// pdfMagic is the required file header.
	pdfMagic = "%PDF-"

	// classifyPages is how many pages the rulebook gate parses.
	classifyPages = 3

	// classifySampleChars is how much text the gate sends to the model.
	classifySampleChars = 3000

	// classifyMaxTokens keeps the yes/no call cheap.
	classifyMaxTokens = 5

	// metadataTextLimit truncates chunk text stored as vector metadata.
	metadataTextLimit = 1000

	// embedBatchSize bounds one embedding call.
	embedBatchSize = 128

	// shredBytes is how much of the file is overwritten before deletion.
	shredBytes = 4096
)

// Ingestor turns untrusted uploaded rulebooks into indexed vectors,
// enforcing validation, classification and indexing layers in order.
// The source file is securely destroyed on exit regardless of outcome.
type Ingestor struct {
	llm          driven.CompletionService
	embedder     driven.EmbeddingService
	vectors      driven.VectorStore
	parser       driven.DocumentParser
	chunker      *chunker.Chunker
	quota        driven.QuotaChecker
	maxFileBytes int64
}

// IngestorOption configures the pipeline.
type IngestorOption func(*Ingestor)

// WithMaxFileBytes overrides the upload size ceiling.
func WithMaxFileBytes(n int64) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxFileBytes = n
		}
	}
}

// WithQuotaChecker enables the per-user daily ingestion quota.
func WithQuotaChecker(q driven.QuotaChecker) IngestorOption {
	return func(i *Ingestor) {
		i.quota = q
	}
}

// NewIngestor creates the ingestion pipeline.
func NewIngestor(
	llm driven.CompletionService,
	embedder driven.EmbeddingService,
	vectors driven.VectorStore,
	parser driven.DocumentParser,
	ck *chunker.Chunker,
	opts ...IngestorOption,
) *Ingestor {
	ing := &Ingestor{
		llm:          llm,
		embedder:     embedder,
		vectors:      vectors,
		parser:       parser,
		chunker:      ck,
		maxFileBytes: DefaultMaxFileBytes,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Ingest runs validation, classification and indexing. Any failure is
// a *domain.IngestionError; the source file is destroyed either way.
func (i *Ingestor) Ingest(ctx context.Context, req driving.IngestionRequest) (result *domain.IngestionResult, err error) {
	defer logger.Stage("Ingestion")()
	logger.Debug("File: %s, ruleset: %s", req.FilePath, req.RulesetID)

	// The upload must never linger on disk, success or failure.
	defer secureDelete(req.FilePath)

	defer func() {
		if err != nil {
			err = domain.WrapProcessingFailure(err)
		}
	}()

	if i.quota != nil && req.UserID != "" {
		ok, qerr := i.quota.Allow(ctx, req.UserID)
		if qerr != nil {
			return nil, fmt.Errorf("quota check: %w", qerr)
		}
		if !ok {
			return nil, domain.NewIngestionError(domain.CodeQuotaExceeded,
				"daily upload limit reached, try again tomorrow")
		}
	}

	// Layer 1: validation.
	hash, verr := i.validate(req.FilePath)
	if verr != nil {
		return nil, verr
	}
	if _, blocked := req.Blocklist[hash]; blocked {
		return nil, domain.NewIngestionError(domain.CodeBlockedFile,
			"this file has been blocked and cannot be indexed")
	}

	// Layer 2: rulebook classification.
	if cerr := i.classify(ctx, req.FilePath); cerr != nil {
		return nil, cerr
	}

	// Layer 3: full parse, chunk, embed, upsert.
	return i.index(ctx, req)
}

// validate checks existence, magic bytes and size, returning the hex
// SHA-256 content hash for blocklist matching.
func (i *Ingestor) validate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", domain.NewIngestionError(domain.CodeValidationError, "uploaded file not found")
	}
	if info.Size() > i.maxFileBytes {
		return "", domain.NewIngestionError(domain.CodeValidationError,
			fmt.Sprintf("file exceeds the %dMB size limit", i.maxFileBytes>>20))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", domain.NewIngestionError(domain.CodeValidationError, "uploaded file could not be read")
	}
	defer f.Close()

	magic := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != pdfMagic {
		return "", domain.NewIngestionError(domain.CodeValidationError, "file is not a PDF")
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", domain.NewIngestionError(domain.CodeValidationError, "uploaded file could not be read")
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", domain.NewIngestionError(domain.CodeValidationError, "uploaded file could not be hashed")
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// classify parses only the leading pages and asks the completion
// capability a strict yes/no question. This cheap gate runs before the
// expensive full parse, chunk and embed work.
func (i *Ingestor) classify(ctx context.Context, path string) error {
	doc, err := i.parser.Parse(ctx, path, classifyPages)
	if err != nil {
		return fmt.Errorf("parse sample: %w", err)
	}

	sample := sampleText(doc, classifySampleChars)
	if strings.TrimSpace(sample) == "" {
		return domain.NewIngestionError(domain.CodeNotARulebook,
			"the document contains no readable text")
	}

	result, err := i.llm.Complete(ctx, []driven.Message{
		{Role: driven.RoleSystem, Content: classifierPrompt},
		{Role: driven.RoleUser, Content: sample},
	}, driven.CompletionOptions{
		Temperature: 0,
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	answer := strings.ToUpper(strings.TrimSpace(result.Content))
	logger.Debug("Classifier answer: %q", answer)
	if !strings.HasPrefix(answer, "YES") {
		return domain.NewIngestionError(domain.CodeNotARulebook,
			"the document does not appear to be a game rulebook")
	}
	return nil
}

// sampleText joins the parsed section contents into one classification
// sample, falling back to the raw text layer, truncated to limit bytes.
func sampleText(doc *domain.ParsedDocument, limit int) string {
	var b strings.Builder
	for _, s := range doc.Sections {
		if b.Len() >= limit {
			break
		}
		b.WriteString(s.Content)
		b.WriteString("\n")
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = doc.RawText
	}
	return truncateToRune(text, limit)
}

// index runs the full parse, chunking, embedding and upsert, then reads
// back namespace stats to confirm the write landed.
func (i *Ingestor) index(ctx context.Context, req driving.IngestionRequest) (*domain.IngestionResult, error) {
	doc, err := i.parser.Parse(ctx, req.FilePath, 0)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	chunks := i.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return nil, domain.NewIngestionError(domain.CodeProcessingFailed,
			"the document produced no indexable content")
	}
	logger.Debug("Chunked into %d chunks", len(chunks))

	vectors, err := i.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	records := buildRecords(req, chunks, vectors)

	namespace := req.Namespace
	if namespace == "" {
		namespace = fmt.Sprintf("user_%s", req.UserID)
	}

	count, err := i.vectors.Upsert(ctx, records, namespace)
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	logger.Debug("Upserted %d vectors into %s", count, namespace)

	stats, err := i.vectors.NamespaceStats(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("confirm upsert: %w", err)
	}

	logger.Info("Indexed ruleset %s: %d chunks, namespace %s now holds %d vectors",
		req.RulesetID, len(chunks), namespace, stats.VectorCount)

	return &domain.IngestionResult{
		RulesetID:   req.RulesetID,
		Namespace:   namespace,
		ChunkCount:  len(chunks),
		VectorCount: stats.VectorCount,
		PageCount:   doc.PageCount(),
		Title:       doc.Title(),
		Status:      domain.StatusIndexed,
	}, nil
}

// embedChunks batch-embeds all chunk texts, preserving order.
func (i *Ingestor) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		result, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(result.Vectors) != len(texts) {
			return nil, fmt.Errorf("embedding batch returned %d vectors for %d texts",
				len(result.Vectors), len(texts))
		}
		vectors = append(vectors, result.Vectors...)
	}

	return vectors, nil
}

// buildRecords pairs chunks with their embeddings as vector records.
// Record ids are deterministic so re-ingestion overwrites.
func buildRecords(req driving.IngestionRequest, chunks []domain.Chunk, vectors [][]float32) []domain.VectorRecord {
	records := make([]domain.VectorRecord, 0, len(chunks))
	for idx, c := range chunks {
		text := truncateToRune(c.Text, metadataTextLimit)

		page := 0
		if c.PageNumber != nil {
			page = *c.PageNumber
		}

		records = append(records, domain.VectorRecord{
			ID:     domain.VectorID(req.RulesetID, c.ChunkIndex),
			Values: vectors[idx],
			Metadata: domain.VectorMetadata{
				Text:           text,
				Page:           page,
				SectionHeader:  c.HeaderPath,
				SourceType:     req.SourceType,
				SourcePriority: req.SourceType.Priority(),
				RulesetID:      req.RulesetID,
				SessionID:      req.SessionID,
				GameName:       req.GameName,
				IsOfficial:     req.IsOfficial,
			},
		})
	}
	return records
}

// secureDelete overwrites the leading bytes of the file with random
// data, syncs, then removes it. Overwrite is best-effort; removal is
// always attempted.
func secureDelete(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	n := info.Size()
	if n > shredBytes {
		n = shredBytes
	}

	if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
		noise := make([]byte, n)
		if _, err := rand.Read(noise); err == nil {
			if _, err := f.WriteAt(noise, 0); err == nil {
				_ = f.Sync()
			}
		}
		f.Close()
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("Failed to remove uploaded file %s: %v", path, err)
		return
	}
	logger.Debug("Destroyed uploaded file %s", path)
}
