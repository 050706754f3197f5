// Package chunker converts parsed rulebooks into retrieval-ready chunks.
// It honours three invariants: tables are atomic, no text chunk exceeds
// the max token bound, and context-poor chunks below the min bound are
// merged into a neighbour instead of being indexed standalone.
package chunker

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// Default token bounds. Token counts are estimated at len/4 characters;
// the estimate is deliberately not a real tokenizer so chunk counts stay
// deterministic under test.
const (
	DefaultMaxTokens     = 800
	DefaultMinTokens     = 200
	DefaultTargetTokens  = 400
	DefaultOverlapTokens = 50
)

// sentenceEnd matches a sentence terminator followed by whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// paragraphBreak matches a blank-line paragraph delimiter.
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunker splits parsed documents into token-bounded chunks.
type Chunker struct {
	maxTokens     int
	minTokens     int
	targetTokens  int
	overlapTokens int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxTokens sets the upper bound for non-table chunks.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithMinTokens sets the bound below which chunks are merged forward.
func WithMinTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minTokens = n
		}
	}
}

// WithTargetTokens sets the grouping target for recursive splitting.
func WithTargetTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.targetTokens = n
		}
	}
}

// WithOverlapTokens sets the overlap carried between adjacent chunks.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens:     DefaultMaxTokens,
		minTokens:     DefaultMinTokens,
		targetTokens:  DefaultTargetTokens,
		overlapTokens: DefaultOverlapTokens,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Keep the bounds coherent
	if c.minTokens >= c.maxTokens {
		c.minTokens = c.maxTokens / 4
	}
	if c.targetTokens > c.maxTokens {
		c.targetTokens = c.maxTokens
	}

	return c
}

// rawChunk is an intermediate chunk before merging, overlap and indexing.
type rawChunk struct {
	text        string
	headerPath  string
	pageNumber  *int
	sectionType domain.SectionType
}

// Chunk converts a parsed document into indexable chunks.
// Empty documents produce no chunks.
func (c *Chunker) Chunk(doc *domain.ParsedDocument) []domain.Chunk {
	if doc == nil {
		return nil
	}

	sections := doc.Sections
	if len(sections) == 0 && strings.TrimSpace(doc.RawText) != "" {
		// Structure extraction found nothing; fall back to flat text.
		sections = []domain.ParsedSection{{
			Content:     doc.RawText,
			SectionType: domain.SectionText,
		}}
	}

	var raw []rawChunk
	for _, section := range sections {
		raw = append(raw, c.chunkSection(section)...)
	}

	raw = c.mergeSmall(raw)
	c.addOverlap(raw)

	return c.finalise(raw)
}

// chunkSection produces raw chunks for one section.
func (c *Chunker) chunkSection(section domain.ParsedSection) []rawChunk {
	content := strings.TrimSpace(section.Content)
	if content == "" {
		return nil
	}

	// Tables are atomic: one chunk verbatim, however large.
	if section.SectionType == domain.SectionTable {
		return []rawChunk{{
			text:        section.Content,
			headerPath:  section.HeaderPath,
			pageNumber:  section.PageNumber,
			sectionType: domain.SectionTable,
		}}
	}

	parts := c.splitText(content)
	chunks := make([]rawChunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, rawChunk{
			text:        part,
			headerPath:  section.HeaderPath,
			pageNumber:  section.PageNumber,
			sectionType: section.SectionType,
		})
	}
	return chunks
}

// splitText recursively splits text until every piece fits maxTokens.
// Strategy order: paragraph boundaries, then sentence boundaries, then a
// fixed character window as last resort.
func (c *Chunker) splitText(text string) []string {
	if domain.EstimateTokens(text) <= c.maxTokens {
		return []string{text}
	}

	parts := splitParagraphs(text)
	sep := "\n\n"
	if len(parts) <= 1 {
		parts = splitSentences(text)
		sep = " "
	}
	if len(parts) <= 1 {
		return c.hardSplit(text)
	}

	var out []string
	for _, group := range c.groupParts(parts, sep) {
		if group == text {
			// Grouping made no progress; force a window split.
			out = append(out, c.hardSplit(group)...)
			continue
		}
		out = append(out, c.splitText(group)...)
	}
	return out
}

// groupParts concatenates consecutive parts toward targetTokens.
func (c *Chunker) groupParts(parts []string, sep string) []string {
	var groups []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			groups = append(groups, current.String())
			current.Reset()
		}
	}

	for _, part := range parts {
		candidate := part
		if current.Len() > 0 {
			candidate = current.String() + sep + part
		}
		if current.Len() > 0 && domain.EstimateTokens(candidate) > c.targetTokens {
			flush()
			current.WriteString(part)
			continue
		}
		current.Reset()
		current.WriteString(candidate)
	}
	flush()

	return groups
}

// hardSplit cuts text at a fixed character window (targetTokens worth).
func (c *Chunker) hardSplit(text string) []string {
	window := c.targetTokens * 4
	if window <= 0 {
		window = DefaultTargetTokens * 4
	}

	var out []string
	for start := 0; start < len(text); start += window {
		end := start + window
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
	}
	return out
}

// mergeSmall merges chunks below minTokens into the immediately
// following chunk. Tables never participate: a table chunk's text must
// remain exactly the source table content. A trailing small chunk is
// folded into its predecessor instead. A merge that would push the
// combined text past maxTokens is skipped; the max bound outranks the
// min bound, so such a chunk stands alone.
func (c *Chunker) mergeSmall(chunks []rawChunk) []rawChunk {
	if len(chunks) < 2 {
		return chunks
	}

	out := make([]rawChunk, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		cur := chunks[i]
		if cur.sectionType == domain.SectionTable || domain.EstimateTokens(cur.text) >= c.minTokens {
			out = append(out, cur)
			continue
		}

		if i+1 < len(chunks) && c.canAbsorb(cur, chunks[i+1]) {
			// Prepend into the following chunk.
			next := &chunks[i+1]
			next.text = cur.text + "\n\n" + next.text
			if next.pageNumber == nil {
				next.pageNumber = cur.pageNumber
			}
			continue
		}

		if n := len(out); n > 0 && c.canAbsorb(cur, out[n-1]) {
			// No usable successor; fold into the predecessor.
			prev := &out[n-1]
			prev.text = prev.text + "\n\n" + cur.text
			if prev.pageNumber == nil {
				prev.pageNumber = cur.pageNumber
			}
			continue
		}

		out = append(out, cur)
	}
	return out
}

// canAbsorb reports whether other can take cur's text without crossing
// the max token bound. Tables never absorb.
func (c *Chunker) canAbsorb(cur, other rawChunk) bool {
	if other.sectionType == domain.SectionTable {
		return false
	}
	return domain.EstimateTokens(cur.text+"\n\n"+other.text) <= c.maxTokens
}

// addOverlap prepends the tail of each chunk's predecessor, trimmed to a
// word boundary and marked with an ellipsis. Table chunks are skipped to
// keep their text verbatim.
func (c *Chunker) addOverlap(chunks []rawChunk) {
	if c.overlapTokens <= 0 {
		return
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i].sectionType == domain.SectionTable {
			continue
		}
		tail := overlapTail(chunks[i-1].text, c.overlapTokens*4)
		if tail == "" {
			continue
		}
		chunks[i].text = "... " + tail + "\n\n" + chunks[i].text
	}
}

// overlapTail returns the last maxChars of text trimmed forward to a
// word boundary.
func overlapTail(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	tail := text[len(text)-maxChars:]
	if idx := strings.IndexAny(tail, " \t\n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

// finalise prepends header paths, assigns contiguous indices and
// computes final token estimates.
func (c *Chunker) finalise(chunks []rawChunk) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(chunks))
	for i, rc := range chunks {
		text := rc.text
		if rc.headerPath != "" && rc.sectionType != domain.SectionTable {
			text = rc.headerPath + ": " + text
		}
		out = append(out, domain.Chunk{
			Text:          text,
			HeaderPath:    rc.headerPath,
			PageNumber:    rc.pageNumber,
			SectionType:   rc.sectionType,
			ChunkIndex:    i,
			TokenEstimate: domain.EstimateTokens(text),
		})
	}
	return out
}

// splitParagraphs splits text at blank-line delimiters, dropping empties.
func splitParagraphs(text string) []string {
	parts := paragraphBreak.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits text after sentence terminators.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// Cut after the terminator, before the following whitespace.
		end := loc[0] + 1
		if s := strings.TrimSpace(text[last:end]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}
