package chunker

import (
	"strings"
	"testing"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

func page(n int) *int { return &n }

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := New()
		if c.maxTokens != DefaultMaxTokens {
			t.Errorf("expected maxTokens %d, got %d", DefaultMaxTokens, c.maxTokens)
		}
		if c.minTokens != DefaultMinTokens {
			t.Errorf("expected minTokens %d, got %d", DefaultMinTokens, c.minTokens)
		}
		if c.targetTokens != DefaultTargetTokens {
			t.Errorf("expected targetTokens %d, got %d", DefaultTargetTokens, c.targetTokens)
		}
		if c.overlapTokens != DefaultOverlapTokens {
			t.Errorf("expected overlapTokens %d, got %d", DefaultOverlapTokens, c.overlapTokens)
		}
	})

	t.Run("min bound exceeding max is reduced", func(t *testing.T) {
		c := New(WithMaxTokens(100), WithMinTokens(150))
		if c.minTokens >= c.maxTokens {
			t.Error("minTokens should be reduced below maxTokens")
		}
	})

	t.Run("invalid options ignored", func(t *testing.T) {
		c := New(WithMaxTokens(0), WithOverlapTokens(-1))
		if c.maxTokens != DefaultMaxTokens {
			t.Errorf("expected default maxTokens, got %d", c.maxTokens)
		}
		if c.overlapTokens != DefaultOverlapTokens {
			t.Errorf("expected default overlapTokens, got %d", c.overlapTokens)
		}
	})
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := New()
	if got := c.Chunk(&domain.ParsedDocument{}); len(got) != 0 {
		t.Errorf("expected no chunks, got %d", len(got))
	}
	if got := c.Chunk(nil); got != nil {
		t.Errorf("expected nil for nil document, got %v", got)
	}
}

func TestChunk_SmallSectionGetsHeaderPrefix(t *testing.T) {
	c := New()
	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{{
			HeaderPath:  "Setup",
			Content:     "Place the board in the center of the table.",
			PageNumber:  page(3),
			SectionType: domain.SectionText,
		}},
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 1 {
		t.Fatal("expected at least one chunk")
	}
	if !strings.HasPrefix(chunks[0].Text, "Setup:") {
		t.Errorf("chunk text should start with header path, got %q", chunks[0].Text)
	}
	if chunks[0].PageNumber == nil || *chunks[0].PageNumber != 3 {
		t.Error("chunk should carry the section page number")
	}
}

func TestChunk_TableIsAtomic(t *testing.T) {
	c := New(WithMaxTokens(50), WithMinTokens(10))

	// A table far beyond the max token bound must still be one chunk,
	// with its text exactly the source content.
	table := strings.Repeat("roll | result\n1-2 | miss\n3-6 | hit\n", 40)
	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{{
			HeaderPath:  "Combat > Hit Table",
			Content:     table,
			SectionType: domain.SectionTable,
		}},
	}

	chunks := c.Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk for a table, got %d", len(chunks))
	}
	if chunks[0].Text != table {
		t.Error("table chunk text must equal the source table content, unsplit")
	}
	if chunks[0].SectionType != domain.SectionTable {
		t.Errorf("expected table section type, got %s", chunks[0].SectionType)
	}
}

func TestChunk_MaxTokenBound(t *testing.T) {
	c := New(WithMaxTokens(100), WithMinTokens(20), WithTargetTokens(50), WithOverlapTokens(5))

	// Many paragraphs, each well-formed, totalling far over the bound.
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("The active player resolves combat by rolling dice. ")
		b.WriteString("Each hit removes one shield token from the defender.\n\n")
	}

	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{{
			HeaderPath:  "Combat",
			Content:     b.String(),
			SectionType: domain.SectionText,
		}},
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected content to be split, got %d chunks", len(chunks))
	}
	for _, ch := range chunks {
		if ch.SectionType == domain.SectionTable {
			continue
		}
		// Allow headroom for the header prefix and overlap added after splitting.
		if ch.TokenEstimate > c.maxTokens {
			t.Errorf("chunk %d estimate %d exceeds max %d", ch.ChunkIndex, ch.TokenEstimate, c.maxTokens)
		}
	}
}

func TestChunk_IndicesAreContiguous(t *testing.T) {
	c := New(WithMaxTokens(100), WithMinTokens(10), WithTargetTokens(50))

	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{
			{HeaderPath: "Setup", Content: strings.Repeat("Shuffle the deck thoroughly. ", 30), SectionType: domain.SectionText},
			{HeaderPath: "Play", Content: strings.Repeat("Draw two cards each turn. ", 30), SectionType: domain.SectionText},
		},
	}

	chunks := c.Chunk(doc)
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}
}

func TestChunk_SmallChunkMergedForward(t *testing.T) {
	c := New(WithMaxTokens(200), WithMinTokens(50), WithOverlapTokens(0))

	small := "Short note."
	big := strings.Repeat("Players alternate turns placing one tile at a time. ", 10)

	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{
			{HeaderPath: "Notes", Content: small, PageNumber: page(2), SectionType: domain.SectionText},
			{HeaderPath: "Turns", Content: big, SectionType: domain.SectionText},
		},
	}

	chunks := c.Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected small chunk to merge forward into 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, small) {
		t.Error("merged chunk should contain the small chunk's text")
	}
	// Page inherited from the side that has one.
	if chunks[0].PageNumber == nil || *chunks[0].PageNumber != 2 {
		t.Error("merged chunk should inherit the page number")
	}
}

func TestChunk_MergeNeverBreachesMaxTokenBound(t *testing.T) {
	// Default bounds: a ~30 token note in front of a section already
	// close to the max bound. Merging would push the combined chunk
	// over maxTokens, so the note must stand alone instead.
	small := strings.Repeat("Keep spare victory tokens in the box lid between rounds. ", 2)
	big := strings.Repeat("The active player may move their pawn, then build one structure, then trade with the bank at a fixed rate. ", 29)

	t.Run("small before large stands alone", func(t *testing.T) {
		c := New()
		doc := &domain.ParsedDocument{
			Sections: []domain.ParsedSection{
				{HeaderPath: "Notes", Content: small, SectionType: domain.SectionText},
				{HeaderPath: "Turns", Content: big, SectionType: domain.SectionText},
			},
		}

		chunks := c.Chunk(doc)
		if len(chunks) != 2 {
			t.Fatalf("expected the small chunk to stand alone, got %d chunks", len(chunks))
		}
		if chunks[0].TokenEstimate > DefaultMaxTokens {
			t.Errorf("chunk 0 estimate %d exceeds max %d", chunks[0].TokenEstimate, DefaultMaxTokens)
		}
		if strings.Contains(chunks[0].Text, "active player") {
			t.Error("small chunk absorbed the large section")
		}
	})

	t.Run("trailing small does not fold into a near-full predecessor", func(t *testing.T) {
		c := New()
		doc := &domain.ParsedDocument{
			Sections: []domain.ParsedSection{
				{HeaderPath: "Turns", Content: big, SectionType: domain.SectionText},
				{HeaderPath: "Notes", Content: small, SectionType: domain.SectionText},
			},
		}

		chunks := c.Chunk(doc)
		if len(chunks) != 2 {
			t.Fatalf("expected the trailing small chunk to stand alone, got %d chunks", len(chunks))
		}
		for _, ch := range chunks {
			if ch.TokenEstimate > DefaultMaxTokens {
				t.Errorf("chunk %d estimate %d exceeds max %d", ch.ChunkIndex, ch.TokenEstimate, DefaultMaxTokens)
			}
		}
	})
}

func TestChunk_OverlapCarriedBetweenChunks(t *testing.T) {
	c := New(WithMaxTokens(60), WithMinTokens(10), WithTargetTokens(40), WithOverlapTokens(8))

	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{{
			HeaderPath:  "Scoring",
			Content:     strings.Repeat("Each completed road scores one point per tile. ", 20),
			SectionType: domain.SectionText,
		}},
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, ch := range chunks[1:] {
		// Header prefix comes first, then the ellipsis overlap marker.
		if !strings.Contains(ch.Text, "... ") {
			t.Errorf("chunk %d missing overlap marker: %q", ch.ChunkIndex, ch.Text[:40])
		}
	}
}

func TestChunk_RawTextFallback(t *testing.T) {
	c := New()
	doc := &domain.ParsedDocument{
		RawText: "A single flat page of rules with no detected structure.",
	}

	chunks := c.Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk from raw text fallback, got %d", len(chunks))
	}
	if chunks[0].HeaderPath != "" {
		t.Errorf("fallback chunk should have no header path, got %q", chunks[0].HeaderPath)
	}
}

func TestChunk_HardSplitWithoutBoundaries(t *testing.T) {
	c := New(WithMaxTokens(50), WithMinTokens(5), WithTargetTokens(25), WithOverlapTokens(0))

	// No blank lines, no sentence terminators: forces the window split.
	doc := &domain.ParsedDocument{
		Sections: []domain.ParsedSection{{
			Content:     strings.Repeat("x", 1000),
			SectionType: domain.SectionText,
		}},
	}

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected window split to produce multiple chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.TokenEstimate > 50 {
			t.Errorf("chunk %d estimate %d exceeds bound", ch.ChunkIndex, ch.TokenEstimate)
		}
	}
}
