package docstrip

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	args   []string
}

func (m *mockRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	m.args = args
	return m.output, m.err
}

const samplePDFText = `CATAN RULEBOOK

SETUP

Game Board
Place the hexes on the table as shown in the diagram.
Each player takes five settlements of one colour.

Resource Costs
Road          1 brick   1 lumber
Settlement    1 brick   1 lumber   1 wool   1 grain
City          3 ore     2 grain
` + "\f" + `TURN ORDER

On your turn you take these steps:
- Roll the dice for resource production
- Trade with other players
- Build roads, settlements or cities
`

func TestParse(t *testing.T) {
	runner := &mockRunner{output: []byte(samplePDFText)}
	parser := NewWithRunner(runner)

	doc, err := parser.Parse(context.Background(), "/tmp/catan.pdf", 0)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, 2, doc.PageCount())
	assert.Equal(t, "CATAN RULEBOOK", doc.Title())
	assert.NotEmpty(t, doc.RawText)
	require.NotEmpty(t, doc.Sections)

	// Prose under "SETUP > Game Board" lands on page 1.
	var setup *domain.ParsedSection
	for i := range doc.Sections {
		if doc.Sections[i].HeaderPath == "Setup > Game Board" {
			setup = &doc.Sections[i]
			break
		}
	}
	require.NotNil(t, setup, "expected a Setup > Game Board section, got %+v", doc.Sections)
	assert.Equal(t, domain.SectionText, setup.SectionType)
	assert.Contains(t, setup.Content, "five settlements")
	require.NotNil(t, setup.PageNumber)
	assert.Equal(t, 1, *setup.PageNumber)
}

func TestParse_TableDetection(t *testing.T) {
	runner := &mockRunner{output: []byte(samplePDFText)}
	parser := NewWithRunner(runner)

	doc, err := parser.Parse(context.Background(), "/tmp/catan.pdf", 0)
	require.NoError(t, err)

	var table *domain.ParsedSection
	for i := range doc.Sections {
		if doc.Sections[i].SectionType == domain.SectionTable {
			table = &doc.Sections[i]
			break
		}
	}
	require.NotNil(t, table, "expected a table section from the aligned cost rows")
	assert.Contains(t, table.Content, "Settlement")
	assert.Contains(t, table.HeaderPath, "Resource Costs")
}

func TestParse_ListDetection(t *testing.T) {
	runner := &mockRunner{output: []byte(samplePDFText)}
	parser := NewWithRunner(runner)

	doc, err := parser.Parse(context.Background(), "/tmp/catan.pdf", 0)
	require.NoError(t, err)

	var list *domain.ParsedSection
	for i := range doc.Sections {
		if doc.Sections[i].SectionType == domain.SectionList {
			list = &doc.Sections[i]
			break
		}
	}
	require.NotNil(t, list, "expected a list section from the bullet lines")
	assert.Contains(t, list.Content, "Roll the dice")
	require.NotNil(t, list.PageNumber)
	assert.Equal(t, 2, *list.PageNumber)
}

func TestParse_MaxPagesPassedThrough(t *testing.T) {
	runner := &mockRunner{output: []byte("PAGE ONE\n\nsome text")}
	parser := NewWithRunner(runner)

	_, err := parser.Parse(context.Background(), "/tmp/doc.pdf", 3)
	require.NoError(t, err)

	assert.Contains(t, runner.args, "-l")
	assert.Contains(t, runner.args, "3")
}

func TestParse_RunnerError(t *testing.T) {
	runner := &mockRunner{err: errors.New("pdftotext crashed")}
	parser := NewWithRunner(runner)

	_, err := parser.Parse(context.Background(), "/tmp/doc.pdf", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestIsHeading(t *testing.T) {
	assert.True(t, isHeading("SETUP"))
	assert.True(t, isHeading("Game Board"))
	assert.True(t, isHeading("The Longest Road"))

	assert.False(t, isHeading("Place the hexes on the table as shown."))
	assert.False(t, isHeading("- Roll the dice"))
	assert.False(t, isHeading("Components:"))
	assert.False(t, isHeading(""))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Rulebook Title", extractTitle("Rulebook Title\n\nContent here.", "/doc.pdf"))
	assert.Equal(t, "Actual Title", extractTitle("\n\n\nActual Title\nContent", "/doc.pdf"))
	assert.Equal(t, "my rules", extractTitle("", "/path/to/my_rules.pdf"))
}

func TestInstallInstructions(t *testing.T) {
	instructions := InstallInstructions()
	assert.Contains(t, instructions, "pdftotext")
	assert.Contains(t, instructions, "brew install poppler")
	assert.Contains(t, instructions, "apt install poppler-utils")
}
