// Package docstrip provides a document parser adapter built on the
// poppler pdftotext tool. It recovers a section hierarchy from the
// text layer using layout heuristics: headings become header paths,
// column-aligned runs become tables, bullet runs become lists.
package docstrip

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.DocumentParser = (*Parser)(nil)

// ErrPDFToolNotFound indicates pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// Heading heuristics.
const (
	// maxHeadingLen is the longest line still considered a heading.
	maxHeadingLen = 60

	// maxTitleLen is the longest first line still usable as a title.
	maxTitleLen = 200
)

// listMarker matches bullet and numbered list lines.
var listMarker = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)

// columnGap matches the multi-space runs pdftotext -layout emits
// between table columns.
var columnGap = regexp.MustCompile(`\S {3,}\S`)

// CommandRunner executes an external command and returns its stdout.
// Injectable for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Parser extracts hierarchical sections from PDF files.
type Parser struct {
	runner CommandRunner
}

// New creates a new parser using the system pdftotext.
func New() *Parser {
	return &Parser{runner: execRunner{}}
}

// NewWithRunner creates a parser with an injected command runner.
func NewWithRunner(runner CommandRunner) *Parser {
	return &Parser{runner: runner}
}

// CheckAvailable reports whether pdftotext is installed.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions returns platform install hints for the tool.
func InstallInstructions() string {
	return `pdftotext is required for PDF parsing.

  macOS:  brew install poppler
  Debian: apt install poppler-utils
  Fedora: dnf install poppler-utils`
}

// Parse reads the file and returns its structured content. maxPages
// limits how far into the document to read; zero means all pages.
func (p *Parser) Parse(ctx context.Context, path string, maxPages int) (*domain.ParsedDocument, error) {
	args := []string{"-layout"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, "-")

	out, err := p.runner.Run(ctx, "pdftotext", args...)
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	text := string(out)

	// pdftotext separates pages with form feeds.
	pages := strings.Split(text, "\f")
	for len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	sections := extractSections(pages)

	doc := &domain.ParsedDocument{
		Sections: sections,
		Metadata: map[string]any{
			"page_count": len(pages),
			"title":      extractTitle(text, path),
		},
		RawText: strings.TrimSpace(text),
	}
	return doc, nil
}

// sectionBuilder accumulates lines into one section.
type sectionBuilder struct {
	headerPath  string
	page        int
	sectionType domain.SectionType
	lines       []string
}

// extractSections walks the per-page text and splits it into typed
// sections under heading paths.
func extractSections(pages []string) []domain.ParsedSection {
	var sections []domain.ParsedSection
	var current *sectionBuilder

	// Two-level header tracking: chapter (all caps) and section.
	var chapter, heading string

	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(current.lines, "\n"))
		if content != "" {
			page := current.page
			sections = append(sections, domain.ParsedSection{
				HeaderPath:  current.headerPath,
				Content:     content,
				PageNumber:  &page,
				SectionType: current.sectionType,
			})
		}
		current = nil
	}

	headerPath := func() string {
		switch {
		case chapter != "" && heading != "":
			return chapter + " > " + heading
		case chapter != "":
			return chapter
		default:
			return heading
		}
	}

	for pageIdx, pageText := range pages {
		pageNum := pageIdx + 1
		lines := strings.Split(pageText, "\n")

		for i := 0; i < len(lines); i++ {
			line := strings.TrimRight(lines[i], " \t")
			trimmed := strings.TrimSpace(line)

			if trimmed == "" {
				if current != nil {
					current.lines = append(current.lines, "")
				}
				continue
			}

			if isHeading(trimmed) {
				flush()
				if isAllCaps(trimmed) {
					chapter = titleCase(trimmed)
					heading = ""
				} else {
					heading = trimmed
				}
				continue
			}

			lineType := classifyLine(line)

			// Peek ahead: a single aligned line is not a table, but two
			// or more consecutive ones are.
			if lineType == domain.SectionTable && !nextLineIsTabular(lines, i) &&
				(current == nil || current.sectionType != domain.SectionTable) {
				lineType = domain.SectionText
			}

			if current == nil || current.sectionType != lineType || current.headerPath != headerPath() {
				flush()
				current = &sectionBuilder{
					headerPath:  headerPath(),
					page:        pageNum,
					sectionType: lineType,
				}
			}
			current.lines = append(current.lines, line)
		}
	}
	flush()

	return sections
}

// classifyLine types a single content line.
func classifyLine(line string) domain.SectionType {
	if columnGap.MatchString(strings.TrimSpace(line)) {
		return domain.SectionTable
	}
	if listMarker.MatchString(line) {
		return domain.SectionList
	}
	return domain.SectionText
}

// nextLineIsTabular reports whether the following non-empty line also
// has column alignment.
func nextLineIsTabular(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			return false
		}
		return columnGap.MatchString(trimmed)
	}
	return false
}

// isHeading applies the heading heuristics: short, no terminal
// punctuation, and either all caps or title case.
func isHeading(line string) bool {
	if len(line) == 0 || len(line) > maxHeadingLen {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") ||
		strings.HasSuffix(line, ";") || strings.HasSuffix(line, ":") {
		return false
	}
	if listMarker.MatchString(line) {
		return false
	}
	if !unicode.IsLetter(rune(line[0])) {
		return false
	}
	return isAllCaps(line) || isTitleCase(line)
}

// isAllCaps reports whether every letter in the line is upper case and
// at least one letter exists.
func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isTitleCase reports whether most words start with an upper-case
// letter. Short connective words are ignored.
func isTitleCase(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 8 {
		return false
	}

	capped := 0
	counted := 0
	for _, w := range words {
		r := rune(w[0])
		if !unicode.IsLetter(r) {
			continue
		}
		if len(w) <= 3 && counted > 0 {
			// connectives like "of", "the", "and"
			continue
		}
		counted++
		if unicode.IsUpper(r) {
			capped++
		}
	}
	return counted > 0 && capped == counted
}

// titleCase converts an all-caps heading to title case for readable
// header paths.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// extractTitle takes the first reasonable line of the document, falling
// back to the cleaned filename.
func extractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > maxTitleLen {
			continue
		}
		return line
	}

	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
