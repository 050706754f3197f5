package domain

// SectionType classifies a parsed section's content.
type SectionType string

const (
	// SectionText is ordinary prose.
	SectionText SectionType = "text"

	// SectionTable is tabular content. Tables are atomic: the chunker
	// never subdivides them, however large.
	SectionTable SectionType = "table"

	// SectionList is bulleted or numbered list content.
	SectionList SectionType = "list"

	// SectionImageCaption is caption text extracted alongside an image.
	SectionImageCaption SectionType = "image_caption"
)

// ParsedSection is one structural unit of a parsed rulebook.
type ParsedSection struct {
	// HeaderPath is the hierarchical location, e.g. "Combat > Dice Roll".
	HeaderPath string

	// Content is the section text.
	Content string

	// PageNumber is the 1-based source page, when known.
	PageNumber *int

	// SectionType classifies the content.
	SectionType SectionType
}

// ParsedDocument is the output of document parsing.
// Sections preserve source reading order.
type ParsedDocument struct {
	// Sections are the ordered structural units.
	Sections []ParsedSection

	// Metadata holds parser-level facts such as page_count and title.
	Metadata map[string]any

	// RawText is a flat-text fallback for when structure extraction
	// yields nothing usable.
	RawText string
}

// PageCount returns the page_count metadata entry, or 0 if absent.
func (d *ParsedDocument) PageCount() int {
	if d.Metadata == nil {
		return 0
	}
	switch v := d.Metadata["page_count"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Title returns the title metadata entry, or empty string.
func (d *ParsedDocument) Title() string {
	if d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata["title"].(string); ok {
		return s
	}
	return ""
}
