package domain

// SourceType identifies where a ruleset sits in the source hierarchy.
// Higher-priority sources override lower ones when both address the
// same rule: Errata > Expansion > Base.
type SourceType string

const (
	// SourceBase is a core rulebook.
	SourceBase SourceType = "BASE"

	// SourceExpansion is an expansion or supplement.
	SourceExpansion SourceType = "EXPANSION"

	// SourceErrata is official errata or FAQ corrections.
	SourceErrata SourceType = "ERRATA"
)

// sourcePriorities maps source types to their numeric rank.
var sourcePriorities = map[SourceType]int{
	SourceBase:      0,
	SourceExpansion: 10,
	SourceErrata:    100,
}

// Priority returns the numeric rank used for hierarchy resorting and
// conflict resolution. Unknown source types rank lowest.
func (s SourceType) Priority() int {
	return sourcePriorities[s]
}

// Valid returns true if the source type is one of the known values.
func (s SourceType) Valid() bool {
	_, ok := sourcePriorities[s]
	return ok
}

// Ruleset describes one indexed rulebook within a namespace.
type Ruleset struct {
	// ID is the unique ruleset identifier.
	ID string

	// GameName is the human-readable game title.
	GameName string

	// SourceType is the ruleset's place in the source hierarchy.
	SourceType SourceType

	// IsOfficial marks publisher-provided content.
	IsOfficial bool

	// Namespace is the vector store partition holding this ruleset.
	Namespace string
}
