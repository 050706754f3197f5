package driven

// ConfigStore provides access to persisted configuration. Keys use dot
// notation (e.g. "providers.completion"); nested tables flatten on load.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	Get(key string) (any, bool)

	// GetString retrieves a string configuration value.
	GetString(key string) string

	// GetInt retrieves an integer configuration value.
	GetInt(key string) int

	// GetBool retrieves a boolean configuration value.
	GetBool(key string) bool

	// GetStringSlice retrieves a string slice configuration value.
	GetStringSlice(key string) []string

	// Section collects every key under the prefix into a map keyed by
	// the remainder, for handing provider-specific settings to builders.
	Section(prefix string) map[string]any

	// Set stores a configuration value and persists immediately.
	Set(key string, value any) error

	// Save persists the current configuration.
	Save() error

	// Load re-reads configuration from the backing store.
	Load() error
}
