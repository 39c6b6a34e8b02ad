package history

// Defaults for the in-memory action history.
const (
	DefaultMaxEntries  = 500
	DefaultEventBuffer = 100
)
