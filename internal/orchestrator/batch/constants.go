package batch

import "time"

// Batcher defaults.
const (
	DefaultMaxSize    = 32
	DefaultFlushDelay = 2 * time.Second
)
