package orchestrator

import "time"

// Loop configuration defaults.
const (
	DefaultFrameTimeout = 100 * time.Millisecond

	// Backoff after a failed acquire so a broken source does not spin.
	AcquireErrorBackoff = 250 * time.Millisecond

	HistoryMaxEntries  = 500
	HistoryEventBuffer = 100

	ActionBatchMaxSize    = 32
	ActionBatchFlushDelay = 2 * time.Second
)

// Action sources recorded in the history.
const (
	SourceDetection = "detection"
	SourceOCR       = "ocr"
)
