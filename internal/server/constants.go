package server

import "time"

// Server configuration constants
const (
	// Text truncation limit for API responses
	TextPreviewLimit = 500

	// Largest accepted rules document.
	MaxRulesBytes = 1 << 20

	// Per-connection websocket rate limit.
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// Bound on a single websocket write so a stalled client cannot pin a
	// broadcaster goroutine.
	WriteTimeout = 5 * time.Second

	DefaultActionLimit = 50
	MaxActionLimit     = 1000
)
