package types

import "time"

// BreakerState is a read-only snapshot of one source's circuit breaker,
// exposed through the status API.
type BreakerState struct {
	SourceID         string
	State            string // "closed", "open", "half-open"
	ConsecutiveFails int
	OpenedAt         time.Time
}
