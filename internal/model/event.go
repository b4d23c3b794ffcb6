// Package model holds domain event types shared between layers.
package model

import "time"

// CircuitOpenedEvent is emitted when the dispatch circuit trips to OPEN.
type CircuitOpenedEvent struct {
	FailureCount int32
	OpenedAt     time.Time
}

// CircuitRecoveredEvent is emitted when a HALF_OPEN trial succeeds and the
// circuit returns to CLOSED.
type CircuitRecoveredEvent struct {
	DownFor     time.Duration
	RecoveredAt time.Time
}
