package models

import "time"

// Event types recorded by the engine.
const (
	EventFetchFailed         = "FETCH_FAILED"
	EventFetchRecovered      = "FETCH_RECOVERED"
	EventSimulationStarted   = "SIMULATION_STARTED"
	EventPhaseChange         = "PHASE_CHANGE"
	EventSimulationCompleted = "SIMULATION_COMPLETED"
	EventSimulationCancelled = "SIMULATION_CANCELLED"
	EventAutoRefresh         = "AUTO_REFRESH"
)

// EngineEvent is a single audit log entry.
type EngineEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // FETCH_FAILED | PHASE_CHANGE | ...
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
