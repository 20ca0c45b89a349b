package model

import "time"

// RunStatus tracks an evaluation through the pipeline phases.
type RunStatus string

const (
	StatusQueued       RunStatus = "queued"
	StatusRetrieving   RunStatus = "retrieving"
	StatusTransforming RunStatus = "transforming"
	StatusFitting      RunStatus = "fitting"
	StatusComplete     RunStatus = "complete"
	StatusFailed       RunStatus = "failed"
)

// statusRank orders the phases for transition checks. Terminal states have
// no rank.
var statusRank = map[RunStatus]int{
	StatusQueued:       0,
	StatusRetrieving:   1,
	StatusTransforming: 2,
	StatusFitting:      3,
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	if _, ok := statusRank[s]; ok {
		return true
	}
	return s == StatusComplete || s == StatusFailed
}

// Terminal reports whether a run in this status is finished.
func (s RunStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal: forward
// through the phases, completing from fitting, or failing from any
// non-terminal status.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	if next == StatusComplete {
		return s == StatusFitting
	}
	return statusRank[next] > statusRank[s]
}

// Run is one impact evaluation tracked by the runs catalog.
type Run struct {
	ID          string    `json:"id"`
	ConfigPath  string    `json:"config_path"`
	Model       string    `json:"model"`
	Source      string    `json:"source"`
	Status      RunStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	StorageURL  string    `json:"storage_url"`
	ResultsPath string    `json:"results_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
