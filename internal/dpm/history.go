package dpm

import (
	"context"
	"errors"
	"time"
)

// ErrTransitionNotFound is returned when a transition ID is unknown.
var ErrTransitionNotFound = errors.New("dpm: transition not found")

// Transition results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// PhaseResult is the outcome of one phase sweep within a transition.
type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Verb     string        `json:"verb"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Transition records one call to Manager.Enter.
type Transition struct {
	ID           string        `json:"id"`
	Event        string        `json:"event"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Result       string        `json:"result"`
	Error        string        `json:"error,omitempty"`
	FailedDevice string        `json:"failed_device,omitempty"`
	RolledBack   bool          `json:"rolled_back"`
	Phases       []PhaseResult `json:"phases"`
}

// Duration returns the wall time of the transition.
func (t *Transition) Duration() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}

// HistoryStore persists finished transitions.
type HistoryStore interface {
	Save(ctx context.Context, t *Transition) error
	List(ctx context.Context, limit int) ([]Transition, error)
	Get(ctx context.Context, id string) (*Transition, error)
}
