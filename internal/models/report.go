package models

import (
	"fmt"
	"time"
)

// Per-item outcomes reported at the end of a batch run.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ItemResult is the outcome of one item within a batch run.
type ItemResult struct {
	ItemID     string     `json:"item_id"`
	ExternalID string     `json:"external_id,omitempty"`
	Outcome    string     `json:"outcome"`
	Reason     string     `json:"reason,omitempty"`
	PublishAt  *time.Time `json:"publish_at,omitempty"`
}

// RunReport summarizes a batch run. Every run ends with explicit counts;
// per-item failures carry the reason string.
type RunReport struct {
	RunID      string       `json:"run_id"`
	Phase      string       `json:"phase"`
	Channel    string       `json:"channel"`
	DryRun     bool         `json:"dry_run,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []ItemResult `json:"results"`
}

// Add appends a result to the report.
func (r *RunReport) Add(res ItemResult) {
	r.Results = append(r.Results, res)
}

// Counts returns (succeeded, failed, skipped).
func (r *RunReport) Counts() (succeeded, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSucceeded:
			succeeded++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return
}

// Summary renders the one-line totals printed at the end of every run.
func (r *RunReport) Summary() string {
	s, f, sk := r.Counts()
	return fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped", r.Phase, s, f, sk)
}
