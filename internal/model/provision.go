package model

import "time"

// ProvisionOutcome represents the result of submitting one alert
type ProvisionOutcome string

const (
	ProvisionOutcomeCreated  ProvisionOutcome = "created"
	ProvisionOutcomeConflict ProvisionOutcome = "conflict"
	ProvisionOutcomeFailed   ProvisionOutcome = "failed"
	ProvisionOutcomeDryRun   ProvisionOutcome = "dry_run"
)

// ProvisionEvent is published after every submission attempt
type ProvisionEvent struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id"`
	AlertName  string           `json:"alert_name"`
	Metric     string           `json:"metric"`
	Outcome    ProvisionOutcome `json:"outcome"`
	StatusCode int              `json:"status_code,omitempty"`
	Error      string           `json:"error,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Timestamp  time.Time        `json:"timestamp"`
}
