// Package models defines data structures shared by the bot, the cleaning
// pipeline and the workflow.
package models

import "time"

// FileCandidate is one accepted entry of the remote export listing.
type FileCandidate struct {
	Name string `json:"name"`
	// Timestamp holds the decimal digits of the name's timestamp without
	// leading zeros; order it with parser.CompareTimestamps.
	Timestamp string `json:"timestamp"`
	// Position is the index of the link in the scanned listing.
	Position int `json:"position"`
}

// AttemptOutcome is the terminal state of a BotAttempt.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// BotAttempt records one pass through login, generate and download.
type BotAttempt struct {
	Index     int            `json:"index"`
	Outcome   AttemptOutcome `json:"outcome"`
	Path      string         `json:"path,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// DownloadResult is the terminal value of a bot run. Path is empty unless a
// file was downloaded and verified on disk.
type DownloadResult struct {
	RunID      string       `json:"run_id"`
	Path       string       `json:"path,omitempty"`
	TargetDate string       `json:"target_date,omitempty"`
	Attempts   []BotAttempt `json:"attempts"`
	// Fatal is set when a precondition failed before any session started.
	Fatal     string    `json:"fatal,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// OK reports whether the run produced a file.
func (r DownloadResult) OK() bool {
	return r.Path != ""
}

// FailedAttempts counts attempts that ended in failure.
func (r DownloadResult) FailedAttempts() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeFailure {
			n++
		}
	}
	return n
}

// ProbeReport is the outcome of the preflight check of the login page.
type ProbeReport struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code"`
	Reachable  bool          `json:"reachable"`
	Missing    []string      `json:"missing,omitempty"`
	ErrorType  string        `json:"error_type,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
	Duration   time.Duration `json:"duration"`
}

// Healthy reports whether the page was reachable with every expected control.
func (r ProbeReport) Healthy() bool {
	return r.Reachable && len(r.Missing) == 0
}
