// Package report accumulates per-snapshot results into a run summary
// and writes both the JSON report and the terminal output.
package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/snapwatch/snapwatch/internal/capture"
)

// Status is the outcome category for one snapshot.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusNew     Status = "new"
	StatusError   Status = "error"
	StatusRemoved Status = "removed"
)

// CaseResult is one snapshot's final result.
type CaseResult struct {
	ID                string                  `json:"id"`
	Status            Status                  `json:"status"`
	Score             float64                 `json:"score,omitempty"`
	DiffPixels        int                     `json:"diff_pixels,omitempty"`
	TotalPixels       int                     `json:"total_pixels,omitempty"`
	DimensionMismatch bool                    `json:"dimension_mismatch,omitempty"`
	PHashDistance     int                     `json:"p_hash_distance,omitempty"`
	Error             string                  `json:"error,omitempty"`
	Timings           *capture.CaptureTimings `json:"timings,omitempty"`
}

// Report is the full run result, written to disk as JSON.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Duration    string       `json:"duration"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	New         int          `json:"new"`
	Errored     int          `json:"errored"`
	Removed     int          `json:"removed"`
	Results     []CaseResult `json:"results"`
}

// Builder accumulates CaseResults and counters as a run streams in.
type Builder struct {
	results []CaseResult
	passed  int
	failed  int
	newC    int
	errored int
	removed int
}

// Add records one finished snapshot result, updating counters.
func (b *Builder) Add(r CaseResult) {
	b.results = append(b.results, r)
	switch r.Status {
	case StatusPass:
		b.passed++
	case StatusFail:
		b.failed++
	case StatusNew:
		b.newC++
	case StatusError:
		b.errored++
	case StatusRemoved:
		b.removed++
	}
}

// Counts returns the current (passed, failed, new, errored, removed).
func (b *Builder) Counts() (passed, failed, newC, errored, removed int) {
	return b.passed, b.failed, b.newC, b.errored, b.removed
}

// Build finalizes a Report for a run that took elapsed.
func (b *Builder) Build(elapsed time.Duration) Report {
	return Report{
		GeneratedAt: timeNow(),
		Duration:    elapsed.String(),
		Total:       len(b.results),
		Passed:      b.passed,
		Failed:      b.failed,
		New:         b.newC,
		Errored:     b.errored,
		Removed:     b.removed,
		Results:     b.results,
	}
}

// ExitCode applies spec's contract: 0 only if there are no fails, no
// new baselines, and no errors. Removed (orphaned) snapshots never
// affect the exit code.
func (b *Builder) ExitCode() int {
	if b.failed > 0 || b.newC > 0 || b.errored > 0 {
		return 1
	}
	return 0
}

// WriteJSON marshals r and writes it to path.
func WriteJSON(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// timeNow is split out so report generation stays swappable in tests
// without reaching for a clock interface for one call site.
var timeNow = time.Now
