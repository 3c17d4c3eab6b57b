package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/snapwatch/snapwatch/internal/capture"
)

// PrintLine prints one finished snapshot's line to stdout.
func PrintLine(id string, status Status, score float64, dur time.Duration) {
	switch status {
	case StatusPass:
		fmt.Printf("  PASS  %-60s %8s\n", id, dur.Truncate(time.Millisecond))
	case StatusFail:
		fmt.Printf("  FAIL  %-60s score=%.4f %8s\n", id, score, dur.Truncate(time.Millisecond))
	case StatusNew:
		fmt.Printf("  NEW   %-60s %8s\n", id, dur.Truncate(time.Millisecond))
	}
}

// PrintErrorLine reports a capture that errored out entirely.
func PrintErrorLine(id, msg string) {
	fmt.Printf("  ERROR %-60s %s\n", id, msg)
}

// PrintRemovedLine reports an orphaned reference with no planned job.
func PrintRemovedLine(id string) {
	fmt.Printf("  REMOVED %-58s (no longer in catalog)\n", id)
}

// ShowProgress prints an in-place "n/total" progress indicator.
func ShowProgress(done, total int) {
	fmt.Printf("\r%d/%d", done, total)
	if done == total {
		fmt.Println()
	}
}

// PrintTimingTable prints a per-snapshot stage timing breakdown.
func PrintTimingTable(names []string, timings []capture.CaptureTimings) {
	fmt.Println("\nTimings:")
	fmt.Printf("  %-50s %8s %8s %8s %8s\n", "snapshot", "nav", "ready", "shot", "total")
	for i, t := range timings {
		fmt.Printf("  %-50s %8s %8s %8s %8s\n",
			names[i],
			t.Navigate.Truncate(time.Millisecond),
			t.WaitReady.Truncate(time.Millisecond),
			t.Screenshot.Truncate(time.Millisecond),
			t.Total.Truncate(time.Millisecond),
		)
	}
}

// PrintTimingSummary prints the slowest and the average total capture
// time across the whole run.
func PrintTimingSummary(timings []capture.CaptureTimings) {
	if len(timings) == 0 {
		return
	}
	totals := make([]time.Duration, len(timings))
	for i, t := range timings {
		totals[i] = t.Total
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] > totals[j] })
	var sum time.Duration
	for _, d := range totals {
		sum += d
	}
	avg := sum / time.Duration(len(totals))
	fmt.Printf("\n  slowest: %s  average: %s  count: %d\n", totals[0].Truncate(time.Millisecond), avg.Truncate(time.Millisecond), len(totals))
}

// PrintActionableSummary lists names grouped by what the user should do
// next.
func PrintActionableSummary(failed, new, errored, removed []string) {
	if len(failed) > 0 {
		fmt.Println("\nFailed (see the diff images under .snapwatch/difference):")
		for _, n := range failed {
			fmt.Println("  " + n)
		}
	}
	if len(new) > 0 {
		fmt.Println("\nNew (run `snapwatch approve` to accept):")
		for _, n := range new {
			fmt.Println("  " + n)
		}
	}
	if len(errored) > 0 {
		fmt.Println("\nErrored:")
		for _, n := range errored {
			fmt.Println("  " + n)
		}
	}
	if len(removed) > 0 {
		fmt.Println("\nRemoved (no longer in catalog; re-run with --prune to delete):")
		for _, n := range removed {
			fmt.Println("  " + n)
		}
	}
}

// PrintSummary prints the final one-line run summary.
func PrintSummary(total, passed, failed, newC, errored, removed int, elapsed time.Duration) {
	fmt.Printf("\n%d total, %d passed, %d failed, %d new, %d errored, %d removed (%s)\n",
		total, passed, failed, newC, errored, removed, elapsed.Truncate(time.Millisecond))
}
