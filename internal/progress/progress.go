// Package progress renders the live display for a parallel run: tier
// headers, per-worker status lines, progress bars, and summaries. Every
// printer here is a pure consumer of the types package's progress structs —
// none of them mutate state, matching the coordinator's "passive data,
// dumb printers" model.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

var (
	colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	successColor = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	labelColor   = color.New(color.FgCyan)
)

func colorize(c *color.Color, s string) string {
	if !colorEnabled {
		return s
	}
	return c.Sprint(s)
}

// PrintTierHeader prints the banner that opens a tier's execution.
func PrintTierHeader(tierNum int, description string, issueCount int) {
	bar := strings.Repeat("=", 70)
	fmt.Println()
	fmt.Println(bar)
	fmt.Printf("  %s: %s — %d issue(s)\n", colorize(labelColor, fmt.Sprintf("TIER %d", tierNum)), description, issueCount)
	fmt.Println(bar)
	fmt.Println()
}

// PrintWorkerStatus prints one line per worker, in worker-index order.
func PrintWorkerStatus(workers map[int]*types.WorkerState) {
	indices := make([]int, 0, len(workers))
	for idx := range workers {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		w := workers[idx]
		title := padTitle(w.IssueTitle, 20)
		status := fmt.Sprintf("[%s]", w.Status)
		statusColored := colorize(statusColorFor(w.Status), status)
		fmt.Printf("  Worker %d: %s %s %-16s %s\n", w.WorkerIndex, w.IssueID, title, statusColored, elapsedString(w.Elapsed()))
	}
}

func statusColorFor(status types.WorkerStatus) *color.Color {
	switch status {
	case types.StatusDone:
		return successColor
	case types.StatusFailed, types.StatusConflict:
		return failColor
	default:
		return warnColor
	}
}

func padTitle(title string, width int) string {
	if len(title) > width {
		title = title[:width]
	}
	return fmt.Sprintf("%-*s", width, title)
}

func elapsedString(d time.Duration) string {
	secs := int(d.Seconds())
	mins := secs / 60
	secs = secs % 60
	return fmt.Sprintf("%dm %02ds", mins, secs)
}

// PrintProgressBar prints a one-line overall/tier progress summary, followed
// by the re-queued and failed issue lists when non-empty.
func PrintProgressBar(p *types.OverallProgress) {
	tierStr := ""
	workersActive, workersTotal := 0, 0
	if tier := p.CurrentTier; tier != nil {
		tierStr = fmt.Sprintf("Tier: %d/%d complete | ", tier.Completed(), tier.TotalIssues)
		workersActive = tier.ActiveWorkers()
		workersTotal = len(tier.Workers)
	}

	fmt.Println()
	fmt.Printf("  %sOverall: %s/%s done | Workers: %d/%d active | Elapsed: %s\n",
		tierStr,
		humanize.Comma(int64(p.OverallCompleted())), humanize.Comma(int64(p.TotalIssues)),
		workersActive, workersTotal, elapsedString(time.Since(p.StartTime)))

	if len(p.RequeuedIssues) > 0 {
		fmt.Printf("  Requeued (merge conflict): %s\n", joinSorted(p.RequeuedIssues))
	}
	if len(p.FailedIssues) > 0 {
		fmt.Printf("  Failed: %s\n", joinSorted(p.FailedIssues))
	}
	fmt.Println()
}

// PrintTierSummary prints the per-tier wrap-up after its waves and merge
// phase complete.
func PrintTierSummary(tier *types.TierProgress, mergeResults map[string]bool) {
	merged, conflicts := 0, 0
	for _, ok := range mergeResults {
		if ok {
			merged++
		} else {
			conflicts++
		}
	}

	fmt.Println()
	fmt.Printf("  --- Tier %d Summary ---\n", tier.TierNum)
	fmt.Printf("  Completed: %d/%d\n", tier.Completed(), tier.TotalIssues)
	if tier.Failed() > 0 {
		fmt.Printf("  Failed: %d\n", tier.Failed())
	}
	fmt.Printf("  Merged: %d branch(es)\n", merged)
	if conflicts > 0 {
		fmt.Printf("  Merge conflicts: %d (re-queued)\n", conflicts)
	}
	fmt.Println()
}

// PrintParallelSummary prints the final summary once every tier and the
// sequential retry pass have finished.
func PrintParallelSummary(p *types.OverallProgress) {
	bar := strings.Repeat("=", 70)
	fmt.Println()
	fmt.Println(bar)
	fmt.Println(colorize(labelColor, "  PARALLEL EXECUTION COMPLETE"))
	fmt.Println(bar)
	fmt.Printf("  Total issues processed: %s/%s\n", humanize.Comma(int64(p.OverallCompleted())), humanize.Comma(int64(p.TotalIssues)))
	fmt.Printf("  Tiers completed: %d/%d\n", p.TiersCompleted, p.TotalTiers)
	fmt.Printf("  Total elapsed time: %s\n", elapsedString(time.Since(p.StartTime)))
	if len(p.FailedIssues) > 0 {
		fmt.Printf("  Failed issues: %s\n", joinSorted(p.FailedIssues))
	}
	if len(p.RequeuedIssues) > 0 {
		fmt.Printf("  Requeued issues: %s\n", joinSorted(p.RequeuedIssues))
	}
	fmt.Println(bar)
	fmt.Println()
}

// LoadWorkerResult reads and parses the worker's result descriptor file. It
// returns (nil, false) for a missing file or any parse failure — the worker
// contract tolerates a malformed or absent descriptor, leaving the
// coordinator to synthesize a failure result instead of erroring out.
func LoadWorkerResult(path string) (*types.WorkerResult, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var result types.WorkerResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func joinSorted(set map[string]struct{}) string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}
