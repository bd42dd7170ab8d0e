// Package worker runs the full pipeline for a single issue inside its own
// git worktree: build the task prompt, hand it to the agent subprocess,
// extract the structured result from the transcript, and always write a
// result descriptor — even when the agent fails or the process is
// interrupted — so the coordinator can account for every issue it queued.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// Params describes a single worker invocation, the Go equivalent of the
// worker subprocess's command-line arguments.
type Params struct {
	Issue       types.Issue
	WorktreeDir string
	Branch      string
	ProjectDir  string
	ResultPath  string
}

// Run executes the full pipeline for one issue: builds the prompt, invokes
// runner, extracts the structured result from its transcript, and writes
// the result descriptor to p.ResultPath unconditionally before returning.
//
// The returned error is non-nil when the result descriptor could not be
// written or when the result reports failure; in the latter case the
// descriptor has already been written, mirroring the worker subprocess's
// write-then-signal contract.
func Run(ctx context.Context, runner AgentRunner, p Params) (types.WorkerResult, error) {
	start := time.Now()
	log.Printf("[worker %s] starting: %s", p.Issue.ID, p.Issue.Title)
	log.Printf("[worker %s] worktree: %s", p.Issue.ID, p.WorktreeDir)
	log.Printf("[worker %s] branch: %s", p.Issue.ID, p.Branch)

	prompt := BuildPrompt(p.Issue, p.WorktreeDir, p.Branch, p.ProjectDir)

	transcript, runErr := runner.Run(ctx, p.WorktreeDir, prompt)
	duration := time.Since(start)

	var result types.WorkerResult
	if runErr != nil {
		result = types.WorkerResult{
			IssueID:         p.Issue.ID,
			Status:          types.ResultError,
			Branch:          p.Branch,
			FilesChanged:    nil,
			DurationSeconds: round1(duration.Seconds()),
			Error:           runErr.Error(),
		}
		log.Printf("[worker %s] failed after %.0fs: %v", p.Issue.ID, duration.Seconds(), runErr)
	} else {
		result = extractResult(transcript, p.Issue.ID, p.Branch, duration)
		log.Printf("[worker %s] completed in %.0fs - status: %s", p.Issue.ID, duration.Seconds(), result.Status)
	}

	if err := WriteResult(p.ResultPath, result); err != nil {
		return result, fmt.Errorf("writing result: %w", err)
	}

	if result.Status != types.ResultSuccess {
		return result, fmt.Errorf("worker reported status %q: %s", result.Status, result.Error)
	}
	return result, nil
}

// extractResult parses the agent's transcript for a fenced ```json block
// reporting status and files_changed. Parsing is best-effort: a missing or
// malformed block defaults to a success result with no files recorded,
// matching the worker subprocess's tolerant parsing.
func extractResult(transcript, issueID, branch string, duration time.Duration) types.WorkerResult {
	result := types.WorkerResult{
		IssueID:         issueID,
		Status:          types.ResultSuccess,
		Branch:          branch,
		DurationSeconds: round1(duration.Seconds()),
	}

	const fence = "```json"
	start := strings.Index(transcript, fence)
	if start == -1 {
		return result
	}
	start += len(fence)
	end := strings.Index(transcript[start:], "```")
	if end == -1 {
		return result
	}

	var parsed struct {
		Status       string   `json:"status"`
		FilesChanged []string `json:"files_changed"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(transcript[start:start+end])), &parsed); err != nil {
		return result
	}

	if parsed.Status == types.ResultError {
		result.Status = types.ResultError
		result.Error = "worker reported error in response"
	}
	result.FilesChanged = parsed.FilesChanged
	return result
}

func round1(seconds float64) float64 {
	return float64(int(seconds*10+0.5)) / 10
}

// WriteResult writes result as indented JSON to path, creating parent
// directories as needed. Called unconditionally so a crashed or
// interrupted worker still leaves a descriptor for the coordinator to read.
func WriteResult(path string, result types.WorkerResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating result dir: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	return nil
}

// InterruptedResult builds the result descriptor written when a worker is
// interrupted (e.g. SIGINT) before it can finish.
func InterruptedResult(issueID, branch string) types.WorkerResult {
	return types.WorkerResult{
		IssueID: issueID,
		Status:  types.ResultError,
		Branch:  branch,
		Error:   "interrupted by user",
	}
}
