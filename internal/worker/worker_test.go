package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
	"github.com/cloud-shuttle/parallel-coordinator/internal/worker"
)

type fakeAgent struct {
	transcript string
	err        error
}

func (f fakeAgent) Run(ctx context.Context, workDir, prompt string) (string, error) {
	return f.transcript, f.err
}

func readResult(t *testing.T, path string) types.WorkerResult {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result file: %v", err)
	}
	var result types.WorkerResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshaling result file: %v", err)
	}
	return result
}

func TestRun_SuccessWithStructuredResult(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "results", "ISSUE-1.json")

	agent := fakeAgent{transcript: "some narration\n```json\n{\"status\":\"success\",\"files_changed\":[\"a.go\",\"b.go\"]}\n```\ndone"}

	params := worker.Params{
		Issue:       types.Issue{ID: "ISSUE-1", Title: "Do thing", Category: "backend"},
		WorktreeDir: dir,
		Branch:      "parallel/ISSUE-1",
		ProjectDir:  dir,
		ResultPath:  resultPath,
	}

	result, err := worker.Run(context.Background(), agent, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != types.ResultSuccess {
		t.Errorf("status = %q, want success", result.Status)
	}
	if len(result.FilesChanged) != 2 {
		t.Errorf("files_changed = %v, want 2 entries", result.FilesChanged)
	}

	onDisk := readResult(t, resultPath)
	if onDisk.IssueID != "ISSUE-1" {
		t.Errorf("on-disk result issue_id = %q, want ISSUE-1", onDisk.IssueID)
	}
}

func TestRun_NoJSONBlockDefaultsToSuccess(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result.json")

	agent := fakeAgent{transcript: "just plain narration, no fenced block"}
	params := worker.Params{
		Issue:       types.Issue{ID: "ISSUE-2", Title: "x", Category: "feature"},
		WorktreeDir: dir,
		Branch:      "parallel/ISSUE-2",
		ProjectDir:  dir,
		ResultPath:  resultPath,
	}

	result, err := worker.Run(context.Background(), agent, params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != types.ResultSuccess {
		t.Errorf("status = %q, want success (tolerant default)", result.Status)
	}
}

func TestRun_AgentFailureAlwaysWritesResult(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "nested", "result.json")

	agent := fakeAgent{err: errors.New("boom")}
	params := worker.Params{
		Issue:       types.Issue{ID: "ISSUE-3", Title: "x", Category: "feature"},
		WorktreeDir: dir,
		Branch:      "parallel/ISSUE-3",
		ProjectDir:  dir,
		ResultPath:  resultPath,
	}

	_, err := worker.Run(context.Background(), agent, params)
	if err == nil {
		t.Fatal("expected Run to return an error when the agent fails")
	}

	onDisk := readResult(t, resultPath)
	if onDisk.Status != types.ResultError {
		t.Errorf("on-disk status = %q, want error", onDisk.Status)
	}
	if onDisk.Error == "" {
		t.Error("expected a non-empty error on the written result")
	}
}

func TestRun_ExplicitErrorStatusInTranscript(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result.json")

	agent := fakeAgent{transcript: "```json\n{\"status\":\"error\",\"files_changed\":[]}\n```"}
	params := worker.Params{
		Issue:       types.Issue{ID: "ISSUE-4", Title: "x", Category: "feature"},
		WorktreeDir: dir,
		Branch:      "parallel/ISSUE-4",
		ProjectDir:  dir,
		ResultPath:  resultPath,
	}

	result, err := worker.Run(context.Background(), agent, params)
	if err == nil {
		t.Fatal("expected Run to return an error for an explicit error status")
	}
	if result.Status != types.ResultError {
		t.Errorf("status = %q, want error", result.Status)
	}
}
