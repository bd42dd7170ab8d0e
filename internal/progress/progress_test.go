package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

func TestLoadWorkerResult_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "T-1.json")
	want := types.WorkerResult{
		IssueID:         "T-1",
		Status:          types.ResultSuccess,
		Branch:          "parallel/T-1",
		FilesChanged:    []string{"a.go"},
		DurationSeconds: 12.3,
	}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok := LoadWorkerResult(path)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.IssueID != want.IssueID || got.Status != want.Status || got.Branch != want.Branch {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadWorkerResult_MissingFile(t *testing.T) {
	_, ok := LoadWorkerResult(filepath.Join(t.TempDir(), "nope.json"))
	if ok {
		t.Fatalf("expected ok=false for missing file")
	}
}

func TestLoadWorkerResult_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, ok := LoadWorkerResult(path)
	if ok {
		t.Fatalf("expected ok=false for malformed JSON")
	}
}

func TestPrintWorkerStatus_DoesNotMutateState(t *testing.T) {
	workers := map[int]*types.WorkerState{
		0: {WorkerIndex: 0, IssueID: "T-1", IssueTitle: "Add auth middleware with a very long title", Status: types.StatusCoding},
		1: {WorkerIndex: 1, IssueID: "T-2", IssueTitle: "Fix typo", Status: types.StatusDone},
	}
	before := *workers[0]

	PrintWorkerStatus(workers)

	if *workers[0] != before {
		t.Errorf("PrintWorkerStatus mutated worker state: got %+v, want %+v", *workers[0], before)
	}
}

func TestPadTitle_TruncatesAndPads(t *testing.T) {
	if got := padTitle("short", 10); len(got) != 10 {
		t.Errorf("padTitle short: got length %d, want 10", len(got))
	}
	if got := padTitle("a very long title indeed", 10); len(got) != 10 {
		t.Errorf("padTitle long: got length %d, want 10", len(got))
	}
}

func TestElapsedString_Format(t *testing.T) {
	cases := map[int]string{
		0:   "0m 00s",
		5:   "0m 05s",
		65:  "1m 05s",
		125: "2m 05s",
	}
	for secs, want := range cases {
		got := elapsedString(time.Duration(secs) * time.Second)
		if got != want {
			t.Errorf("elapsedString(%ds) = %q, want %q", secs, got, want)
		}
	}
}
