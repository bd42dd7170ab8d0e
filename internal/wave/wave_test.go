package wave_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
	"github.com/cloud-shuttle/parallel-coordinator/internal/wave"
)

func TestExecute_PreservesOrder(t *testing.T) {
	issues := []string{"A", "B", "C", "D"}
	results := wave.Execute(context.Background(), issues, 2, func(ctx context.Context, slot int, id string) types.WorkerResult {
		return types.WorkerResult{IssueID: id, Status: types.ResultSuccess}
	})

	if len(results) != len(issues) {
		t.Fatalf("got %d results, want %d", len(results), len(issues))
	}
	for i, id := range issues {
		if results[i].IssueID != id {
			t.Errorf("results[%d].IssueID = %q, want %q", i, results[i].IssueID, id)
		}
	}
}

// TestExecute_BoundedConcurrency verifies property: the wave never runs more
// than maxParallelism issues at once.
func TestExecute_BoundedConcurrency(t *testing.T) {
	var current, peak int64
	issues := []string{"A", "B", "C", "D", "E", "F"}

	wave.Execute(context.Background(), issues, 2, func(ctx context.Context, slot int, id string) types.WorkerResult {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return types.WorkerResult{IssueID: id, Status: types.ResultSuccess}
	})

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

// TestExecute_OneFailureDoesNotAbortSiblings verifies property: a failing or
// panicking worker does not prevent other workers in the same wave from
// completing (literal scenario S5).
func TestExecute_OneFailureDoesNotAbortSiblings(t *testing.T) {
	issues := []string{"A", "B", "C"}

	results := wave.Execute(context.Background(), issues, 3, func(ctx context.Context, slot int, id string) types.WorkerResult {
		if id == "B" {
			panic("simulated worker crash")
		}
		return types.WorkerResult{IssueID: id, Status: types.ResultSuccess}
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	byID := make(map[string]types.WorkerResult)
	for _, r := range results {
		byID[r.IssueID] = r
	}

	if byID["A"].Status != types.ResultSuccess {
		t.Errorf("A should have completed, got %+v", byID["A"])
	}
	if byID["C"].Status != types.ResultSuccess {
		t.Errorf("C should have completed, got %+v", byID["C"])
	}
	if byID["B"].Status != types.ResultError || byID["B"].Error == "" {
		t.Errorf("B should have failed with a recorded error, got %+v", byID["B"])
	}
}

func TestExecute_Empty(t *testing.T) {
	results := wave.Execute(context.Background(), nil, 2, func(ctx context.Context, slot int, id string) types.WorkerResult {
		t.Fatal("run function should never be called for an empty issue list")
		return types.WorkerResult{}
	})
	if results != nil {
		t.Errorf("expected nil results for empty input, got %v", results)
	}
}

func TestExecute_ContextCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	issues := []string{"A", "B"}
	results := wave.Execute(ctx, issues, 2, func(ctx context.Context, slot int, id string) types.WorkerResult {
		return types.WorkerResult{IssueID: id, Status: types.ResultSuccess}
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Status != types.ResultError {
			t.Errorf("expected failed status for cancelled context, got %+v", r)
		}
	}
}
