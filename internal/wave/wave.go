// Package wave runs a set of independent issues concurrently, bounded by a
// worker-count semaphore, and gathers every result without short-circuiting
// on the first failure. A worker crashing or returning a failed status never
// aborts its siblings in the same wave.
package wave

import (
	"context"
	"sync"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// RunFunc executes one issue on a dedicated worker slot (0-indexed within
// the wave) and returns its result. A panic inside RunFunc is recovered by
// Execute and reported as an error result for that issue.
type RunFunc func(ctx context.Context, workerSlot int, issueID string) types.WorkerResult

type slotResult struct {
	index  int
	result types.WorkerResult
}

// Execute runs issueIDs concurrently, at most maxParallelism at a time, and
// returns their results in the same order as issueIDs. It blocks until every
// issue has been attempted; ctx cancellation stops new launches but results
// already in flight still complete and are returned.
func Execute(ctx context.Context, issueIDs []string, maxParallelism int, run RunFunc) []types.WorkerResult {
	n := len(issueIDs)
	if n == 0 {
		return nil
	}

	concurrency := maxParallelism
	if concurrency <= 0 || concurrency > n {
		concurrency = n
	}

	semaphore := make(chan struct{}, concurrency)
	resultsCh := make(chan slotResult, n)

	var wg sync.WaitGroup

launch:
	for i, issueID := range issueIDs {
		if ctx.Err() != nil {
			break launch
		}
		select {
		case <-ctx.Done():
			resultsCh <- slotResult{index: i, result: types.WorkerResult{
				IssueID: issueID,
				Status:  types.ResultError,
				Error:   ctx.Err().Error(),
			}}
			continue
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					resultsCh <- slotResult{index: slot, result: types.WorkerResult{
						IssueID: id,
						Status:  types.ResultError,
						Error:   recoveredPanicMessage(r),
					}}
				}
			}()

			result := run(ctx, slot, id)
			resultsCh <- slotResult{index: slot, result: result}
		}(i, issueID)

		if ctx.Err() != nil {
			break launch
		}
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	ordered := make([]types.WorkerResult, n)
	filled := make([]bool, n)
	for sr := range resultsCh {
		ordered[sr.index] = sr.result
		filled[sr.index] = true
	}

	// Any issue whose goroutine never launched (context cancelled before its
	// turn) still gets a synthetic failed result so callers can rely on
	// len(result) == len(issueIDs).
	for i, ok := range filled {
		if !ok {
			ordered[i] = types.WorkerResult{
				IssueID: issueIDs[i],
				Status:  types.ResultError,
				Error:   "wave cancelled before this issue started",
			}
		}
	}

	return ordered
}

func recoveredPanicMessage(r any) string {
	if err, ok := r.(error); ok {
		return "panic: " + err.Error()
	}
	return "panic in worker goroutine"
}
