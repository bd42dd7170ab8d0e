// Package coordinator implements the top-level parallel execution state
// machine: plan the issue set into tiers, sync against the remote tracker,
// run each tier's waves through isolated worktrees and worker subprocesses,
// merge successful branches back onto the main line, retry merge conflicts
// sequentially, and clean up.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cloud-shuttle/parallel-coordinator/internal/progress"
	"github.com/cloud-shuttle/parallel-coordinator/internal/scheduler"
	"github.com/cloud-shuttle/parallel-coordinator/internal/telemetry"
	"github.com/cloud-shuttle/parallel-coordinator/internal/trackerclient"
	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
	"github.com/cloud-shuttle/parallel-coordinator/internal/vcs"
	"github.com/cloud-shuttle/parallel-coordinator/internal/wave"
)

const branchPrefix = "parallel"

func branchName(issueID string) string { return fmt.Sprintf("%s/%s", branchPrefix, issueID) }

// Notifier reports run milestones to an external channel. Every method is
// best-effort: implementations must never block the coordinator on a
// delivery failure.
type Notifier interface {
	SendParallelStart(totalIssues, totalTiers, maxWorkers int)
	SendTierComplete(tierNum int, description string, completed, failed int)
	SendIssueComplete(issueID string)
	SendIssueFailed(issueID, reason string)
	SendRunSummary(completed, failed, requeued, total int)
}

// noopNotifier discards every milestone; used when the caller configures no
// notification transport.
type noopNotifier struct{}

func (noopNotifier) SendParallelStart(int, int, int)        {}
func (noopNotifier) SendTierComplete(int, string, int, int) {}
func (noopNotifier) SendIssueComplete(string)               {}
func (noopNotifier) SendIssueFailed(string, string)         {}
func (noopNotifier) SendRunSummary(int, int, int, int)      {}

// Config holds everything the coordinator needs for one run.
type Config struct {
	ProjectDir       string
	WorktreeRoot     string // defaults to "<ProjectDir>/.workers" when empty
	WorkerBinaryPath string
	ModelTag         string
	AgentPath        string
	MaxWorkers       int
	TrackerBaseURL   string
	TrackerAPIKey    string
	Verbose          bool
}

// Coordinator runs the full parallel execution state machine for one
// invocation against a fixed set of issues.
type Coordinator struct {
	cfg      Config
	vcs      *vcs.Driver
	tracker  *trackerclient.Client
	notifier Notifier
}

// New builds a Coordinator. notifier may be nil, in which case milestones
// are silently discarded.
func New(cfg Config, notifier Notifier) (*Coordinator, error) {
	if cfg.MaxWorkers < 1 || cfg.MaxWorkers > 5 {
		return nil, fmt.Errorf("max workers must be 1-5, got %d", cfg.MaxWorkers)
	}
	if cfg.WorktreeRoot == "" {
		cfg.WorktreeRoot = filepath.Join(cfg.ProjectDir, ".workers")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	driver := vcs.NewDriver(cfg.ProjectDir)
	driver.SetVerbose(cfg.Verbose)

	tracker := trackerclient.NewClient(cfg.TrackerBaseURL, cfg.TrackerAPIKey)
	tracker.SetVerbose(cfg.Verbose)

	return &Coordinator{cfg: cfg, vcs: driver, tracker: tracker, notifier: notifier}, nil
}

// Run executes the full state machine for issues. initialized reports
// whether the project has already been bootstrapped; when false, Run
// aborts immediately, matching the "abort this run if initialization did
// not complete" contract — bootstrapping itself is an external
// collaborator's responsibility, not the coordinator's.
func (c *Coordinator) Run(ctx context.Context, issues []types.Issue, initialized bool) error {
	if err := os.MkdirAll(c.cfg.ProjectDir, 0o755); err != nil {
		return fmt.Errorf("creating project dir: %w", err)
	}

	// Phase 1: initialize.
	if !initialized {
		return fmt.Errorf("project is not initialized; run sequential initialization first")
	}
	if len(issues) == 0 {
		return fmt.Errorf("no issues to schedule")
	}

	// Phase 2: plan.
	plan, err := scheduler.LoadPlan(c.cfg.ProjectDir)
	if err != nil {
		return fmt.Errorf("loading plan: %w", err)
	}
	if plan == nil {
		built := scheduler.BuildPlan(issues, c.cfg.MaxWorkers)
		plan = &built
		if _, err := scheduler.SavePlan(*plan, c.cfg.ProjectDir); err != nil {
			return fmt.Errorf("saving plan: %w", err)
		}
		log.Printf("  [coordinator] plan saved to .parallel_plan.json")
	} else {
		log.Printf("  [coordinator] loaded existing plan from .parallel_plan.json")
	}

	log.Printf("\n  Execution Plan: %d issues in %d tiers", plan.TotalIssues, len(plan.Tiers))
	for _, tier := range plan.Tiers {
		mode := fmt.Sprintf("parallel (up to %d)", c.cfg.MaxWorkers)
		if tier.Sequential {
			mode = "sequential"
		}
		log.Printf("    Tier %d: %s - %d issue(s) [%s]", tier.Tier, tier.Description, tier.Size(), mode)
	}

	issueLookup := make(map[string]types.Issue, len(issues))
	var allIdentifiers []string
	for _, issue := range issues {
		issueLookup[issue.ID] = issue
		allIdentifiers = append(allIdentifiers, issue.ID)
	}

	// Phase 3: sync state.
	syncCtx, syncSpan := telemetry.StartTrackerSpan(ctx, telemetry.SpanTrackerCheckStatus,
		attribute.Int("coordinator.issue_count", len(allIdentifiers)))
	check := c.tracker.CheckStatuses(syncCtx, allIdentifiers)
	syncSpan.End()
	completed := make(map[string]struct{}, len(check.Completed))
	for id := range check.Completed {
		completed[id] = struct{}{}
	}
	for id := range check.Cancelled {
		completed[id] = struct{}{}
	}

	overall := types.NewOverallProgress(plan.TotalIssues, completed, len(plan.Tiers))
	c.notifier.SendParallelStart(plan.TotalIssues, len(plan.Tiers), c.cfg.MaxWorkers)

	if overall.OverallCompleted() >= plan.TotalIssues {
		log.Printf("  [coordinator] all issues already done upstream")
		return nil
	}

	var requeued []string
	requeuedSeen := make(map[string]struct{})

	resultsDir := filepath.Join(c.cfg.ProjectDir, ".worker_results")
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	// Phase 4: execute tiers.
	for {
		// Issues re-queued after a merge conflict wait for the sequential
		// retry pass instead of being re-offered by the tier scan.
		scheduled := make(map[string]struct{}, len(completed)+len(requeuedSeen))
		for id := range completed {
			scheduled[id] = struct{}{}
		}
		for id := range requeuedSeen {
			scheduled[id] = struct{}{}
		}
		readyIDs, tier := scheduler.GetReady(*plan, scheduled)
		if tier == nil {
			break
		}

		tierIDs := filterOut(readyIDs, scheduled)
		if len(tierIDs) == 0 {
			overall.TiersCompleted++
			continue
		}

		tierProgress := types.NewTierProgress(tier.Tier, tier.Description, len(tierIDs))
		overall.CurrentTier = tierProgress
		progress.PrintTierHeader(tier.Tier, tier.Description, len(tierIDs))

		maxWorkers := c.cfg.MaxWorkers
		if tier.Sequential {
			maxWorkers = 1
		}

		tierCtx, tierSpan := telemetry.StartCoordinatorSpan(ctx, telemetry.SpanCoordinatorTier,
			attribute.Int(telemetry.KeyTierIndex, tier.Tier))
		tierStart := time.Now()
		results := c.runTierWaves(tierCtx, tierIDs, issueLookup, resultsDir, maxWorkers, tierProgress)
		mergeOutcomes := c.mergePhase(tierCtx, results, issueLookup, completed, overall, tierProgress, &requeued, requeuedSeen)
		telemetry.RecordTierDuration(tierCtx, tier.Tier, time.Since(tierStart))
		tierSpan.End()

		progress.PrintTierSummary(tierProgress, mergeOutcomes)
		c.notifier.SendTierComplete(tier.Tier, tier.Description, tierProgress.Completed(), tierProgress.Failed())
		overall.TiersCompleted++
	}

	// Phase 5: sequential retry.
	if len(requeued) > 0 {
		log.Printf("\n  SEQUENTIAL RETRY: merge-conflicted issues (%d)", len(requeued))
		retryProgress := types.NewTierProgress(99, "sequential retry (merge conflicts)", len(requeued))
		overall.CurrentTier = retryProgress

		for _, issueID := range requeued {
			results := c.runTierWaves(ctx, []string{issueID}, issueLookup, resultsDir, 1, retryProgress)
			result, ok := results[issueID]
			if !ok || result.Status != types.ResultSuccess {
				continue
			}
			branch := result.Branch
			if branch == "" {
				branch = branchName(issueID)
			}
			mr := c.vcs.Merge(ctx, branch)
			if mr.Success {
				completed[issueID] = struct{}{}
				overall.CompletedIssues[issueID] = struct{}{}
				delete(overall.RequeuedIssues, issueID)
				c.vcs.DeleteBranch(ctx, branch)
				c.notifier.SendIssueComplete(issueID)
			}
		}
	}

	// Phase 6: cleanup.
	if err := c.vcs.CleanupWorktrees(ctx, c.cfg.WorktreeRoot); err != nil {
		log.Printf("  [coordinator] warning: cleanup failed: %v", err)
	}

	progress.PrintParallelSummary(overall)
	c.notifier.SendRunSummary(overall.OverallCompleted(), len(overall.FailedIssues), len(overall.RequeuedIssues), overall.TotalIssues)

	if overall.OverallCompleted() >= plan.TotalIssues {
		log.Printf("\nAll issues completed.")
	}
	return nil
}

func filterOut(ids []string, done map[string]struct{}) []string {
	var out []string
	for _, id := range ids {
		if _, ok := done[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// runTierWaves splits issueIDs into waves of size <= maxWorkers and runs
// each wave to completion before starting the next, returning every
// worker's result keyed by issue ID.
func (c *Coordinator) runTierWaves(ctx context.Context, issueIDs []string, issueLookup map[string]types.Issue, resultsDir string, maxWorkers int, tierProgress *types.TierProgress) map[string]types.WorkerResult {
	allResults := make(map[string]types.WorkerResult, len(issueIDs))

	for waveStart := 0; waveStart < len(issueIDs); waveStart += maxWorkers {
		end := waveStart + maxWorkers
		if end > len(issueIDs) {
			end = len(issueIDs)
		}
		waveIDs := issueIDs[waveStart:end]
		log.Printf("\n  [coordinator] starting wave: %d worker(s)", len(waveIDs))

		results := wave.Execute(ctx, waveIDs, maxWorkers, func(ctx context.Context, slot int, issueID string) types.WorkerResult {
			workerIndex := waveStart + slot
			return c.runOneIssue(ctx, issueLookup[issueID], workerIndex, resultsDir, tierProgress)
		})

		for _, result := range results {
			allResults[result.IssueID] = result
		}

		progress.PrintWorkerStatus(tierProgress.Workers)
	}

	return allResults
}

// runOneIssue creates the worktree, spawns the worker subprocess, loads its
// result descriptor, and tears the worktree down. Any failure along the way
// becomes a synthesized error result rather than propagating.
func (c *Coordinator) runOneIssue(ctx context.Context, issue types.Issue, workerIndex int, resultsDir string, tierProgress *types.TierProgress) types.WorkerResult {
	branch := branchName(issue.ID)
	worktreeDir := vcs.WorktreePath(c.cfg.WorktreeRoot, workerIndex)
	resultPath := filepath.Join(resultsDir, issue.ID+".json")
	issueStart := time.Now()
	defer func() { telemetry.RecordWorkerDuration(ctx, issue.ID, time.Since(issueStart)) }()

	tierProgress.Workers[workerIndex] = &types.WorkerState{
		WorkerIndex: workerIndex,
		IssueID:     issue.ID,
		IssueTitle:  issue.Title,
		Status:      types.StatusStarting,
	}

	if err := c.vcs.CreateWorktree(ctx, worktreeDir, branch); err != nil {
		return types.WorkerResult{
			IssueID: issue.ID,
			Status:  types.ResultError,
			Branch:  branch,
			Error:   fmt.Sprintf("failed to create worktree: %v", err),
		}
	}

	code, spawnErr := c.spawnWorker(ctx, WorkerCommand{
		Issue:       issue,
		WorktreeDir: worktreeDir,
		Branch:      branch,
		ProjectDir:  c.cfg.ProjectDir,
		ResultPath:  resultPath,
		WorkerIndex: workerIndex,
	})

	_ = c.vcs.RemoveWorktree(ctx, worktreeDir)

	now := time.Now()
	if ws := tierProgress.Workers[workerIndex]; ws != nil {
		ws.EndTime = &now
	}

	if spawnErr != nil {
		tierProgress.FailedIDs[issue.ID] = struct{}{}
		if ws := tierProgress.Workers[workerIndex]; ws != nil {
			ws.Status = types.StatusFailed
		}
		return types.WorkerResult{
			IssueID: issue.ID,
			Status:  types.ResultError,
			Branch:  branch,
			Error:   fmt.Sprintf("worker raised exception: %v", spawnErr),
		}
	}

	result, ok := progress.LoadWorkerResult(resultPath)
	if !ok {
		result = &types.WorkerResult{
			IssueID: issue.ID,
			Status:  types.ResultError,
			Branch:  branch,
			Error:   "no result file produced",
		}
	}
	_ = code // exit code is informational only; the result descriptor is authoritative

	if ws := tierProgress.Workers[workerIndex]; ws != nil {
		if result.Status == types.ResultSuccess {
			ws.Status = types.StatusDone
		} else {
			ws.Status = types.StatusFailed
			tierProgress.FailedIDs[issue.ID] = struct{}{}
		}
	}

	return *result
}

// mergePhase attempts to merge every successful worker's branch onto the
// main line, one at a time, in issue-ID order. Every terminal outcome -
// merged, worker failure, or non-conflict merge failure - adds the issue to
// completed so the tier scan in Run never re-offers it; only a merge
// conflict leaves it out of completed and re-queues it for the sequential
// retry pass instead.
func (c *Coordinator) mergePhase(ctx context.Context, results map[string]types.WorkerResult, issueLookup map[string]types.Issue, completed map[string]struct{}, overall *types.OverallProgress, tierProgress *types.TierProgress, requeued *[]string, requeuedSeen map[string]struct{}) map[string]bool {
	mergeOutcomes := make(map[string]bool)

	var issueIDs []string
	for id := range results {
		issueIDs = append(issueIDs, id)
	}
	sort.Strings(issueIDs)

	for _, issueID := range issueIDs {
		result := results[issueID]
		if result.Status != types.ResultSuccess {
			completed[issueID] = struct{}{}
			overall.FailedIssues[issueID] = struct{}{}
			tierProgress.FailedIDs[issueID] = struct{}{}
			c.notifier.SendIssueFailed(issueID, result.Error)
			telemetry.RecordIssueFailed(ctx, issueID, result.Error)
			continue
		}

		branch := result.Branch
		if branch == "" {
			branch = branchName(issueID)
		}
		mr := c.vcs.Merge(ctx, branch)

		switch {
		case mr.Success:
			mergeOutcomes[issueID] = true
			completed[issueID] = struct{}{}
			overall.CompletedIssues[issueID] = struct{}{}
			tierProgress.CompletedIDs[issueID] = struct{}{}
			c.vcs.DeleteBranch(ctx, branch)
			c.notifier.SendIssueComplete(issueID)
			telemetry.RecordIssueCompleted(ctx, issueID)
		case mr.Conflict:
			mergeOutcomes[issueID] = false
			overall.RequeuedIssues[issueID] = struct{}{}
			if _, seen := requeuedSeen[issueID]; !seen {
				requeuedSeen[issueID] = struct{}{}
				*requeued = append(*requeued, issueID)
			}
			log.Printf("  [coordinator] %s re-queued due to merge conflict", issueID)
			telemetry.RecordIssueRequeued(ctx, issueID)
		default:
			mergeOutcomes[issueID] = false
			completed[issueID] = struct{}{}
			overall.FailedIssues[issueID] = struct{}{}
			tierProgress.FailedIDs[issueID] = struct{}{}
			c.notifier.SendIssueFailed(issueID, mr.Error)
			telemetry.RecordIssueFailed(ctx, issueID, mr.Error)
		}
	}

	return mergeOutcomes
}
