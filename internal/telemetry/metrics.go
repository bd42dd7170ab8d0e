package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meter is the global meter for coordinator metrics.
var meter = otel.Meter("parallel-coordinator")

var (
	issuesCompletedCounter metric.Int64Counter
	issuesFailedCounter    metric.Int64Counter
	issuesRequeuedCounter  metric.Int64Counter
	mergeConflictsCounter  metric.Int64Counter
)

var (
	tierDurationHistogram   metric.Float64Histogram
	workerDurationHistogram metric.Float64Histogram
	worktreeSetupHistogram  metric.Float64Histogram
)

// initMetrics initializes all metric instruments. Must be called after
// Init() has set up the global meter provider.
func initMetrics() error {
	var err error

	if issuesCompletedCounter, err = meter.Int64Counter(
		"coordinator_issues_completed_total",
		metric.WithDescription("Total number of issues merged successfully"),
		metric.WithUnit("{issue}"),
	); err != nil {
		return err
	}

	if issuesFailedCounter, err = meter.Int64Counter(
		"coordinator_issues_failed_total",
		metric.WithDescription("Total number of issues that failed permanently"),
		metric.WithUnit("{issue}"),
	); err != nil {
		return err
	}

	if issuesRequeuedCounter, err = meter.Int64Counter(
		"coordinator_issues_requeued_total",
		metric.WithDescription("Total number of issues re-queued after a merge conflict"),
		metric.WithUnit("{issue}"),
	); err != nil {
		return err
	}

	if mergeConflictsCounter, err = meter.Int64Counter(
		"coordinator_merge_conflicts_total",
		metric.WithDescription("Total number of merge conflicts encountered"),
		metric.WithUnit("{conflict}"),
	); err != nil {
		return err
	}

	if tierDurationHistogram, err = meter.Float64Histogram(
		"coordinator_tier_duration_seconds",
		metric.WithDescription("Duration of a tier's wave execution"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if workerDurationHistogram, err = meter.Float64Histogram(
		"coordinator_worker_duration_seconds",
		metric.WithDescription("Duration of a single worker subprocess"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if worktreeSetupHistogram, err = meter.Float64Histogram(
		"coordinator_worktree_setup_seconds",
		metric.WithDescription("Time to set up a git worktree"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	return nil
}

// InitMetrics initializes metrics. Called automatically by Init; exported
// for explicit initialization in tests or alternate entry points.
func InitMetrics() error {
	return initMetrics()
}

// RecordIssueCompleted records that an issue was merged successfully.
func RecordIssueCompleted(ctx context.Context, issueID string) {
	if issuesCompletedCounter == nil {
		return
	}
	issuesCompletedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(KeyIssueID, issueID)))
}

// RecordIssueFailed records that an issue failed permanently.
func RecordIssueFailed(ctx context.Context, issueID, reason string) {
	if issuesFailedCounter == nil {
		return
	}
	issuesFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(KeyIssueID, issueID),
			attribute.String("coordinator.reason", reason),
		),
	)
}

// RecordIssueRequeued records that an issue was re-queued after a merge
// conflict.
func RecordIssueRequeued(ctx context.Context, issueID string) {
	if issuesRequeuedCounter == nil {
		return
	}
	issuesRequeuedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(KeyIssueID, issueID)))
	if mergeConflictsCounter != nil {
		mergeConflictsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(KeyIssueID, issueID)))
	}
}

// RecordTierDuration records how long a tier's waves took to execute.
func RecordTierDuration(ctx context.Context, tierIndex int, duration time.Duration) {
	if tierDurationHistogram == nil {
		return
	}
	tierDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Int(KeyTierIndex, tierIndex)),
	)
}

// RecordWorkerDuration records how long a single worker subprocess ran.
func RecordWorkerDuration(ctx context.Context, issueID string, duration time.Duration) {
	if workerDurationHistogram == nil {
		return
	}
	workerDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String(KeyIssueID, issueID)),
	)
}

// RecordWorktreeSetup records the time taken to set up a worktree.
func RecordWorktreeSetup(ctx context.Context, duration time.Duration) {
	if worktreeSetupHistogram == nil {
		return
	}
	worktreeSetupHistogram.Record(ctx, duration.Seconds())
}
