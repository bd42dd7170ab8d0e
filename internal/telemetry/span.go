package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer for coordinator spans.
var tracer = otel.Tracer("parallel-coordinator")

// Span names for this domain's operations.
const (
	SpanVCSWorktreeCreate  = "vcs.worktree.create"
	SpanVCSWorktreeRemove  = "vcs.worktree.remove"
	SpanVCSMerge           = "vcs.merge"
	SpanCoordinatorTier    = "coordinator.tier"
	SpanTrackerCheckStatus = "tracker.check_status"
	SpanWorkerRun          = "worker.run"
)

// Attribute keys shared across span and metric instrumentation.
const (
	KeyIssueID   = "coordinator.issue_id"
	KeyBranch    = "coordinator.branch"
	KeyTierIndex = "coordinator.tier_index"
	KeyCategory  = "coordinator.category"
	KeyJobID     = "queue.job_id"
)

// StartVCSSpan starts a span for a git worktree/merge operation.
func StartVCSSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartCoordinatorSpan starts a span for a coordinator-level operation
// (e.g. running one tier's waves).
func StartCoordinatorSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartTrackerSpan starts a span for a remote issue-tracker round trip.
func StartTrackerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
