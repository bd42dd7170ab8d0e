// Package types holds the data model shared by every coordinator component.
package types

import "time"

// Issue is an externally defined unit of work tracked by the remote issue tracker.
type Issue struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Category string         `json:"category"`
	Priority string         `json:"priority,omitempty"`
	Extra    map[string]any `json:"-"` // opaque extra fields; never filled by JSON decoding and not passed to the worker prompt
}

// ExecutionTier is an ordered partition of issues the scheduler considers
// mutually independent.
type ExecutionTier struct {
	Tier        int      `json:"tier"`
	Description string   `json:"description"`
	Sequential  bool     `json:"sequential"`
	IssueIDs    []string `json:"issue_ids"`
}

// Size returns the number of issues in the tier.
func (t ExecutionTier) Size() int {
	return len(t.IssueIDs)
}

// ParallelPlan is a persisted snapshot of the scheduler's tiering decision.
type ParallelPlan struct {
	CreatedAt      string          `json:"created_at"`
	MaxParallelism int             `json:"max_parallelism"`
	TotalIssues    int             `json:"total_issues"`
	Tiers          []ExecutionTier `json:"tiers"`
}

// WorkerStatus is the closed set of states a worker can be in during a wave.
type WorkerStatus string

const (
	StatusStarting    WorkerStatus = "starting"
	StatusCoding      WorkerStatus = "coding"
	StatusCodeReview  WorkerStatus = "code_review"
	StatusQA          WorkerStatus = "qa"
	StatusIntegrating WorkerStatus = "integrating"
	StatusDone        WorkerStatus = "done"
	StatusFailed      WorkerStatus = "failed"
	StatusConflict    WorkerStatus = "conflict"
)

// IsActive reports whether the worker has not yet reached a terminal state.
func (s WorkerStatus) IsActive() bool {
	switch s {
	case StatusDone, StatusFailed, StatusConflict:
		return false
	default:
		return true
	}
}

// WorkerState tracks the transient state of one in-flight worker within a wave.
type WorkerState struct {
	WorkerIndex int
	IssueID     string
	IssueTitle  string
	Status      WorkerStatus
	StartTime   time.Time
	EndTime     *time.Time
}

// Elapsed returns how long the worker has been (or was) running.
func (w WorkerState) Elapsed() time.Duration {
	end := time.Now()
	if w.EndTime != nil {
		end = *w.EndTime
	}
	return end.Sub(w.StartTime)
}

// IsActive reports whether the worker has not yet reached a terminal state.
func (w WorkerState) IsActive() bool {
	return w.Status.IsActive()
}

// TierProgress is the per-tier aggregate the coordinator maintains while
// executing a tier's waves.
type TierProgress struct {
	TierNum      int
	Description  string
	TotalIssues  int
	CompletedIDs map[string]struct{}
	FailedIDs    map[string]struct{}
	Workers      map[int]*WorkerState
}

// NewTierProgress builds an empty tier progress tracker.
func NewTierProgress(tierNum int, description string, total int) *TierProgress {
	return &TierProgress{
		TierNum:      tierNum,
		Description:  description,
		TotalIssues:  total,
		CompletedIDs: make(map[string]struct{}),
		FailedIDs:    make(map[string]struct{}),
		Workers:      make(map[int]*WorkerState),
	}
}

// Completed returns the number of completed issues in the tier.
func (t *TierProgress) Completed() int { return len(t.CompletedIDs) }

// Failed returns the number of failed issues in the tier.
func (t *TierProgress) Failed() int { return len(t.FailedIDs) }

// ActiveWorkers returns the count of workers not yet in a terminal state.
func (t *TierProgress) ActiveWorkers() int {
	n := 0
	for _, w := range t.Workers {
		if w.IsActive() {
			n++
		}
	}
	return n
}

// OverallProgress is the top-level aggregate tracked across the whole run.
type OverallProgress struct {
	TotalIssues     int
	CompletedIssues map[string]struct{}
	FailedIssues    map[string]struct{}
	RequeuedIssues  map[string]struct{}
	CurrentTier     *TierProgress
	StartTime       time.Time
	TiersCompleted  int
	TotalTiers      int
}

// NewOverallProgress builds a progress tracker seeded with issues already
// known to be completed (e.g. from the tracker sync phase).
func NewOverallProgress(totalIssues int, completed map[string]struct{}, totalTiers int) *OverallProgress {
	if completed == nil {
		completed = make(map[string]struct{})
	}
	return &OverallProgress{
		TotalIssues:     totalIssues,
		CompletedIssues: completed,
		FailedIssues:    make(map[string]struct{}),
		RequeuedIssues:  make(map[string]struct{}),
		StartTime:       time.Now(),
		TotalTiers:      totalTiers,
	}
}

// OverallCompleted returns the count of issues completed so far.
func (p *OverallProgress) OverallCompleted() int { return len(p.CompletedIssues) }

// Worker result status values, written by the worker subprocess to its
// result descriptor. Distinct from WorkerStatus, which tracks live
// in-progress state for the progress display.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// WorkerResult is the descriptor a worker process writes on exit.
type WorkerResult struct {
	IssueID         string   `json:"issue_id"`
	Status          string   `json:"status"` // ResultSuccess | ResultError
	Branch          string   `json:"branch"`
	FilesChanged    []string `json:"files_changed"`
	DurationSeconds float64  `json:"duration_seconds"`
	Error           string   `json:"error"`
}

// MergeResult is returned by the VCS driver's merge operation.
type MergeResult struct {
	Branch   string
	Success  bool
	Conflict bool
	Error    string
}

// JobStatus is the closed set of states a queue job can be in.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobRunning     JobStatus = "running"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobInterrupted JobStatus = "interrupted"
)

// Job is one entry in the job queue driver's persisted store.
type Job struct {
	ID              string    `json:"id"`
	SpecPath        string    `json:"spec_path"`
	Model           string    `json:"model"`
	MaxIterations   int       `json:"max_iterations"`
	Parallel        bool      `json:"parallel"`
	MaxWorkers      int       `json:"max_workers"`
	Status          JobStatus `json:"status"`
	ProjectDir      string    `json:"project_dir,omitempty"`
	ExitCode        *int      `json:"exit_code,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       string    `json:"created_at"`
	StartedAt       string    `json:"started_at,omitempty"`
	CompletedAt     string    `json:"completed_at,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
}

// Processable reports whether the job is eligible for (re)processing.
func (j Job) Processable() bool {
	switch j.Status {
	case JobPending, JobInterrupted, JobRunning:
		return true
	default:
		return false
	}
}

// QueueState is the top-level persisted document for the job queue driver.
type QueueState struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// TrackerStatus is the per-identifier record returned by the tracker client.
type TrackerStatus struct {
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	StateName   string  `json:"state_name"`
	StateType   string  `json:"state_type"`
	CompletedAt *string `json:"completed_at"`
}

// CodebaseLearnings is the corpus consumed by the worker prompt template.
type CodebaseLearnings struct {
	CodebasePatterns  map[string]any `json:"codebase_patterns"`
	CommonMistakes    []string       `json:"common_mistakes"`
	EffectivePatterns []string       `json:"effective_patterns"`
	ReviewFindings    []string       `json:"review_findings"`
}
