// Package queue implements a multi-project job queue: jobs are added with a
// spec file and run options, then processed one at a time by spawning the
// coordinator binary against a swapped-in spec file, restoring the
// original spec afterward regardless of outcome.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

const queueFileName = "queue.json"

// ErrInterrupted is returned by Start when the context is cancelled mid-run,
// so callers can re-raise it as the conventional 130 exit code rather than
// reporting a clean success.
var ErrInterrupted = errors.New("queue: interrupted")

// Store persists and drives a job queue rooted at a data directory.
type Store struct {
	dataDir    string
	specPath   string // the canonical spec file path jobs are swapped into
	runnerPath string // path to the binary invoked per job (e.g. the coordinator)
}

// NewStore returns a Store persisting to dataDir/queue.json, swapping jobs'
// spec files into specPath before invoking runnerPath.
func NewStore(dataDir, specPath, runnerPath string) *Store {
	return &Store{dataDir: dataDir, specPath: specPath, runnerPath: runnerPath}
}

func (s *Store) queueFile() string { return filepath.Join(s.dataDir, queueFileName) }

// Load reads the persisted queue state, or returns an empty state if none
// exists yet.
func (s *Store) Load() (types.QueueState, error) {
	data, err := os.ReadFile(s.queueFile())
	if os.IsNotExist(err) {
		return types.QueueState{Version: 1}, nil
	}
	if err != nil {
		return types.QueueState{}, fmt.Errorf("reading queue file: %w", err)
	}

	var state types.QueueState
	if err := json.Unmarshal(data, &state); err != nil {
		return types.QueueState{}, fmt.Errorf("parsing queue file: %w", err)
	}
	return state, nil
}

// Save persists state to disk.
func (s *Store) Save(state types.QueueState) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating queue data dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue state: %w", err)
	}
	return os.WriteFile(s.queueFile(), append(data, '\n'), 0o644)
}

// Add appends a new job to the queue and persists it. If id is empty, a
// generated UUID is used. Returns an error if id already exists.
func (s *Store) Add(id, specPath, model string, maxIterations int, parallel bool, maxWorkers int) (types.Job, error) {
	state, err := s.Load()
	if err != nil {
		return types.Job{}, err
	}

	if id == "" {
		id = uuid.NewString()
	}
	for _, job := range state.Jobs {
		if job.ID == id {
			return types.Job{}, fmt.Errorf("job with id %q already exists", id)
		}
	}

	job := types.Job{
		ID:            id,
		SpecPath:      specPath,
		Model:         model,
		MaxIterations: maxIterations,
		Parallel:      parallel,
		MaxWorkers:    maxWorkers,
		Status:        types.JobPending,
		CreatedAt:     nowRFC3339(),
	}

	state.Jobs = append(state.Jobs, job)
	if err := s.Save(state); err != nil {
		return types.Job{}, err
	}
	return job, nil
}

// Processable returns every job eligible for (re)processing, preserving
// queue order.
func Processable(state types.QueueState) []types.Job {
	var out []types.Job
	for _, job := range state.Jobs {
		if job.Processable() {
			out = append(out, job)
		}
	}
	return out
}

// Start processes every processable job sequentially. It always persists
// progress after each job, so an interrupted run resumes cleanly: the
// in-flight job is marked JobInterrupted (itself processable) and every
// subsequent job is left untouched. dryRun prints the
// command that would run without executing it. If ctx is cancelled mid-run,
// Start returns ErrInterrupted after persisting and summarizing what ran so
// far, so the caller can re-raise the interruption as exit code 130.
func (s *Store) Start(ctx context.Context, dryRun bool) error {
	state, err := s.Load()
	if err != nil {
		return err
	}

	jobs := Processable(state)
	if len(jobs) == 0 {
		fmt.Println("Queue is empty or all jobs are completed/failed.")
		return nil
	}

	fmt.Printf("Processing %d job(s)...\n\n", len(jobs))

	interrupted := false
	for _, job := range jobs {
		idx := indexByID(state.Jobs, job.ID)
		s.runJob(ctx, &state.Jobs[idx], dryRun)
		if !dryRun {
			if err := s.Save(state); err != nil {
				return fmt.Errorf("saving queue after job %s: %w", job.ID, err)
			}
		}
		if ctx.Err() != nil {
			fmt.Printf("\nInterrupted during job '%s'\n", job.ID)
			interrupted = true
			break
		}
	}

	if !dryRun {
		printSummary(state)
	}
	if interrupted {
		return ErrInterrupted
	}
	return nil
}

func indexByID(jobs []types.Job, id string) int {
	for i, j := range jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

// runJob executes a single job: swap the job's spec file into the
// canonical spec path, run the coordinator binary, capture its exit code,
// and restore the original spec file regardless of outcome.
func (s *Store) runJob(ctx context.Context, job *types.Job, dryRun bool) {
	specSource := job.SpecPath
	if !filepath.IsAbs(specSource) {
		specSource = filepath.Join(filepath.Dir(s.specPath), specSource)
	}
	if _, err := os.Stat(specSource); err != nil {
		job.Status = types.JobFailed
		job.Error = fmt.Sprintf("spec file not found: %s", specSource)
		return
	}

	job.ProjectDir = filepath.Join(filepath.Dir(s.dataDir), "generations", job.ID)
	args := s.buildArgs(*job)

	if dryRun {
		fmt.Printf("  [dry-run] Would execute: %s %v\n", s.runnerPath, args)
		fmt.Printf("  [dry-run] Spec: %s\n", specSource)
		fmt.Printf("  [dry-run] Project dir: %s\n", job.ProjectDir)
		return
	}

	swapped, restore, err := s.swapSpec(specSource)
	if err != nil {
		job.Status = types.JobFailed
		job.Error = fmt.Sprintf("swapping spec file: %v", err)
		return
	}
	if swapped {
		defer restore()
	}

	job.Status = types.JobRunning
	job.StartedAt = nowRFC3339()

	fmt.Printf("\n%s\n", sep())
	fmt.Printf("  QUEUE: Starting job '%s'\n", job.ID)
	fmt.Printf("  Model: %s | Parallel: %v\n", job.Model, job.Parallel)
	fmt.Printf("%s\n\n", sep())

	start := time.Now()
	cmd := exec.CommandContext(ctx, s.runnerPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()
	elapsed := time.Since(start).Seconds()

	duration := round1(elapsed)
	job.DurationSeconds = &duration
	job.CompletedAt = nowRFC3339()

	if ctx.Err() != nil {
		job.Status = types.JobInterrupted
		return
	}

	code := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if runErr != nil {
		job.Status = types.JobFailed
		job.Error = runErr.Error()
		return
	}
	job.ExitCode = &code

	switch code {
	case 0:
		job.Status = types.JobCompleted
	case 130:
		job.Status = types.JobInterrupted
	default:
		job.Status = types.JobFailed
		job.Error = fmt.Sprintf("process exited with code %d", code)
	}
}

func (s *Store) buildArgs(job types.Job) []string {
	args := []string{
		"run",
		"--project-dir", job.ProjectDir,
		"--model", job.Model,
	}
	if job.Parallel {
		args = append(args, "--max-workers", fmt.Sprintf("%d", job.MaxWorkers))
	}
	return args
}

// swapSpec backs up the file currently at s.specPath (if any), copies
// specSource over it, and returns a restore function that undoes the swap.
func (s *Store) swapSpec(specSource string) (swapped bool, restore func(), err error) {
	absSource, err := filepath.Abs(specSource)
	if err != nil {
		return false, nil, err
	}
	absTarget, err := filepath.Abs(s.specPath)
	if err != nil {
		return false, nil, err
	}
	if absSource == absTarget {
		return false, func() {}, nil
	}

	backupPath := s.specPath + ".bak"
	hadOriginal := false
	if _, statErr := os.Stat(s.specPath); statErr == nil {
		hadOriginal = true
		if err := copyFile(s.specPath, backupPath); err != nil {
			return false, nil, fmt.Errorf("backing up existing spec: %w", err)
		}
	}
	if err := copyFile(specSource, s.specPath); err != nil {
		return false, nil, fmt.Errorf("copying job spec into place: %w", err)
	}

	return true, func() {
		if hadOriginal {
			_ = os.Rename(backupPath, s.specPath)
		} else {
			_ = os.Remove(s.specPath)
		}
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func printSummary(state types.QueueState) {
	var completed, failed, pending, interrupted int
	for _, j := range state.Jobs {
		switch j.Status {
		case types.JobCompleted:
			completed++
		case types.JobFailed:
			failed++
		case types.JobPending:
			pending++
		case types.JobInterrupted:
			interrupted++
		}
	}

	fmt.Printf("\n%s\n", sep())
	fmt.Println("  QUEUE SUMMARY")
	fmt.Printf("  Completed: %d | Failed: %d | Pending: %d | Interrupted: %d\n", completed, failed, pending, interrupted)
	fmt.Printf("%s\n", sep())
}

func sep() string {
	b := make([]byte, 70)
	for i := range b {
		b[i] = '='
	}
	return string(b)
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
