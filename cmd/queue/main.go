// Package main provides the entry point for the queue binary: a
// multi-project job queue that feeds issue specs to the coordinator
// binary sequentially.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/parallel-coordinator/internal/queue"
	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dataDir        string
		specPath       string
		coordinatorBin string
	)

	root := &cobra.Command{
		Use:   "queue",
		Short: "Multi-project job queue for the parallel coordinator",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "directory holding queue.json")
	root.PersistentFlags().StringVar(&specPath, "spec-path", "prompts/app_spec.txt", "canonical spec file path jobs are swapped into")
	root.PersistentFlags().StringVar(&coordinatorBin, "coordinator-binary", "coordinator", "path to the coordinator binary invoked per job")

	store := func() *queue.Store { return queue.NewStore(dataDir, specPath, coordinatorBin) }

	root.AddCommand(addCmd(store), startCmd(store), statusCmd(store), watchCmd(store))
	return root
}

func addCmd(storeFn func() *queue.Store) *cobra.Command {
	var (
		id            string
		model         string
		maxIterations int
		parallel      bool
		maxWorkers    int
	)

	cmd := &cobra.Command{
		Use:   "add <spec-path>",
		Short: "Add a job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specPath := args[0]
			if _, err := os.Stat(specPath); err != nil {
				return fmt.Errorf("spec file not found: %s", specPath)
			}

			job, err := storeFn().Add(id, specPath, model, maxIterations, parallel, maxWorkers)
			if err != nil {
				return err
			}

			fmt.Printf("Added job '%s' to queue\n", job.ID)
			fmt.Printf("  Spec: %s\n", specPath)
			fmt.Printf("  Model: %s | Iterations: %d | Parallel: %v\n", job.Model, job.MaxIterations, job.Parallel)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "unique job identifier (generated if omitted)")
	cmd.Flags().StringVar(&model, "model", "haiku", "agent model tag (haiku|sonnet|opus)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 20, "maximum agent iterations")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "enable parallel execution mode")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 2, "max concurrent workers in parallel mode")

	return cmd
}

func startCmd(storeFn func() *queue.Store) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Process the queue sequentially",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			err := storeFn().Start(ctx, dryRun)
			if errors.Is(err, queue.ErrInterrupted) {
				os.Exit(130)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would run without executing")
	return cmd
}

// watchCmd supplements the original one-shot start command with a
// scheduled-poll mode: on each cron tick, any processable jobs are run
// sequentially, same as start, until interrupted.
func watchCmd(storeFn func() *queue.Store) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the queue on a cron schedule and process jobs as they appear",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c := cron.New()
			_, err := c.AddFunc(schedule, func() {
				if err := storeFn().Start(ctx, false); err != nil && !errors.Is(err, queue.ErrInterrupted) {
					log.Printf("queue watch: tick failed: %v", err)
				}
			})
			if err != nil {
				return fmt.Errorf("parsing --schedule %q: %w", schedule, err)
			}

			log.Printf("queue watch: polling on schedule %q (ctrl-c to stop)", schedule)
			c.Start()
			defer c.Stop()

			<-ctx.Done()
			log.Println("queue watch: stopping")
			if ctx.Err() != nil {
				os.Exit(130)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "@every 1m", "cron schedule to poll the queue on")
	return cmd
}

func statusCmd(storeFn func() *queue.Store) *cobra.Command {
	var (
		id      string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := storeFn().Load()
			if err != nil {
				return err
			}

			jobs := state.Jobs
			if id != "" {
				jobs = filterByID(jobs, id)
				if len(jobs) == 0 {
					return fmt.Errorf("no job found with id %q", id)
				}
			}

			if jsonOut {
				return printJSON(state, jobs)
			}
			printHuman(state, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "filter by job ID")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output machine-parseable JSON")
	return cmd
}

func filterByID(jobs []types.Job, id string) []types.Job {
	var out []types.Job
	for _, j := range jobs {
		if j.ID == id {
			out = append(out, j)
		}
	}
	return out
}

func printJSON(state types.QueueState, jobs []types.Job) error {
	summary := map[string]int{
		"total":       len(state.Jobs),
		"pending":     countByStatus(state.Jobs, types.JobPending),
		"running":     countByStatus(state.Jobs, types.JobRunning),
		"completed":   countByStatus(state.Jobs, types.JobCompleted),
		"failed":      countByStatus(state.Jobs, types.JobFailed),
		"interrupted": countByStatus(state.Jobs, types.JobInterrupted),
	}
	out := map[string]any{"jobs": jobs, "summary": summary}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func countByStatus(jobs []types.Job, status types.JobStatus) int {
	n := 0
	for _, j := range jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

func printHuman(state types.QueueState, jobs []types.Job) {
	if len(state.Jobs) == 0 {
		fmt.Println("Queue is empty.")
		return
	}

	fmt.Printf("Queue: %d job(s)\n\n", len(state.Jobs))
	icons := map[types.JobStatus]string{
		types.JobPending:     " ",
		types.JobRunning:     "~",
		types.JobCompleted:   "+",
		types.JobFailed:      "x",
		types.JobInterrupted: "!",
	}
	for _, job := range jobs {
		icon := icons[job.Status]
		if icon == "" {
			icon = "?"
		}
		duration := ""
		if job.DurationSeconds != nil {
			duration = fmt.Sprintf(" (%gs)", *job.DurationSeconds)
		}
		errSuffix := ""
		if job.Error != "" {
			errSuffix = fmt.Sprintf(" — %s", job.Error)
		}
		fmt.Printf("  [%s] %s: %s%s%s\n", icon, job.ID, job.Status, duration, errSuffix)
		fmt.Printf("      spec=%s model=%s parallel=%v\n", job.SpecPath, job.Model, job.Parallel)
	}
}
