package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os/exec"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// WorkerCommand describes the invocation used to spawn one worker
// subprocess for a single issue.
type WorkerCommand struct {
	Issue       types.Issue
	WorktreeDir string
	Branch      string
	ProjectDir  string
	ResultPath  string
	WorkerIndex int
}

// buildArgs renders the worker binary's flag contract for cmd.
func (c *Coordinator) buildArgs(wc WorkerCommand) []string {
	return []string{
		"--issue-id", wc.Issue.ID,
		"--issue-title", wc.Issue.Title,
		"--issue-category", wc.Issue.Category,
		"--issue-priority", priorityOrDefault(wc.Issue.Priority),
		"--worktree-dir", wc.WorktreeDir,
		"--branch", wc.Branch,
		"--project-dir", wc.ProjectDir,
		"--model", c.cfg.ModelTag,
		"--agent-path", c.cfg.AgentPath,
		"--result-path", wc.ResultPath,
	}
}

func priorityOrDefault(p string) string {
	if p == "" {
		return "Medium"
	}
	return p
}

// spawnWorker starts the worker binary as a child process, relays its
// merged stdout/stderr line-by-line to this process's log (prefixed for
// disambiguation), waits for it to exit, and returns its exit code. The
// supervisor never parses that output for semantic meaning: the worker's
// result descriptor file is the only channel of truth.
func (c *Coordinator) spawnWorker(ctx context.Context, wc WorkerCommand) (exitCode int, err error) {
	log.Printf("  [coordinator] spawning worker %d for %s", wc.WorkerIndex, wc.Issue.ID)

	cmd := exec.CommandContext(ctx, c.cfg.WorkerBinaryPath, c.buildArgs(wc)...)
	cmd.Dir = c.cfg.ProjectDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("attaching stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting worker: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Printf("  [worker %d/%s] %s", wc.WorkerIndex, wc.Issue.ID, scanner.Text())
	}

	waitErr := cmd.Wait()
	code := 0
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if waitErr != nil {
		return -1, fmt.Errorf("waiting for worker: %w", waitErr)
	}

	if code == 0 {
		log.Printf("  [coordinator] worker %d (%s) completed successfully", wc.WorkerIndex, wc.Issue.ID)
	} else {
		log.Printf("  [coordinator] worker %d (%s) failed (exit code %d)", wc.WorkerIndex, wc.Issue.ID, code)
	}

	return code, nil
}
