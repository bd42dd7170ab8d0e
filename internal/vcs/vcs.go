// Package vcs drives git worktree lifecycle and branch merging for parallel
// execution. Each worker gets its own worktree so concurrent agents don't
// conflict on file writes; worktrees share the main repository's object
// store, so they are lightweight on disk.
package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cloud-shuttle/parallel-coordinator/internal/telemetry"
	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// Driver runs git subcommands against a project repository.
type Driver struct {
	repoDir string
	verbose bool
}

// NewDriver returns a Driver rooted at repoDir.
func NewDriver(repoDir string) *Driver {
	return &Driver{repoDir: repoDir}
}

// SetVerbose toggles verbose logging of git operations.
func (d *Driver) SetVerbose(v bool) { d.verbose = v }

func (d *Driver) runGit(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	return strings.TrimSpace(outBuf.String()), strings.TrimSpace(errBuf.String()), runErr
}

// IsRepository reports whether path is a git repository (or worktree).
func (d *Driver) IsRepository(ctx context.Context, path string) bool {
	_, _, err := d.runGit(ctx, path, "rev-parse", "--git-dir")
	return err == nil
}

// CreateWorktree creates an isolated worktree at worktreeDir on a fresh
// branch, checked out from the current HEAD of the main repository.
//
// Idempotent with respect to stale state: if worktreeDir already exists it
// is removed first; if branch already exists it is force-deleted first.
func (d *Driver) CreateWorktree(ctx context.Context, worktreeDir, branch string) error {
	ctx, span := telemetry.StartVCSSpan(ctx, telemetry.SpanVCSWorktreeCreate,
		attribute.String(telemetry.KeyBranch, branch))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.RecordWorktreeSetup(ctx, time.Since(start)) }()

	if err := os.MkdirAll(filepath.Dir(worktreeDir), 0o755); err != nil {
		return fmt.Errorf("creating worktree parent dir: %w", err)
	}

	if _, err := os.Stat(worktreeDir); err == nil {
		if err := d.RemoveWorktree(ctx, worktreeDir); err != nil {
			return fmt.Errorf("removing stale worktree: %w", err)
		}
	}

	// Delete the branch if it exists from a previous run.
	_, _, _ = d.runGit(ctx, d.repoDir, "branch", "-D", branch)

	_, stderr, err := d.runGit(ctx, d.repoDir, "worktree", "add", "-b", branch, worktreeDir)
	if err != nil {
		if d.verbose {
			fmt.Printf("  [vcs] failed to create worktree: %s\n", stderr)
		}
		return fmt.Errorf("creating worktree: %w: %s", err, stderr)
	}

	if d.verbose {
		fmt.Printf("  [vcs] created worktree %s -> branch %s\n", worktreeDir, branch)
	}
	return nil
}

// RemoveWorktree removes a worktree. It succeeds (returns nil) when the
// directory does not exist on entry. It first attempts the git-native
// removal with force; on failure it falls back to removing the directory
// tree and pruning dangling worktree references.
func (d *Driver) RemoveWorktree(ctx context.Context, worktreeDir string) error {
	ctx, span := telemetry.StartVCSSpan(ctx, telemetry.SpanVCSWorktreeRemove)
	defer span.End()

	if _, err := os.Stat(worktreeDir); os.IsNotExist(err) {
		return nil
	}

	if _, _, err := d.runGit(ctx, d.repoDir, "worktree", "remove", "--force", worktreeDir); err != nil {
		if rmErr := os.RemoveAll(worktreeDir); rmErr != nil {
			return fmt.Errorf("removing worktree directory: %w", rmErr)
		}
		_, _, _ = d.runGit(ctx, d.repoDir, "worktree", "prune")
	}

	return nil
}

// Merge performs a non-fast-forward merge of branch into the repository's
// current branch. On success it returns {Success:true}. On failure it
// inspects the combined stdout+stderr for the case-insensitive substring
// "conflict"; if found, it aborts the merge and returns {Conflict:true},
// otherwise it aborts and returns the stderr as Error. Abort is attempted
// unconditionally on any non-zero exit.
func (d *Driver) Merge(ctx context.Context, branch string) types.MergeResult {
	ctx, span := telemetry.StartVCSSpan(ctx, telemetry.SpanVCSMerge,
		attribute.String(telemetry.KeyBranch, branch))
	defer span.End()

	stdout, stderr, err := d.runGit(ctx, d.repoDir,
		"merge", "--no-ff", "-m", fmt.Sprintf("Merge parallel branch: %s", branch), branch)

	if err == nil {
		if d.verbose {
			fmt.Printf("  [vcs] merged %s successfully\n", branch)
		}
		return types.MergeResult{Branch: branch, Success: true}
	}

	combined := strings.ToLower(stdout + "\n" + stderr)
	if strings.Contains(combined, "conflict") {
		if d.verbose {
			fmt.Printf("  [vcs] conflict merging %s - aborting and re-queuing\n", branch)
		}
		_, _, _ = d.runGit(ctx, d.repoDir, "merge", "--abort")
		return types.MergeResult{Branch: branch, Success: false, Conflict: true}
	}

	if d.verbose {
		fmt.Printf("  [vcs] failed to merge %s: %s\n", branch, stderr)
	}
	_, _, _ = d.runGit(ctx, d.repoDir, "merge", "--abort")
	return types.MergeResult{Branch: branch, Success: false, Error: stderr}
}

// DeleteBranch deletes a local branch, typically after a successful merge.
// Best-effort: failures are not surfaced.
func (d *Driver) DeleteBranch(ctx context.Context, branch string) {
	_, _, _ = d.runGit(ctx, d.repoDir, "branch", "-d", branch)
}

// CleanupWorktrees removes every worktree registered under worktreeRoot and
// prunes dangling worktree references. Safe to call even if none exist.
func (d *Driver) CleanupWorktrees(ctx context.Context, worktreeRoot string) error {
	stdout, _, err := d.runGit(ctx, d.repoDir, "worktree", "list", "--porcelain")
	if err == nil {
		for _, line := range strings.Split(stdout, "\n") {
			if strings.HasPrefix(line, "worktree ") && strings.Contains(line, worktreeRoot) {
				wtPath := strings.TrimPrefix(line, "worktree ")
				_ = d.RemoveWorktree(ctx, wtPath)
			}
		}
	}

	_, _, _ = d.runGit(ctx, d.repoDir, "worktree", "prune")

	if err := os.RemoveAll(worktreeRoot); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing worktree root: %w", err)
	}
	return nil
}

// WorktreePath returns the conventional worktree path for a given worker
// index under the given worktree root.
func WorktreePath(worktreeRoot string, workerIndex int) string {
	return filepath.Join(worktreeRoot, fmt.Sprintf("w%d", workerIndex))
}

// BranchName returns the conventional branch name for an issue.
func BranchName(issueID string) string {
	return fmt.Sprintf("parallel/%s", issueID)
}
