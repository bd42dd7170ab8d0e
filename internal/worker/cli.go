package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// CLI is the worker command-line interface for running a single issue's
// pipeline as a standalone subprocess, one per coordinator-spawned worker.
type CLI struct {
	rootCmd *cobra.Command
}

// NewCLI builds the worker CLI.
func NewCLI() *CLI {
	cli := &CLI{}
	cli.rootCmd = &cobra.Command{
		Use:     "worker [flags|-]",
		Short:   "Runs the pipeline for a single issue in an isolated worktree",
		Long:    "worker is spawned as a subprocess by the coordinator, one per issue. It builds the task prompt, invokes the agent, and always writes a result descriptor before exiting.",
		Version: "0.1.0",
		Args:    cobra.MaximumNArgs(1),
		RunE:    cli.run,
	}

	flags := cli.rootCmd.Flags()
	flags.String("issue-id", "", "issue identifier, e.g. M2A-30 (required)")
	flags.String("issue-title", "", "issue title (required)")
	flags.String("issue-category", "", "issue category (required)")
	flags.String("issue-priority", "Medium", "issue priority")
	flags.String("worktree-dir", "", "git worktree directory (required)")
	flags.String("branch", "", "git branch name (required)")
	flags.String("project-dir", "", "main project directory (required)")
	flags.String("model", "", "agent model tag")
	flags.String("agent-path", "agent", "path to the agent binary")
	flags.String("result-path", "", "path to write the result JSON (required)")
	flags.Bool("verbose", false, "stream agent output to stdout as well as capturing it")

	return cli
}

// Execute runs the CLI.
func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

func (cli *CLI) run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	var input Params
	var issue types.Issue
	var agentPath, model string
	var verbose bool

	// "-" on stdin carries a JSON-encoded payload, for callers that would
	// rather not shell-quote arbitrary issue titles as flags.
	if len(args) > 0 && args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		var stdinInput stdinPayload
		if err := json.Unmarshal(data, &stdinInput); err != nil {
			return fmt.Errorf("parsing stdin JSON: %w", err)
		}
		issue = stdinInput.Issue
		input.WorktreeDir = stdinInput.WorktreeDir
		input.Branch = stdinInput.Branch
		input.ProjectDir = stdinInput.ProjectDir
		input.ResultPath = stdinInput.ResultPath
		agentPath = stdinInput.AgentPath
		model = stdinInput.Model
		verbose = stdinInput.Verbose
	} else {
		issueID, _ := flags.GetString("issue-id")
		issueTitle, _ := flags.GetString("issue-title")
		issueCategory, _ := flags.GetString("issue-category")
		issuePriority, _ := flags.GetString("issue-priority")
		input.WorktreeDir, _ = flags.GetString("worktree-dir")
		input.Branch, _ = flags.GetString("branch")
		input.ProjectDir, _ = flags.GetString("project-dir")
		input.ResultPath, _ = flags.GetString("result-path")
		agentPath, _ = flags.GetString("agent-path")
		model, _ = flags.GetString("model")
		verbose, _ = flags.GetBool("verbose")

		if issueID == "" || issueTitle == "" || issueCategory == "" {
			return fmt.Errorf("--issue-id, --issue-title, and --issue-category are required")
		}
		issue = types.Issue{ID: issueID, Title: issueTitle, Category: issueCategory, Priority: issuePriority}
	}

	if input.WorktreeDir == "" || input.Branch == "" || input.ProjectDir == "" || input.ResultPath == "" {
		return fmt.Errorf("--worktree-dir, --branch, --project-dir, and --result-path are required")
	}
	input.Issue = issue

	agent := NewSubprocessAgent(agentPath, model)
	agent.Verbose = verbose

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, runErr := Run(ctx, agent, input)

	if ctx.Err() != nil {
		_ = WriteResult(input.ResultPath, InterruptedResult(issue.ID, input.Branch))
		os.Exit(130)
	}
	if runErr != nil {
		os.Exit(1)
	}
	return nil
}

// stdinPayload is the JSON shape accepted on stdin as an alternative to
// passing every field as a flag.
type stdinPayload struct {
	Issue       types.Issue `json:"issue"`
	WorktreeDir string      `json:"worktree_dir"`
	Branch      string      `json:"branch"`
	ProjectDir  string      `json:"project_dir"`
	ResultPath  string      `json:"result_path"`
	AgentPath   string      `json:"agent_path"`
	Model       string      `json:"model"`
	Verbose     bool        `json:"verbose"`
}
