// Package main provides the entry point for the coordinator binary, which
// drives a set of issues through tiered, worktree-isolated parallel
// execution and merges the results back onto the main branch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/parallel-coordinator/internal/coordinator"
	"github.com/cloud-shuttle/parallel-coordinator/internal/notifier"
	"github.com/cloud-shuttle/parallel-coordinator/internal/telemetry"
	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Drives a set of issues through tiered, parallel, worktree-isolated execution",
	}
	root.AddCommand(runCmd())
	return root
}

func runCmd() *cobra.Command {
	var (
		projectDir     string
		issuesFile     string
		model          string
		agentPath      string
		workerBinary   string
		maxWorkers     int
		trackerBaseURL string
		trackerAPIKey  string
		initialized    bool
		verbose        bool
		slackWebhook   string
		toolAPIBaseURL string
		toolAPIKey     string
		slackChannel   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all issues to completion",
		Long: `Run executes the full tiered parallel pipeline: plan the issue set,
sync against the remote tracker, run each tier's waves in isolated
worktrees, merge successful branches, re-queue merge conflicts for a
sequential retry pass, and clean up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			shutdown, err := telemetry.Init(cmd.Context(), telemetry.DefaultConfig())
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			defer shutdown(context.Background())

			issues, err := loadIssues(issuesFile)
			if err != nil {
				return fmt.Errorf("loading issues: %w", err)
			}

			cfg := coordinator.Config{
				ProjectDir:       projectDir,
				WorkerBinaryPath: workerBinary,
				ModelTag:         model,
				AgentPath:        agentPath,
				MaxWorkers:       maxWorkers,
				TrackerBaseURL:   trackerBaseURL,
				TrackerAPIKey:    trackerAPIKey,
				Verbose:          verbose,
			}

			var fallback notifier.Sender
			if toolAPIBaseURL != "" && toolAPIKey != "" {
				fallback = notifier.NewToolAPINotifier(toolAPIBaseURL, toolAPIKey, "Slack_SendMessage", slackChannel)
			}
			notify := notifier.New(notifier.NewFallbackNotifier(notifier.NewWebhookNotifier(slackWebhook), fallback))
			co, err := coordinator.New(cfg, notify)
			if err != nil {
				return fmt.Errorf("building coordinator: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			runErr := co.Run(ctx, issues, initialized)
			if ctx.Err() != nil {
				if runErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
				}
				os.Exit(130)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&projectDir, "project-dir", ".", "project directory containing the shared git repository")
	flags.StringVar(&issuesFile, "issues", "-", "path to a JSON array of issues, or - to read from stdin")
	flags.StringVar(&model, "model", "", "agent model tag passed through to each worker")
	flags.StringVar(&agentPath, "agent-path", "agent", "path to the agent binary workers invoke")
	flags.StringVar(&workerBinary, "worker-binary", "worker", "path to the worker binary the coordinator spawns")
	flags.IntVar(&maxWorkers, "max-workers", 3, "maximum parallel workers per wave (1-5)")
	flags.StringVar(&trackerBaseURL, "tracker-base-url", "", "base URL of the remote issue tracker")
	flags.StringVar(&trackerAPIKey, "tracker-api-key", os.Getenv("TRACKER_API_KEY"), "API key for the remote issue tracker")
	flags.BoolVar(&initialized, "initialized", true, "whether the project has already been bootstrapped")
	flags.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flags.StringVar(&slackWebhook, "slack-webhook-url", os.Getenv("SLACK_WEBHOOK_URL"), "Slack incoming webhook URL for milestone notifications")
	flags.StringVar(&slackChannel, "slack-channel", os.Getenv("SLACK_CHANNEL"), "Slack channel name used by the tool-API fallback notifier")
	flags.StringVar(&toolAPIBaseURL, "tool-api-base-url", os.Getenv("TOOL_API_BASE_URL"), "base URL of a tool-execution API used as a fallback notification transport when the webhook fails or is unset")
	flags.StringVar(&toolAPIKey, "tool-api-key", os.Getenv("TOOL_API_KEY"), "API key for the tool-execution API fallback")

	return cmd
}

func loadIssues(path string) ([]types.Issue, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var issues []types.Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("parsing issues JSON: %w", err)
	}
	return issues, nil
}
