package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

const promptTemplate = `You are implementing issue %s in an isolated git worktree.

Title: %s
Category: %s
Priority: %s

Worktree: %s
Branch: %s
Project root: %s
%s
Implement this issue completely. When finished, emit a fenced ` + "```json```" + ` block
containing {"status": "success"|"error", "files_changed": ["path", ...]}.
`

// learningsFileName is the well-known file a worktree may carry forward
// from a previous run so the agent can avoid repeating past mistakes.
const learningsFileName = ".codebase_learnings.json"

// BuildPrompt assembles the worker task prompt for a single issue,
// substituting issue fields and, when present, the worktree's codebase
// learnings file.
func BuildPrompt(issue types.Issue, worktreeDir, branch, projectDir string) string {
	priority := issue.Priority
	if priority == "" {
		priority = "Medium"
	}

	learnings := loadLearnings(worktreeDir)

	return fmt.Sprintf(promptTemplate,
		issue.ID, issue.Title, issue.Category, priority,
		worktreeDir, branch, projectDir, learnings)
}

func loadLearnings(worktreeDir string) string {
	path := filepath.Join(worktreeDir, learningsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	var learnings types.CodebaseLearnings
	if err := json.Unmarshal(data, &learnings); err != nil {
		return ""
	}

	pretty, err := json.MarshalIndent(learnings, "", "  ")
	if err != nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n## Codebase Learnings\n```json\n")
	b.Write(pretty)
	b.WriteString("\n```\n")
	return b.String()
}
