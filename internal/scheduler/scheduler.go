// Package scheduler builds a tier-based execution plan from a list of
// issues. Issues are grouped into tiers by category; issues within the same
// tier are assumed independent and can run in parallel.
//
// Tier ordering (static, deterministic):
//
//  1. setup                  — project foundation (sequential)
//  2. backend                — API and data layer
//  3. frontend, a2ui-catalog — UI components
//  4. feature                — feature integration
//  5. styling                — visual polish
//  6. testing                — validation
//  7. integration            — cross-cutting (sequential)
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// categoryTiers maps a lowercased issue category to its tier index.
// Categories not listed default to DefaultTier.
var categoryTiers = map[string]int{
	"setup":        1,
	"backend":      2,
	"frontend":     3,
	"a2ui-catalog": 3,
	"feature":      4,
	"styling":      5,
	"testing":      6,
	"integration":  7,
}

// sequentialTiers are the tiers that must run one issue at a time.
var sequentialTiers = map[int]bool{1: true, 7: true}

// tierDescriptions are human-readable descriptions per tier.
var tierDescriptions = map[int]string{
	1: "setup (project foundation)",
	2: "backend (API and data layer)",
	3: "frontend + a2ui-catalog (UI components)",
	4: "feature (integration features)",
	5: "styling (visual polish)",
	6: "testing (validation)",
	7: "integration (cross-cutting)",
}

// DefaultTier is the tier unrecognized categories are assigned to.
const DefaultTier = 4

const planFileName = ".parallel_plan.json"

// BuildPlan builds a tier-based execution plan from a list of issues.
func BuildPlan(issues []types.Issue, maxParallelism int) types.ParallelPlan {
	tierGroups := make(map[int][]string)
	var tierOrder []int
	seen := make(map[int]bool)

	for _, issue := range issues {
		category := strings.ToLower(issue.Category)
		tierNum, ok := categoryTiers[category]
		if !ok {
			tierNum = DefaultTier
		}
		tierGroups[tierNum] = append(tierGroups[tierNum], issue.ID)
		if !seen[tierNum] {
			seen[tierNum] = true
			tierOrder = append(tierOrder, tierNum)
		}
	}

	sort.Ints(tierOrder)

	var tiers []types.ExecutionTier
	total := 0
	for _, tierNum := range tierOrder {
		issueIDs := tierGroups[tierNum]
		description, ok := tierDescriptions[tierNum]
		if !ok {
			description = fmt.Sprintf("tier %d", tierNum)
		}
		tiers = append(tiers, types.ExecutionTier{
			Tier:        tierNum,
			IssueIDs:    issueIDs,
			Description: description,
			Sequential:  sequentialTiers[tierNum],
		})
		total += len(issueIDs)
	}

	return types.ParallelPlan{
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		MaxParallelism: maxParallelism,
		TotalIssues:    total,
		Tiers:          tiers,
	}
}

// GetReady scans tiers in index order and returns the first tier with at
// least one identifier not in the completed set, along with its unfinished
// identifiers. If all tiers are fully completed, it returns an empty slice
// and a nil tier.
func GetReady(plan types.ParallelPlan, completed map[string]struct{}) ([]string, *types.ExecutionTier) {
	for i := range plan.Tiers {
		tier := plan.Tiers[i]
		var remaining []string
		for _, id := range tier.IssueIDs {
			if _, done := completed[id]; !done {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			continue
		}
		return remaining, &plan.Tiers[i]
	}
	return nil, nil
}

// SavePlan saves the plan to .parallel_plan.json in projectDir.
func SavePlan(plan types.ParallelPlan, projectDir string) (string, error) {
	planPath := filepath.Join(projectDir, planFileName)
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling plan: %w", err)
	}
	if err := os.WriteFile(planPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing plan: %w", err)
	}
	return planPath, nil
}

// LoadPlan loads the plan from .parallel_plan.json in projectDir, or
// returns (nil, nil) if it does not exist.
func LoadPlan(projectDir string) (*types.ParallelPlan, error) {
	planPath := filepath.Join(projectDir, planFileName)
	data, err := os.ReadFile(planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan types.ParallelPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	return &plan, nil
}
