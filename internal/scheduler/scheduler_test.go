package scheduler_test

import (
	"testing"

	"github.com/cloud-shuttle/parallel-coordinator/internal/scheduler"
	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

func issuesFrom(pairs ...[2]string) []types.Issue {
	var issues []types.Issue
	for _, p := range pairs {
		issues = append(issues, types.Issue{ID: p[0], Category: p[1]})
	}
	return issues
}

// TestBuildPlan_S1 is the literal S1 scenario: plain tier sequencing.
func TestBuildPlan_S1(t *testing.T) {
	issues := issuesFrom(
		[2]string{"T-1", "setup"},
		[2]string{"T-2", "setup"},
		[2]string{"T-3", "backend"},
		[2]string{"T-4", "frontend"},
		[2]string{"T-5", "a2ui-catalog"},
		[2]string{"T-6", "integration"},
	)

	plan := scheduler.BuildPlan(issues, 2)

	want := []struct {
		tier     int
		seq      bool
		issueIDs []string
	}{
		{1, true, []string{"T-1", "T-2"}},
		{2, false, []string{"T-3"}},
		{3, false, []string{"T-4", "T-5"}},
		{7, true, []string{"T-6"}},
	}

	if len(plan.Tiers) != len(want) {
		t.Fatalf("got %d tiers, want %d: %+v", len(plan.Tiers), len(want), plan.Tiers)
	}

	for i, w := range want {
		got := plan.Tiers[i]
		if got.Tier != w.tier || got.Sequential != w.seq {
			t.Errorf("tier[%d] = %+v, want tier=%d sequential=%v", i, got, w.tier, w.seq)
		}
		if len(got.IssueIDs) != len(w.issueIDs) {
			t.Fatalf("tier[%d].IssueIDs = %v, want %v", i, got.IssueIDs, w.issueIDs)
		}
		for j, id := range w.issueIDs {
			if got.IssueIDs[j] != id {
				t.Errorf("tier[%d].IssueIDs[%d] = %q, want %q", i, j, got.IssueIDs[j], id)
			}
		}
	}

	completed := map[string]struct{}{}
	ready, tier := scheduler.GetReady(plan, completed)
	if tier == nil || tier.Tier != 1 {
		t.Fatalf("expected tier 1 ready, got %+v", tier)
	}
	if len(ready) != 2 || ready[0] != "T-1" || ready[1] != "T-2" {
		t.Errorf("expected [T-1 T-2] ready, got %v", ready)
	}

	completed["T-1"] = struct{}{}
	ready, tier = scheduler.GetReady(plan, completed)
	if tier == nil || tier.Tier != 1 {
		t.Fatalf("expected tier 1 still active, got %+v", tier)
	}
	if len(ready) != 1 || ready[0] != "T-2" {
		t.Errorf("expected [T-2] ready, got %v", ready)
	}

	completed["T-2"] = struct{}{}
	ready, tier = scheduler.GetReady(plan, completed)
	if tier == nil || tier.Tier != 2 {
		t.Fatalf("expected tier 2 ready, got %+v", tier)
	}
	if len(ready) != 1 || ready[0] != "T-3" {
		t.Errorf("expected [T-3] ready, got %v", ready)
	}
}

// TestBuildPlan_TierOrdering is property 1.
func TestBuildPlan_TierOrdering(t *testing.T) {
	issues := issuesFrom(
		[2]string{"A", "testing"},
		[2]string{"B", "unknown-category"},
		[2]string{"C", "setup"},
		[2]string{"D", "styling"},
	)
	plan := scheduler.BuildPlan(issues, 3)

	lastTier := -1
	seenIDs := make(map[string]bool)
	for _, tier := range plan.Tiers {
		if tier.Tier <= lastTier {
			t.Fatalf("tiers not strictly ascending: %v", plan.Tiers)
		}
		lastTier = tier.Tier
		for _, id := range tier.IssueIDs {
			if seenIDs[id] {
				t.Fatalf("issue %s appears in more than one tier", id)
			}
			seenIDs[id] = true
		}
	}
	for _, issue := range issues {
		if !seenIDs[issue.ID] {
			t.Errorf("issue %s missing from plan", issue.ID)
		}
	}

	// "unknown-category" must land in the default tier.
	for _, tier := range plan.Tiers {
		for _, id := range tier.IssueIDs {
			if id == "B" && tier.Tier != scheduler.DefaultTier {
				t.Errorf("unrecognized category landed in tier %d, want %d", tier.Tier, scheduler.DefaultTier)
			}
		}
	}
}

// TestGetReady_Monotonicity is property 2.
func TestGetReady_Monotonicity(t *testing.T) {
	issues := issuesFrom(
		[2]string{"A", "setup"},
		[2]string{"B", "backend"},
		[2]string{"C", "backend"},
		[2]string{"D", "testing"},
	)
	plan := scheduler.BuildPlan(issues, 2)

	completed := map[string]struct{}{"A": {}}
	_, tier := scheduler.GetReady(plan, completed)
	if tier == nil {
		t.Fatal("expected a ready tier")
	}

	for _, t2 := range plan.Tiers {
		if t2.Tier >= tier.Tier {
			continue
		}
		for _, id := range t2.IssueIDs {
			if _, ok := completed[id]; !ok {
				t.Errorf("tier %d is before ready tier %d but issue %s is not completed", t2.Tier, tier.Tier, id)
			}
		}
	}
}

// TestGetReady_AllDone verifies the empty/nil return when every tier is complete.
func TestGetReady_AllDone(t *testing.T) {
	issues := issuesFrom([2]string{"A", "setup"})
	plan := scheduler.BuildPlan(issues, 1)

	ready, tier := scheduler.GetReady(plan, map[string]struct{}{"A": {}})
	if tier != nil {
		t.Errorf("expected nil tier, got %+v", tier)
	}
	if len(ready) != 0 {
		t.Errorf("expected no ready issues, got %v", ready)
	}
}

// TestPlan_RoundTrip is property 3.
func TestPlan_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	issues := issuesFrom(
		[2]string{"A", "setup"},
		[2]string{"B", "backend"},
		[2]string{"C", "integration"},
	)
	plan := scheduler.BuildPlan(issues, 3)

	if _, err := scheduler.SavePlan(plan, dir); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	loaded, err := scheduler.LoadPlan(dir)
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPlan returned nil for an existing plan")
	}

	if loaded.MaxParallelism != plan.MaxParallelism || loaded.TotalIssues != plan.TotalIssues {
		t.Errorf("round-tripped plan differs: got %+v, want %+v", loaded, plan)
	}
	if len(loaded.Tiers) != len(plan.Tiers) {
		t.Fatalf("tier count differs: got %d, want %d", len(loaded.Tiers), len(plan.Tiers))
	}
	for i := range plan.Tiers {
		if loaded.Tiers[i].Tier != plan.Tiers[i].Tier ||
			loaded.Tiers[i].Sequential != plan.Tiers[i].Sequential ||
			loaded.Tiers[i].Description != plan.Tiers[i].Description {
			t.Errorf("tier[%d] differs: got %+v, want %+v", i, loaded.Tiers[i], plan.Tiers[i])
		}
	}
}

func TestLoadPlan_Missing(t *testing.T) {
	dir := t.TempDir()
	plan, err := scheduler.LoadPlan(dir)
	if err != nil {
		t.Fatalf("LoadPlan on missing file should not error, got %v", err)
	}
	if plan != nil {
		t.Errorf("expected nil plan for missing file, got %+v", plan)
	}
}
