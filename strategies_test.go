package main

import (
	"context"
	"strings"
	"testing"
)

func TestComparePlans_BuildsThreeGreedyPlans(t *testing.T) {
	s := testSession(30000, 5, AccountBalances{TFSA: 300000, NonRegistered: 300000, RRSP: 300000})

	report, err := ComparePlans(context.Background(), s, CompareOptions{Locale: "en"})
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	if len(report.Plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(report.Plans))
	}
	if len(report.Robustness) != len(report.Plans) {
		t.Fatalf("robustness reports not parallel to plans: %d vs %d",
			len(report.Robustness), len(report.Plans))
	}

	names := make(map[string]bool)
	for _, p := range report.Plans {
		names[p.Name] = true
	}
	for _, want := range []string{"greedy NonRegFirst", "greedy RRSPFirst", "greedy TFSAFirst"} {
		if !names[want] {
			t.Errorf("missing plan %q in %v", want, names)
		}
	}

	if report.BestIdx < 0 || report.BestIdx >= len(report.Plans) {
		t.Fatalf("best index %d out of range", report.BestIdx)
	}
}

func TestComparePlans_PrefersLowestTax(t *testing.T) {
	// At a 60000 target the non-registered and RRSP draws both owe tax
	// every year while the TFSA plan owes none, so TFSA-first must win.
	s := testSession(60000, 5, AccountBalances{TFSA: 300000, NonRegistered: 400000, RRSP: 400000})

	report, err := ComparePlans(context.Background(), s, CompareOptions{})
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	best := report.Best()
	if !strings.Contains(best.Name, "TFSAFirst") {
		t.Errorf("expected the tax-free plan to win, got %q (tax %.2f)", best.Name, best.TotalTax)
	}
	for _, p := range report.Plans {
		if p.TotalTax < best.TotalTax-taxTolerance {
			t.Errorf("plan %q pays less tax (%.2f) than the winner (%.2f)",
				p.Name, p.TotalTax, best.TotalTax)
		}
	}
}

func TestComparePlans_IncludesBeamWhenAsked(t *testing.T) {
	s := testSession(10000, 3, AccountBalances{TFSA: 30000})
	opts := CompareOptions{
		IncludeBeam: true,
		BeamParams: BeamParams{
			Session:          s,
			BeamWidth:        5,
			StepSize:         10000,
			WeightTargetMiss: 1.0,
		},
	}

	report, err := ComparePlans(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if len(report.Plans) != 4 {
		t.Fatalf("expected 4 plans with the beam included, got %d", len(report.Plans))
	}
	if report.Plans[3].Name != "beam search" {
		t.Errorf("fourth plan is %q", report.Plans[3].Name)
	}
}

func TestComparePlans_RejectsInvalidSession(t *testing.T) {
	s := testSession(30000, 0, AccountBalances{})
	if _, err := ComparePlans(context.Background(), s, CompareOptions{}); err == nil {
		t.Error("expected a validation error for a zero horizon")
	}
}

func TestRankPlans(t *testing.T) {
	tests := []struct {
		name     string
		plans    []PlanSummary
		expected int
	}{
		{
			name: "lowest tax among viable plans",
			plans: []PlanSummary{
				{Name: "a", TotalTax: 5000},
				{Name: "b", TotalTax: 3000},
				{Name: "c", TotalTax: 4000},
			},
			expected: 1,
		},
		{
			name: "viable beats running out even with more tax",
			plans: []PlanSummary{
				{Name: "a", TotalTax: 0, RanOutOfMoney: true, RanOutYear: 20},
				{Name: "b", TotalTax: 90000},
			},
			expected: 1,
		},
		{
			name: "equal tax breaks on final balance",
			plans: []PlanSummary{
				{Name: "a", TotalTax: 1000, FinalBalance: 50000},
				{Name: "b", TotalTax: 1000, FinalBalance: 80000},
			},
			expected: 1,
		},
		{
			name: "everything runs out: last the longest",
			plans: []PlanSummary{
				{Name: "a", RanOutOfMoney: true, RanOutYear: 12},
				{Name: "b", RanOutOfMoney: true, RanOutYear: 18},
				{Name: "c", RanOutOfMoney: true, RanOutYear: 15},
			},
			expected: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := rankPlans(tc.plans); got != tc.expected {
				t.Errorf("ranked %d, want %d", got, tc.expected)
			}
		})
	}
}

func TestRankPlans_Empty(t *testing.T) {
	if got := rankPlans(nil); got != -1 {
		t.Errorf("no plans should rank -1, got %d", got)
	}
}

func TestComparisonReport_BestOutOfRange(t *testing.T) {
	r := &ComparisonReport{BestIdx: -1}
	if got := r.Best(); got.Name != "" {
		t.Errorf("expected a zero summary, got %+v", got)
	}
}

func TestRunSensitivityGrid_Shape(t *testing.T) {
	s := testSession(30000, 3, AccountBalances{TFSA: 200000, NonRegistered: 200000})
	grid := RunSensitivityGrid(s)

	if len(grid.ReturnDeltas) != 5 {
		t.Fatalf("expected 5 return deltas, got %v", grid.ReturnDeltas)
	}
	if len(grid.Targets) != 5 {
		t.Fatalf("expected 5 targets, got %v", grid.Targets)
	}
	assertMoneyEquals(t, 24000, grid.Targets[0], "lowest target (0.8x)")
	assertMoneyEquals(t, 36000, grid.Targets[4], "highest target (1.2x)")

	if len(grid.Cells) != len(grid.ReturnDeltas) {
		t.Fatalf("cell rows %d != deltas %d", len(grid.Cells), len(grid.ReturnDeltas))
	}
	for ri, row := range grid.Cells {
		if len(row) != len(grid.Targets) {
			t.Fatalf("row %d has %d cells, want %d", ri, len(row), len(grid.Targets))
		}
		for _, cell := range row {
			if cell.BestPlan == "" {
				t.Errorf("cell (%.2f, %.0f) has no best plan", cell.ReturnDelta, cell.TargetNet)
			}
		}
	}
}

func TestRunSensitivityGrid_HigherTargetsAreHarder(t *testing.T) {
	// A tightly funded plan: survives the easy corner, fails the hard one.
	s := testSession(30000, 10, AccountBalances{TFSA: 280000})
	grid := RunSensitivityGrid(s)

	easiest := grid.Cells[len(grid.Cells)-1][0] // Best returns, lowest target
	hardest := grid.Cells[0][len(grid.Targets)-1]

	if easiest.RanOutOfMoney {
		t.Errorf("easiest cell should survive: %+v", easiest)
	}
	if !hardest.RanOutOfMoney {
		t.Errorf("hardest cell should run out: %+v", hardest)
	}
	if hardest.LastsUntilYear < 0 {
		t.Error("a failing cell records when it runs out")
	}
}
