package main

import (
	"context"
)

// CompareOptions selects which plans a comparison run builds.
type CompareOptions struct {
	IncludeBeam bool
	BeamParams  BeamParams
	Locale      string
}

// ComparisonReport holds every candidate plan plus the pick. BestIdx is -1
// only when no plan could be built at all.
type ComparisonReport struct {
	Plans      []PlanSummary
	Robustness []RobustnessReport // parallel to Plans
	BestIdx    int
}

// Best returns the recommended plan.
func (r *ComparisonReport) Best() PlanSummary {
	if r.BestIdx < 0 || r.BestIdx >= len(r.Plans) {
		return PlanSummary{}
	}
	return r.Plans[r.BestIdx]
}

// greedyOrders is the fixed set of withdrawal sequences compare mode runs.
var greedyOrders = []WithdrawalOrder{OrderNonRegFirst, OrderRRSPFirst, OrderTFSAFirst}

// ComparePlans builds the three greedy sequencing plans, optionally the beam
// plan, and ranks them. Viable plans (those that keep funding the target)
// rank by lifetime tax paid, lowest first, with final balance as the
// tie-break; if every plan runs out of money the one that lasts longest
// wins.
func ComparePlans(ctx context.Context, s OptimizationSession, opts CompareOptions) (*ComparisonReport, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	report := &ComparisonReport{BestIdx: -1}

	for _, order := range greedyOrders {
		decisions := GreedyPlanOrdered(s, order)
		years := SimulateYears(s.Opening, s.Assumptions, s.Tables, decisions, s.HorizonYears)
		report.Plans = append(report.Plans,
			SummarizePlan("greedy "+order.ShortName(), order, years, s.TargetNetAnnual))
		report.Robustness = append(report.Robustness,
			EvaluateRobustness(s, decisions, opts.Locale))
	}

	if opts.IncludeBeam {
		result, err := BeamPlan(ctx, opts.BeamParams, nil)
		if err != nil {
			return nil, err
		}
		report.Plans = append(report.Plans,
			SummarizePlan("beam search", OrderNonRegFirst, result.Results, s.TargetNetAnnual))
		report.Robustness = append(report.Robustness,
			EvaluateRobustness(s, result.Decisions, opts.Locale))
	}

	report.BestIdx = rankPlans(report.Plans)
	return report, nil
}

// rankPlans picks the recommended plan index. Plans that meet the target for
// the whole horizon beat plans that run out; among viable plans less
// lifetime tax wins, and equal tax breaks on final balance.
func rankPlans(plans []PlanSummary) int {
	best := -1
	for i, p := range plans {
		if p.RanOutOfMoney {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := plans[best]
		if p.TotalTax < b.TotalTax || (p.TotalTax == b.TotalTax && p.FinalBalance > b.FinalBalance) {
			best = i
		}
	}
	if best >= 0 {
		return best
	}

	// Everything runs out: last the longest.
	for i, p := range plans {
		if best < 0 || p.RanOutYear > plans[best].RanOutYear {
			best = i
		}
	}
	return best
}
