package main

// SensitivityCell holds the outcome of one assumption combination.
type SensitivityCell struct {
	ReturnDelta    float64
	TargetNet      float64
	BestPlan       string
	TotalTax       float64
	FinalBalance   float64
	RanOutOfMoney  bool
	LastsUntilYear int
}

// SensitivityGrid is the full matrix: rows vary the return assumption,
// columns vary the target net income.
type SensitivityGrid struct {
	ReturnDeltas []float64
	Targets      []float64
	Cells        [][]SensitivityCell // [returnIdx][targetIdx]
}

// buildRange generates values from min to max inclusive with the given step.
func buildRange(min, max, step float64) []float64 {
	var out []float64
	for v := min; v <= max+0.0001; v += step { // epsilon for float accumulation
		out = append(out, v)
	}
	return out
}

// RunSensitivityGrid sweeps return and spending assumptions and records how
// the best greedy plan fares in each cell. Beam search is deliberately not
// part of the sweep: the grid runs hundreds of simulations and the greedy
// ranking is a good proxy for which cells are fragile.
func RunSensitivityGrid(s OptimizationSession) *SensitivityGrid {
	grid := &SensitivityGrid{
		ReturnDeltas: buildRange(-0.04, 0.04, 0.02),
		Targets:      buildRange(s.TargetNetAnnual*0.8, s.TargetNetAnnual*1.2, s.TargetNetAnnual*0.1),
	}

	grid.Cells = make([][]SensitivityCell, len(grid.ReturnDeltas))
	for ri, rd := range grid.ReturnDeltas {
		grid.Cells[ri] = make([]SensitivityCell, len(grid.Targets))
		for ti, target := range grid.Targets {
			test := s
			test.TargetNetAnnual = target
			test.Assumptions.ReturnTFSA += rd
			test.Assumptions.ReturnNonReg += rd
			test.Assumptions.ReturnRRSP += rd
			test.Assumptions.ReturnRRIF += rd

			cell := SensitivityCell{ReturnDelta: rd, TargetNet: target, LastsUntilYear: -1}

			var plans []PlanSummary
			for _, order := range greedyOrders {
				decisions := GreedyPlanOrdered(test, order)
				years := SimulateYears(test.Opening, test.Assumptions, test.Tables, decisions, test.HorizonYears)
				plans = append(plans, SummarizePlan(order.ShortName(), order, years, target))
			}

			if best := rankPlans(plans); best >= 0 {
				p := plans[best]
				cell.BestPlan = p.Name
				cell.TotalTax = p.TotalTax
				cell.FinalBalance = p.FinalBalance
				cell.RanOutOfMoney = p.RanOutOfMoney
				if p.RanOutOfMoney {
					cell.LastsUntilYear = p.RanOutYear
				}
			}
			grid.Cells[ri][ti] = cell
		}
	}
	return grid
}
