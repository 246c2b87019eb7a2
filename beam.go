package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// BeamParams are the inputs of one beam search run.
type BeamParams struct {
	Session          OptimizationSession
	BeamWidth        int
	StepSize         float64
	WeightTargetMiss float64
}

func (p BeamParams) validate() error {
	if err := p.Session.Validate(); err != nil {
		return err
	}
	if p.BeamWidth <= 0 {
		return fmt.Errorf("beam width must be positive, got %d", p.BeamWidth)
	}
	if p.StepSize <= 0 {
		return fmt.Errorf("step size must be positive, got %.2f", p.StepSize)
	}
	return nil
}

// BeamProgress is emitted once per completed year, in strictly increasing
// year order. It is the only feedback during a multi-second run.
type BeamProgress struct {
	Year      int     `json:"year"`
	BestScore float64 `json:"bestScore"`
	BeamCount int     `json:"beamCount"`
}

// BeamResult is the terminal payload of a successful run.
type BeamResult struct {
	Decisions []YearDecision `json:"decisions"`
	Results   []YearResult   `json:"results"`
	Score     float64        `json:"score"`
}

// BeamOutcome is the single terminal message of a run: a result or an
// error, never both.
type BeamOutcome struct {
	Result *BeamResult
	Err    error
}

// beamNode is one retained partial decision sequence.
type beamNode struct {
	bal       AccountBalances
	decisions []YearDecision
	score     float64
}

// extend returns a new node with one more year appended. The decisions
// slice is copied: retained nodes must not share backing arrays once the
// beam is pruned.
func (n beamNode) extend(d YearDecision, closing AccountBalances, stepScore float64) beamNode {
	ds := make([]YearDecision, len(n.decisions), len(n.decisions)+1)
	copy(ds, n.decisions)
	return beamNode{
		bal:       closing,
		decisions: append(ds, d),
		score:     n.score + stepScore,
	}
}

// candidateSteps returns the highest step index for one account: the grid
// is bounded by the balance and by the combined spending budget. Per-year
// spending above ~1.6× the target only adds tax, so candidates past the
// budget are never competitive and are not generated.
func candidateSteps(balance, stepSize, budget float64) int {
	limit := balance
	if budget < limit {
		limit = budget
	}
	if limit <= 0 {
		return 0
	}
	return int(limit / stepSize)
}

// expandYear generates every candidate one-year transition from a node and
// appends the scored results to out. Candidates are withdrawal tuples
// across the four account types, quantized to stepSize and bounded by each
// account's balance and the combined spending budget.
func expandYear(node beamNode, p BeamParams, yearIndex int, out []beamNode) []beamNode {
	s := p.Session
	age := s.Assumptions.StartAge + yearIndex
	startCPP, startOAS := benefitFlags(s, node.bal, age)

	budget := s.TargetNetAnnual * 1.6
	if budget < p.StepSize {
		budget = p.StepSize
	}
	maxTotal := int(budget/p.StepSize) + 1

	nTFSA := candidateSteps(node.bal.TFSA, p.StepSize, budget)
	nNonReg := candidateSteps(node.bal.NonRegistered, p.StepSize, budget)
	nRRSP := candidateSteps(node.bal.RRSP, p.StepSize, budget)
	nRRIF := candidateSteps(node.bal.RRIF, p.StepSize, budget)

	for iT := 0; iT <= nTFSA; iT++ {
		for iN := 0; iN <= nNonReg && iT+iN <= maxTotal; iN++ {
			for iR := 0; iR <= nRRSP && iT+iN+iR <= maxTotal; iR++ {
				for iF := 0; iF <= nRRIF && iT+iN+iR+iF <= maxTotal; iF++ {
					d := YearDecision{
						YearIndex:      yearIndex,
						WithdrawTFSA:   float64(iT) * p.StepSize,
						WithdrawNonReg: float64(iN) * p.StepSize,
						WithdrawRRSP:   float64(iR) * p.StepSize,
						WithdrawRRIF:   float64(iF) * p.StepSize,
						StartCPP:       startCPP,
						StartOAS:       startOAS,
					}
					yr := simulateOne(node.bal, s.Assumptions, s.Tables, d, yearIndex)
					miss := yr.NetIncome - s.TargetNetAnnual
					if miss < 0 {
						miss = -miss
					}
					stepScore := yr.Tax.TotalTax + yr.Tax.OASClawback + p.WeightTargetMiss*miss
					decided := yr.Decision
					decided.YearIndex = yearIndex
					out = append(out, node.extend(decided, yr.Closing, stepScore))
				}
			}
		}
	}
	return out
}

// pruneBeam keeps the best beamWidth nodes by cumulative score. The sort
// is stable so ties break by generation order and runs are reproducible.
func pruneBeam(nodes []beamNode, beamWidth int) []beamNode {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].score < nodes[j].score
	})
	if len(nodes) > beamWidth {
		nodes = nodes[:beamWidth]
	}
	return nodes
}

// BeamPlan runs the beam search to completion. Classic beam search over the
// year-by-year decision space: after each year only the beamWidth best
// partial sequences (cumulative tax plus weighted target miss) survive, so
// the search is tractable but carries no global optimality guarantee.
// Cancellation is cooperative and checked once per year boundary; a
// cancelled run returns ctx.Err() with no partial result. progress, if
// non-nil, is invoked exactly once per completed year in increasing order.
func BeamPlan(ctx context.Context, p BeamParams, progress func(BeamProgress)) (*BeamResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	s := p.Session
	beam := []beamNode{{bal: s.Opening}}

	for year := 0; year < s.HorizonYears; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []beamNode
		for _, node := range beam {
			next = expandYear(node, p, year, next)
		}
		if len(next) == 0 {
			return nil, fmt.Errorf("beam search produced no candidates for year %d", year)
		}
		beam = pruneBeam(next, p.BeamWidth)

		if progress != nil {
			progress(BeamProgress{Year: year, BestScore: beam[0].score, BeamCount: len(beam)})
		}
	}

	best := beam[0]
	results := SimulateYears(s.Opening, s.Assumptions, s.Tables, best.decisions, s.HorizonYears)
	return &BeamResult{Decisions: best.decisions, Results: results, Score: best.score}, nil
}

// BeamOptimizer runs BeamPlan off the caller's goroutine behind typed
// channels. One run at a time: starting a second run while one is
// outstanding fails with ErrRunInProgress instead of silently replacing
// the worker.
type BeamOptimizer struct {
	log Logger

	mu      sync.Mutex
	running bool
}

func NewBeamOptimizer(log Logger) *BeamOptimizer {
	return &BeamOptimizer{log: log}
}

// Running reports whether a run is outstanding.
func (o *BeamOptimizer) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Run starts a beam search. Progress messages arrive on the first channel
// in strictly increasing year order; the second channel delivers at most
// one terminal outcome (none if ctx is cancelled). Both channels are
// closed when the run ends.
func (o *BeamOptimizer) Run(ctx context.Context, p BeamParams) (<-chan BeamProgress, <-chan BeamOutcome, error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, nil, ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()

	progressCh := make(chan BeamProgress, p.Session.HorizonYears)
	outcomeCh := make(chan BeamOutcome, 1)

	go func() {
		defer func() {
			close(progressCh)
			close(outcomeCh)
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
		}()

		result, err := BeamPlan(ctx, p, func(pr BeamProgress) {
			select {
			case progressCh <- pr:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			o.log.Debugf("beam run cancelled at year boundary")
			return
		}
		if err != nil {
			o.log.Errorf("beam run failed: %v", err)
			outcomeCh <- BeamOutcome{Err: err}
			return
		}
		outcomeCh <- BeamOutcome{Result: result}
	}()

	return progressCh, outcomeCh, nil
}
