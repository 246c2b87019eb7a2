package main

import (
	"math"
)

// orderedAccounts returns the draw priority for a withdrawal order. RRIF is
// absent on purpose: its forced minimum is applied by the simulator before
// any discretionary draw.
func orderedAccounts(order WithdrawalOrder) [3]Account {
	switch order {
	case OrderRRSPFirst:
		return [3]Account{AccountRRSP, AccountNonRegistered, AccountTFSA}
	case OrderTFSAFirst:
		return [3]Account{AccountTFSA, AccountNonRegistered, AccountRRSP}
	default:
		return [3]Account{AccountNonRegistered, AccountRRSP, AccountTFSA}
	}
}

func accountBalance(b AccountBalances, acct Account) float64 {
	switch acct {
	case AccountTFSA:
		return b.TFSA
	case AccountNonRegistered:
		return b.NonRegistered
	case AccountRRSP:
		return b.RRSP
	case AccountRRIF:
		return b.RRIF
	default:
		return 0
	}
}

func setWithdrawal(d *YearDecision, acct Account, amount float64) {
	switch acct {
	case AccountTFSA:
		d.WithdrawTFSA = amount
	case AccountNonRegistered:
		d.WithdrawNonReg = amount
	case AccountRRSP:
		d.WithdrawRRSP = amount
	case AccountRRIF:
		d.WithdrawRRIF = amount
	}
}

func getWithdrawal(d YearDecision, acct Account) float64 {
	switch acct {
	case AccountTFSA:
		return d.WithdrawTFSA
	case AccountNonRegistered:
		return d.WithdrawNonReg
	case AccountRRSP:
		return d.WithdrawRRSP
	case AccountRRIF:
		return d.WithdrawRRIF
	default:
		return 0
	}
}

// simulateOne plays a single decision against one opening snapshot and
// returns that year's result. Used by the optimizers to probe candidate
// withdrawals without touching their working state.
func simulateOne(bal AccountBalances, a Assumptions, tables *TaxTables, d YearDecision, yearIndex int) YearResult {
	shifted := a
	shifted.StartAge = a.StartAge + yearIndex
	d.YearIndex = 0
	return SimulateYears(bal, shifted, tables, []YearDecision{d}, 1)[0]
}

// benefitFlags sets the start flags for a year from the configured start
// ages. Each flag transitions false→true exactly once per plan.
func benefitFlags(s OptimizationSession, bal AccountBalances, age int) (startCPP, startOAS bool) {
	startCPP = s.Assumptions.ModelCPP && !bal.CPPStarted && age >= s.StartCPPAt
	startOAS = s.Assumptions.ModelOAS && !bal.OASStarted && age >= s.StartOASAt
	return
}

// grossUpWithdrawal finds the smallest withdrawal from one account that
// lifts the year's net income to the target, by binary search against the
// simulator (tax on the extra dollar depends on the account type, so there
// is no closed form). Returns the account's full balance when even that
// cannot reach the target.
func grossUpWithdrawal(base YearDecision, acct Account, bal AccountBalances, a Assumptions, tables *TaxTables, yearIndex int, target float64) float64 {
	available := accountBalance(bal, acct)
	if available <= 0 {
		return 0
	}

	probe := base
	setWithdrawal(&probe, acct, getWithdrawal(base, acct)+available)
	if simulateOne(bal, a, tables, probe, yearIndex).NetIncome <= target {
		return available
	}

	low, high := 0.0, available
	for i := 0; i < 50; i++ {
		mid := (low + high) / 2
		probe = base
		setWithdrawal(&probe, acct, getWithdrawal(base, acct)+mid)
		net := simulateOne(bal, a, tables, probe, yearIndex).NetIncome
		if math.Abs(net-target) < 0.01 {
			return mid
		}
		if net < target {
			low = mid
		} else {
			high = mid
		}
	}
	return high
}

// GreedyPlanOrdered builds a decision sequence with a fixed account
// priority: each year it computes the baseline net income from benefits
// and the forced RRIF minimum, then draws account by account until the
// target net income is met. Deterministic, one pass per year, no
// backtracking. The search optimizer is measured against this baseline.
func GreedyPlanOrdered(s OptimizationSession, order WithdrawalOrder) []YearDecision {
	decisions := make([]YearDecision, 0, s.HorizonYears)
	bal := s.Opening

	for i := 0; i < s.HorizonYears; i++ {
		age := s.Assumptions.StartAge + i
		d := YearDecision{YearIndex: i}
		d.StartCPP, d.StartOAS = benefitFlags(s, bal, age)

		// Baseline: benefits plus whatever the simulator forces out of the
		// RRIF this year.
		baseline := simulateOne(bal, s.Assumptions, s.Tables, d, i)
		need := s.TargetNetAnnual - baseline.NetIncome

		if need > 0.01 {
			working := baseline.Decision // Includes the forced RRIF minimum
			working.StartCPP, working.StartOAS = d.StartCPP, d.StartOAS
			for _, acct := range orderedAccounts(order) {
				w := grossUpWithdrawal(working, acct, bal, s.Assumptions, s.Tables, i, s.TargetNetAnnual)
				if w > 0.01 {
					setWithdrawal(&working, acct, getWithdrawal(working, acct)+w)
				}
				if simulateOne(bal, s.Assumptions, s.Tables, working, i).NetIncome >= s.TargetNetAnnual-0.01 {
					break
				}
			}
			d = working
		}

		final := simulateOne(bal, s.Assumptions, s.Tables, d, i)
		decided := final.Decision
		decided.YearIndex = i
		decisions = append(decisions, decided)
		bal = final.Closing
	}

	return decisions
}

// GreedyPlan is GreedyPlanOrdered with the default non-registered → RRSP →
// TFSA priority.
func GreedyPlan(s OptimizationSession) []YearDecision {
	return GreedyPlanOrdered(s, OrderNonRegFirst)
}

// RunGreedy produces the greedy plan and its simulated ledger.
func RunGreedy(s OptimizationSession) ([]YearDecision, []YearResult) {
	decisions := GreedyPlan(s)
	results := SimulateYears(s.Opening, s.Assumptions, s.Tables, decisions, s.HorizonYears)
	return decisions, results
}
