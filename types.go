package main

import "fmt"

// Account identifies one of the four withdrawal sources in a plan.
type Account int

const (
	AccountNonRegistered Account = iota // Taxable investment account (capital gains on withdrawal)
	AccountRRSP                         // Tax-deferred; withdrawals fully taxable as ordinary income
	AccountRRIF                         // RRSP after conversion; subject to mandatory minimum withdrawals
	AccountTFSA                         // Tax-free; withdrawals never taxable
)

func (a Account) String() string {
	switch a {
	case AccountNonRegistered:
		return "Non-Registered"
	case AccountRRSP:
		return "RRSP"
	case AccountRRIF:
		return "RRIF"
	case AccountTFSA:
		return "TFSA"
	default:
		return "Unknown"
	}
}

// WithdrawalOrder represents which accounts to draw from first when a plan
// is generated without searching (compare mode and the greedy baseline).
type WithdrawalOrder int

const (
	OrderNonRegFirst WithdrawalOrder = iota // Non-registered → RRSP → TFSA (greedy default)
	OrderRRSPFirst                          // RRSP → non-registered → TFSA (melt down the deferred pot early)
	OrderTFSAFirst                          // TFSA → non-registered → RRSP (preserve deferral as long as possible)
)

func (o WithdrawalOrder) String() string {
	switch o {
	case OrderNonRegFirst:
		return "Non-Registered First"
	case OrderRRSPFirst:
		return "RRSP First"
	case OrderTFSAFirst:
		return "TFSA First"
	default:
		return "Unknown"
	}
}

func (o WithdrawalOrder) ShortName() string {
	switch o {
	case OrderNonRegFirst:
		return "NonRegFirst"
	case OrderRRSPFirst:
		return "RRSPFirst"
	case OrderTFSAFirst:
		return "TFSAFirst"
	default:
		return "Unknown"
	}
}

// AccountBalances holds the opening balances for one simulated year.
// CPPAnnual/OASAnnual are zero until the corresponding benefit has started;
// once fixed they are nominal annual amounts that never shrink.
type AccountBalances struct {
	TFSA          float64
	NonRegistered float64
	RRSP          float64
	RRIF          float64
	CPPAnnual     float64
	OASAnnual     float64
	CPPStarted    bool
	OASStarted    bool
}

// Total returns the sum of all account balances (benefits excluded).
func (b AccountBalances) Total() float64 {
	return b.TFSA + b.NonRegistered + b.RRSP + b.RRIF
}

// Clone returns a copy. AccountBalances has no reference fields so a value
// copy suffices; the method exists to mirror call sites that clone state
// before a what-if run.
func (b AccountBalances) Clone() AccountBalances {
	return b
}

// Assumptions are the immutable parameters of one simulation run.
type Assumptions struct {
	Province      string  // Province code (QC, ON, BC, AB, ...)
	StartAge      int     // Age in year 0 of the simulation
	ReturnTFSA    float64 // Gross nominal annual return per account
	ReturnNonReg  float64
	ReturnRRSP    float64
	ReturnRRIF    float64
	InflationRate float64 // Annual CPI; deflates account growth to real terms
	ModelCPP      bool // Whether CPP is modeled at all
	ModelOAS      bool
	CPPAnnualAt65 float64 // Nominal annual amount fixed when the benefit starts
	OASAnnualAt65 float64
	CapGainsRatio float64 // Fraction of a non-registered withdrawal that is a realized gain
}

// YearDecision is the withdrawal plan for exactly one simulated year.
// StartCPP/StartOAS may transition false→true once per simulation, at or
// after the configured start ages.
type YearDecision struct {
	YearIndex      int
	WithdrawTFSA   float64
	WithdrawNonReg float64
	WithdrawRRSP   float64
	WithdrawRRIF   float64
	StartCPP       bool
	StartOAS       bool
}

// TotalWithdrawal returns the gross amount requested across all accounts.
func (d YearDecision) TotalWithdrawal() float64 {
	return d.WithdrawTFSA + d.WithdrawNonReg + d.WithdrawRRSP + d.WithdrawRRIF
}

// YearResult is the ledger entry produced by simulating one YearDecision.
// Closing balances are never negative; they become next year's opening
// balances.
type YearResult struct {
	YearIndex   int
	Age         int
	Decision    YearDecision // Decision after clamping to available balances
	Tax         TaxYearResult
	GrossIncome float64
	NetIncome   float64
	Closing     AccountBalances
}

// OptimizationSession holds every input of an optimization run. The three
// runners (greedy, beam, robustness) are pure functions of this struct, so
// the engine carries no UI or storage state.
type OptimizationSession struct {
	Opening         AccountBalances
	Assumptions     Assumptions
	Tables          *TaxTables
	HorizonYears    int
	TargetNetAnnual float64
	StartCPPAt      int
	StartOASAt      int
}

// Validate reports the first structural problem with a session, if any.
func (s OptimizationSession) Validate() error {
	if s.HorizonYears <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", s.HorizonYears)
	}
	if s.Tables == nil {
		return fmt.Errorf("tax tables are required")
	}
	if s.TargetNetAnnual < 0 {
		return fmt.Errorf("target net income cannot be negative, got %.2f", s.TargetNetAnnual)
	}
	if s.Assumptions.StartAge <= 0 {
		return fmt.Errorf("start age must be positive, got %d", s.Assumptions.StartAge)
	}
	return nil
}

// PlanSummary aggregates one full plan for comparison and reporting.
type PlanSummary struct {
	Name           string
	Order          WithdrawalOrder
	Years          []YearResult
	TotalTax       float64
	TotalNetIncome float64
	TotalWithdrawn float64
	FinalBalance   float64
	RanOutOfMoney  bool
	RanOutYear     int
}

// SummarizePlan folds a year ledger into the totals used by compare mode
// and the reports. A year "runs out" when the net income undershoots the
// target by more than a dollar while the accounts are exhausted.
func SummarizePlan(name string, order WithdrawalOrder, years []YearResult, target float64) PlanSummary {
	s := PlanSummary{Name: name, Order: order, Years: years, RanOutYear: -1}
	for _, y := range years {
		s.TotalTax += y.Tax.TotalTax
		s.TotalNetIncome += y.NetIncome
		s.TotalWithdrawn += y.Decision.TotalWithdrawal()
		if !s.RanOutOfMoney && y.NetIncome < target-1 && y.Closing.Total() < 1 {
			s.RanOutOfMoney = true
			s.RanOutYear = y.YearIndex
		}
	}
	if n := len(years); n > 0 {
		s.FinalBalance = years[n-1].Closing.Total()
	}
	return s
}
