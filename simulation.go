package main

import (
	"math"
)

// clampWithdrawal caps a requested withdrawal at the available balance.
func clampWithdrawal(requested, balance float64) float64 {
	if requested <= 0 || balance <= 0 {
		return 0
	}
	return math.Min(requested, balance)
}

// growthFactor converts a nominal account return into real growth. The
// ledger is kept in constant year-zero dollars: benefits, tax brackets,
// and the income target are all CPI-indexed in nominal terms, so deflating
// account growth is the only place inflation enters the simulation.
func growthFactor(nominalReturn, inflation float64) float64 {
	deflator := 1 + inflation
	if deflator <= 0 || math.IsNaN(deflator) {
		deflator = 1
	}
	return (1 + nominalReturn) / deflator
}

// applyRRIFMinimum raises a requested RRIF withdrawal to the mandatory
// minimum for the year. The minimum is a fraction of the opening balance.
func applyRRIFMinimum(requested, openingRRIF float64, age int, tables *TaxTables) float64 {
	if openingRRIF <= 0 || age < tables.RRIF.ConversionAge {
		return requested
	}
	minimum := openingRRIF * tables.RRIF.MinimumFactor(age)
	return math.Max(requested, minimum)
}

// SimulateYears is the deterministic physics engine every optimizer calls.
// It plays a decision sequence against opening balances one year at a time:
// benefits are fixed to their nominal amounts the year their start flag
// first appears, withdrawals are clamped to available balances (a shortfall
// reduces that year's net income, it is never an error), tax is computed on
// the combined income, remaining balances grow at their real rates (nominal
// return deflated by inflation, so every figure stays in year-zero
// dollars), and closing balances feed forward. Years beyond len(decisions)
// up to horizonYears are simulated with zero-withdrawal decisions.
//
// The function is pure: same inputs, byte-identical output.
func SimulateYears(opening AccountBalances, a Assumptions, tables *TaxTables, decisions []YearDecision, horizonYears int) []YearResult {
	if horizonYears < len(decisions) {
		horizonYears = len(decisions)
	}
	results := make([]YearResult, 0, horizonYears)
	bal := opening

	gTFSA := growthFactor(a.ReturnTFSA, a.InflationRate)
	gNonReg := growthFactor(a.ReturnNonReg, a.InflationRate)
	gRRSP := growthFactor(a.ReturnRRSP, a.InflationRate)
	gRRIF := growthFactor(a.ReturnRRIF, a.InflationRate)

	for i := 0; i < horizonYears; i++ {
		var d YearDecision
		if i < len(decisions) {
			d = decisions[i]
		}
		d.YearIndex = i
		age := a.StartAge + i

		// Fix benefit amounts once, the year the start flag first appears.
		if d.StartCPP && a.ModelCPP && !bal.CPPStarted {
			bal.CPPStarted = true
			if bal.CPPAnnual == 0 {
				bal.CPPAnnual = a.CPPAnnualAt65
			}
		}
		if d.StartOAS && a.ModelOAS && !bal.OASStarted {
			bal.OASStarted = true
			if bal.OASAnnual == 0 {
				bal.OASAnnual = a.OASAnnualAt65
			}
		}

		// Mandatory RRSP→RRIF conversion: the full remaining RRSP balance
		// rolls over the year the holder reaches the conversion age.
		if age >= tables.RRIF.ConversionAge && bal.RRSP > 0 {
			bal.RRIF += bal.RRSP
			bal.RRSP = 0
			d.WithdrawRRIF += d.WithdrawRRSP
			d.WithdrawRRSP = 0
		}

		d.WithdrawRRIF = applyRRIFMinimum(d.WithdrawRRIF, bal.RRIF, age, tables)

		wTFSA := clampWithdrawal(d.WithdrawTFSA, bal.TFSA)
		wNonReg := clampWithdrawal(d.WithdrawNonReg, bal.NonRegistered)
		wRRSP := clampWithdrawal(d.WithdrawRRSP, bal.RRSP)
		wRRIF := clampWithdrawal(d.WithdrawRRIF, bal.RRIF)

		d.WithdrawTFSA = wTFSA
		d.WithdrawNonReg = wNonReg
		d.WithdrawRRSP = wRRSP
		d.WithdrawRRIF = wRRIF

		cpp, oas := 0.0, 0.0
		if bal.CPPStarted {
			cpp = bal.CPPAnnual
		}
		if bal.OASStarted {
			oas = bal.OASAnnual
		}

		gains := wNonReg * a.CapGainsRatio
		tax := ComputeTaxYear(TaxYearInput{
			OrdinaryIncome: wRRSP,
			PensionIncome:  wRRIF,
			CPP:            cpp,
			OAS:            oas,
			CapitalGains:   gains,
			TaxFreeCash:    wTFSA + wNonReg*(1-a.CapGainsRatio),
			Age:            age,
			Province:       a.Province,
		}, tables)

		bal.TFSA = (bal.TFSA - wTFSA) * gTFSA
		bal.NonRegistered = (bal.NonRegistered - wNonReg) * gNonReg
		bal.RRSP = (bal.RRSP - wRRSP) * gRRSP
		bal.RRIF = (bal.RRIF - wRRIF) * gRRIF

		// Withdrawals are clamped above, so only float noise can be
		// negative here.
		bal.TFSA = math.Max(0, bal.TFSA)
		bal.NonRegistered = math.Max(0, bal.NonRegistered)
		bal.RRSP = math.Max(0, bal.RRSP)
		bal.RRIF = math.Max(0, bal.RRIF)

		results = append(results, YearResult{
			YearIndex:   i,
			Age:         age,
			Decision:    d,
			Tax:         tax,
			GrossIncome: d.TotalWithdrawal() + cpp + oas,
			NetIncome:   tax.NetIncome,
			Closing:     bal,
		})
	}

	return results
}
