package main

import (
	"math"
)

// TaxYearInput is one year's income composition. All amounts are annual
// and non-negative; negative or NaN values are coerced to zero because the
// calling forms may transiently hold empty fields.
type TaxYearInput struct {
	OrdinaryIncome    float64 // RRSP/RRIF withdrawals, employment, interest
	PensionIncome     float64 // Eligible pension income (RRIF counts from 65)
	CPP               float64
	OAS               float64
	EligibleDividends float64
	OrdinaryDividends float64
	CapitalGains      float64 // Realized gains (pre-inclusion)
	TaxFreeCash       float64 // TFSA withdrawals and return of capital; never taxed
	Age               int
	Province          string
}

// TaxYearResult is the output of ComputeTaxYear.
type TaxYearResult struct {
	TaxableIncome  float64
	FederalTax     float64
	ProvincialTax  float64
	TotalTax       float64
	OASClawback    float64
	GISBenefit     float64
	NetIncome      float64
	MarginalRate   float64
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// bracketTax computes tax over a marginal bracket schedule. An Upper of 0
// marks the open-ended top bracket.
func bracketTax(income float64, brackets []TaxBracket) float64 {
	if income <= 0 {
		return 0
	}
	var tax float64
	lower := 0.0
	for _, b := range brackets {
		if b.Upper <= 0 || income <= b.Upper {
			tax += (income - lower) * b.Rate
			return tax
		}
		tax += (b.Upper - lower) * b.Rate
		lower = b.Upper
	}
	return tax
}

// bracketRate returns the marginal rate at an income level.
func bracketRate(income float64, brackets []TaxBracket) float64 {
	for _, b := range brackets {
		if b.Upper <= 0 || income < b.Upper {
			return b.Rate
		}
	}
	if len(brackets) > 0 {
		return brackets[len(brackets)-1].Rate
	}
	return 0
}

// lowestRate is the rate non-refundable credits convert at.
func lowestRate(brackets []TaxBracket) float64 {
	if len(brackets) == 0 {
		return 0
	}
	return brackets[0].Rate
}

// ageAmount returns the age credit base for a 65+ filer, tapered by net
// income above the jurisdiction's threshold.
func ageAmount(j JurisdictionTables, age int, netIncome float64) float64 {
	if age < 65 || j.AgeAmount <= 0 {
		return 0
	}
	if netIncome <= j.AgeAmountThreshold {
		return j.AgeAmount
	}
	reduced := j.AgeAmount - (netIncome-j.AgeAmountThreshold)*j.AgeAmountTaper
	return math.Max(0, reduced)
}

// jurisdictionTax computes one jurisdiction's tax net of non-refundable
// and dividend credits. grossedElig/grossedOrd are the grossed-up dividend
// amounts (the federal gross-up applies in every jurisdiction).
func jurisdictionTax(j JurisdictionTables, taxable, netIncome, pensionIncome, grossedElig, grossedOrd float64, age int) float64 {
	tax := bracketTax(taxable, j.Brackets)

	credits := j.BasicPersonalAmount
	credits += ageAmount(j, age, netIncome)
	credits += math.Min(pensionIncome, j.PensionAmount)
	tax -= credits * lowestRate(j.Brackets)

	tax -= grossedElig * j.EligibleDividendCredit
	tax -= grossedOrd * j.OrdinaryDividendCredit

	return math.Max(0, tax)
}

// ComputeTaxYear maps one year's income composition to tax, clawback, GIS
// and net income. It is deterministic, side-effect free, and allocation
// free: it sits in the innermost loop of the beam search.
func ComputeTaxYear(in TaxYearInput, tables *TaxTables) TaxYearResult {
	ordinary := sanitize(in.OrdinaryIncome)
	pension := sanitize(in.PensionIncome)
	cpp := sanitize(in.CPP)
	oas := sanitize(in.OAS)
	eligDiv := sanitize(in.EligibleDividends)
	ordDiv := sanitize(in.OrdinaryDividends)
	gains := sanitize(in.CapitalGains)
	taxFree := sanitize(in.TaxFreeCash)

	fed := tables.Federal
	prov := tables.Province(in.Province)

	grossedElig := eligDiv * (1 + fed.EligibleDividendGrossUp)
	grossedOrd := ordDiv * (1 + fed.OrdinaryDividendGrossUp)
	taxableGains := gains * tables.CapitalGainsInclusion

	// Net income for income-tested amounts uses the grossed-up dividends,
	// which is why dividend income can trigger clawback past its cash value.
	taxable := ordinary + pension + cpp + oas + grossedElig + grossedOrd + taxableGains
	netForTests := taxable

	var res TaxYearResult
	res.TaxableIncome = taxable

	// OAS recovery tax: proportional above the threshold, capped at the OAS
	// actually received.
	if oas > 0 && netForTests > tables.OAS.ClawbackThreshold {
		res.OASClawback = math.Min(oas, (netForTests-tables.OAS.ClawbackThreshold)*tables.OAS.ClawbackRate)
	}

	// Pension income credit: RRIF and annuity income qualifies from 65.
	pensionForCredit := 0.0
	if in.Age >= 65 {
		pensionForCredit = pension
	}

	res.FederalTax = jurisdictionTax(fed, taxable, netForTests, pensionForCredit, grossedElig, grossedOrd, in.Age)
	if prov.FederalAbatement > 0 {
		res.FederalTax *= 1 - prov.FederalAbatement
	}
	res.ProvincialTax = jurisdictionTax(prov, taxable, netForTests, pensionForCredit, grossedElig, grossedOrd, in.Age)
	res.TotalTax = res.FederalTax + res.ProvincialTax

	// GIS: means-tested top-up for OAS recipients, reduced by non-OAS
	// income past a small exemption.
	if in.Age >= 65 && oas > 0 && tables.GIS.MaxAnnualSingle > 0 {
		gisIncome := taxable - oas - math.Min(ordinary, tables.GIS.Exemption)
		if gisIncome < 0 {
			gisIncome = 0
		}
		res.GISBenefit = math.Max(0, tables.GIS.MaxAnnualSingle-gisIncome*tables.GIS.ReductionRate)
	}

	cash := ordinary + pension + cpp + oas + eligDiv + ordDiv + gains + taxFree
	res.NetIncome = cash - res.TotalTax - res.OASClawback + res.GISBenefit

	// Bracket-sum approximation of the rate on the next dollar of ordinary
	// income. Clawback adds its recovery rate while the filer is inside the
	// recovery window.
	mtr := bracketRate(taxable, fed.Brackets)
	if prov.FederalAbatement > 0 {
		mtr *= 1 - prov.FederalAbatement
	}
	mtr += bracketRate(taxable, prov.Brackets)
	if oas > 0 && netForTests > tables.OAS.ClawbackThreshold && res.OASClawback < oas {
		mtr += tables.OAS.ClawbackRate
	}
	res.MarginalRate = mtr

	return res
}
