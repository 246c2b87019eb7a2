package main

import (
	"math"
	"testing"
)

// Tax Calculation Validation Tests
//
// These tests use a synthetic bracket schedule so every expected value can
// be computed by hand. The shape mirrors the real tables: two federal
// brackets, two provincial brackets, credits converted at the lowest rate.
//
// Synthetic federal schedule:
// - Basic personal amount: $10,000
// - 15% up to $50,000, 25% above
// - Age amount $5,000, tapered 15% above $40,000 net income
// - Pension amount $2,000
//
// Synthetic Ontario schedule:
// - Basic personal amount: $8,000
// - 5% up to $45,000, 10% above
// - Age amount $3,000, tapered 15% above $35,000 net income
// - Pension amount $1,000
//
// Quebec uses the same provincial figures plus a 16.5% federal abatement.

// tolerance for floating point comparisons ($0.01)
const taxTolerance = 0.01

func assertMoneyEquals(t *testing.T, expected, actual float64, description string) {
	t.Helper()
	if math.Abs(expected-actual) > taxTolerance {
		t.Errorf("%s: expected $%.2f, got $%.2f (diff: $%.2f)",
			description, expected, actual, actual-expected)
	}
}

func testProvincialTables() JurisdictionTables {
	return JurisdictionTables{
		BasicPersonalAmount: 8000,
		Brackets: []TaxBracket{
			{Upper: 45000, Rate: 0.05},
			{Upper: 0, Rate: 0.10},
		},
		AgeAmount:              3000,
		AgeAmountThreshold:     35000,
		AgeAmountTaper:         0.15,
		PensionAmount:          1000,
		EligibleDividendCredit: 0.05,
		OrdinaryDividendCredit: 0.03,
	}
}

// testTables builds the synthetic schedule shared by the calculator,
// simulator, and optimizer tests.
func testTables() *TaxTables {
	quebec := testProvincialTables()
	quebec.FederalAbatement = 0.165

	return &TaxTables{
		TaxYear:               2025,
		CapitalGainsInclusion: 0.5,
		Federal: JurisdictionTables{
			BasicPersonalAmount: 10000,
			Brackets: []TaxBracket{
				{Upper: 50000, Rate: 0.15},
				{Upper: 0, Rate: 0.25},
			},
			AgeAmount:               5000,
			AgeAmountThreshold:      40000,
			AgeAmountTaper:          0.15,
			PensionAmount:           2000,
			EligibleDividendGrossUp: 0.38,
			EligibleDividendCredit:  0.15,
			OrdinaryDividendGrossUp: 0.15,
			OrdinaryDividendCredit:  0.09,
		},
		Provinces: map[string]JurisdictionTables{
			"ON": testProvincialTables(),
			"QC": quebec,
		},
		OAS: OASTables{
			ClawbackThreshold: 90000,
			ClawbackRate:      0.15,
		},
		GIS: GISTables{
			MaxAnnualSingle: 12000,
			ReductionRate:   0.5,
			Exemption:       5000,
		},
		RRIF: RRIFTables{
			ConversionAge: 71,
			Minimums: map[int]float64{
				71: 0.0528,
				72: 0.0540,
				80: 0.0682,
				95: 0.2000,
			},
		},
	}
}

func TestComputeTaxYear_WithinCredits(t *testing.T) {
	// Basic personal amounts cover the full income, so both jurisdictions
	// owe nothing and net income equals gross.
	tables := testTables()
	tests := []struct {
		name     string
		ordinary float64
	}{
		{"zero income", 0},
		{"well under the credit", 5000},
		{"exactly at the federal amount", 10000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := ComputeTaxYear(TaxYearInput{
				OrdinaryIncome: tc.ordinary,
				Age:            60,
				Province:       "ON",
			}, tables)
			assertMoneyEquals(t, 0, res.TotalTax, "total tax")
			assertMoneyEquals(t, tc.ordinary, res.NetIncome, "net income")
		})
	}
}

func TestComputeTaxYear_FirstBracket(t *testing.T) {
	// $30,000 ordinary income, Ontario, age 60:
	//   Federal: 30000 x 0.15 - 10000 x 0.15 = 4500 - 1500 = 3000
	//   Ontario: 30000 x 0.05 -  8000 x 0.05 = 1500 -  400 = 1100
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 30000,
		Age:            60,
		Province:       "ON",
	}, tables)

	assertMoneyEquals(t, 3000, res.FederalTax, "federal tax")
	assertMoneyEquals(t, 1100, res.ProvincialTax, "provincial tax")
	assertMoneyEquals(t, 4100, res.TotalTax, "total tax")
	assertMoneyEquals(t, 25900, res.NetIncome, "net income")
	assertMoneyEquals(t, 0.20, res.MarginalRate, "marginal rate (0.15 + 0.05)")
}

func TestComputeTaxYear_CrossesBrackets(t *testing.T) {
	// $60,000 ordinary income crosses both second brackets:
	//   Federal: 50000 x 0.15 + 10000 x 0.25 = 10000; less 1500 credit = 8500
	//   Ontario: 45000 x 0.05 + 15000 x 0.10 =  3750; less  400 credit = 3350
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 60000,
		Age:            60,
		Province:       "ON",
	}, tables)

	assertMoneyEquals(t, 8500, res.FederalTax, "federal tax")
	assertMoneyEquals(t, 3350, res.ProvincialTax, "provincial tax")
	assertMoneyEquals(t, 11850, res.TotalTax, "total tax")
	assertMoneyEquals(t, 0.35, res.MarginalRate, "marginal rate (0.25 + 0.10)")
}

func TestComputeTaxYear_AgeAmount(t *testing.T) {
	tables := testTables()

	t.Run("full amount below the threshold", func(t *testing.T) {
		// Age 70, $30,000: both age amounts apply in full.
		//   Federal: 4500 - (10000 + 5000) x 0.15 = 2250
		//   Ontario: 1500 - ( 8000 + 3000) x 0.05 =  950
		res := ComputeTaxYear(TaxYearInput{
			OrdinaryIncome: 30000,
			Age:            70,
			Province:       "ON",
		}, tables)
		assertMoneyEquals(t, 2250, res.FederalTax, "federal tax")
		assertMoneyEquals(t, 950, res.ProvincialTax, "provincial tax")
	})

	t.Run("tapered above the threshold", func(t *testing.T) {
		// Age 70, $44,000 net income:
		//   Federal age amount: 5000 - (44000 - 40000) x 0.15 = 4400
		//     tax: 6600 - (10000 + 4400) x 0.15 = 4440
		//   Ontario age amount: 3000 - (44000 - 35000) x 0.15 = 1650
		//     tax: 2200 - (8000 + 1650) x 0.05 = 1717.50
		res := ComputeTaxYear(TaxYearInput{
			OrdinaryIncome: 44000,
			Age:            70,
			Province:       "ON",
		}, tables)
		assertMoneyEquals(t, 4440, res.FederalTax, "federal tax")
		assertMoneyEquals(t, 1717.50, res.ProvincialTax, "provincial tax")
	})

	t.Run("not available before 65", func(t *testing.T) {
		res := ComputeTaxYear(TaxYearInput{
			OrdinaryIncome: 30000,
			Age:            64,
			Province:       "ON",
		}, tables)
		assertMoneyEquals(t, 3000, res.FederalTax, "federal tax without age amount")
	})
}

func TestComputeTaxYear_PensionCredit(t *testing.T) {
	tables := testTables()

	// Age 65, $25,000 ordinary + $5,000 pension income. The pension credit
	// is capped at each jurisdiction's amount.
	//   Federal: 4500 - (10000 + 5000 age + 2000 pension) x 0.15 = 1950
	//   Ontario: 1500 - ( 8000 + 3000 age + 1000 pension) x 0.05 =  900
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 25000,
		PensionIncome:  5000,
		Age:            65,
		Province:       "ON",
	}, tables)
	assertMoneyEquals(t, 1950, res.FederalTax, "federal tax")
	assertMoneyEquals(t, 900, res.ProvincialTax, "provincial tax")

	// The same composition at 64 gets neither the age amount nor the
	// pension credit, so the bill reverts to the plain bracket math.
	res = ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 25000,
		PensionIncome:  5000,
		Age:            64,
		Province:       "ON",
	}, tables)
	assertMoneyEquals(t, 3000, res.FederalTax, "federal tax before 65")
}

func TestComputeTaxYear_QuebecAbatement(t *testing.T) {
	// Quebec residents pay federal tax reduced by the abatement:
	//   3000 x (1 - 0.165) = 2505
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 30000,
		Age:            60,
		Province:       "QC",
	}, tables)
	assertMoneyEquals(t, 2505, res.FederalTax, "abated federal tax")
	assertMoneyEquals(t, 1100, res.ProvincialTax, "provincial tax")

	// The abatement also scales the federal part of the marginal rate:
	// 0.15 x 0.835 + 0.05 = 0.17525
	assertMoneyEquals(t, 0.17525, res.MarginalRate, "marginal rate")
}

func TestComputeTaxYear_EligibleDividends(t *testing.T) {
	// $10,000 of eligible dividends gross up to $13,800. The dividend tax
	// credits wipe out the whole bill at this income level:
	//   Federal: 13800 x 0.15 - 1500 - 13800 x 0.15 < 0, floored at 0
	//   Ontario: 13800 x 0.05 -  400 - 13800 x 0.05 < 0, floored at 0
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		EligibleDividends: 10000,
		Age:               60,
		Province:          "ON",
	}, tables)

	assertMoneyEquals(t, 13800, res.TaxableIncome, "grossed-up taxable income")
	assertMoneyEquals(t, 0, res.TotalTax, "total tax")
	// Net income is based on the cash dividend, not the gross-up.
	assertMoneyEquals(t, 10000, res.NetIncome, "net income")
}

func TestComputeTaxYear_CapitalGains(t *testing.T) {
	// $20,000 of realized gains include at 50%, so only $10,000 is taxable:
	//   Federal: 1500 - 1500 = 0
	//   Ontario:  500 -  400 = 100
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		CapitalGains: 20000,
		Age:          60,
		Province:     "ON",
	}, tables)

	assertMoneyEquals(t, 10000, res.TaxableIncome, "taxable income after inclusion")
	assertMoneyEquals(t, 100, res.TotalTax, "total tax")
	assertMoneyEquals(t, 19900, res.NetIncome, "net income keeps the full gain less tax")
}

func TestComputeTaxYear_TaxFreeCash(t *testing.T) {
	// TFSA withdrawals never enter taxable income.
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		TaxFreeCash: 50000,
		Age:         60,
		Province:    "ON",
	}, tables)

	assertMoneyEquals(t, 0, res.TaxableIncome, "taxable income")
	assertMoneyEquals(t, 0, res.TotalTax, "total tax")
	assertMoneyEquals(t, 50000, res.NetIncome, "net income")
}

func TestComputeTaxYear_SanitizesBadInputs(t *testing.T) {
	// Form state can transiently hold NaN or negative amounts; they must
	// read as zero, never poison the result.
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome:    math.NaN(),
		PensionIncome:     -5000,
		CapitalGains:      math.Inf(1),
		EligibleDividends: -1,
		Age:               60,
		Province:          "ON",
	}, tables)

	assertMoneyEquals(t, 0, res.TaxableIncome, "taxable income")
	assertMoneyEquals(t, 0, res.TotalTax, "total tax")
	assertMoneyEquals(t, 0, res.NetIncome, "net income")
}

func TestComputeTaxYear_UnknownProvinceFallsBackToQuebec(t *testing.T) {
	tables := testTables()
	unknown := ComputeTaxYear(TaxYearInput{OrdinaryIncome: 30000, Age: 60, Province: "ZZ"}, tables)
	quebec := ComputeTaxYear(TaxYearInput{OrdinaryIncome: 30000, Age: 60, Province: "QC"}, tables)

	assertMoneyEquals(t, quebec.TotalTax, unknown.TotalTax, "unknown province taxed as Quebec")
}
