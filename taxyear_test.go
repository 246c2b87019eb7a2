package main

import (
	"math"
	"testing"
)

// OAS clawback, GIS, and RRIF schedule edge cases. Same synthetic tables
// as tax_test.go: clawback threshold $90,000 at 15%, GIS maximum $12,000
// reduced 50 cents per dollar past a $5,000 earnings exemption.

func TestOASClawback(t *testing.T) {
	tables := testTables()
	tests := []struct {
		name             string
		ordinary         float64
		oas              float64
		expectedClawback float64
	}{
		{
			// 108000 taxable is 18000 over the threshold: 18000 x 0.15 = 2700
			name:             "partial clawback",
			ordinary:         100000,
			oas:              8000,
			expectedClawback: 2700,
		},
		{
			// 118000 over the threshold would recover 17700, capped at the
			// OAS actually received.
			name:             "clawback capped at OAS",
			ordinary:         200000,
			oas:              8000,
			expectedClawback: 8000,
		},
		{
			name:             "below the threshold",
			ordinary:         50000,
			oas:              8000,
			expectedClawback: 0,
		},
		{
			name:             "no OAS means no clawback",
			ordinary:         200000,
			oas:              0,
			expectedClawback: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := ComputeTaxYear(TaxYearInput{
				OrdinaryIncome: tc.ordinary,
				OAS:            tc.oas,
				Age:            70,
				Province:       "ON",
			}, tables)
			assertMoneyEquals(t, tc.expectedClawback, res.OASClawback, "clawback")

			// Net income identity: cash less tax less clawback plus GIS.
			cash := tc.ordinary + tc.oas
			assertMoneyEquals(t, cash-res.TotalTax-res.OASClawback+res.GISBenefit,
				res.NetIncome, "net income identity")
		})
	}
}

func TestOASClawback_MarginalRate(t *testing.T) {
	tables := testTables()

	// Inside the recovery window the next dollar also loses 15 cents of
	// OAS: 0.25 federal + 0.10 provincial + 0.15 recovery = 0.50.
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 100000,
		OAS:            8000,
		Age:            70,
		Province:       "ON",
	}, tables)
	assertMoneyEquals(t, 0.50, res.MarginalRate, "marginal rate in the recovery window")

	// Once the OAS is fully recovered the next dollar cannot lose more.
	res = ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 200000,
		OAS:            8000,
		Age:            70,
		Province:       "ON",
	}, tables)
	assertMoneyEquals(t, 0.35, res.MarginalRate, "marginal rate past full recovery")
}

func TestGISBenefit(t *testing.T) {
	tables := testTables()
	tests := []struct {
		name        string
		ordinary    float64
		oas         float64
		age         int
		expectedGIS float64
	}{
		{
			// 3000 of earnings sits inside the 5000 exemption, so the full
			// supplement is paid.
			name:        "earnings within the exemption",
			ordinary:    3000,
			oas:         8000,
			age:         70,
			expectedGIS: 12000,
		},
		{
			// Countable income: 18000 - 8000 OAS - 5000 exemption = 5000.
			// Supplement: 12000 - 5000 x 0.5 = 9500.
			name:        "partially reduced",
			ordinary:    10000,
			oas:         8000,
			age:         70,
			expectedGIS: 9500,
		},
		{
			// Countable income 25000 reduces by 12500, past the maximum.
			name:        "fully phased out",
			ordinary:    30000,
			oas:         8000,
			age:         70,
			expectedGIS: 0,
		},
		{
			name:        "no OAS means no GIS",
			ordinary:    3000,
			oas:         0,
			age:         70,
			expectedGIS: 0,
		},
		{
			name:        "not available before 65",
			ordinary:    3000,
			oas:         8000,
			age:         64,
			expectedGIS: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := ComputeTaxYear(TaxYearInput{
				OrdinaryIncome: tc.ordinary,
				OAS:            tc.oas,
				Age:            tc.age,
				Province:       "ON",
			}, tables)
			assertMoneyEquals(t, tc.expectedGIS, res.GISBenefit, "GIS benefit")
		})
	}
}

func TestGISBenefit_RaisesNetIncome(t *testing.T) {
	// A low-income OAS recipient: $3,000 earnings + $8,000 OAS. Credits
	// cover the whole tax bill, so net income is cash plus the supplement:
	// 3000 + 8000 + 12000 = 23000.
	tables := testTables()
	res := ComputeTaxYear(TaxYearInput{
		OrdinaryIncome: 3000,
		OAS:            8000,
		Age:            70,
		Province:       "ON",
	}, tables)

	assertMoneyEquals(t, 0, res.TotalTax, "total tax")
	assertMoneyEquals(t, 23000, res.NetIncome, "net income with supplement")
}

func TestRRIFMinimumFactor(t *testing.T) {
	tables := testTables()
	tests := []struct {
		name     string
		age      int
		expected float64
	}{
		{"tabled age 71", 71, 0.0528},
		{"tabled age 72", 72, 0.0540},
		{"tabled age 80", 80, 0.0682},
		// Untabled ages below 90 fall back to the statutory 1/(90-age).
		{"before the table", 65, 1.0 / 25},
		{"gap between tabled ages", 75, 1.0 / 15},
		// Past the oldest tabled age the top factor holds.
		{"past the table", 96, 0.2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tables.RRIF.MinimumFactor(tc.age)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("factor at age %d: expected %.4f, got %.4f", tc.age, tc.expected, got)
			}
		})
	}
}

func TestRRIFMinimumFactor_EmptyTable(t *testing.T) {
	r := RRIFTables{ConversionAge: 71}
	if got := r.MinimumFactor(60); math.Abs(got-1.0/30) > 1e-9 {
		t.Errorf("empty table at age 60: expected %.4f, got %.4f", 1.0/30, got)
	}
	if got := r.MinimumFactor(95); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("empty table at age 95: expected 0.2, got %.4f", got)
	}
}

func TestBracketTax_OpenEndedTopBracket(t *testing.T) {
	brackets := []TaxBracket{
		{Upper: 50000, Rate: 0.15},
		{Upper: 0, Rate: 0.25},
	}
	// 50000 x 0.15 + 50000 x 0.25 = 20000
	assertMoneyEquals(t, 20000, bracketTax(100000, brackets), "tax across the open bracket")
	assertMoneyEquals(t, 0, bracketTax(0, brackets), "zero income")
	assertMoneyEquals(t, 0, bracketTax(-100, brackets), "negative income")
}
