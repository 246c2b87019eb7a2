package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth    = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 20.0
	contentWidth = pageWidth - marginLeft - marginRight
)

// PDFPlanReport generates a printable comparison report for a planning run
type PDFPlanReport struct {
	pdf    *fpdf.Fpdf
	config *Config
	report *ComparisonReport
}

// GeneratePlanPDFReport creates the PDF for a full comparison run
func GeneratePlanPDFReport(config *Config, comparison *ComparisonReport) ([]byte, error) {
	r := &PDFPlanReport{
		pdf:    fpdf.New("P", "mm", "A4", ""),
		config: config,
		report: comparison,
	}

	r.pdf.SetMargins(marginLeft, marginTop, marginRight)
	r.pdf.SetAutoPageBreak(true, marginBottom)

	r.addTitlePage()
	r.addComparisonPage()
	if r.report.BestIdx >= 0 {
		r.addYearByYearPage(r.report.Best())
	}
	if len(r.report.Robustness) == len(r.report.Plans) && r.report.BestIdx >= 0 {
		r.addRobustnessPage(r.report.Robustness[r.report.BestIdx])
	}

	var buf bytes.Buffer
	if err := r.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *PDFPlanReport) addTitlePage() {
	r.pdf.AddPage()

	r.pdf.SetFont("Arial", "B", 28)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.Ln(50)
	r.pdf.CellFormat(contentWidth, 15, "Retirement Withdrawal Plan", "", 1, "C", false, 0, "")

	r.pdf.SetFont("Arial", "", 14)
	r.pdf.SetTextColor(80, 80, 80)
	r.pdf.Ln(10)
	subtitle := fmt.Sprintf("Province %s, %d year horizon", r.config.Plan.Province, r.config.Plan.HorizonYears)
	r.pdf.CellFormat(contentWidth, 10, subtitle, "", 1, "C", false, 0, "")

	r.pdf.SetFont("Arial", "I", 11)
	r.pdf.Ln(15)
	r.pdf.CellFormat(contentWidth, 8, fmt.Sprintf("Generated: %s", time.Now().Format("2 January 2006")), "", 1, "C", false, 0, "")

	// Plan inputs box
	r.pdf.Ln(20)
	r.pdf.SetFillColor(245, 247, 250)
	r.pdf.SetDrawColor(200, 200, 200)

	r.pdf.SetFont("Arial", "B", 12)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 8, "Plan Inputs", "1", 1, "C", true, 0, "")

	r.pdf.SetFont("Arial", "", 11)
	r.pdf.SetTextColor(50, 50, 50)
	lines := []string{
		fmt.Sprintf("Start age %d, target net income %s per year",
			r.config.Plan.StartAge, FormatMoneyFull(r.config.Plan.TargetNetAnnual)),
		fmt.Sprintf("TFSA %s, Non-registered %s, RRSP %s, RRIF %s",
			FormatMoney(r.config.Balances.TFSA),
			FormatMoney(r.config.Balances.NonRegistered),
			FormatMoney(r.config.Balances.RRSP),
			FormatMoney(r.config.Balances.RRIF)),
		fmt.Sprintf("CPP %s from age %d, OAS %s from age %d",
			FormatMoney(r.config.Benefits.CPPAnnualAt65), r.config.Plan.StartCPPAt,
			FormatMoney(r.config.Benefits.OASAnnualAt65), r.config.Plan.StartOASAt),
		fmt.Sprintf("Tax year %d tables", r.config.TaxTables.TaxYear),
	}
	for i, text := range lines {
		border := "LR"
		if i == len(lines)-1 {
			border = "LRB"
		}
		r.pdf.CellFormat(contentWidth, 7, text, border, 1, "C", true, 0, "")
	}

	r.pdf.Ln(15)
	r.pdf.SetFont("Arial", "I", 9)
	r.pdf.SetTextColor(120, 120, 120)
	r.pdf.MultiCell(contentWidth, 4.5,
		"This document is for informational purposes only and does not constitute financial advice. "+
			"Please consult a qualified financial advisor before making any financial decisions. "+
			"Tax rules and government benefit parameters are subject to change.", "", "C", false)
}

func (r *PDFPlanReport) addComparisonPage() {
	r.pdf.AddPage()
	r.drawSectionHeader("Strategy Comparison")

	headers := []string{"Strategy", "Total Tax", "Withdrawn", "Final Balance", "Runs Out"}
	widths := []float64{55, 30, 30, 35, 30}
	r.drawTableHeader(headers, widths)

	for i, p := range r.report.Plans {
		runsOut := "No"
		if p.RanOutOfMoney {
			runsOut = fmt.Sprintf("Year %d", p.RanOutYear)
		}
		cells := []string{
			p.Name,
			FormatMoney(p.TotalTax),
			FormatMoney(p.TotalWithdrawn),
			FormatMoney(p.FinalBalance),
			runsOut,
		}
		r.drawTableRow(cells, widths, i == r.report.BestIdx)
	}

	if r.report.BestIdx >= 0 {
		best := r.report.Best()
		r.pdf.Ln(8)
		r.pdf.SetFont("Arial", "B", 12)
		r.pdf.SetTextColor(0, 102, 51)
		r.pdf.CellFormat(contentWidth, 8, fmt.Sprintf("Recommended: %s", best.Name), "", 1, "L", false, 0, "")
		r.pdf.SetFont("Arial", "", 10)
		r.pdf.SetTextColor(50, 50, 50)
		r.pdf.CellFormat(contentWidth, 6,
			fmt.Sprintf("Lifetime tax %s, final balance %s after %d years",
				FormatMoney(best.TotalTax), FormatMoney(best.FinalBalance), len(best.Years)),
			"", 1, "L", false, 0, "")
	}
}

func (r *PDFPlanReport) addYearByYearPage(p PlanSummary) {
	r.pdf.AddPage()
	r.drawSectionHeader(fmt.Sprintf("Year by Year: %s", p.Name))

	headers := []string{"Year", "Age", "TFSA", "NonReg", "RRSP", "RRIF", "Tax", "Net", "Balance"}
	widths := []float64{14, 14, 21, 21, 21, 21, 21, 23, 24}
	r.drawTableHeader(headers, widths)

	for _, y := range p.Years {
		cells := []string{
			fmt.Sprintf("%d", y.YearIndex),
			fmt.Sprintf("%d", y.Age),
			FormatMoney(y.Decision.WithdrawTFSA),
			FormatMoney(y.Decision.WithdrawNonReg),
			FormatMoney(y.Decision.WithdrawRRSP),
			FormatMoney(y.Decision.WithdrawRRIF),
			FormatMoney(y.Tax.TotalTax),
			FormatMoney(y.NetIncome),
			FormatMoney(y.Closing.Total()),
		}
		r.drawTableRow(cells, widths, false)
	}
}

func (r *PDFPlanReport) addRobustnessPage(rob RobustnessReport) {
	r.pdf.AddPage()
	r.drawSectionHeader("Robustness Under Adverse Scenarios")

	r.pdf.SetFont("Arial", "B", 14)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 10, fmt.Sprintf("Robustness score: %.0f / 100", rob.RobustScore), "", 1, "L", false, 0, "")
	r.pdf.Ln(4)

	headers := []string{"Scenario", "Avg Shortfall", "Worst", "Years Short", "Final Balance"}
	widths := []float64{50, 32, 32, 28, 38}
	r.drawTableHeader(headers, widths)
	for _, sc := range rob.Scenarios {
		cells := []string{
			sc.Key,
			FormatMoney(sc.AvgShortfall),
			FormatMoney(sc.WorstShortfall),
			fmt.Sprintf("%d", sc.YearsShort),
			FormatMoney(sc.FinalBalance),
		}
		r.drawTableRow(cells, widths, false)
	}

	r.pdf.Ln(8)
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.SetTextColor(50, 50, 50)
	for _, line := range rob.Explanations {
		r.pdf.MultiCell(contentWidth, 5.5, "- "+line, "", "L", false)
	}
}

func (r *PDFPlanReport) drawSectionHeader(title string) {
	r.pdf.SetFont("Arial", "B", 16)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 10, title, "", 1, "L", false, 0, "")
	r.pdf.SetDrawColor(0, 51, 102)
	r.pdf.Line(marginLeft, r.pdf.GetY(), pageWidth-marginRight, r.pdf.GetY())
	r.pdf.Ln(5)
}

func (r *PDFPlanReport) drawTableHeader(headers []string, widths []float64) {
	r.pdf.SetFont("Arial", "B", 9)
	r.pdf.SetFillColor(0, 51, 102)
	r.pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		r.pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	r.pdf.Ln(-1)
}

func (r *PDFPlanReport) drawTableRow(cells []string, widths []float64, highlight bool) {
	r.pdf.SetFont("Arial", "", 9)
	if highlight {
		r.pdf.SetFont("Arial", "B", 9)
		r.pdf.SetFillColor(230, 242, 230)
	} else {
		r.pdf.SetFillColor(248, 248, 248)
	}
	r.pdf.SetTextColor(50, 50, 50)
	for i, c := range cells {
		r.pdf.CellFormat(widths[i], 6.5, c, "1", 0, "C", true, 0, "")
	}
	r.pdf.Ln(-1)
}
