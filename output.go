package main

import (
	"fmt"
	"strings"
)

// FormatMoney formats a float as a currency string
func FormatMoney(amount float64) string {
	neg := ""
	if amount < 0 {
		neg = "-"
		amount = -amount
	}
	if amount >= 1000000 {
		return fmt.Sprintf("%s$%.2fM", neg, amount/1000000)
	}
	if amount >= 1000 {
		return fmt.Sprintf("%s$%.0fk", neg, amount/1000)
	}
	return fmt.Sprintf("%s$%.0f", neg, amount)
}

// FormatMoneyFull formats a float as full currency (no abbreviation)
func FormatMoneyFull(amount float64) string {
	return fmt.Sprintf("$%.0f", amount)
}

func printBoxed(title string) {
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║ %-76s ║\n", title)
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════╝")
}

// PrintHeader prints the plan configuration
func PrintHeader(config *Config) {
	printBoxed("RETIREMENT WITHDRAWAL TAX OPTIMIZATION")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("──────────────")
	fmt.Printf("  Province: %s | Start age: %d | Horizon: %d years\n",
		config.Plan.Province, config.Plan.StartAge, config.Plan.HorizonYears)
	fmt.Printf("  Target net income: %s/year\n", FormatMoneyFull(config.Plan.TargetNetAnnual))
	fmt.Printf("  Balances: TFSA %s | Non-reg %s | RRSP %s | RRIF %s\n",
		FormatMoney(config.Balances.TFSA),
		FormatMoney(config.Balances.NonRegistered),
		FormatMoney(config.Balances.RRSP),
		FormatMoney(config.Balances.RRIF))
	fmt.Printf("  Returns: TFSA %.1f%% | Non-reg %.1f%% | RRSP %.1f%% | RRIF %.1f%% | Inflation %.1f%%\n",
		config.Returns.TFSA*100,
		config.Returns.NonRegistered*100,
		config.Returns.RRSP*100,
		config.Returns.RRIF*100,
		config.Returns.Inflation*100)
	if config.Benefits.ModelCPP || config.Benefits.ModelOAS {
		fmt.Printf("  Benefits: CPP %s from %d | OAS %s from %d\n",
			FormatMoney(config.Benefits.CPPAnnualAt65), config.Plan.StartCPPAt,
			FormatMoney(config.Benefits.OASAnnualAt65), config.Plan.StartOASAt)
	}
	fmt.Printf("  Tax year: %d\n", config.TaxTables.TaxYear)
	fmt.Println()
}

// PrintPlanSummary prints one plan with a year-by-year table. Every fifth
// year plus the first and last are shown.
func PrintPlanSummary(p PlanSummary) {
	fmt.Println()
	printBoxed("Plan: " + p.Name)
	fmt.Println()

	fmt.Printf("%-6s %-5s │ %9s %9s %9s %9s │ %9s %9s │ %10s │ %10s\n",
		"Year", "Age", "TFSA", "NonReg", "RRSP", "RRIF", "Tax", "Clawback", "Net Income", "Balance")
	fmt.Println(strings.Repeat("─", 112))

	for i, y := range p.Years {
		isKeyYear := i == 0 || i == len(p.Years)-1 || y.YearIndex%5 == 0
		if !isKeyYear {
			continue
		}
		fmt.Printf("%-6d %-5d │ %9s %9s %9s %9s │ %9s %9s │ %10s │ %10s\n",
			y.YearIndex, y.Age,
			FormatMoney(y.Decision.WithdrawTFSA),
			FormatMoney(y.Decision.WithdrawNonReg),
			FormatMoney(y.Decision.WithdrawRRSP),
			FormatMoney(y.Decision.WithdrawRRIF),
			FormatMoney(y.Tax.TotalTax),
			FormatMoney(y.Tax.OASClawback),
			FormatMoney(y.NetIncome),
			FormatMoney(y.Closing.Total()))
	}
	fmt.Println(strings.Repeat("─", 112))

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Total Tax Paid:    %s\n", FormatMoney(p.TotalTax))
	fmt.Printf("  Total Withdrawn:   %s\n", FormatMoney(p.TotalWithdrawn))
	fmt.Printf("  Total Net Income:  %s\n", FormatMoney(p.TotalNetIncome))
	fmt.Printf("  Final Balance:     %s\n", FormatMoney(p.FinalBalance))
	if p.RanOutOfMoney {
		fmt.Printf("  ⚠️  WARNING: Ran out of money in year %d\n", p.RanOutYear)
	}
}

// PrintComparison prints all candidate plans side by side with the pick.
func PrintComparison(report *ComparisonReport) {
	fmt.Println()
	printBoxed("STRATEGY COMPARISON")
	fmt.Println()

	fmt.Printf("%-25s", "Metric")
	for _, p := range report.Plans {
		fmt.Printf(" │ %-16s", p.Name)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("─", 25+len(report.Plans)*20))

	fmt.Printf("%-25s", "Total Tax Paid")
	for _, p := range report.Plans {
		fmt.Printf(" │ %-16s", FormatMoney(p.TotalTax))
	}
	fmt.Println()

	fmt.Printf("%-25s", "Total Withdrawn")
	for _, p := range report.Plans {
		fmt.Printf(" │ %-16s", FormatMoney(p.TotalWithdrawn))
	}
	fmt.Println()

	fmt.Printf("%-25s", "Final Balance")
	for _, p := range report.Plans {
		fmt.Printf(" │ %-16s", FormatMoney(p.FinalBalance))
	}
	fmt.Println()

	fmt.Printf("%-25s", "Ran Out of Money")
	for _, p := range report.Plans {
		status := "No"
		if p.RanOutOfMoney {
			status = fmt.Sprintf("Yes (year %d)", p.RanOutYear)
		}
		fmt.Printf(" │ %-16s", status)
	}
	fmt.Println()

	if len(report.Robustness) == len(report.Plans) {
		fmt.Printf("%-25s", "Robustness Score")
		for _, r := range report.Robustness {
			fmt.Printf(" │ %-16s", fmt.Sprintf("%.0f/100", r.RobustScore))
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("─", 25+len(report.Plans)*20))
	fmt.Println()

	if report.BestIdx < 0 {
		return
	}
	best := report.Best()
	printBoxed("RECOMMENDATION")
	fmt.Println()
	if best.RanOutOfMoney {
		fmt.Println("  ⚠️  WARNING: Every strategy runs out of money before the end of the horizon!")
		fmt.Printf("  BEST OPTION: %s (lasts until year %d)\n", best.Name, best.RanOutYear)
		fmt.Println("  Consider: lowering the income target or shortening the horizon")
	} else {
		fmt.Printf("  RECOMMENDED: %s\n", best.Name)
		fmt.Printf("  Total Tax: %s | Final Balance: %s\n",
			FormatMoney(best.TotalTax), FormatMoney(best.FinalBalance))
		for i, p := range report.Plans {
			if i == report.BestIdx || p.RanOutOfMoney {
				continue
			}
			fmt.Printf("    vs %s: %s less tax\n", p.Name, FormatMoney(p.TotalTax-best.TotalTax))
		}
	}
	fmt.Println()
}

// PrintRobustness prints the shock battery outcomes and explanations.
func PrintRobustness(report RobustnessReport) {
	fmt.Println()
	printBoxed("ROBUSTNESS UNDER ADVERSE SCENARIOS")
	fmt.Println()
	fmt.Printf("  Robustness Score: %.0f/100\n", report.RobustScore)
	fmt.Println()

	fmt.Printf("%-20s │ %12s │ %12s │ %10s │ %12s\n",
		"Scenario", "Avg Short", "Worst Short", "Years Short", "Final Balance")
	fmt.Println(strings.Repeat("─", 80))
	for _, sc := range report.Scenarios {
		fmt.Printf("%-20s │ %12s │ %12s │ %10d │ %12s\n",
			sc.Key,
			FormatMoney(sc.AvgShortfall),
			FormatMoney(sc.WorstShortfall),
			sc.YearsShort,
			FormatMoney(sc.FinalBalance))
	}
	fmt.Println()
	for _, line := range report.Explanations {
		fmt.Printf("  • %s\n", line)
	}
	fmt.Println()
}

// PrintSensitivityGrid prints the assumption sweep as a matrix: rows are
// return deltas, columns are income targets, a cell shows the best plan's
// final balance or the year money runs out.
func PrintSensitivityGrid(grid *SensitivityGrid) {
	fmt.Println()
	printBoxed("SENSITIVITY: RETURNS vs INCOME TARGET")
	fmt.Println()

	fmt.Printf("%-10s", "Returns")
	for _, t := range grid.Targets {
		fmt.Printf(" │ %12s", FormatMoney(t))
	}
	fmt.Println()
	fmt.Println(strings.Repeat("─", 10+len(grid.Targets)*15))

	for ri, rd := range grid.ReturnDeltas {
		fmt.Printf("%+9.0f%%", rd*100)
		for _, cell := range grid.Cells[ri] {
			if cell.RanOutOfMoney {
				fmt.Printf(" │ %12s", fmt.Sprintf("out yr %d", cell.LastsUntilYear))
			} else {
				fmt.Printf(" │ %12s", FormatMoney(cell.FinalBalance))
			}
		}
		fmt.Println()
	}
	fmt.Println()
	fmt.Println("  Cells show the best plan's final balance, or the year funds run out.")
	fmt.Println()
}

// PrintBackupList prints the backup slots, newest first.
func PrintBackupList(backups []BackupMetadata) {
	if len(backups) == 0 {
		fmt.Println("No backups found.")
		return
	}
	fmt.Printf("%-38s │ %-20s │ %-6s │ %s\n", "ID", "Created", "Auto", "Description")
	fmt.Println(strings.Repeat("─", 100))
	for _, m := range backups {
		auto := "no"
		if m.IsAutoBackup {
			auto = "yes"
		}
		fmt.Printf("%-38s │ %-20s │ %-6s │ %s\n",
			m.ID, m.CreatedAt.Format("2006-01-02 15:04:05"), auto, m.Description)
	}
}
