package main

import (
	"fmt"
	"math"
)

// ShockScenario perturbs the run assumptions: deltas are added to every
// account's nominal return and to inflation.
type ShockScenario struct {
	Key            string
	ReturnDelta    float64
	InflationDelta float64
}

// defaultShocks is the fixed battery every robustness evaluation runs.
// Deliberately small and stable so scores are comparable between plans.
var defaultShocks = []ShockScenario{
	{Key: "returns_down_2", ReturnDelta: -0.02},
	{Key: "returns_down_4", ReturnDelta: -0.04},
	{Key: "inflation_up_2", InflationDelta: 0.02},
	{Key: "stagflation", ReturnDelta: -0.03, InflationDelta: 0.02},
}

// ShockOutcome is the result of re-simulating a plan under one scenario.
type ShockOutcome struct {
	Key             string  `json:"key"`
	AvgShortfall    float64 `json:"avgShortfall"`   // Mean of max(0, target-net) across years
	WorstShortfall  float64 `json:"worstShortfall"` // Largest single-year shortfall
	YearsShort      int     `json:"yearsShort"`
	FinalBalance    float64 `json:"finalBalance"`
	DepletedAccount bool    `json:"depletedAccount"`
}

// RobustnessReport aggregates the battery into one score with readable
// explanations.
type RobustnessReport struct {
	RobustScore  float64        `json:"robustScore"` // 0 (fragile) to 100 (target met under every shock)
	Scenarios    []ShockOutcome `json:"scenarios"`
	Explanations []string       `json:"explanations"`
}

// shockLabels holds the per-locale scenario names. French is the app's
// historical default locale.
var shockLabels = map[string]map[string]string{
	"en": {
		"returns_down_2": "returns 2% lower than assumed",
		"returns_down_4": "returns 4% lower than assumed",
		"inflation_up_2": "inflation 2% higher than assumed",
		"stagflation":    "lower returns combined with higher inflation",
	},
	"fr": {
		"returns_down_2": "rendements inférieurs de 2 % aux hypothèses",
		"returns_down_4": "rendements inférieurs de 4 % aux hypothèses",
		"inflation_up_2": "inflation supérieure de 2 % aux hypothèses",
		"stagflation":    "rendements plus faibles combinés à une inflation plus élevée",
	},
}

func shockLabel(locale, key string) string {
	if m, ok := shockLabels[locale]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	if s, ok := shockLabels["en"][key]; ok {
		return s
	}
	return key
}

// EvaluateRobustness re-runs a fixed decision sequence under the shock
// battery and scores how well it keeps meeting the target. It is a pure
// function of its inputs: the decisions are never mutated (the simulator
// copies them before clamping).
func EvaluateRobustness(s OptimizationSession, decisions []YearDecision, locale string) RobustnessReport {
	if locale != "fr" {
		locale = "en"
	}

	report := RobustnessReport{Scenarios: make([]ShockOutcome, 0, len(defaultShocks))}

	worstFrac := 0.0
	sumFrac := 0.0

	for _, shock := range defaultShocks {
		a := s.Assumptions
		a.ReturnTFSA += shock.ReturnDelta
		a.ReturnNonReg += shock.ReturnDelta
		a.ReturnRRSP += shock.ReturnDelta
		a.ReturnRRIF += shock.ReturnDelta
		a.InflationRate += shock.InflationDelta

		years := SimulateYears(s.Opening, a, s.Tables, decisions, s.HorizonYears)

		out := ShockOutcome{Key: shock.Key}
		totalShortfall := 0.0
		for _, y := range years {
			short := s.TargetNetAnnual - y.NetIncome
			if short > 1 {
				out.YearsShort++
				totalShortfall += short
				if short > out.WorstShortfall {
					out.WorstShortfall = short
				}
			}
		}
		if n := len(years); n > 0 {
			out.AvgShortfall = totalShortfall / float64(n)
			out.FinalBalance = years[n-1].Closing.Total()
			out.DepletedAccount = out.FinalBalance < 1
		}
		report.Scenarios = append(report.Scenarios, out)

		frac := 0.0
		if s.TargetNetAnnual > 0 {
			frac = out.AvgShortfall / s.TargetNetAnnual
		}
		sumFrac += frac
		if frac > worstFrac {
			worstFrac = frac
		}
	}

	meanFrac := sumFrac / float64(len(defaultShocks))
	score := 100 * (1 - 0.5*worstFrac - 0.5*meanFrac)
	report.RobustScore = math.Max(0, math.Min(100, score))

	report.Explanations = buildExplanations(report, locale)
	return report
}

func buildExplanations(r RobustnessReport, locale string) []string {
	var out []string

	allGood := true
	for _, sc := range r.Scenarios {
		if sc.YearsShort > 0 {
			allGood = false
			if locale == "fr" {
				out = append(out, fmt.Sprintf(
					"Avec %s, le revenu cible est manqué %d année(s), pire manque %.0f $.",
					shockLabel(locale, sc.Key), sc.YearsShort, sc.WorstShortfall))
			} else {
				out = append(out, fmt.Sprintf(
					"With %s, the target income is missed in %d year(s), worst shortfall $%.0f.",
					shockLabel(locale, sc.Key), sc.YearsShort, sc.WorstShortfall))
			}
		}
		if sc.DepletedAccount {
			if locale == "fr" {
				out = append(out, fmt.Sprintf(
					"Avec %s, tous les comptes sont épuisés avant la fin de l'horizon.",
					shockLabel(locale, sc.Key)))
			} else {
				out = append(out, fmt.Sprintf(
					"With %s, every account is depleted before the end of the horizon.",
					shockLabel(locale, sc.Key)))
			}
		}
	}

	if allGood {
		if locale == "fr" {
			out = append(out, fmt.Sprintf(
				"Le plan atteint le revenu cible dans les %d scénarios de choc (score %.0f/100).",
				len(r.Scenarios), r.RobustScore))
		} else {
			out = append(out, fmt.Sprintf(
				"The plan meets the target income in all %d shock scenarios (score %.0f/100).",
				len(r.Scenarios), r.RobustScore))
		}
	} else {
		if locale == "fr" {
			out = append(out, fmt.Sprintf("Score de robustesse global : %.0f/100.", r.RobustScore))
		} else {
			out = append(out, fmt.Sprintf("Overall robustness score: %.0f/100.", r.RobustScore))
		}
	}

	return out
}
