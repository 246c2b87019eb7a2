package main

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default-config.yaml
var defaultConfigYAML string

// TaxBracket is one marginal bracket. Upper of 0 marks the open-ended top
// bracket.
type TaxBracket struct {
	Upper float64 `yaml:"upper" json:"upper"`
	Rate  float64 `yaml:"rate" json:"rate"`
}

// JurisdictionTables holds the bracket and credit figures for one taxing
// jurisdiction (federal or one province).
type JurisdictionTables struct {
	BasicPersonalAmount float64      `yaml:"basic_personal_amount" json:"basic_personal_amount"`
	Brackets            []TaxBracket `yaml:"brackets" json:"brackets"`
	AgeAmount           float64      `yaml:"age_amount" json:"age_amount"`
	AgeAmountThreshold  float64      `yaml:"age_amount_threshold" json:"age_amount_threshold"`
	AgeAmountTaper      float64      `yaml:"age_amount_taper" json:"age_amount_taper"`
	PensionAmount       float64      `yaml:"pension_amount" json:"pension_amount"`

	// Dividend treatment. Gross-up factors are only set federally; provinces
	// apply their credit rates to the federally grossed-up amount.
	EligibleDividendGrossUp float64 `yaml:"eligible_dividend_gross_up,omitempty" json:"eligible_dividend_gross_up,omitempty"`
	EligibleDividendCredit  float64 `yaml:"eligible_dividend_credit" json:"eligible_dividend_credit"`
	OrdinaryDividendGrossUp float64 `yaml:"ordinary_dividend_gross_up,omitempty" json:"ordinary_dividend_gross_up,omitempty"`
	OrdinaryDividendCredit  float64 `yaml:"ordinary_dividend_credit" json:"ordinary_dividend_credit"`

	// Quebec residents get an abatement on federal tax.
	FederalAbatement float64 `yaml:"federal_abatement,omitempty" json:"federal_abatement,omitempty"`
}

// OASTables holds the clawback parameters for Old Age Security.
type OASTables struct {
	ClawbackThreshold float64 `yaml:"clawback_threshold" json:"clawback_threshold"`
	ClawbackRate      float64 `yaml:"clawback_rate" json:"clawback_rate"`
}

// GISTables holds the Guaranteed Income Supplement parameters.
type GISTables struct {
	MaxAnnualSingle float64 `yaml:"max_annual_single" json:"max_annual_single"`
	ReductionRate   float64 `yaml:"reduction_rate" json:"reduction_rate"`
	Exemption       float64 `yaml:"exemption" json:"exemption"`
}

// RRIFTables holds the mandatory minimum withdrawal schedule. The factors
// change by law, so they live in configuration rather than code.
type RRIFTables struct {
	ConversionAge int             `yaml:"conversion_age" json:"conversion_age"`
	Minimums      map[int]float64 `yaml:"minimums" json:"minimums"`
}

// MinimumFactor returns the mandatory withdrawal fraction for an age. Below
// the youngest tabled age the statutory 1/(90-age) formula applies; above
// the oldest, the top factor holds.
func (r *RRIFTables) MinimumFactor(age int) float64 {
	if f, ok := r.Minimums[age]; ok {
		return f
	}
	if len(r.Minimums) == 0 {
		if age < 90 {
			return 1.0 / float64(90-age)
		}
		return 0.2
	}
	minAge, maxAge := 0, 0
	for a := range r.Minimums {
		if minAge == 0 || a < minAge {
			minAge = a
		}
		if a > maxAge {
			maxAge = a
		}
	}
	if age > maxAge {
		return r.Minimums[maxAge]
	}
	if age < 90 {
		return 1.0 / float64(90-age)
	}
	return r.Minimums[maxAge]
}

// TaxTables is the full versioned set of jurisdiction- and year-specific
// constants the tax year calculator needs.
type TaxTables struct {
	TaxYear               int                           `yaml:"tax_year" json:"tax_year"`
	CapitalGainsInclusion float64                       `yaml:"capital_gains_inclusion" json:"capital_gains_inclusion"`
	Federal               JurisdictionTables            `yaml:"federal" json:"federal"`
	Provinces             map[string]JurisdictionTables `yaml:"provinces" json:"provinces"`
	OAS                   OASTables                     `yaml:"oas" json:"oas"`
	GIS                   GISTables                     `yaml:"gis" json:"gis"`
	RRIF                  RRIFTables                    `yaml:"rrif" json:"rrif"`
}

// Province returns the tables for a province code, falling back to Quebec
// when the code is unknown (the app's historical default locale).
func (t *TaxTables) Province(code string) JurisdictionTables {
	if p, ok := t.Provinces[code]; ok {
		return p
	}
	if p, ok := t.Provinces["QC"]; ok {
		return p
	}
	return JurisdictionTables{}
}

// ProvinceCodes returns the configured province codes in sorted order.
func (t *TaxTables) ProvinceCodes() []string {
	codes := make([]string, 0, len(t.Provinces))
	for c := range t.Provinces {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// PlanConfig describes the plan being optimized.
type PlanConfig struct {
	Province        string  `yaml:"province" json:"province"`
	StartAge        int     `yaml:"start_age" json:"start_age"`
	HorizonYears    int     `yaml:"horizon_years" json:"horizon_years"`
	TargetNetAnnual float64 `yaml:"target_net_annual" json:"target_net_annual"`
	StartCPPAt      int     `yaml:"start_cpp_at" json:"start_cpp_at"`
	StartOASAt      int     `yaml:"start_oas_at" json:"start_oas_at"`
}

// BalancesConfig holds the opening account balances.
type BalancesConfig struct {
	TFSA          float64 `yaml:"tfsa" json:"tfsa"`
	NonRegistered float64 `yaml:"non_registered" json:"non_registered"`
	RRSP          float64 `yaml:"rrsp" json:"rrsp"`
	RRIF          float64 `yaml:"rrif" json:"rrif"`
}

// ReturnsConfig holds nominal growth and inflation assumptions.
type ReturnsConfig struct {
	TFSA          float64 `yaml:"tfsa" json:"tfsa"`
	NonRegistered float64 `yaml:"non_registered" json:"non_registered"`
	RRSP          float64 `yaml:"rrsp" json:"rrsp"`
	RRIF          float64 `yaml:"rrif" json:"rrif"`
	Inflation     float64 `yaml:"inflation" json:"inflation"`
	CapGainsRatio float64 `yaml:"cap_gains_ratio" json:"cap_gains_ratio"`
}

// BenefitsConfig holds government benefit modeling switches and amounts.
type BenefitsConfig struct {
	ModelCPP      bool    `yaml:"model_cpp" json:"model_cpp"`
	ModelOAS      bool    `yaml:"model_oas" json:"model_oas"`
	CPPAnnualAt65 float64 `yaml:"cpp_annual_at_65" json:"cpp_annual_at_65"`
	OASAnnualAt65 float64 `yaml:"oas_annual_at_65" json:"oas_annual_at_65"`
}

// OptimizerConfig holds the beam search tunables. WeightTargetMiss is a
// business parameter, not a derived constant.
type OptimizerConfig struct {
	BeamWidth        int     `yaml:"beam_width" json:"beam_width"`
	StepSize         float64 `yaml:"step_size" json:"step_size"`
	WeightTargetMiss float64 `yaml:"weight_target_miss" json:"weight_target_miss"`
}

// StorageConfig selects and parameterizes the Store backend.
type StorageConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	Path      string `yaml:"path" json:"path"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// SecurityConfig holds backup encryption and audit log settings.
type SecurityConfig struct {
	PBKDF2Iterations int `yaml:"pbkdf2_iterations" json:"pbkdf2_iterations"`
	MaxLogs          int `yaml:"max_logs" json:"max_logs"`
	RetentionDays    int `yaml:"retention_days" json:"retention_days"`
	AutoBackupKeep   int `yaml:"auto_backup_keep" json:"auto_backup_keep"`
}

// Config is the root configuration document.
type Config struct {
	Plan      PlanConfig      `yaml:"plan" json:"plan"`
	Balances  BalancesConfig  `yaml:"balances" json:"balances"`
	Returns   ReturnsConfig   `yaml:"returns" json:"returns"`
	Benefits  BenefitsConfig  `yaml:"benefits" json:"benefits"`
	Optimizer OptimizerConfig `yaml:"optimizer" json:"optimizer"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	TaxTables TaxTables       `yaml:"tax_tables" json:"tax_tables"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return &config, nil
}

// LoadDefaultConfig loads the configuration compiled into the binary.
func LoadDefaultConfig() (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &config); err != nil {
		return nil, fmt.Errorf("embedded default config is invalid: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills fields a hand-edited config commonly leaves out.
func (c *Config) applyDefaults() {
	if c.Plan.Province == "" {
		c.Plan.Province = "QC"
	}
	if c.Plan.HorizonYears <= 0 {
		c.Plan.HorizonYears = 30
	}
	if c.Plan.StartCPPAt <= 0 {
		c.Plan.StartCPPAt = 65
	}
	if c.Plan.StartOASAt <= 0 {
		c.Plan.StartOASAt = 65
	}
	if c.Returns.CapGainsRatio <= 0 {
		c.Returns.CapGainsRatio = 0.5
	}
	if c.Optimizer.BeamWidth <= 0 {
		c.Optimizer.BeamWidth = 120
	}
	if c.Optimizer.StepSize <= 0 {
		c.Optimizer.StepSize = 5000
	}
	if c.Optimizer.WeightTargetMiss <= 0 {
		c.Optimizer.WeightTargetMiss = 1.0
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "localhost:8490"
	}
	if c.Security.PBKDF2Iterations <= 0 {
		c.Security.PBKDF2Iterations = 100000
	}
	if c.Security.MaxLogs <= 0 {
		c.Security.MaxLogs = 1000
	}
	if c.Security.RetentionDays <= 0 {
		c.Security.RetentionDays = 90
	}
	if c.Security.AutoBackupKeep <= 0 {
		c.Security.AutoBackupKeep = 10
	}
	if c.TaxTables.CapitalGainsInclusion <= 0 {
		c.TaxTables.CapitalGainsInclusion = 0.5
	}
	if c.TaxTables.RRIF.ConversionAge <= 0 {
		c.TaxTables.RRIF.ConversionAge = 71
	}
}

// Validate checks the parts of the config that would make a simulation
// meaningless rather than merely unusual.
func (c *Config) Validate() error {
	if c.Plan.StartAge <= 0 || c.Plan.StartAge > 110 {
		return fmt.Errorf("plan.start_age %d is out of range", c.Plan.StartAge)
	}
	if c.Plan.HorizonYears > 60 {
		return fmt.Errorf("plan.horizon_years %d exceeds the 60 year maximum", c.Plan.HorizonYears)
	}
	if len(c.TaxTables.Federal.Brackets) == 0 {
		return fmt.Errorf("tax_tables.federal.brackets is empty")
	}
	if _, ok := c.TaxTables.Provinces[c.Plan.Province]; !ok {
		return fmt.Errorf("no tax tables for province %q", c.Plan.Province)
	}
	return nil
}

// Session builds the optimization session described by this config.
func (c *Config) Session() OptimizationSession {
	return OptimizationSession{
		Opening: AccountBalances{
			TFSA:          c.Balances.TFSA,
			NonRegistered: c.Balances.NonRegistered,
			RRSP:          c.Balances.RRSP,
			RRIF:          c.Balances.RRIF,
		},
		Assumptions: Assumptions{
			Province:      c.Plan.Province,
			StartAge:      c.Plan.StartAge,
			ReturnTFSA:    c.Returns.TFSA,
			ReturnNonReg:  c.Returns.NonRegistered,
			ReturnRRSP:    c.Returns.RRSP,
			ReturnRRIF:    c.Returns.RRIF,
			InflationRate: c.Returns.Inflation,
			ModelCPP:      c.Benefits.ModelCPP,
			ModelOAS:      c.Benefits.ModelOAS,
			CPPAnnualAt65: c.Benefits.CPPAnnualAt65,
			OASAnnualAt65: c.Benefits.OASAnnualAt65,
			CapGainsRatio: c.Returns.CapGainsRatio,
		},
		Tables:          &c.TaxTables,
		HorizonYears:    c.Plan.HorizonYears,
		TargetNetAnnual: c.Plan.TargetNetAnnual,
		StartCPPAt:      c.Plan.StartCPPAt,
		StartOASAt:      c.Plan.StartOASAt,
	}
}

// BeamParamsFromConfig builds beam parameters from the optimizer section.
func (c *Config) BeamParams() BeamParams {
	return BeamParams{
		Session:          c.Session(),
		BeamWidth:        c.Optimizer.BeamWidth,
		StepSize:         c.Optimizer.StepSize,
		WeightTargetMiss: c.Optimizer.WeightTargetMiss,
	}
}
