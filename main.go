package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagConfig  string
	flagVerbose bool
	flagDebug   bool

	flagOrder       string
	flagLocale      string
	flagBeam        bool
	flagDescription string
	flagOutput      string
)

// app is the composition root shared by every command.
type app struct {
	cfg     *Config
	log     Logger
	store   Store
	audit   *AuditLog
	backups *BackupService
}

func newApp() (*app, error) {
	var cfg *Config
	var err error
	if flagConfig != "" {
		cfg, err = LoadConfig(flagConfig)
	} else {
		cfg, err = LoadDefaultConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := Logger{Verbose: flagVerbose, Debug: flagDebug}

	store, err := OpenStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	audit := NewAuditLog(store, log, cfg.Security)
	security := NewSecurityService(cfg.Security, log, audit)
	collector := NewCollector(store, log)
	backups := NewBackupService(store, security, collector, audit, log, cfg.Security)

	return &app{cfg: cfg, log: log, store: store, audit: audit, backups: backups}, nil
}

var rootCmd = &cobra.Command{
	Use:   "retirelab",
	Short: "Canadian retirement withdrawal planning and tax optimization",
	Long: `retirelab simulates retirement account drawdowns under Canadian federal
and provincial tax rules, optimizes withdrawal sequencing to minimize
lifetime tax, and manages encrypted backups of plan data.`,
	SilenceUsage: true,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate the configured plan with one withdrawal order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		order, ok := parseOrder(flagOrder)
		if !ok {
			return fmt.Errorf("unknown withdrawal order %q", flagOrder)
		}

		s := a.cfg.Session()
		decisions := GreedyPlanOrdered(s, order)
		years := SimulateYears(s.Opening, s.Assumptions, s.Tables, decisions, s.HorizonYears)

		PrintHeader(a.cfg)
		PrintPlanSummary(SummarizePlan("greedy "+order.ShortName(), order, years, s.TargetNetAnnual))
		return nil
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run the beam search optimizer",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sp := newSpinner(" Running beam search...")
		sp.Start()

		opt := NewBeamOptimizer(a.log)
		progressCh, outcomeCh, err := opt.Run(ctx, a.cfg.BeamParams())
		if err != nil {
			sp.Stop()
			return err
		}

		for pr := range progressCh {
			sp.Suffix = fmt.Sprintf(" Beam search year %d/%d...", pr.Year+1, a.cfg.Plan.HorizonYears)
		}
		outcome, received := <-outcomeCh
		sp.Stop()

		if !received {
			return fmt.Errorf("optimization cancelled")
		}
		if outcome.Err != nil {
			return outcome.Err
		}

		s := a.cfg.Session()
		PrintHeader(a.cfg)
		PrintPlanSummary(SummarizePlan("beam search", OrderNonRegFirst, outcome.Result.Results, s.TargetNetAnnual))
		return nil
	},
}

var robustnessCmd = &cobra.Command{
	Use:   "robustness",
	Short: "Stress-test the greedy plan under adverse scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		s := a.cfg.Session()
		decisions := GreedyPlan(s)
		PrintRobustness(EvaluateRobustness(s, decisions, flagLocale))
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare withdrawal strategies and recommend one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sp := newSpinner(" Comparing strategies...")
		sp.Start()
		report, err := ComparePlans(ctx, a.cfg.Session(), CompareOptions{
			IncludeBeam: flagBeam,
			BeamParams:  a.cfg.BeamParams(),
			Locale:      flagLocale,
		})
		sp.Stop()
		if err != nil {
			return err
		}

		PrintHeader(a.cfg)
		PrintComparison(report)
		return nil
	},
}

var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity",
	Short: "Sweep return and income assumptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		sp := newSpinner(" Running sensitivity sweep...")
		sp.Start()
		grid := RunSensitivityGrid(a.cfg.Session())
		sp.Stop()

		PrintSensitivityGrid(grid)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [output.pdf]",
	Short: "Generate a PDF comparison report",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		out := "retirement-plan.pdf"
		if len(args) == 1 {
			out = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sp := newSpinner(" Building report...")
		sp.Start()
		comparison, err := ComparePlans(ctx, a.cfg.Session(), CompareOptions{
			IncludeBeam: flagBeam,
			BeamParams:  a.cfg.BeamParams(),
			Locale:      flagLocale,
		})
		if err != nil {
			sp.Stop()
			return err
		}
		pdf, err := GeneratePlanPDFReport(a.cfg, comparison)
		sp.Stop()
		if err != nil {
			return err
		}

		if err := os.WriteFile(out, pdf, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		a.log.Infof("report written to %s", out)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, restore, and list encrypted backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an encrypted backup of all plan data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		password, err := readPassword("Backup password: ")
		if err != nil {
			return err
		}

		meta, err := a.backups.CreateBackup(cmd.Context(), password, flagDescription, false)
		if err != nil {
			return err
		}
		fmt.Printf("Backup created: %s\n", meta.ID)

		if flagOutput != "" {
			blob, err := a.backups.ExportBackup(cmd.Context(), meta.ID)
			if err != nil {
				return err
			}
			if err := os.WriteFile(flagOutput, blob, 0600); err != nil {
				return fmt.Errorf("failed to write backup file: %w", err)
			}
			fmt.Printf("Exported to %s\n", flagOutput)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id-or-file>",
	Short: "Restore plan data from a backup slot or file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		password, err := readPassword("Backup password: ")
		if err != nil {
			return err
		}

		var restored int
		if content, readErr := os.ReadFile(args[0]); readErr == nil {
			restored, err = a.backups.ImportFile(cmd.Context(), content, password)
		} else {
			restored, err = a.backups.RestoreBackup(cmd.Context(), args[0], password)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d modules.\n", restored)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		PrintBackupList(a.backups.ListBackups(cmd.Context()))
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a backup slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.backups.DeleteBackup(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Backup deleted.")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the planning API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		server := NewWebServer(a.cfg, a.log, NewBeamOptimizer(a.log), a.backups, a.audit)
		return server.Serve()
	},
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = suffix
	return s
}

// readPassword prompts on the terminal without echo. The RETIRELAB_PASSWORD
// environment variable overrides the prompt for non-interactive use.
func readPassword(prompt string) (string, error) {
	if env := os.Getenv("RETIRELAB_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}
	return string(raw), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug output")

	simulateCmd.Flags().StringVar(&flagOrder, "order", "nonreg-first", "withdrawal order: nonreg-first, rrsp-first, tfsa-first")
	robustnessCmd.Flags().StringVar(&flagLocale, "locale", "en", "explanation language: en or fr")
	compareCmd.Flags().StringVar(&flagLocale, "locale", "en", "explanation language: en or fr")
	compareCmd.Flags().BoolVar(&flagBeam, "beam", false, "include the beam search plan in the comparison")
	reportCmd.Flags().BoolVar(&flagBeam, "beam", false, "include the beam search plan in the report")
	reportCmd.Flags().StringVar(&flagLocale, "locale", "en", "explanation language: en or fr")
	backupCreateCmd.Flags().StringVarP(&flagDescription, "description", "d", "", "backup description")
	backupCreateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "also export the encrypted blob to a file")

	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd, backupListCmd, backupDeleteCmd)
	rootCmd.AddCommand(simulateCmd, optimizeCmd, robustnessCmd, compareCmd, sensitivityCmd, reportCmd, backupCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
