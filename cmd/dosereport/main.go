// dosereport runs the Venetoclax/BIA dose-response analysis: it loads the
// replicate-wide assay workbook, fits the factor-dose and log-dose mixed
// models, derives the Bonferroni-corrected group contrasts and writes the
// annotated dose-response charts plus a JSON report.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// flag overrides applied after the config file loads
	flagInput      string
	flagSheet      string
	flagOutputDir  string
	flagDoseCol    string
	flagTimeCol    string
	flagGroupCol   string
	flagRepPrefix  string
	flagBaseline   string
	flagComparison string
)

var rootCmd = &cobra.Command{
	Use:   "dosereport",
	Short: "Mixed-model dose-response analysis for the Ven/BIA cytotoxicity assay",
	Long: `dosereport reshapes a replicate-wide cytotoxicity sheet into long form,
summarizes each dose/time/group condition, fits random-intercept mixed
models with dose as a factor and as a continuous log10 covariate, runs
Type III ANOVA and Bonferroni-corrected pairwise group contrasts, and
renders one annotated dose-response chart per treatment group.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default dosereport.yaml in the working directory)")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flagInput, "input", "", "input workbook path (overrides config)")
	pf.StringVar(&flagSheet, "sheet", "", "sheet name (overrides config)")
	pf.StringVar(&flagOutputDir, "out", "", "output directory for charts and report (overrides config)")
	pf.StringVar(&flagDoseCol, "dose-column", "", "dose column header (overrides config)")
	pf.StringVar(&flagTimeCol, "time-column", "", "time column header (overrides config)")
	pf.StringVar(&flagGroupCol, "group-column", "", "group column header (overrides config)")
	pf.StringVar(&flagRepPrefix, "replicate-prefix", "", "replicate column prefix (overrides config)")
	pf.StringVar(&flagBaseline, "baseline", "", "baseline group for the chart contrast (overrides config)")
	pf.StringVar(&flagComparison, "comparison", "", "comparison group for the chart contrast (overrides config)")
}
