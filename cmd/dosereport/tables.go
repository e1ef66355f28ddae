package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
	"github.com/fernangomezv/Thesis-Leo/src/effects"
	"github.com/fernangomezv/Thesis-Leo/src/mixedmodel"
	"github.com/fernangomezv/Thesis-Leo/src/stats"
)

var tablesFormat string

// tablesCmd prints the summary and contrast tables without rendering
// charts, for piping into other tooling.
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the condition summaries and pairwise contrasts to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildPipelineConfig()
		if cfg.InputPath == "" {
			return fmt.Errorf("no input workbook: set --input or `input` in the config file")
		}
		logger, err := buildLogger(logLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		loader := dataset.NewLoader(cfg.Columns, logger)
		wide, err := loader.LoadWorkbook(cfg.InputPath, cfg.Sheet)
		if err != nil {
			return err
		}
		obs, err := dataset.Reshape(wide)
		if err != nil {
			return err
		}
		sums := stats.Summarize(obs)

		model, err := mixedmodel.Fit(obs, mixedmodel.DoseAsFactor, logger)
		if err != nil {
			return err
		}
		emms, err := effects.EstimatedMeans(model,
			[]string{effects.FactorDose, effects.FactorTime, effects.FactorGroup})
		if err != nil {
			return err
		}
		contrasts, err := effects.PairwiseContrasts(model, emms,
			[]string{effects.FactorDose, effects.FactorTime})
		if err != nil {
			return err
		}

		switch tablesFormat {
		case "json":
			return json.NewEncoder(os.Stdout).Encode(struct {
				Summaries []stats.ConditionSummary `json:"summaries"`
				Contrasts []effects.Contrast       `json:"contrasts"`
			}{sums, contrasts})
		case "csv":
			return writeCSVTables(sums, contrasts)
		default:
			return fmt.Errorf("unknown format %q (want csv or json)", tablesFormat)
		}
	},
}

func writeCSVTables(sums []stats.ConditionSummary, contrasts []effects.Contrast) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	if err := w.Write([]string{"table", "dose_um", "time", "group", "mean", "sd", "n",
		"level_a", "level_b", "estimate", "p", "p_adj", "tier"}); err != nil {
		return err
	}
	for _, s := range sums {
		if err := w.Write([]string{"summary", effects.FormatDose(s.Dose), s.Time, s.Group,
			csvFloat(s.Mean), csvFloat(s.SD), strconv.Itoa(s.N), "", "", "", "", "", ""}); err != nil {
			return err
		}
	}
	for _, c := range contrasts {
		if err := w.Write([]string{"contrast", effects.FormatDose(c.Dose), c.Time, c.Group,
			"", "", "", c.LevelA, c.LevelB,
			csvFloat(c.Estimate), csvFloat(c.P), csvFloat(c.PAdj), c.Tier}); err != nil {
			return err
		}
	}
	return nil
}

func csvFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func init() {
	tablesCmd.Flags().StringVar(&tablesFormat, "format", "csv", "output format: csv or json")
	rootCmd.AddCommand(tablesCmd)
}
