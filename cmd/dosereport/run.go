package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernangomezv/Thesis-Leo/src/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis and write charts plus the JSON report",
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

		res, err := pipeline.Run(cfg, logger)
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %d observations, %d conditions, %d contrasts, %d charts -> %s\n",
			res.RunID, len(res.Observations), len(res.Summaries), len(res.Contrasts),
			len(res.Facets), cfg.OutputDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
