package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
	"github.com/fernangomezv/Thesis-Leo/src/pipeline"
)

// fileConfig mirrors dosereport.yaml.
type fileConfig struct {
	Input           string `mapstructure:"input"`
	Sheet           string `mapstructure:"sheet"`
	OutputDir       string `mapstructure:"output_dir"`
	DoseColumn      string `mapstructure:"dose_column"`
	TimeColumn      string `mapstructure:"time_column"`
	GroupColumn     string `mapstructure:"group_column"`
	ReplicatePrefix string `mapstructure:"replicate_prefix"`
	BaselineGroup   string `mapstructure:"baseline_group"`
	ComparisonGroup string `mapstructure:"comparison_group"`
	ChartWidth      int    `mapstructure:"chart_width"`
	ChartHeight     int    `mapstructure:"chart_height"`
}

var loaded fileConfig

func initConfig() {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("dosereport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetDefault("sheet", "Sheet1")
	v.SetDefault("output_dir", "charts")
	v.SetDefault("dose_column", "Dose")
	v.SetDefault("time_column", "Time")
	v.SetDefault("group_column", "Group")
	v.SetDefault("replicate_prefix", "Rep")
	v.SetDefault("baseline_group", "Ven")
	v.SetDefault("comparison_group", "Ven + Bia 25")

	if err := v.ReadInConfig(); err != nil {
		// a missing config file is fine; defaults plus flags carry the run
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "warning: config %s: %v\n", cfgFile, err)
		}
	}
	if err := v.Unmarshal(&loaded); err != nil {
		fmt.Fprintf(os.Stderr, "warning: config parse: %v\n", err)
	}
}

// buildPipelineConfig folds the config file and flag overrides into the
// pipeline configuration.
func buildPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.InputPath = loaded.Input
	if loaded.Sheet != "" {
		cfg.Sheet = loaded.Sheet
	}
	cfg.OutputDir = loaded.OutputDir
	cfg.Columns = dataset.Columns{
		Dose:            loaded.DoseColumn,
		Time:            loaded.TimeColumn,
		Group:           loaded.GroupColumn,
		ReplicatePrefix: loaded.ReplicatePrefix,
	}
	if loaded.BaselineGroup != "" {
		cfg.BaselineGroup = loaded.BaselineGroup
	}
	if loaded.ComparisonGroup != "" {
		cfg.ComparisonGroup = loaded.ComparisonGroup
	}
	if loaded.ChartWidth > 0 {
		cfg.Render.Width = loaded.ChartWidth
	}
	if loaded.ChartHeight > 0 {
		cfg.Render.Height = loaded.ChartHeight
	}

	if flagInput != "" {
		cfg.InputPath = flagInput
	}
	if flagSheet != "" {
		cfg.Sheet = flagSheet
	}
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}
	if flagDoseCol != "" {
		cfg.Columns.Dose = flagDoseCol
	}
	if flagTimeCol != "" {
		cfg.Columns.Time = flagTimeCol
	}
	if flagGroupCol != "" {
		cfg.Columns.Group = flagGroupCol
	}
	if flagRepPrefix != "" {
		cfg.Columns.ReplicatePrefix = flagRepPrefix
	}
	if flagBaseline != "" {
		cfg.BaselineGroup = flagBaseline
	}
	if flagComparison != "" {
		cfg.ComparisonGroup = flagComparison
	}
	return cfg
}

// buildLogger constructs the zap logger used across the pipeline.
func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
