package main

import "testing"

func resetOverrides() {
	loaded = fileConfig{}
	flagInput, flagSheet, flagOutputDir = "", "", ""
	flagDoseCol, flagTimeCol, flagGroupCol, flagRepPrefix = "", "", "", ""
	flagBaseline, flagComparison = "", ""
}

func TestBuildPipelineConfigUsesConfigColumns(t *testing.T) {
	defer resetOverrides()
	loaded = fileConfig{
		Input:           "assay.xlsx",
		DoseColumn:      "Dosis",
		TimeColumn:      "Tijd",
		GroupColumn:     "Groep",
		ReplicatePrefix: "Herhaling",
	}
	cfg := buildPipelineConfig()
	if cfg.InputPath != "assay.xlsx" {
		t.Fatalf("input path %q", cfg.InputPath)
	}
	if cfg.Columns.Dose != "Dosis" || cfg.Columns.Time != "Tijd" || cfg.Columns.Group != "Groep" {
		t.Fatalf("config column names not applied: %+v", cfg.Columns)
	}
	if cfg.Columns.ReplicatePrefix != "Herhaling" {
		t.Fatalf("replicate prefix %q", cfg.Columns.ReplicatePrefix)
	}
}

func TestColumnFlagsOverrideConfig(t *testing.T) {
	defer resetOverrides()
	loaded = fileConfig{
		DoseColumn:      "Dosis",
		TimeColumn:      "Tijd",
		GroupColumn:     "Groep",
		ReplicatePrefix: "Rep",
	}
	flagDoseCol = "Concentration"
	flagTimeCol = "Exposure"
	flagGroupCol = "Treatment"
	cfg := buildPipelineConfig()
	if cfg.Columns.Dose != "Concentration" {
		t.Fatalf("dose column %q", cfg.Columns.Dose)
	}
	if cfg.Columns.Time != "Exposure" {
		t.Fatalf("time column %q", cfg.Columns.Time)
	}
	if cfg.Columns.Group != "Treatment" {
		t.Fatalf("group column %q", cfg.Columns.Group)
	}
	// an unset flag leaves the config value alone
	if cfg.Columns.ReplicatePrefix != "Rep" {
		t.Fatalf("replicate prefix %q", cfg.Columns.ReplicatePrefix)
	}
}
