// Package pipeline threads the dose-response analysis end to end through
// an explicit state object: load, reshape, summarize, fit both models,
// test effects, derive contrasts, annotate and render.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
	"github.com/fernangomezv/Thesis-Leo/src/effects"
	"github.com/fernangomezv/Thesis-Leo/src/mixedmodel"
	"github.com/fernangomezv/Thesis-Leo/src/plotting"
	"github.com/fernangomezv/Thesis-Leo/src/stats"
)

// Config selects the input sheet, the column conventions and the single
// comparison of interest carried onto the charts.
type Config struct {
	InputPath string
	Sheet     string
	Columns   dataset.Columns

	// BaselineGroup vs ComparisonGroup is the one contrast whose
	// significance tier is drawn on the charts; every other pairwise
	// contrast is still computed and reported.
	BaselineGroup   string
	ComparisonGroup string

	OutputDir string // charts + report land here when non-empty
	Render    plotting.RenderOptions
}

// DefaultConfig matches the Venetoclax/BIA experiment conventions.
func DefaultConfig() Config {
	return Config{
		Sheet:           "Sheet1",
		Columns:         dataset.DefaultColumns(),
		BaselineGroup:   "Ven",
		ComparisonGroup: "Ven + Bia 25",
		Render:          plotting.DefaultRenderOptions(),
	}
}

// Result is the full analysis state after a run.
type Result struct {
	RunID        string
	Observations []dataset.Observation
	Summaries    []stats.ConditionSummary

	FactorModel *mixedmodel.FittedModel
	LogModel    *mixedmodel.FittedModel

	FactorANOVA []effects.TermTest
	LogANOVA    []effects.TermTest

	Contrasts []effects.Contrast // the full pairwise family
	Selected  []effects.Contrast // baseline vs comparison, per stratum

	Annotated []plotting.AnnotatedSummary
	Facets    map[string][]byte
}

// Run loads the workbook and executes the full pipeline. All stages are
// fatal on error except the annotator's label join, which absorbs
// mismatches by design.
func Run(cfg Config, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := dataset.NewLoader(cfg.Columns, logger)
	wide, err := loader.LoadWorkbook(cfg.InputPath, cfg.Sheet)
	if err != nil {
		return nil, err
	}
	logger.Info("workbook loaded",
		zap.String("path", cfg.InputPath), zap.String("sheet", cfg.Sheet),
		zap.Int("conditions", len(wide.Rows)), zap.Int("replicates", len(wide.ReplicateCols)))

	obs, err := dataset.Reshape(wide)
	if err != nil {
		return nil, err
	}
	return RunObservations(obs, cfg, logger)
}

// RunObservations executes every stage after reshaping. Split out so the
// statistical pipeline can run on observations assembled without a
// workbook.
func RunObservations(obs []dataset.Observation, cfg Config, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()
	res := &Result{RunID: uuid.NewString(), Observations: obs}
	logger.Info("analysis run starting", zap.String("run_id", res.RunID), zap.Int("observations", len(obs)))

	res.Summaries = stats.Summarize(obs)
	logger.Debug("summaries computed", zap.Int("cells", len(res.Summaries)))

	var err error
	if res.FactorModel, err = mixedmodel.Fit(obs, mixedmodel.DoseAsFactor, logger); err != nil {
		return nil, fmt.Errorf("factor model: %w", err)
	}
	if res.LogModel, err = mixedmodel.Fit(obs, mixedmodel.DoseAsLog10, logger); err != nil {
		return nil, fmt.Errorf("log model: %w", err)
	}

	if res.FactorANOVA, err = effects.ANOVA(res.FactorModel); err != nil {
		return nil, fmt.Errorf("factor anova: %w", err)
	}
	if res.LogANOVA, err = effects.ANOVA(res.LogModel); err != nil {
		return nil, fmt.Errorf("log anova: %w", err)
	}

	emms, err := effects.EstimatedMeans(res.FactorModel,
		[]string{effects.FactorDose, effects.FactorTime, effects.FactorGroup})
	if err != nil {
		return nil, fmt.Errorf("estimated means: %w", err)
	}
	res.Contrasts, err = effects.PairwiseContrasts(res.FactorModel, emms,
		[]string{effects.FactorDose, effects.FactorTime})
	if err != nil {
		return nil, fmt.Errorf("pairwise contrasts: %w", err)
	}
	res.Selected = effects.SelectContrast(res.Contrasts, cfg.BaselineGroup, cfg.ComparisonGroup)
	logger.Info("contrasts derived",
		zap.Int("family", len(res.Contrasts)), zap.Int("selected", len(res.Selected)))

	labels := plotting.LabelsFromContrasts(res.Selected, cfg.ComparisonGroup)
	res.Annotated = plotting.Annotate(res.Summaries, labels, logger)

	if res.Facets, err = plotting.RenderFacets(res.Annotated, cfg.Render); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	if cfg.OutputDir != "" {
		if err := plotting.WriteFacets(cfg.OutputDir, res.Facets); err != nil {
			return nil, err
		}
		if err := WriteReport(cfg.OutputDir, cfg, res); err != nil {
			return nil, err
		}
		logger.Info("artifacts written", zap.String("dir", cfg.OutputDir), zap.Int("facets", len(res.Facets)))
	}
	logger.Info("analysis run finished",
		zap.String("run_id", res.RunID), zap.Duration("elapsed", time.Since(started)))
	return res, nil
}
