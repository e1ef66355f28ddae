package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fernangomezv/Thesis-Leo/src/effects"
	"github.com/fernangomezv/Thesis-Leo/src/stats"
)

// Report is the machine-readable companion to the rendered charts.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Input       string    `json:"input,omitempty"`
	Sheet       string    `json:"sheet,omitempty"`

	Observations int `json:"observations"`

	Summaries []stats.ConditionSummary `json:"summaries"`

	FactorModel ModelReport `json:"factor_model"`
	LogModel    ModelReport `json:"log_model"`

	Contrasts []effects.Contrast `json:"contrasts"`
	Selected  []effects.Contrast `json:"selected_contrasts"`
}

// ModelReport carries the fit diagnostics and the Type III table for one
// model variant.
type ModelReport struct {
	DoseScale string             `json:"dose_scale"`
	NObs      int                `json:"n_obs"`
	Dropped   int                `json:"dropped"`
	Groups    int                `json:"random_intercept_levels"`
	Sigma2    float64            `json:"sigma2"`
	Tau2      float64            `json:"tau2"`
	DenDF     float64            `json:"den_df"`
	ANOVA     []effects.TermTest `json:"anova_type3"`
}

// WriteReport serializes the run's tables next to the charts.
func WriteReport(dir string, cfg Config, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rep := Report{
		RunID:        res.RunID,
		GeneratedAt:  time.Now().UTC(),
		Input:        cfg.InputPath,
		Sheet:        cfg.Sheet,
		Observations: len(res.Observations),
		Summaries:    res.Summaries,
		FactorModel:  modelReport(res, true),
		LogModel:     modelReport(res, false),
		Contrasts:    res.Contrasts,
		Selected:     res.Selected,
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "analysis_report.json"), append(data, '\n'), 0o644)
}

func modelReport(res *Result, factor bool) ModelReport {
	m, anova := res.FactorModel, res.FactorANOVA
	if !factor {
		m, anova = res.LogModel, res.LogANOVA
	}
	return ModelReport{
		DoseScale: m.Design.Scale.String(),
		NObs:      m.NObs,
		Dropped:   m.Dropped,
		Groups:    m.Groups,
		Sigma2:    m.Sigma2,
		Tau2:      m.Tau2,
		DenDF:     m.DenDF,
		ANOVA:     anova,
	}
}
