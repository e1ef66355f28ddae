package effects

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fernangomezv/Thesis-Leo/src/mixedmodel"
)

// Factor names accepted by EstimatedMeans and PairwiseContrasts.
const (
	FactorDose  = "Dose"
	FactorTime  = "Time"
	FactorGroup = "Group"
)

// EMM is the model-predicted mean response for one factor-level
// combination, averaging over the factors not in the requested grid.
// Dose is NaN and Time/Group are empty when that factor was averaged out.
type EMM struct {
	Dose  float64 `json:"dose_um"`
	Time  string  `json:"time"`
	Group string  `json:"group"`

	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se"`
	DF       float64 `json:"df"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`

	row []float64
}

// EstimatedMeans computes estimated marginal means over every realized
// combination of the named factors. Omitted factors are averaged over:
// coded factors average to zero under sum-to-zero coding, and a
// continuous log dose averages to the observed mean log10 dose.
// Confidence intervals are 95%, on the model's denominator df.
func EstimatedMeans(m *mixedmodel.FittedModel, factors []string) ([]EMM, error) {
	useDose, useTime, useGroup := false, false, false
	for _, f := range factors {
		switch f {
		case FactorDose:
			useDose = true
		case FactorTime:
			useTime = true
		case FactorGroup:
			useGroup = true
		default:
			return nil, fmt.Errorf("emmeans: unknown factor %q", f)
		}
	}
	if !useDose && !useTime && !useGroup {
		return nil, fmt.Errorf("emmeans: no factors requested")
	}

	d := m.Design
	doseGrid := []*float64{nil}
	if useDose {
		doseGrid = doseGrid[:0]
		for i := range d.DoseLevels {
			doseGrid = append(doseGrid, &d.DoseLevels[i])
		}
	}
	timeGrid := []*string{nil}
	if useTime {
		timeGrid = timeGrid[:0]
		for i := range d.TimeLevels {
			timeGrid = append(timeGrid, &d.TimeLevels[i])
		}
	}
	groupGrid := []*string{nil}
	if useGroup {
		groupGrid = groupGrid[:0]
		for i := range d.GroupLevels {
			groupGrid = append(groupGrid, &d.GroupLevels[i])
		}
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: m.DenDF}
	tcrit := tdist.Quantile(0.975)

	var out []EMM
	for _, dose := range doseGrid {
		for _, tm := range timeGrid {
			for _, grp := range groupGrid {
				row, err := d.Row(dose, tm, grp)
				if err != nil {
					return nil, err
				}
				e := EMM{Dose: math.NaN(), DF: m.DenDF, row: row}
				if dose != nil {
					e.Dose = *dose
				}
				if tm != nil {
					e.Time = *tm
				}
				if grp != nil {
					e.Group = *grp
				}
				for i, v := range row {
					e.Estimate += v * m.Coef[i]
				}
				e.SE = math.Sqrt(quadForm(row, m))
				e.Lower = e.Estimate - tcrit*e.SE
				e.Upper = e.Estimate + tcrit*e.SE
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// quadForm computes x' Cov x without materializing intermediates.
func quadForm(x []float64, m *mixedmodel.FittedModel) float64 {
	var s float64
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		for j, xj := range x {
			if xj == 0 {
				continue
			}
			s += xi * m.Cov.At(i, j) * xj
		}
	}
	return s
}
