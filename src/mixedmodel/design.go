// Package mixedmodel fits the random-intercept linear mixed model behind
// the dose-response analysis.
//
// The fixed-effect design is the full dose x time x group factorial, with
// dose entering either as an unordered factor or as a continuous log10
// covariate. Factors use sum-to-zero (effects) coding so the Type III
// tests computed downstream are well-defined. The random intercept is
// keyed by the exact (dose, time, group) condition cell.
package mixedmodel

import (
	"fmt"
	"math"
	"sort"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
)

// DoseScale selects how dose enters the fixed-effect design.
type DoseScale int

const (
	// DoseAsFactor treats each distinct dose as an unordered factor level.
	DoseAsFactor DoseScale = iota
	// DoseAsLog10 replaces the dose factor with a continuous log10(dose)
	// covariate in the same factorial structure.
	DoseAsLog10
)

func (s DoseScale) String() string {
	if s == DoseAsLog10 {
		return "log10(Dose)"
	}
	return "Dose"
}

// Term is one fixed-effect term and the design columns it owns.
type Term struct {
	Name string
	Cols []int
}

// Design captures the factor structure shared by both model variants and
// builds fixed-effect rows for observed or hypothetical cells.
type Design struct {
	Scale         DoseScale
	DoseLevels    []float64 // ascending
	TimeLevels    []string
	GroupLevels   []string
	MeanLog10Dose float64 // only meaningful for DoseAsLog10
	Terms         []Term
	P             int
}

// NewDesign derives the factor levels and term layout from the data.
// Dose levels sort numerically ascending so factor-model contrasts and the
// chart axis agree. For DoseAsLog10 every dose must be strictly positive.
func NewDesign(obs []dataset.Observation, scale DoseScale) (*Design, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("design: no observations")
	}
	doseSet := make(map[float64]struct{})
	timeSet := make(map[string]struct{})
	groupSet := make(map[string]struct{})
	for _, o := range obs {
		doseSet[o.Dose] = struct{}{}
		timeSet[o.Time] = struct{}{}
		groupSet[o.Group] = struct{}{}
	}
	d := &Design{Scale: scale}
	for v := range doseSet {
		d.DoseLevels = append(d.DoseLevels, v)
	}
	sort.Float64s(d.DoseLevels)
	for v := range timeSet {
		d.TimeLevels = append(d.TimeLevels, v)
	}
	sort.Strings(d.TimeLevels)
	for v := range groupSet {
		d.GroupLevels = append(d.GroupLevels, v)
	}
	sort.Strings(d.GroupLevels)

	if scale == DoseAsLog10 {
		var sum float64
		for _, o := range obs {
			if o.Dose <= 0 {
				return nil, &DomainError{Field: "dose", Value: o.Dose}
			}
			sum += math.Log10(o.Dose)
		}
		d.MeanLog10Dose = sum / float64(len(obs))
	}

	doseW := len(d.DoseLevels) - 1
	if scale == DoseAsLog10 {
		doseW = 1
	}
	timeW := len(d.TimeLevels) - 1
	groupW := len(d.GroupLevels) - 1

	doseName := scale.String()
	next := 0
	add := func(name string, width int) {
		if width <= 0 {
			return
		}
		cols := make([]int, width)
		for i := range cols {
			cols[i] = next + i
		}
		d.Terms = append(d.Terms, Term{Name: name, Cols: cols})
		next += width
	}
	add("(Intercept)", 1)
	add(doseName, doseW)
	add("Time", timeW)
	add("Group", groupW)
	add(doseName+":Time", doseW*timeW)
	add(doseName+":Group", doseW*groupW)
	add("Time:Group", timeW*groupW)
	add(doseName+":Time:Group", doseW*timeW*groupW)
	d.P = next
	return d, nil
}

// NumCells is the size of the random-intercept grouping: one level per
// dose x time x group combination.
func (d *Design) NumCells() int {
	return len(d.DoseLevels) * len(d.TimeLevels) * len(d.GroupLevels)
}

// CellID maps a condition to its random-intercept level index.
func (d *Design) CellID(dose float64, tm, grp string) (int, error) {
	di := indexOfFloat(d.DoseLevels, dose)
	ti := indexOf(d.TimeLevels, tm)
	gi := indexOf(d.GroupLevels, grp)
	if di < 0 || ti < 0 || gi < 0 {
		return 0, fmt.Errorf("design: unknown cell (%v, %q, %q)", dose, tm, grp)
	}
	return (di*len(d.TimeLevels)+ti)*len(d.GroupLevels) + gi, nil
}

// Row builds the fixed-effect design row for one cell. A nil dose, time or
// group requests averaging over that factor: under sum-to-zero coding the
// averaged block is all zeros, and the continuous log-dose block averages
// to the observed mean log10 dose.
func (d *Design) Row(dose *float64, tm, grp *string) ([]float64, error) {
	db, err := d.doseBlock(dose)
	if err != nil {
		return nil, err
	}
	tb, err := codedBlock(d.TimeLevels, tm)
	if err != nil {
		return nil, err
	}
	gb, err := codedBlock(d.GroupLevels, grp)
	if err != nil {
		return nil, err
	}

	row := make([]float64, 0, d.P)
	row = append(row, 1)
	row = append(row, db...)
	row = append(row, tb...)
	row = append(row, gb...)
	row = append(row, kron(db, tb)...)
	row = append(row, kron(db, gb)...)
	row = append(row, kron(tb, gb)...)
	row = append(row, kron(kron(db, tb), gb)...)
	if len(row) != d.P {
		return nil, fmt.Errorf("design: row width %d != %d", len(row), d.P)
	}
	return row, nil
}

func (d *Design) doseBlock(dose *float64) ([]float64, error) {
	if d.Scale == DoseAsLog10 {
		if dose == nil {
			return []float64{d.MeanLog10Dose}, nil
		}
		if *dose <= 0 {
			return nil, &DomainError{Field: "dose", Value: *dose}
		}
		return []float64{math.Log10(*dose)}, nil
	}
	w := len(d.DoseLevels) - 1
	if dose == nil {
		return make([]float64, w), nil
	}
	idx := indexOfFloat(d.DoseLevels, *dose)
	if idx < 0 {
		return nil, fmt.Errorf("design: unknown dose level %v", *dose)
	}
	return effectsCode(len(d.DoseLevels), idx), nil
}

func codedBlock(levels []string, level *string) ([]float64, error) {
	w := len(levels) - 1
	if level == nil {
		return make([]float64, w), nil
	}
	idx := indexOf(levels, *level)
	if idx < 0 {
		return nil, fmt.Errorf("design: unknown level %q", *level)
	}
	return effectsCode(len(levels), idx), nil
}

// effectsCode returns the sum-to-zero coding row for level idx of an
// L-level factor: L-1 columns, last level coded as all -1.
func effectsCode(l, idx int) []float64 {
	row := make([]float64, l-1)
	if idx == l-1 {
		for i := range row {
			row[i] = -1
		}
		return row
	}
	row[idx] = 1
	return row
}

// kron flattens the outer product of two coding blocks, a-major.
func kron(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)*len(b))
	for _, av := range a {
		for _, bv := range b {
			out = append(out, av*bv)
		}
	}
	return out
}

func indexOf(levels []string, v string) int {
	for i, l := range levels {
		if l == v {
			return i
		}
	}
	return -1
}

func indexOfFloat(levels []float64, v float64) int {
	for i, l := range levels {
		if l == v {
			return i
		}
	}
	return -1
}
