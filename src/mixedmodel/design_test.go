package mixedmodel

import (
	"errors"
	"math"
	"testing"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
)

func balancedObs(doses []float64, times, groups []string, reps int, value func(d float64, t, g string, r int) float64) []dataset.Observation {
	var obs []dataset.Observation
	for _, d := range doses {
		for _, t := range times {
			for _, g := range groups {
				for r := 0; r < reps; r++ {
					obs = append(obs, dataset.Observation{
						Dose: d, Time: t, Group: g,
						Replicate: "Rep" + string(rune('1'+r)),
						Value:     value(d, t, g, r),
					})
				}
			}
		}
	}
	return obs
}

func TestNewDesignFactorLayout(t *testing.T) {
	obs := balancedObs([]float64{0.25, 0.025, 2.5}, []string{"24h", "48h"}, []string{"Ven", "Ven + Bia 10", "Ven + Bia 25"}, 1,
		func(float64, string, string, int) float64 { return 0 })
	d, err := NewDesign(obs, DoseAsFactor)
	if err != nil {
		t.Fatalf("design: %v", err)
	}
	if d.DoseLevels[0] != 0.025 || d.DoseLevels[2] != 2.5 {
		t.Fatalf("dose levels must sort numerically ascending: %v", d.DoseLevels)
	}
	// 1 + 2 + 1 + 2 + 2 + 4 + 2 + 4
	if d.P != 18 {
		t.Fatalf("expected 18 design columns, got %d", d.P)
	}
	if d.NumCells() != 18 {
		t.Fatalf("expected 18 random-intercept levels, got %d", d.NumCells())
	}
	if len(d.Terms) != 8 {
		t.Fatalf("expected 8 terms, got %d: %+v", len(d.Terms), d.Terms)
	}
}

func TestEffectsCodingSumsToZero(t *testing.T) {
	obs := balancedObs([]float64{1, 10, 100}, []string{"24h", "48h"}, []string{"A", "B", "C"}, 1,
		func(float64, string, string, int) float64 { return 0 })
	d, err := NewDesign(obs, DoseAsFactor)
	if err != nil {
		t.Fatalf("design: %v", err)
	}
	// summing design rows over every cell must zero all non-intercept columns
	sums := make([]float64, d.P)
	for _, dose := range d.DoseLevels {
		for _, tm := range d.TimeLevels {
			for _, grp := range d.GroupLevels {
				dose, tm, grp := dose, tm, grp
				row, err := d.Row(&dose, &tm, &grp)
				if err != nil {
					t.Fatalf("row: %v", err)
				}
				for i, v := range row {
					sums[i] += v
				}
			}
		}
	}
	if sums[0] != float64(d.NumCells()) {
		t.Fatalf("intercept column should sum to the cell count, got %v", sums[0])
	}
	for i := 1; i < d.P; i++ {
		if math.Abs(sums[i]) > 1e-12 {
			t.Fatalf("column %d does not sum to zero: %v", i, sums[i])
		}
	}
}

func TestAveragedFactorBlocksAreZero(t *testing.T) {
	obs := balancedObs([]float64{1, 10}, []string{"24h", "48h"}, []string{"A", "B"}, 1,
		func(float64, string, string, int) float64 { return 0 })
	d, err := NewDesign(obs, DoseAsFactor)
	if err != nil {
		t.Fatalf("design: %v", err)
	}
	tm := "24h"
	row, err := d.Row(nil, &tm, nil)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row[0] != 1 {
		t.Fatalf("intercept must stay 1, got %v", row[0])
	}
	// only the Time main-effect column may be non-zero
	var timeCol int
	for _, term := range d.Terms {
		if term.Name == "Time" {
			timeCol = term.Cols[0]
		}
	}
	for i := 1; i < d.P; i++ {
		if i == timeCol {
			continue
		}
		if row[i] != 0 {
			t.Fatalf("averaged column %d must be zero, got %v", i, row[i])
		}
	}
}

func TestLogDesignRejectsNonPositiveDose(t *testing.T) {
	obs := balancedObs([]float64{0, 1}, []string{"24h"}, []string{"A", "B"}, 2,
		func(float64, string, string, int) float64 { return 1 })
	_, err := NewDesign(obs, DoseAsLog10)
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError for dose 0, got %v", err)
	}
}

func TestLogDesignIdenticalDoseSet(t *testing.T) {
	obs := balancedObs([]float64{0.1, 1, 10}, []string{"24h", "48h"}, []string{"A", "B"}, 2,
		func(float64, string, string, int) float64 { return 1 })
	df, err := NewDesign(obs, DoseAsFactor)
	if err != nil {
		t.Fatalf("factor design: %v", err)
	}
	dl, err := NewDesign(obs, DoseAsLog10)
	if err != nil {
		t.Fatalf("log design: %v", err)
	}
	if len(df.DoseLevels) != len(dl.DoseLevels) {
		t.Fatalf("dose sets differ: %v vs %v", df.DoseLevels, dl.DoseLevels)
	}
	for i := range df.DoseLevels {
		if df.DoseLevels[i] != dl.DoseLevels[i] {
			t.Fatalf("dose sets differ at %d: %v vs %v", i, df.DoseLevels[i], dl.DoseLevels[i])
		}
	}
	dose := 10.0
	tm, grp := "24h", "A"
	row, err := dl.Row(&dose, &tm, &grp)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if math.Abs(row[1]-1) > 1e-12 { // log10(10)
		t.Fatalf("log dose column should be log10 of the factor dose, got %v", row[1])
	}
}
