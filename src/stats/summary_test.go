package stats

import (
	"math"
	"testing"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
)

func obsRow(dose float64, tm, grp string, rep string, v float64) dataset.Observation {
	return dataset.Observation{Dose: dose, Time: tm, Group: grp, Replicate: rep, Value: v}
}

func TestSummarizeBasic(t *testing.T) {
	obs := []dataset.Observation{
		obsRow(1, "24h", "Ven", "Rep1", 10),
		obsRow(1, "24h", "Ven", "Rep2", 20),
		obsRow(1, "24h", "Ven", "Rep3", 30),
		obsRow(1, "48h", "Ven", "Rep1", 50),
	}
	sums := Summarize(obs)
	if len(sums) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(sums))
	}
	first := sums[0]
	if first.Time != "24h" || first.N != 3 {
		t.Fatalf("unexpected first cell: %+v", first)
	}
	if math.Abs(first.Mean-20) > 1e-12 {
		t.Fatalf("mean: got %v want 20", first.Mean)
	}
	if math.Abs(first.SD-10) > 1e-12 {
		t.Fatalf("sample sd: got %v want 10", first.SD)
	}
}

func TestSummarizeSingleValueCell(t *testing.T) {
	sums := Summarize([]dataset.Observation{
		obsRow(2.5, "24h", "Ven", "Rep1", 42),
		obsRow(2.5, "24h", "Ven", "Rep2", math.NaN()),
	})
	if len(sums) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(sums))
	}
	s := sums[0]
	if s.N != 1 || s.Mean != 42 {
		t.Fatalf("single-value cell: %+v", s)
	}
	if !math.IsNaN(s.SD) {
		t.Fatalf("sd of a single value must be missing, got %v", s.SD)
	}
}

func TestSummarizeAllMissingCell(t *testing.T) {
	sums := Summarize([]dataset.Observation{
		obsRow(0.25, "48h", "Ven", "Rep1", math.NaN()),
		obsRow(0.25, "48h", "Ven", "Rep2", math.NaN()),
	})
	if len(sums) != 1 {
		t.Fatalf("expected the empty cell to be reported, got %d cells", len(sums))
	}
	s := sums[0]
	if s.N != 0 || !math.IsNaN(s.Mean) || !math.IsNaN(s.SD) {
		t.Fatalf("all-missing cell must report NaN mean/sd and N=0: %+v", s)
	}
}

func TestSummarizeOrderIndependent(t *testing.T) {
	a := []dataset.Observation{
		obsRow(1, "24h", "B", "Rep1", 1),
		obsRow(1, "24h", "B", "Rep2", 3),
		obsRow(1, "24h", "A", "Rep1", 2),
		obsRow(1, "24h", "A", "Rep2", 6),
		obsRow(0.1, "48h", "A", "Rep1", 3),
		obsRow(0.1, "48h", "A", "Rep2", 5),
	}
	b := []dataset.Observation{a[4], a[5], a[0], a[2], a[1], a[3]}
	sa, sb := Summarize(a), Summarize(b)
	if len(sa) != len(sb) {
		t.Fatalf("cell counts differ: %d vs %d", len(sa), len(sb))
	}
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("row %d differs across input orders: %+v vs %+v", i, sa[i], sb[i])
		}
	}
	if sa[0].Dose != 0.1 {
		t.Fatalf("expected dose-ascending output, got %+v", sa[0])
	}
}
