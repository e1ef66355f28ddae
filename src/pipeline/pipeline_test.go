package pipeline

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
)

var (
	testDoses  = []float64{2.5e-6, 2.5e-5, 2.5e-4, 2.5e-3, 0.025, 0.25, 2.5, 25}
	testTimes  = []string{"24h", "48h"}
	testGroups = []string{"Ven", "Ven + Bia 10", "Ven + Bia 25"}
)

// deathPct mimics a sigmoidal kill curve with a combination benefit for
// the Bia arms and a deterministic replicate wobble.
func deathPct(d float64, tm, g string, r int) float64 {
	v := 100 / (1 + math.Exp(-(math.Log10(d)+2)))
	if tm == "48h" {
		v += 8
	}
	switch g {
	case "Ven + Bia 10":
		v += 5
	case "Ven + Bia 25":
		v += 12
	}
	if r%2 == 0 {
		return v + 0.4
	}
	return v - 0.4
}

func syntheticObservations() []dataset.Observation {
	var obs []dataset.Observation
	reps := []string{"Rep1", "Rep2", "Rep3", "Rep4"}
	for _, d := range testDoses {
		for _, tm := range testTimes {
			for _, g := range testGroups {
				for r, rep := range reps {
					obs = append(obs, dataset.Observation{
						Dose: d, Time: tm, Group: g, Replicate: rep,
						Value: deathPct(d, tm, g, r),
					})
				}
			}
		}
	}
	return obs
}

func TestRunObservationsEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")

	res, err := RunObservations(syntheticObservations(), cfg, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RunID == "" {
		t.Fatal("run id missing")
	}
	wantCells := len(testDoses) * len(testTimes) * len(testGroups)
	if len(res.Summaries) != wantCells {
		t.Fatalf("expected %d summary rows, got %d", wantCells, len(res.Summaries))
	}
	for _, s := range res.Summaries {
		if s.N != 4 {
			t.Fatalf("cell (%v,%s,%s) has N=%d, want 4", s.Dose, s.Time, s.Group, s.N)
		}
	}
	if res.FactorModel == nil || res.LogModel == nil {
		t.Fatal("both model variants must be fitted")
	}
	if got := res.FactorModel.Groups; got != wantCells {
		t.Fatalf("random-intercept levels %d, want %d", got, wantCells)
	}
	if len(res.FactorANOVA) == 0 || len(res.LogANOVA) == 0 {
		t.Fatal("anova tables missing")
	}
	// dose held fixed with time: strata = doses x times, pairs = C(3,2)
	if want := wantCells / len(testGroups) * 3; len(res.Contrasts) != want {
		t.Fatalf("contrast family size %d, want %d", len(res.Contrasts), want)
	}
	for _, c := range res.Contrasts {
		if !math.IsNaN(c.P) && c.PAdj < c.P {
			t.Fatalf("bonferroni must not shrink p: %+v", c)
		}
	}
	if want := wantCells / len(testGroups); len(res.Selected) != want {
		t.Fatalf("selected contrasts %d, want %d", len(res.Selected), want)
	}
	if len(res.Facets) != len(testGroups) {
		t.Fatalf("facet count %d, want %d", len(res.Facets), len(testGroups))
	}
	for grp, data := range res.Facets {
		if _, err := png.Decode(bytes.NewReader(data)); err != nil {
			t.Fatalf("facet %q not decodable: %v", grp, err)
		}
	}

	// report written next to charts
	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, "analysis_report.json"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var rep Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("report parse: %v", err)
	}
	if rep.RunID != res.RunID || len(rep.Summaries) != wantCells {
		t.Fatalf("report mismatch: %s vs %s, %d summaries", rep.RunID, res.RunID, len(rep.Summaries))
	}
}

func TestRunObservationsMissingValuesReduceN(t *testing.T) {
	obs := syntheticObservations()
	obs[0].Value = math.NaN()
	cfg := DefaultConfig()
	res, err := RunObservations(obs, cfg, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	found := false
	for _, s := range res.Summaries {
		if s.Dose == obs[0].Dose && s.Time == obs[0].Time && s.Group == obs[0].Group {
			found = true
			if s.N != 3 {
				t.Fatalf("cell with one missing replicate has N=%d, want 3", s.N)
			}
		}
	}
	if !found {
		t.Fatal("expected the affected cell in the summaries")
	}
	if res.FactorModel.Dropped != 1 {
		t.Fatalf("model should drop exactly the missing row, dropped=%d", res.FactorModel.Dropped)
	}
}

func TestRunFromWorkbook(t *testing.T) {
	f := excelize.NewFile()
	const sheet = "Sheet1"
	header := []interface{}{"Dose", "Time", "Group", "Rep1", "Rep2", "Rep3", "Rep4"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	rowNum := 2
	for _, d := range testDoses {
		for _, tm := range testTimes {
			for _, g := range testGroups {
				row := []interface{}{d, tm, g}
				for r := 0; r < 4; r++ {
					row = append(row, deathPct(d, tm, g, r))
				}
				cell, _ := excelize.CoordinatesToCellName(1, rowNum)
				if err := f.SetSheetRow(sheet, cell, &row); err != nil {
					t.Fatalf("row %d: %v", rowNum, err)
				}
				rowNum++
			}
		}
	}
	path := filepath.Join(t.TempDir(), "venbia.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg := DefaultConfig()
	cfg.InputPath = path
	res, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Observations) != len(testDoses)*2*3*4 {
		t.Fatalf("reshaped observations %d, want %d", len(res.Observations), len(testDoses)*2*3*4)
	}
	if len(res.Facets) != 3 {
		t.Fatalf("facet count %d, want 3", len(res.Facets))
	}
}
