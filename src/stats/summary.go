// Package stats aggregates long-form observations into per-condition
// descriptive summaries.
package stats

import (
	"encoding/json"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fernangomezv/Thesis-Leo/src/dataset"
)

// ConditionSummary holds the descriptive statistics for one
// (dose, time, group) cell. Mean and SD are NaN when undefined: an
// all-missing cell has no mean, a single-value cell has no sample SD.
// N counts non-missing replicate values only.
type ConditionSummary struct {
	Dose  float64 `json:"dose_um"`
	Time  string  `json:"time"`
	Group string  `json:"group"`
	Mean  float64 `json:"mean"`
	SD    float64 `json:"sd"`
	N     int     `json:"n"`
}

// MarshalJSON renders undefined mean/SD as null instead of tripping the
// encoder on NaN.
func (s ConditionSummary) MarshalJSON() ([]byte, error) {
	type wire struct {
		Dose  float64  `json:"dose_um"`
		Time  string   `json:"time"`
		Group string   `json:"group"`
		Mean  *float64 `json:"mean"`
		SD    *float64 `json:"sd"`
		N     int      `json:"n"`
	}
	return json.Marshal(wire{
		Dose: s.Dose, Time: s.Time, Group: s.Group,
		Mean: nanToNil(s.Mean), SD: nanToNil(s.SD), N: s.N,
	})
}

func nanToNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

type cellKey struct {
	dose  float64
	time  string
	group string
}

// Summarize groups observations by (dose, time, group) and computes the
// arithmetic mean and sample standard deviation of the non-missing values
// in each cell. Grouping is unordered; the returned slice is sorted by
// dose, then time, then group so key insertion order never shows through.
func Summarize(obs []dataset.Observation) []ConditionSummary {
	cells := make(map[cellKey][]float64)
	for _, o := range obs {
		k := cellKey{dose: o.Dose, time: o.Time, group: o.Group}
		if math.IsNaN(o.Value) {
			// keep the cell alive so an all-missing condition still reports
			if _, ok := cells[k]; !ok {
				cells[k] = nil
			}
			continue
		}
		cells[k] = append(cells[k], o.Value)
	}

	out := make([]ConditionSummary, 0, len(cells))
	for k, vals := range cells {
		s := ConditionSummary{Dose: k.dose, Time: k.time, Group: k.group, N: len(vals)}
		switch len(vals) {
		case 0:
			s.Mean, s.SD = math.NaN(), math.NaN()
		case 1:
			s.Mean, s.SD = vals[0], math.NaN()
		default:
			s.Mean = stat.Mean(vals, nil)
			s.SD = stat.StdDev(vals, nil)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dose != out[j].Dose {
			return out[i].Dose < out[j].Dose
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].Group < out[j].Group
	})
	return out
}
