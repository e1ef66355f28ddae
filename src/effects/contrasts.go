package effects

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fernangomezv/Thesis-Leo/src/mixedmodel"
)

// Contrast is one pairwise comparison between two levels of a factor,
// inside a stratum where the held-fixed factors keep their values.
// P is the uncorrected p-value; PAdj carries the Bonferroni correction
// computed over the whole family requested in one PairwiseContrasts call.
type Contrast struct {
	Factor string  `json:"factor"`
	Dose   float64 `json:"dose_um"` // NaN when dose is not held fixed
	Time   string  `json:"time"`
	Group  string  `json:"group"`

	LevelA string `json:"level_a"`
	LevelB string `json:"level_b"`

	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se"`
	T        float64 `json:"t"`
	P        float64 `json:"p"`
	PAdj     float64 `json:"p_adj"`
	Tier     string  `json:"tier"`
}

// MarshalJSON renders NaN statistics (an averaged-out dose, a degenerate
// zero-SE comparison) as null so report serialization never fails.
func (c Contrast) MarshalJSON() ([]byte, error) {
	type wire struct {
		Factor   string   `json:"factor"`
		Dose     *float64 `json:"dose_um"`
		Time     string   `json:"time,omitempty"`
		Group    string   `json:"group,omitempty"`
		LevelA   string   `json:"level_a"`
		LevelB   string   `json:"level_b"`
		Estimate float64  `json:"estimate"`
		SE       float64  `json:"se"`
		T        *float64 `json:"t"`
		P        *float64 `json:"p"`
		PAdj     *float64 `json:"p_adj"`
		Tier     string   `json:"tier"`
	}
	return json.Marshal(wire{
		Factor: c.Factor, Dose: nanToNil(c.Dose), Time: c.Time, Group: c.Group,
		LevelA: c.LevelA, LevelB: c.LevelB, Estimate: c.Estimate, SE: c.SE,
		T: nanToNil(c.T), P: nanToNil(c.P), PAdj: nanToNil(c.PAdj), Tier: c.Tier,
	})
}

func nanToNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Tier maps an adjusted p-value onto the display ladder. Boundaries are
// exclusive on the lower threshold: exactly 0.05 is "ns".
func Tier(p float64) string {
	switch {
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return "ns"
	}
}

// PairwiseContrasts computes, for every stratum defined by the heldFixed
// factors, all pairwise differences among the remaining factor's levels.
// The Bonferroni factor is the total number of pairwise tests performed in
// this call, not the per-stratum count. The EMMs must come from
// EstimatedMeans on the same model.
func PairwiseContrasts(m *mixedmodel.FittedModel, emms []EMM, heldFixed []string) ([]Contrast, error) {
	if len(emms) == 0 {
		return nil, fmt.Errorf("contrasts: no estimated means")
	}
	held := map[string]bool{}
	for _, f := range heldFixed {
		switch f {
		case FactorDose, FactorTime, FactorGroup:
			held[f] = true
		default:
			return nil, fmt.Errorf("contrasts: unknown held factor %q", f)
		}
	}

	// factors realized in the EMM grid
	present := map[string]bool{
		FactorDose:  !math.IsNaN(emms[0].Dose),
		FactorTime:  emms[0].Time != "",
		FactorGroup: emms[0].Group != "",
	}
	var free string
	for _, f := range []string{FactorDose, FactorTime, FactorGroup} {
		if present[f] && !held[f] {
			if free != "" {
				return nil, fmt.Errorf("contrasts: more than one free factor (%s, %s)", free, f)
			}
			free = f
		}
		if held[f] && !present[f] {
			return nil, fmt.Errorf("contrasts: held factor %s is not in the EMM grid", f)
		}
	}
	if free == "" {
		return nil, fmt.Errorf("contrasts: no free factor to compare")
	}

	strata := make(map[string][]int)
	var order []string
	for i, e := range emms {
		k := stratumKey(e, held)
		if _, ok := strata[k]; !ok {
			order = append(order, k)
		}
		strata[k] = append(strata[k], i)
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: m.DenDF}
	var out []Contrast
	for _, k := range order {
		idx := strata[k]
		for a := 0; a < len(idx); a++ {
			for b := a + 1; b < len(idx); b++ {
				ea, eb := emms[idx[a]], emms[idx[b]]
				diff := make([]float64, len(ea.row))
				for i := range diff {
					diff[i] = ea.row[i] - eb.row[i]
				}
				c := Contrast{
					Factor:   free,
					Dose:     math.NaN(),
					LevelA:   levelOf(ea, free),
					LevelB:   levelOf(eb, free),
					Estimate: ea.Estimate - eb.Estimate,
					SE:       math.Sqrt(quadForm(diff, m)),
				}
				if held[FactorDose] {
					c.Dose = ea.Dose
				}
				if held[FactorTime] {
					c.Time = ea.Time
				}
				if held[FactorGroup] {
					c.Group = ea.Group
				}
				if c.SE > 0 {
					c.T = c.Estimate / c.SE
					c.P = 2 * tdist.Survival(math.Abs(c.T))
				} else {
					c.T = math.NaN()
					c.P = math.NaN()
				}
				out = append(out, c)
			}
		}
	}

	// family-wide Bonferroni over everything computed in this call
	m2 := float64(len(out))
	for i := range out {
		out[i].PAdj = math.Min(1, out[i].P*m2)
		out[i].Tier = Tier(out[i].PAdj)
	}
	return out, nil
}

// SelectContrast keeps, per stratum, only the comparison between levelA
// and levelB (matched in either order). Strata lacking that pair simply
// contribute nothing; the annotator renders those as empty labels rather
// than "ns".
func SelectContrast(cs []Contrast, levelA, levelB string) []Contrast {
	var out []Contrast
	for _, c := range cs {
		if (c.LevelA == levelA && c.LevelB == levelB) || (c.LevelA == levelB && c.LevelB == levelA) {
			out = append(out, c)
		}
	}
	return out
}

func levelOf(e EMM, factor string) string {
	switch factor {
	case FactorDose:
		return FormatDose(e.Dose)
	case FactorTime:
		return e.Time
	default:
		return e.Group
	}
}

func stratumKey(e EMM, held map[string]bool) string {
	k := ""
	if held[FactorDose] {
		k += "dose=" + FormatDose(e.Dose) + ";"
	}
	if held[FactorTime] {
		k += "time=" + e.Time + ";"
	}
	if held[FactorGroup] {
		k += "group=" + e.Group + ";"
	}
	return k
}

// FormatDose renders a dose level the same way everywhere a dose becomes
// a label (contrast levels, chart ticks, report tables).
func FormatDose(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}
