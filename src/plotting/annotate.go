// Package plotting joins significance labels onto the summary table and
// renders the faceted dose-response charts.
package plotting

import (
	"go.uber.org/zap"

	"github.com/fernangomezv/Thesis-Leo/src/effects"
	"github.com/fernangomezv/Thesis-Leo/src/stats"
)

// SigLabel is one significance marker destined for a chart point.
type SigLabel struct {
	Dose  float64
	Time  string
	Group string
	Text  string
}

// AnnotatedSummary is a ConditionSummary with its display label attached.
// Label is "" when the condition had no selected contrast or the contrast
// was not significant; both cases render identically.
type AnnotatedSummary struct {
	stats.ConditionSummary
	Label string
}

// LabelsFromContrasts turns selected group contrasts (one per dose/time
// stratum) into labels attributed to the comparison group's facet.
// "ns" collapses to the empty string here so a missing stratum and a
// non-significant one are indistinguishable downstream.
func LabelsFromContrasts(cs []effects.Contrast, comparisonGroup string) []SigLabel {
	out := make([]SigLabel, 0, len(cs))
	for _, c := range cs {
		text := c.Tier
		if text == "ns" {
			text = ""
		}
		out = append(out, SigLabel{Dose: c.Dose, Time: c.Time, Group: comparisonGroup, Text: text})
	}
	return out
}

type labelKey struct {
	dose  float64
	time  string
	group string
}

// Annotate left-joins each summary row to its label on the full
// (dose, time, group) key. Joining on (dose, time) alone would smear one
// group's significance tier across every facet. Labels with no matching
// summary row are absorbed: logged at debug, never an error.
func Annotate(sums []stats.ConditionSummary, labels []SigLabel, log *zap.Logger) []AnnotatedSummary {
	if log == nil {
		log = zap.NewNop()
	}
	byKey := make(map[labelKey]string, len(labels))
	used := make(map[labelKey]bool, len(labels))
	for _, l := range labels {
		if l.Text == "" {
			continue
		}
		byKey[labelKey{l.Dose, l.Time, l.Group}] = l.Text
	}
	out := make([]AnnotatedSummary, 0, len(sums))
	for _, s := range sums {
		k := labelKey{s.Dose, s.Time, s.Group}
		a := AnnotatedSummary{ConditionSummary: s, Label: byKey[k]}
		if a.Label != "" {
			used[k] = true
		}
		out = append(out, a)
	}
	for k, text := range byKey {
		if !used[k] {
			log.Debug("significance label has no summary row; dropping",
				zap.Float64("dose", k.dose), zap.String("time", k.time),
				zap.String("group", k.group), zap.String("label", text))
		}
	}
	return out
}
