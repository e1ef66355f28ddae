package plotting

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fernangomezv/Thesis-Leo/src/effects"
)

// RenderOptions controls the faceted dose-response charts.
type RenderOptions struct {
	Width   int
	Height  int
	YLabel  string
	Caption string // stamped along the bottom edge of every facet
}

// DefaultRenderOptions sizes the facets for a thesis figure panel.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Width:   900,
		Height:  600,
		YLabel:  "% cell death",
		Caption: "* p<0.05  ** p<0.01  *** p<0.001 (Bonferroni)",
	}
}

var timePalette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorRed,
	chart.ColorGreen,
	chart.ColorAlternateGray,
}

// RenderFacets renders one PNG per treatment group: dose on a log10 x
// axis, one mean series per exposure time with +-SD error bars, and the
// significance stars sitting above their annotated points. Returns the
// encoded images keyed by group name.
func RenderFacets(rows []AnnotatedSummary, opts RenderOptions) (map[string][]byte, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultRenderOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}

	groups, times, doses := levelSets(rows)
	if len(doses) == 0 {
		return nil, fmt.Errorf("render: no plottable rows")
	}
	for _, d := range doses {
		if d <= 0 {
			return nil, fmt.Errorf("render: dose %v cannot be placed on a log axis", d)
		}
	}

	ticks := make([]chart.Tick, 0, len(doses))
	for _, d := range doses {
		ticks = append(ticks, chart.Tick{Value: math.Log10(d), Label: effects.FormatDose(d)})
	}
	xMin, xMax := math.Log10(doses[0]), math.Log10(doses[len(doses)-1])
	pad := (xMax - xMin) * 0.04
	if pad == 0 {
		pad = 0.5
	}

	facets := make(map[string][]byte, len(groups))
	for _, grp := range groups {
		series, yMax := facetSeries(rows, grp, times)
		if len(series) == 0 {
			continue
		}
		graph := chart.Chart{
			Title:  grp,
			Width:  opts.Width,
			Height: opts.Height,
			Background: chart.Style{
				Padding: chart.Box{Top: 36, Left: 16, Right: 16, Bottom: 24},
			},
			XAxis: chart.XAxis{
				Name:  "Dose (µM, log scale)",
				Ticks: ticks,
				Range: &chart.ContinuousRange{Min: xMin - pad, Max: xMax + pad},
			},
			YAxis: chart.YAxis{
				Name:  opts.YLabel,
				Range: &chart.ContinuousRange{Min: 0, Max: yMax},
			},
			Series: series,
		}
		legendChart := graph
		legendChart.Series = namedSeries(series)
		graph.Elements = []chart.Renderable{chart.Legend(&legendChart)}

		var buf bytes.Buffer
		if err := graph.Render(chart.PNG, &buf); err != nil {
			return nil, fmt.Errorf("render facet %q: %w", grp, err)
		}
		out := buf.Bytes()
		if opts.Caption != "" {
			stamped, err := stampCaption(out, opts.Caption)
			if err != nil {
				return nil, fmt.Errorf("stamp facet %q: %w", grp, err)
			}
			out = stamped
		}
		facets[grp] = out
	}
	return facets, nil
}

// namedSeries filters a series list down to the named mean series so the
// legend does not pick up a blank row per error bar.
func namedSeries(series []chart.Series) []chart.Series {
	out := make([]chart.Series, 0, len(series))
	for _, s := range series {
		if s.GetName() != "" {
			out = append(out, s)
		}
	}
	return out
}

// facetSeries assembles the per-time mean series, error bars and star
// annotations for one group facet. Returns the series plus the padded y
// range maximum.
func facetSeries(rows []AnnotatedSummary, grp string, times []string) ([]chart.Series, float64) {
	var series []chart.Series
	yMax := 0.0
	var stars []chart.Value2

	for ti, tm := range times {
		col := timePalette[ti%len(timePalette)]
		var xs, ys []float64
		for _, r := range rows {
			if r.Group != grp || r.Time != tm || math.IsNaN(r.Mean) {
				continue
			}
			x := math.Log10(r.Dose)
			xs = append(xs, x)
			ys = append(ys, r.Mean)

			top := r.Mean
			if !math.IsNaN(r.SD) && r.SD > 0 {
				lo, hi := r.Mean-r.SD, r.Mean+r.SD
				series = append(series, chart.ContinuousSeries{
					XValues: []float64{x, x},
					YValues: []float64{lo, hi},
					Style:   chart.Style{StrokeColor: col, StrokeWidth: 1.0},
				})
				top = hi
			}
			if top > yMax {
				yMax = top
			}
			if r.Label != "" {
				stars = append(stars, chart.Value2{XValue: x, YValue: top, Label: r.Label})
			}
		}
		if len(xs) == 0 {
			continue
		}
		if len(xs) == 1 {
			// go-chart needs two x values per series
			xs = append(xs, xs[0]+0.01)
			ys = append(ys, ys[0])
		}
		series = append(series, chart.ContinuousSeries{
			Name:    tm,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2.0,
				DotColor:    col,
				DotWidth:    4.0,
			},
		})
	}
	if len(series) == 0 {
		return nil, 0
	}

	yMax *= 1.15
	if yMax < 10 {
		yMax = 10
	}
	if len(stars) > 0 {
		// lift stars slightly off the error-bar caps
		for i := range stars {
			stars[i].YValue += yMax * 0.02
		}
		series = append(series, chart.AnnotationSeries{
			Annotations: stars,
			Style: chart.Style{
				StrokeColor: chart.ColorAlternateGray,
				FillColor:   drawing.ColorWhite,
				FontSize:    11,
			},
		})
	}
	return series, yMax
}

// stampCaption redraws the encoded PNG with a small caption along the
// bottom edge.
func stampCaption(pngBytes []byte, caption string) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, src, b.Min, draw.Src)
	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.RGBA{R: 90, G: 90, B: 90, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(b.Min.X+10, b.Max.Y-6),
	}
	d.DrawString(caption)
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFacets persists rendered facets under dir as
// dose_response_<group>.png with unsafe filename characters collapsed.
func WriteFacets(dir string, facets map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for grp, data := range facets {
		name := "dose_response_" + sanitizeName(grp) + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write facet %q: %w", grp, err)
		}
	}
	return nil
}

func sanitizeName(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '+', r == '-', r == '_':
			if !strings.HasSuffix(sb.String(), "_") {
				sb.WriteRune('_')
			}
		}
	}
	return strings.Trim(sb.String(), "_")
}

// levelSets pulls the distinct groups, times and doses out of the
// summary rows; doses sort ascending so the tick order matches the axis.
func levelSets(rows []AnnotatedSummary) (groups, times []string, doses []float64) {
	gs := map[string]bool{}
	ts := map[string]bool{}
	ds := map[float64]bool{}
	for _, r := range rows {
		gs[r.Group] = true
		ts[r.Time] = true
		ds[r.Dose] = true
	}
	for g := range gs {
		groups = append(groups, g)
	}
	for t := range ts {
		times = append(times, t)
	}
	for d := range ds {
		doses = append(doses, d)
	}
	sort.Strings(groups)
	sort.Strings(times)
	sort.Float64s(doses)
	return groups, times, doses
}
