package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/signal.viewer/internal/tabular"
)

// triangleHeight is the height of the unit equilateral triangle.
var triangleHeight = math.Sqrt(3) / 2

// Barycentric maps the composition (a, b, c) onto the unit triangle with a
// at (0,0), b at (1,0) and c at the apex. ok is false when any part is
// negative or the parts do not sum to a positive value.
func Barycentric(a, b, c float64) (x, y float64, ok bool) {
	if a < 0 || b < 0 || c < 0 {
		return 0, 0, false
	}
	sum := a + b + c
	if sum <= 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return 0, 0, false
	}
	return (b + c/2) / sum, triangleHeight * c / sum, true
}

// parseParts reads the three value fields of a record.
func parseParts(rec tabular.Record) (a, b, c float64, ok bool) {
	var vals [3]float64
	for i, key := range []string{tabular.KeyValue1, tabular.KeyValue2, tabular.KeyValue3} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[key]), 64)
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], true
}

// TernaryHTML writes a ternary scatter plot of res with one series per
// class, in order of first appearance. Rows whose values are not a
// non-negative composition are left out.
func TernaryHTML(w io.Writer, res *tabular.Result, o Options) error {
	names := res.ColumnNames
	var classes []string
	points := make(map[string][]opts.ScatterData)
	skipped := 0

	for _, rec := range res.Data {
		a, b, c, ok := parseParts(rec)
		if !ok {
			skipped++
			continue
		}
		x, y, ok := Barycentric(a, b, c)
		if !ok {
			skipped++
			continue
		}
		class := rec[tabular.KeyClass]
		if _, seen := points[class]; !seen {
			classes = append(classes, class)
		}
		points[class] = append(points[class], opts.ScatterData{
			Name:  rec[tabular.KeyTitle],
			Value: []interface{}{x, y, a, b, c},
		})
	}

	subtitle := fmt.Sprintf("%s (left) / %s (right) / %s (top), points=%d",
		names[tabular.KeyValue1], names[tabular.KeyValue2], names[tabular.KeyValue3], len(res.Data)-skipped)
	if skipped > 0 {
		subtitle += fmt.Sprintf(" skipped=%d", skipped)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ternary Plot", Width: "800px", Height: "760px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Ternary Plot", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: 0, Max: 1, Show: opts.Bool(false)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: 0, Max: 1, Show: opts.Bool(false)}),
		charts.WithColorsOpts(opts.Colors(hexColors(len(classes)))),
	)

	for _, class := range classes {
		scatter.AddSeries(class, points[class], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	}

	outline := charts.NewLine()
	outline.AddSeries("", []opts.LineData{
		{Value: []interface{}{0, 0}},
		{Value: []interface{}{1, 0}},
		{Value: []interface{}{0.5, triangleHeight}},
		{Value: []interface{}{0, 0}},
	}, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "#888888", Width: 1}),
	)
	scatter.Overlap(outline)

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
