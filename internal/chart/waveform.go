// Package chart renders server-side previews of uploaded data: waveform
// line charts (HTML via go-echarts, PNG via gonum/plot) and ternary scatter
// plots.
package chart

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/signal.viewer/internal/waveform"
)

// Options controls chart output.
type Options struct {
	// Width and Height size PNG output, in points.
	Width, Height float64
	// MaxPoints caps the points drawn per series; longer series are
	// decimated by a fixed stride. 0 draws every point.
	MaxPoints int
	// AssetsHost overrides where the page loads echarts from.
	AssetsHost string
}

// PNG size used when Options leaves it unset.
const (
	defaultWidth  = 1200
	defaultHeight = 600
)

// stride returns the decimation step that keeps n points within limit.
func stride(n, limit int) int {
	if limit <= 0 || n <= limit {
		return 1
	}
	return (n + limit - 1) / limit
}

// WaveformHTML writes an interactive line chart of rec with one series per
// signal and a zoom slider under the time axis.
func WaveformHTML(w io.Writer, rec *waveform.Record, o Options) error {
	n := rec.NumSamples()
	step := stride(n, o.MaxPoints)

	subtitle := fmt.Sprintf("fs=%g Hz samples=%d", rec.SamplingFrequency, n)
	if step > 1 {
		subtitle += fmt.Sprintf(" stride=%d", step)
	}
	if rec.Synthetic {
		subtitle += " (synthetic)"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: rec.RecordName, Width: "100%", Height: "600px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: rec.RecordName, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: strings.Join(uniqueUnits(rec.Units), ", ")}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: 100},
			opts.DataZoom{Type: "inside", Start: 0, End: 100},
		),
	)

	for _, s := range rec.Signals {
		data := make([]opts.LineData, 0, n/step+1)
		for i := 0; i < n; i += step {
			var v interface{}
			if !math.IsNaN(s.Samples[i]) && !math.IsInf(s.Samples[i], 0) {
				v = s.Samples[i]
			}
			data = append(data, opts.LineData{Value: []interface{}{rec.TimeAxis[i], v}})
		}
		line.AddSeries(fmt.Sprintf("%s (%s)", s.Name, s.Unit), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// WaveformPNG writes a static line plot of rec. Invalid samples break the
// line.
func WaveformPNG(w io.Writer, rec *waveform.Record, o Options) error {
	p := plot.New()
	p.Title.Text = rec.RecordName
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = strings.Join(uniqueUnits(rec.Units), ", ")

	n := rec.NumSamples()
	step := stride(n, o.MaxPoints)
	colors := generateColors(len(rec.Signals))

	for k, s := range rec.Signals {
		legend := false
		for _, seg := range segments(rec.TimeAxis, s.Samples, step) {
			line, err := plotter.NewLine(seg)
			if err != nil {
				return fmt.Errorf("signal %s: %w", s.Name, err)
			}
			line.Color = colors[k]
			line.Width = vg.Points(1)
			p.Add(line)
			if !legend {
				p.Legend.Add(s.Name, line)
				legend = true
			}
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	width, height := o.Width, o.Height
	if width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}
	wt, err := p.WriterTo(vg.Points(width), vg.Points(height), "png")
	if err != nil {
		return fmt.Errorf("failed to create PNG canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write PNG: %w", err)
	}
	return nil
}

// segments splits the decimated series into runs of finite samples.
func segments(t, y []float64, step int) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i := 0; i < len(y); i += step {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: t[i], Y: y[i]})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func uniqueUnits(units []string) []string {
	seen := make(map[string]bool, len(units))
	var out []string
	for _, u := range units {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
