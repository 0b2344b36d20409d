// Package render turns metric series into CSV tables and PNG charts.
package render

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"smart-meter-monitor/internal/power"
)

// ErrTooFewPoints is returned when a chart would have fewer than two points.
var ErrTooFewPoints = errors.New("render: at least two points are required for a chart")

// Panel selects which quantities a chart plots.
type Panel string

const (
	PanelPower   Panel = "power"
	PanelVoltage Panel = "voltage"
	PanelCurrent Panel = "current"
)

// ParsePanel maps a query value to a Panel, defaulting to PanelPower.
func ParsePanel(s string) (Panel, error) {
	switch Panel(s) {
	case "", PanelPower:
		return PanelPower, nil
	case PanelVoltage, PanelCurrent:
		return Panel(s), nil
	default:
		return "", fmt.Errorf("unknown chart panel %q", s)
	}
}

var csvHeader = []string{
	"timestamp",
	"voltage_1", "voltage_2", "voltage_3",
	"current_1", "current_2", "current_3",
	"active_power", "reactive_power", "apparent_power", "power_factor",
}

// Downsample picks at most max evenly spaced items, keeping first and last.
func Downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

// WriteCSV writes metrics with a header row.
func WriteCSV(w io.Writer, metrics []power.Metrics) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, m := range metrics {
		record := []string{m.Timestamp.UTC().Format(time.RFC3339Nano)}
		for _, v := range []float64{
			m.Voltage1, m.Voltage2, m.Voltage3,
			m.Current1, m.Current2, m.Current3,
			m.ActivePower, m.ReactivePower, m.ApparentPower, m.PowerFactor,
		} {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WritePNG renders one chart panel of metrics as PNG.
func WritePNG(w io.Writer, metrics []power.Metrics, panel Panel) error {
	if len(metrics) < 2 {
		return ErrTooFewPoints
	}

	x := make([]time.Time, len(metrics))
	for i, m := range metrics {
		x[i] = m.Timestamp
	}
	series := func(get func(power.Metrics) float64) []float64 {
		out := make([]float64, len(metrics))
		for i, m := range metrics {
			out[i] = get(m)
		}
		return out
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			ValueFormatter: valueFormatter,
		},
	}

	switch panel {
	case PanelVoltage:
		graph.YAxis.Name = "Voltage [V]"
		graph.Series = phaseSeries("V", x,
			series(func(m power.Metrics) float64 { return m.Voltage1 }),
			series(func(m power.Metrics) float64 { return m.Voltage2 }),
			series(func(m power.Metrics) float64 { return m.Voltage3 }),
		)
	case PanelCurrent:
		graph.YAxis.Name = "Current [A]"
		graph.Series = phaseSeries("I", x,
			series(func(m power.Metrics) float64 { return m.Current1 }),
			series(func(m power.Metrics) float64 { return m.Current2 }),
			series(func(m power.Metrics) float64 { return m.Current3 }),
		)
	default:
		graph.YAxis.Name = "[W], [VAr], [VA]"
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Power factor",
			ValueFormatter: valueFormatter,
		}
		pf := series(func(m power.Metrics) float64 { return m.PowerFactor })
		graph.Series = []chart.Series{
			chart.TimeSeries{Name: "Active", XValues: x, YValues: series(func(m power.Metrics) float64 { return m.ActivePower })},
			chart.TimeSeries{Name: "Reactive", XValues: x, YValues: series(func(m power.Metrics) float64 { return m.ReactivePower })},
			chart.TimeSeries{Name: "Apparent", XValues: x, YValues: series(func(m power.Metrics) float64 { return m.ApparentPower })},
			chart.TimeSeries{Name: "Power factor", XValues: x, YValues: pf, YAxis: chart.YAxisSecondary},
		}
		graph.YAxisSecondary.Range = paddedRange(pf)
	}

	primary := make([]float64, 0)
	for _, s := range graph.Series {
		if ts, ok := s.(chart.TimeSeries); ok && ts.YAxis != chart.YAxisSecondary {
			primary = append(primary, ts.YValues...)
		}
	}
	graph.YAxis.Range = paddedRange(primary)
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// WriteCSVFile writes metrics as CSV to path, creating parent directories.
func WriteCSVFile(path string, metrics []power.Metrics) error {
	return writeFile(path, func(w io.Writer) error { return WriteCSV(w, metrics) })
}

// WritePNGFile renders a chart panel to path, creating parent directories.
func WritePNGFile(path string, metrics []power.Metrics, panel Panel) error {
	return writeFile(path, func(w io.Writer) error { return WritePNG(w, metrics, panel) })
}

func phaseSeries(prefix string, x []time.Time, ys ...[]float64) []chart.Series {
	out := make([]chart.Series, 0, len(ys))
	for k, y := range ys {
		out = append(out, chart.TimeSeries{
			Name:    fmt.Sprintf("%s%d", prefix, k+1),
			XValues: x,
			YValues: y,
		})
	}
	return out
}

// paddedRange widens a flat series so the axis has a non-zero span. It
// returns nil, leaving go-chart to autoscale, otherwise.
func paddedRange(values []float64) chart.Range {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi > lo {
		return nil
	}
	pad := math.Max(math.Abs(lo)*0.1, 1)
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func writeFile(path string, render func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
