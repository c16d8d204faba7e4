// Package report post-processes telemetry logs: column access, summary
// statistics, terminal charts, and PNG plots.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/guptarohit/asciigraph"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Table is a telemetry log in column form. The first CSV column holds
// the cycle times.
type Table struct {
	Time    []float64
	columns map[string][]float64
	names   []string
}

// ReadCSV parses a telemetry log written by a telemetry.Recorder.
func ReadCSV(r io.Reader) (*Table, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the telemetry log")
	}
	if len(rows) < 2 {
		return nil, errors.New("telemetry log has no data rows")
	}
	header := rows[0]
	if len(header) < 2 || header[0] != "t" {
		return nil, errors.New("telemetry log must start with a t column")
	}
	tbl := &Table{
		Time:    make([]float64, 0, len(rows)-1),
		columns: make(map[string][]float64, len(header)-1),
		names:   append([]string(nil), header[1:]...),
	}
	for _, name := range tbl.names {
		tbl.columns[name] = make([]float64, 0, len(rows)-1)
	}
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, errors.Errorf("row %d has %d fields, header has %d", i+1, len(row), len(header))
		}
		for j, field := range row {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d field %q is not a number", i+1, header[j])
			}
			if j == 0 {
				tbl.Time = append(tbl.Time, v)
			} else {
				tbl.columns[header[j]] = append(tbl.columns[header[j]], v)
			}
		}
	}
	return tbl, nil
}

// Names returns the data column names in file order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Column returns the values of one data column.
func (t *Table) Column(name string) ([]float64, error) {
	vals, ok := t.columns[name]
	if !ok {
		return nil, errors.Errorf("column %q is not in the log", name)
	}
	return vals, nil
}

// Summary describes one column.
type Summary struct {
	Min, Max, Mean, StdDev float64
}

// Summarize computes the summary statistics of a series.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, errors.New("cannot summarize an empty series")
	}
	min, err := stats.Min(values)
	if err != nil {
		return Summary{}, err
	}
	max, err := stats.Max(values)
	if err != nil {
		return Summary{}, err
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return Summary{}, err
	}
	sd, err := stats.StandardDeviation(values)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Min: min, Max: max, Mean: mean, StdDev: sd}, nil
}

// AsciiChart renders a series as a terminal chart.
func AsciiChart(values []float64, caption string) string {
	return asciigraph.Plot(values,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

// Series is one named line of a plot.
type Series struct {
	Name   string
	Values []float64
}

// SaveLinesPlot writes named series against a shared x axis as a PNG
// with a legend.
func SaveLinesPlot(path, title, xLabel, yLabel string, xs []float64, series []Series) error {
	if len(series) == 0 {
		return errors.New("plot needs at least one series")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	for i, s := range series {
		if len(s.Values) != len(xs) {
			return errors.Errorf("series %q has %d points, the x axis has %d", s.Name, len(s.Values), len(xs))
		}
		pts := make(plotter.XYs, len(xs))
		for k := range xs {
			pts[k].X = xs[k]
			pts[k].Y = s.Values[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "failed to build the %q line", s.Name)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 6*vg.Inch, path), "failed to save the plot %q", path)
}
