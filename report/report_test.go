package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

func TestReadCSVFromRecorder(t *testing.T) {
	logger := golog.NewTestLogger(t)
	var buf bytes.Buffer
	rec := telemetry.NewRecorder(&buf, logger)

	x := 1.0
	test.That(t, rec.Add("comPos_x", func() float64 { return x }), test.ShouldBeNil)
	test.That(t, rec.Add("comPos_y", func() float64 { return -x }), test.ShouldBeNil)

	test.That(t, rec.Record(0), test.ShouldBeNil)
	x = 2.5
	test.That(t, rec.Record(0.1), test.ShouldBeNil)
	test.That(t, rec.Flush(), test.ShouldBeNil)

	tbl, err := ReadCSV(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tbl.Time, test.ShouldResemble, []float64{0, 0.1})
	test.That(t, tbl.Names(), test.ShouldResemble, []string{"comPos_x", "comPos_y"})

	xs, err := tbl.Column("comPos_x")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xs, test.ShouldResemble, []float64{1, 2.5})
	ys, err := tbl.Column("comPos_y")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ys, test.ShouldResemble, []float64{-1, -2.5})

	_, err = tbl.Column("absent")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not in the log")
}

func TestReadCSVRejectsBadLogs(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no data rows")

	_, err = ReadCSV(strings.NewReader("time,x\n0,1\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "t column")

	_, err = ReadCSV(strings.NewReader("t,x\n0,oops\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a number")
}

func TestSummarize(t *testing.T) {
	s, err := Summarize([]float64{1, 2, 3, 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Min, test.ShouldEqual, 1.0)
	test.That(t, s.Max, test.ShouldEqual, 4.0)
	test.That(t, s.Mean, test.ShouldEqual, 2.5)
	test.That(t, s.StdDev, test.ShouldAlmostEqual, math.Sqrt(1.25), 1e-12)

	_, err = Summarize(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAsciiChart(t *testing.T) {
	chart := AsciiChart([]float64{0, 1, 0, -1, 0}, "com sway")
	test.That(t, chart, test.ShouldContainSubstring, "com sway")
}

func TestSaveLinesPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "com.png")
	xs := []float64{0, 0.1, 0.2, 0.3}
	series := []Series{
		{Name: "ref", Values: []float64{0, 0, 0.1, 0.1}},
		{Name: "planned", Values: []float64{0, 0.02, 0.08, 0.1}},
	}
	test.That(t, SaveLinesPlot(path, "ZMP tracking", "t (s)", "x (m)", xs, series), test.ShouldBeNil)

	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	err = SaveLinesPlot(path, "bad", "t", "x", xs, []Series{{Name: "short", Values: []float64{1}}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "points")

	err = SaveLinesPlot(path, "empty", "t", "x", xs, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
