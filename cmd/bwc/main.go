// Package main is the walking controller sandbox command.
package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"text/tabwriter"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nopaddleboat/BaselineWalkingController/centroidal"
	"github.com/nopaddleboat/BaselineWalkingController/config"
	"github.com/nopaddleboat/BaselineWalkingController/footstep"
	"github.com/nopaddleboat/BaselineWalkingController/report"
	"github.com/nopaddleboat/BaselineWalkingController/sim"
	"github.com/nopaddleboat/BaselineWalkingController/telemetry"
)

const (
	// Flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagQuiet   = "quiet"
	flagOutCSV  = "out-csv"
	flagPlotDir = "plot-dir"
	flagAscii   = "ascii"
	flagOut     = "out"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "bwc",
		Usage: "walk a point-mass biped in simulation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:    flagQuiet,
				Aliases: []string{"q"},
				Usage:   "suppress controller logs",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.Bool(flagDebug):
				logger = golog.NewDebugLogger("bwc")
			case c.Bool(flagQuiet):
				logger = zap.NewNop().Sugar()
			default:
				logger = golog.NewDevelopmentLogger("bwc")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the closed-loop walk as fast as possible and report on it",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  flagOutCSV,
						Usage: "write the telemetry log to `FILE`",
					},
					&cli.PathFlag{
						Name:  flagPlotDir,
						Usage: "write PNG plots under `DIR`",
					},
					&cli.BoolFlag{
						Name:  flagAscii,
						Usage: "chart the CoM motion in the terminal",
					},
				},
				Action: func(c *cli.Context) error {
					return runWalk(c, logger)
				},
			},
			{
				Name:  "loop",
				Usage: "drive the controller with the real-time control loop",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  flagOutCSV,
						Usage: "write the telemetry log to `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					return runLoop(c, logger)
				},
			},
			{
				Name:  "init-config",
				Usage: "write the default configuration to a file",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  flagOut,
						Value: "bwc.yaml",
						Usage: "destination `FILE`",
					},
				},
				Action: initConfig,
			},
			{
				Name:   "version",
				Usage:  "print version info for this program",
				Action: printVersion,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// scenario is the wired-up controller stack for one run.
type scenario struct {
	fsm   *footstep.Manager
	plant *sim.PointMass
	mgr   *centroidal.DdpZmp
}

func buildScenario(logger golog.Logger, cfg *config.Config) (*scenario, error) {
	fsm := footstep.NewManager(logger)
	fsm.Reset(
		r3.Vector{Y: cfg.Walk.StepWidth / 2},
		r3.Vector{Y: -cfg.Walk.StepWidth / 2},
		0,
	)
	steps, err := footstep.GenerateStraightWalk(cfg.Walk)
	if err != nil {
		return nil, errors.Wrap(err, "failed to plan the walk")
	}
	for _, fs := range steps {
		if err := fsm.AppendFootstep(fs); err != nil {
			return nil, errors.Wrap(err, "failed to queue a footstep")
		}
	}
	plant, err := sim.NewPointMass(cfg.Robot.Mass, r3.Vector{Z: cfg.Centroidal.RefComZ}, r3.Vector{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build the plant")
	}
	mgr, err := centroidal.NewDdpZmp(logger, cfg.Centroidal, cfg.Robot.Mass, plant, fsm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build the centroidal manager")
	}
	return &scenario{fsm: fsm, plant: plant, mgr: mgr}, nil
}

func record(sc *scenario, rec *telemetry.Recorder) error {
	if err := sc.mgr.RegisterTelemetry(rec); err != nil {
		return err
	}
	return sc.plant.RegisterTelemetry(rec, "sim")
}

func writeLog(c *cli.Context, buf *bytes.Buffer) error {
	path := c.Path(flagOutCSV)
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "failed to write the telemetry log")
	}
	fmt.Fprintf(c.App.Writer, "telemetry log: %s\n", path)
	return nil
}

func runWalk(c *cli.Context, logger golog.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sc, err := buildScenario(logger, cfg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	rec := telemetry.NewRecorder(&buf, logger)
	if err := record(sc, rec); err != nil {
		return err
	}

	start := time.Now()
	if err := sim.RunClosedLoop(c.Context, logger, sc.mgr, sc.plant, cfg.Sim.ControlDt, cfg.Sim.Duration, rec); err != nil {
		return err
	}
	if err := rec.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "simulated %.1f s in %v\n", cfg.Sim.Duration, time.Since(start))

	if err := writeLog(c, &buf); err != nil {
		return err
	}
	diag := sc.mgr.Diagnostics()
	fmt.Fprintf(c.App.Writer, "final cycle: iterations=%d converged=%t solve=%v warm start resets=%d\n",
		diag.Iterations, diag.Converged, diag.SolveDuration, diag.WarmStartResets)

	tbl, err := report.ReadCSV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	return summarize(c, cfg, tbl)
}

func summarize(c *cli.Context, cfg *config.Config, tbl *report.Table) error {
	name := cfg.Centroidal.Name
	columns := []string{
		"sim_comPos_x", "sim_comPos_y", "sim_comPos_z",
		name + "_plannedZmp_x", name + "_plannedZmp_y",
		name + "_DDP_computationDuration", name + "_DDP_iter",
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tMIN\tMAX\tMEAN\tSTDDEV")
	for _, col := range columns {
		vals, err := tbl.Column(col)
		if err != nil {
			return err
		}
		s, err := report.Summarize(vals)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\n", col, s.Min, s.Max, s.Mean, s.StdDev)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if c.Bool(flagAscii) {
		for _, col := range []string{"sim_comPos_x", "sim_comPos_y"} {
			vals, err := tbl.Column(col)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, report.AsciiChart(vals, col))
			fmt.Fprintln(c.App.Writer)
		}
	}

	if dir := c.Path(flagPlotDir); dir != "" {
		if err := savePlots(dir, name, tbl); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "plots: %s\n", dir)
	}
	return nil
}

func savePlots(dir, name string, tbl *report.Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create the plot directory")
	}
	series := func(cols ...string) ([]report.Series, error) {
		out := make([]report.Series, 0, len(cols))
		for _, col := range cols {
			vals, err := tbl.Column(col)
			if err != nil {
				return nil, err
			}
			out = append(out, report.Series{Name: col, Values: vals})
		}
		return out, nil
	}

	com, err := series("sim_comPos_x", "sim_comPos_y", "sim_comPos_z")
	if err != nil {
		return err
	}
	if err := report.SaveLinesPlot(filepath.Join(dir, "com.png"),
		"CoM position", "t (s)", "position (m)", tbl.Time, com); err != nil {
		return err
	}

	zmpX, err := series(name+"_refZmp_x", name+"_plannedZmp_x", "sim_comPos_x")
	if err != nil {
		return err
	}
	if err := report.SaveLinesPlot(filepath.Join(dir, "zmp_x.png"),
		"ZMP tracking along x", "t (s)", "x (m)", tbl.Time, zmpX); err != nil {
		return err
	}

	zmpY, err := series(name+"_refZmp_y", name+"_plannedZmp_y", "sim_comPos_y")
	if err != nil {
		return err
	}
	return report.SaveLinesPlot(filepath.Join(dir, "zmp_y.png"),
		"ZMP tracking along y", "t (s)", "y (m)", tbl.Time, zmpY)
}

func runLoop(c *cli.Context, logger golog.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sc, err := buildScenario(logger, cfg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	rec := telemetry.NewRecorder(&buf, logger)
	if err := record(sc, rec); err != nil {
		return err
	}

	loop, err := centroidal.NewLoop(logger, centroidal.LoopConfig{Frequency: 1 / cfg.Sim.ControlDt}, sc.mgr,
		centroidal.WithRecorder(rec),
		centroidal.WithCycleHook(func(float64) error {
			return sc.plant.Step(sc.mgr.PlannedZmp(), sc.mgr.PlannedForceZ(), cfg.Sim.ControlDt)
		}),
	)
	if err != nil {
		return err
	}
	if err := loop.Start(); err != nil {
		return err
	}

	runFor := time.Duration(cfg.Sim.Duration * float64(time.Second))
	fmt.Fprintf(c.App.Writer, "running the control loop for %v at %.0f Hz\n", runFor, 1/cfg.Sim.ControlDt)
	select {
	case <-c.Context.Done():
	case <-time.After(runFor):
	}
	loop.Stop()

	if err := rec.Flush(); err != nil {
		return err
	}
	if err := writeLog(c, &buf); err != nil {
		return err
	}
	diag := sc.mgr.Diagnostics()
	fmt.Fprintf(c.App.Writer, "final CoM: %+v\n", sc.plant.ComPosition())
	fmt.Fprintf(c.App.Writer, "final cycle: iterations=%d converged=%t solve=%v\n",
		diag.Iterations, diag.Converged, diag.SolveDuration)
	return nil
}

func initConfig(c *cli.Context) error {
	path := c.Path(flagOut)
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}

func printVersion(c *cli.Context) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return errors.New("failed to read build info")
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	version := "(dev)"
	if rev, ok := settings["vcs.revision"]; ok && len(rev) >= 8 {
		version = rev[:8]
		if settings["vcs.modified"] == "true" {
			version += "+"
		}
	}
	fmt.Fprintf(c.App.Writer, "bwc git=%s go=%s\n", version, info.GoVersion)
	return nil
}
