package cmd

import (
	"encoding/csv"
	"fmt"
	"image/color"
	"math"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/prognos-io/prognos/prog"
	"github.com/prognos-io/prognos/prog/predictor"
)

var (
	simConfigPath string    // Pipeline config YAML (only the model section is used)
	simObserve    []float64 // Initial observation, one value per output signal
	simLoad       []float64 // Piecewise load profile (magnitude,duration,...)
	simDuration   float64   // Simulated seconds
	simEvery      int       // Record every Nth step
	simCSVPath    string    // Telemetry CSV destination
	simPlotPath   string    // Output plot PNG destination
)

// simulateCmd runs a model open loop with zero noise: initialize from an
// observation, step until the threshold crosses or the duration runs out.
// The CSV it writes is the format replay reads, so a simulated run can be
// fed straight back through a full pipeline.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a model open loop",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := prog.LoadConfig(simConfigPath)
		if err != nil {
			logrus.Fatalf("Loading config: %v", err)
		}
		modelName, err := cfg.String(prog.ModelKey)
		if err != nil {
			logrus.Fatalf("Reading model name: %v", err)
		}
		m, err := prog.NewModel(modelName, cfg)
		if err != nil {
			logrus.Fatalf("Creating model %q: %v", modelName, err)
		}
		outputs, err := cfg.Strings(prog.OutputsKey)
		if err != nil || len(outputs) != m.NumOutputs() {
			logrus.Fatalf("Config must name %d output signals under %s", m.NumOutputs(), prog.OutputsKey)
		}
		inputs, err := cfg.Strings(prog.InputsKey)
		if err != nil || len(inputs) != m.NumInputs() {
			logrus.Fatalf("Config must name %d input signals under %s", m.NumInputs(), prog.InputsKey)
		}
		if len(simObserve) != m.NumOutputs() {
			logrus.Fatalf("--observe needs %d values (%v), got %d", m.NumOutputs(), outputs, len(simObserve))
		}
		loadProfile := simLoad
		if len(loadProfile) == 0 {
			if loadProfile, err = cfg.Floats(predictor.LoadEstimateKey); err != nil {
				logrus.Fatalf("No --load given and no %s in config", predictor.LoadEstimateKey)
			}
		}

		sim, err := runOpenLoop(m, simObserve, loadProfile, simDuration, simEvery)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if sim.crossed {
			logrus.Infof("threshold crossed at t=%.1fs", sim.eventT)
		} else {
			logrus.Infof("no threshold crossing within %.1fs", simDuration)
		}

		printRanges(outputs, sim.outs)
		if simCSVPath != "" {
			if err := writeTelemetryCSV(simCSVPath, outputs, inputs, sim); err != nil {
				logrus.Fatalf("Writing CSV: %v", err)
			}
			logrus.Infof("telemetry written to %s (%d rows)", simCSVPath, len(sim.times))
		}
		if simPlotPath != "" {
			if err := writePlot(simPlotPath, outputs, sim); err != nil {
				logrus.Fatalf("Writing plot: %v", err)
			}
			logrus.Infof("plot written to %s", simPlotPath)
		}
	},
}

// openLoopRun holds recorded samples: times[k] with outs[i][k] per output
// signal and ins[j][k] per input signal.
type openLoopRun struct {
	times   []float64
	outs    [][]float64
	ins     [][]float64
	crossed bool
	eventT  float64
}

func runOpenLoop(m prog.Model, observe, loadProfile []float64, duration float64, every int) (*openLoopRun, error) {
	if every < 1 {
		every = 1
	}
	dt := m.Timestep()
	steps := int(math.Ceil(duration / dt))
	if steps < 1 {
		return nil, fmt.Errorf("duration %.3fs is under one %.3fs timestep", duration, dt)
	}

	u := make([]float64, m.NumInputs())
	z := make([]float64, m.NumOutputs())
	noNoiseX := make([]float64, m.NumStates())
	noNoiseZ := make([]float64, m.NumOutputs())

	if err := m.InputEqn(0, loadProfile, u); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	x := m.Initialize(u, observe)

	run := &openLoopRun{
		outs: make([][]float64, m.NumOutputs()),
		ins:  make([][]float64, m.NumInputs()),
	}
	for k := 0; k <= steps; k++ {
		t := float64(k) * dt
		if err := m.InputEqn(t, loadProfile, u); err != nil {
			return nil, fmt.Errorf("load profile at t=%.3f: %w", t, err)
		}
		m.OutputEqn(t, x, u, noNoiseZ, z)
		crossed := m.ThresholdEqn(t, x, u)
		if k%every == 0 || crossed {
			run.times = append(run.times, t)
			for i, v := range z {
				run.outs[i] = append(run.outs[i], v)
			}
			for j, v := range u {
				run.ins[j] = append(run.ins[j], v)
			}
		}
		if crossed {
			run.crossed, run.eventT = true, t
			break
		}
		m.StateEqn(t, x, u, noNoiseX, dt)
	}
	return run, nil
}

// printRanges renders a compact per-signal overview of the run.
func printRanges(outputs []string, outs [][]float64) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"Signal", "Start", "End", "Min", "Max"})
	for i, name := range outputs {
		series := outs[i]
		if len(series) == 0 {
			continue
		}
		lo, hi := series[0], series[0]
		for _, v := range series {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		w.AppendRow(table.Row{
			name,
			fmt.Sprintf("%.3f", series[0]),
			fmt.Sprintf("%.3f", series[len(series)-1]),
			fmt.Sprintf("%.3f", lo),
			fmt.Sprintf("%.3f", hi),
		})
	}
	w.Render()
}

// writeTelemetryCSV writes the run in replay's format: a "t" column, then
// one column per output signal, then one per input signal.
func writeTelemetryCSV(path string, outputs, inputs []string, run *openLoopRun) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"t"}, outputs...)
	header = append(header, inputs...)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for k, t := range run.times {
		record[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for i := range outputs {
			record[1+i] = strconv.FormatFloat(run.outs[i][k], 'g', -1, 64)
		}
		for j := range inputs {
			record[1+len(outputs)+j] = strconv.FormatFloat(run.ins[j][k], 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writePlot(path string, outputs []string, run *openLoopRun) error {
	pl := plot.New()
	pl.Title.Text = "Open loop simulation"
	pl.X.Label.Text = "t (s)"
	pl.Y.Label.Text = "Signal value"

	palette := []color.Color{
		color.RGBA{R: 31, G: 119, B: 180, A: 255},
		color.RGBA{R: 255, G: 127, B: 14, A: 255},
		color.RGBA{R: 44, G: 160, B: 44, A: 255},
		color.RGBA{R: 214, G: 39, B: 40, A: 255},
	}
	for i, name := range outputs {
		pts := make(plotter.XYs, len(run.times))
		for k, t := range run.times {
			pts[k] = plotter.XY{X: t, Y: run.outs[i][k]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1)
		pl.Add(line)
		pl.Legend.Add(name, line)
	}
	return pl.Save(14*vg.Inch, 6*vg.Inch, path)
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "", "Path to pipeline config YAML")
	simulateCmd.Flags().Float64SliceVar(&simObserve, "observe", nil, "Initial observation, one value per output signal")
	simulateCmd.Flags().Float64SliceVar(&simLoad, "load", nil, "Piecewise load profile (magnitude,duration,...); defaults to the config's load estimate")
	simulateCmd.Flags().Float64Var(&simDuration, "duration", 10000, "Simulated seconds")
	simulateCmd.Flags().IntVar(&simEvery, "every", 1, "Record every Nth step")
	simulateCmd.Flags().StringVar(&simCSVPath, "csv", "", "Write telemetry CSV here")
	simulateCmd.Flags().StringVar(&simPlotPath, "plot", "", "Write an output plot PNG here")
	_ = simulateCmd.MarkFlagRequired("config")
	_ = simulateCmd.MarkFlagRequired("observe")

	rootCmd.AddCommand(simulateCmd)
}
