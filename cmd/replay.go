package cmd

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prognos-io/prognos/prog"
	"github.com/prognos-io/prognos/prog/service"
	"github.com/prognos-io/prognos/prog/store"
)

var (
	replayConfigPath string // Pipeline config YAML
	replayFile       string // Recorded telemetry CSV
	replayDBPath     string // SQLite run store, empty disables recording
)

// replayCmd feeds a recorded telemetry file through a pipeline and prints
// the final prediction cycle.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded telemetry through a pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := prog.LoadConfig(replayConfigPath)
		if err != nil {
			logrus.Fatalf("Loading config: %v", err)
		}
		bus := prog.NewSignalBus()
		p, err := prog.NewPrognoser(cfg, bus)
		if err != nil {
			logrus.Fatalf("Building pipeline: %v", err)
		}

		start := time.Now()
		stats, err := service.Replay(replayFile, bus, p)
		if err != nil {
			logrus.Fatalf("Replay failed: %v", err)
		}
		logrus.Infof("replayed %d rows in %s: %v", stats.Rows, time.Since(start).Round(time.Millisecond), stats.Outcomes)

		res := p.Results()
		if _, ok := res.CycleTime(); !ok {
			logrus.Fatalf("No prediction cycle ran; the recording never advanced past initialization")
		}
		printCycle(res)

		if replayDBPath != "" {
			rec, err := store.Open(replayDBPath)
			if err != nil {
				logrus.Fatalf("Opening run store: %v", err)
			}
			defer rec.Close()
			runID, err := rec.BeginRun(runMeta(cfg))
			if err != nil {
				logrus.Fatalf("Beginning run: %v", err)
			}
			if err := rec.RecordResults(runID, res); err != nil {
				logrus.Fatalf("Recording final cycle: %v", err)
			}
			logrus.Infof("final cycle recorded under run %s", runID)
		}
	},
}

// printCycle renders the latest prediction cycle's per-event summary.
func printCycle(res *prog.Results) {
	t, _ := res.CycleTime()
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetStyle(table.StyleLight)
	w.SetTitle(fmt.Sprintf("Cycle %d at t=%.1fs", res.Cycles(), t))
	w.AppendHeader(table.Row{"Event", "Samples", "Finite", "Mean", "SD", "P05", "Median", "P95"})
	for _, ev := range res.EventNames() {
		toe, err := res.TimeOfEvent(ev)
		if err != nil {
			continue
		}
		s := prog.Summarize(toe.SampleSlice())
		w.AppendRow(table.Row{
			ev, s.Count, s.Finite,
			fmtStat(s.Mean), fmtStat(s.SD), fmtStat(s.P05), fmtStat(s.Median), fmtStat(s.P95),
		})
	}
	w.Render()
}

// fmtStat prints seconds to the tenth; censored statistics print as a dash.
func fmtStat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

func init() {
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Path to pipeline config YAML")
	replayCmd.Flags().StringVar(&replayFile, "file", "", "Path to recorded telemetry CSV")
	replayCmd.Flags().StringVar(&replayDBPath, "db", "", "SQLite run store path (empty disables recording)")
	_ = replayCmd.MarkFlagRequired("config")
	_ = replayCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(replayCmd)
}
