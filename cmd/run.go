package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prognos-io/prognos/prog"
	"github.com/prognos-io/prognos/prog/bridge"
	"github.com/prognos-io/prognos/prog/service"
	"github.com/prognos-io/prognos/prog/store"
)

var (
	// CLI flags for the live service
	runConfigPath  string        // Pipeline config YAML
	runListenAddr  string        // HTTP API listen address
	runInterval    time.Duration // Tick cadence
	runDBPath      string        // SQLite run store, empty disables recording
	runBroker      string        // MQTT broker URL, empty disables the bridge
	runClientID    string        // MQTT client id
	runUsername    string        // MQTT username
	runPassword    string        // MQTT password
	runTopicPrefix string        // Topic prefix, signals subscribe under <prefix>/<name>
	runQoS         int           // MQTT QoS for subscriptions
)

// runCmd serves a live pipeline: telemetry in over MQTT, predictions out
// over HTTP, cycle summaries into the run store.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a live prognostic pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := prog.LoadConfig(runConfigPath)
		if err != nil {
			logrus.Fatalf("Loading config: %v", err)
		}
		bus := prog.NewSignalBus()
		p, err := prog.NewPrognoser(cfg, bus)
		if err != nil {
			logrus.Fatalf("Building pipeline: %v", err)
		}

		svcCfg := service.Config{Interval: runInterval}
		if runDBPath != "" {
			rec, err := store.Open(runDBPath)
			if err != nil {
				logrus.Fatalf("Opening run store: %v", err)
			}
			defer rec.Close()
			runID, err := rec.BeginRun(runMeta(cfg))
			if err != nil {
				logrus.Fatalf("Beginning run: %v", err)
			}
			logrus.Infof("recording prediction cycles under run %s", runID)
			svcCfg.Recorder, svcCfg.RunID = rec, runID
		}

		if runBroker != "" {
			mq := bridge.New(bridge.Options{
				Broker:      runBroker,
				ClientID:    runClientID,
				Username:    runUsername,
				Password:    runPassword,
				TopicPrefix: runTopicPrefix,
				QoS:         byte(runQoS),
			}, bus)
			if err := mq.Start(pipelineSignals(cfg)); err != nil {
				logrus.Fatalf("Starting MQTT bridge: %v", err)
			}
			defer mq.Stop()
		} else {
			logrus.Warnf("no --broker given; the bus only fills if something else feeds it")
		}

		s := service.New(p, svcCfg)
		if err := s.Start(); err != nil {
			logrus.Fatalf("Starting service: %v", err)
		}
		defer s.Stop()

		router := service.NewRouter(s)
		logrus.Infof("serving API on %s", runListenAddr)
		if err := router.Run(runListenAddr); err != nil {
			logrus.Fatalf("HTTP server: %v", err)
		}
	},
}

// pipelineSignals lists every bus signal the pipeline reads.
func pipelineSignals(cfg prog.ConfigMap) []string {
	outputs, _ := cfg.Strings(prog.OutputsKey)
	inputs, _ := cfg.Strings(prog.InputsKey)
	return append(outputs, inputs...)
}

func runMeta(cfg prog.ConfigMap) store.RunMeta {
	model, _ := cfg.String(prog.ModelKey)
	observer, _ := cfg.String(prog.ObserverKey)
	predictor, _ := cfg.String(prog.PredictorKey)
	seed := int64(prog.DefaultSeed)
	if cfg.Has(prog.SeedKey) {
		if v, err := cfg.Int(prog.SeedKey); err == nil {
			seed = int64(v)
		}
	}
	return store.RunMeta{
		Model:     model,
		Observer:  observer,
		Predictor: predictor,
		Seed:      seed,
		StartedAt: time.Now(),
	}
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to pipeline config YAML")
	runCmd.Flags().StringVar(&runListenAddr, "listen", ":8125", "HTTP API listen address")
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Second, "Tick cadence (rounded up to whole seconds)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite run store path (empty disables recording)")
	runCmd.Flags().StringVar(&runBroker, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	runCmd.Flags().StringVar(&runClientID, "client-id", "prognos", "MQTT client id")
	runCmd.Flags().StringVar(&runUsername, "username", "", "MQTT username")
	runCmd.Flags().StringVar(&runPassword, "password", "", "MQTT password")
	runCmd.Flags().StringVar(&runTopicPrefix, "topic-prefix", "prognos", "MQTT topic prefix for signal subscriptions")
	runCmd.Flags().IntVar(&runQoS, "qos", 1, "MQTT QoS for signal subscriptions")
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}
