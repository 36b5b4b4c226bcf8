package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	// Pipeline components register themselves under their names.
	_ "github.com/prognos-io/prognos/prog/battery"
	_ "github.com/prognos-io/prognos/prog/observer"
	_ "github.com/prognos-io/prognos/prog/predictor"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "prognos",
	Short: "Model-based prognostics engine",
	Long: `prognos estimates the hidden state of a degrading component from its
telemetry and predicts when it will reach end of life. Pipelines are
assembled from registered models, observers and predictors by a YAML
config; run serves a live pipeline, replay feeds it a recording, and
simulate exercises a model open loop.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
}
