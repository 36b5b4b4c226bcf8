// Package service runs a prognostic pipeline continuously: a scheduler
// ticks the pipeline at a fixed cadence, tick outcomes and latencies feed a
// metrics registry, an optional recorder persists every prediction cycle,
// and an HTTP API serves the latest results.
package service

import (
	"fmt"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/prognos-io/prognos/prog"
	"github.com/prognos-io/prognos/prog/store"
)

// Config tunes the service around a pipeline.
type Config struct {
	// Interval between ticks. The scheduler rounds intervals under a
	// second up to one second; default is one second.
	Interval time.Duration

	// Recorder, when set, persists a summary row per prediction cycle
	// under RunID.
	Recorder *store.Recorder
	RunID    string
}

// Service owns the tick loop of one pipeline.
type Service struct {
	prognoser *prog.Prognoser
	interval  time.Duration
	cron      *cron.Cron

	recorder *store.Recorder
	runID    string

	registry  metrics.Registry
	outcomes  map[prog.TickOutcome]metrics.Counter
	tickTimer metrics.Timer
}

// New wraps p in a service. Nothing runs until Start.
func New(p *prog.Prognoser, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	registry := metrics.NewRegistry()
	s := &Service{
		prognoser: p,
		interval:  cfg.Interval,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		recorder:  cfg.Recorder,
		runID:     cfg.RunID,
		registry:  registry,
		outcomes:  make(map[prog.TickOutcome]metrics.Counter),
		tickTimer: metrics.NewRegisteredTimer("tick.duration", registry),
	}
	for _, o := range []prog.TickOutcome{prog.TickFailed, prog.TickInitialized, prog.TickSkipped, prog.TickPredicted} {
		s.outcomes[o] = metrics.NewRegisteredCounter("ticks."+o.String(), registry)
	}
	return s
}

// Start schedules the tick loop.
func (s *Service) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("scheduling ticks: %w", err)
	}
	s.cron.Start()
	logrus.Infof("service started, ticking every %s", s.interval)
	return nil
}

// Stop halts the scheduler and waits for an in-flight tick to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logrus.Infof("service stopped")
}

// tick runs one pipeline tick and accounts for it. Failed ticks are logged
// and counted, never fatal; the next tick may succeed once fresh telemetry
// arrives.
func (s *Service) tick() {
	start := time.Now()
	outcome, err := s.prognoser.Tick()
	s.tickTimer.UpdateSince(start)
	s.outcomes[outcome].Inc(1)

	if err != nil {
		logrus.Infof("tick failed: %v", err)
		return
	}
	logrus.Debugf("tick %s at t=%.3fs", outcome, s.prognoser.LastTime())

	if outcome == prog.TickPredicted && s.recorder != nil {
		if err := s.recorder.RecordResults(s.runID, s.prognoser.Results()); err != nil {
			logrus.Infof("recording prediction cycle: %v", err)
		}
	}
}

// Prognoser returns the wrapped pipeline.
func (s *Service) Prognoser() *prog.Prognoser { return s.prognoser }

// TickCounts returns a snapshot of tick counts by outcome.
func (s *Service) TickCounts() map[string]int64 {
	counts := make(map[string]int64, len(s.outcomes))
	for o, c := range s.outcomes {
		counts[o.String()] = c.Count()
	}
	return counts
}

// TickLatency returns the mean tick duration so far.
func (s *Service) TickLatency() time.Duration {
	return time.Duration(s.tickTimer.Mean())
}
