// Package prog provides the core model-based prognostics engine.
//
// # Reading Guide
//
// Start with these three files to understand the estimation/prediction kernel:
//   - model.go: the Model contract (state, output, threshold, input and
//     predicted-output equations) that every system model implements
//   - prognoser.go: the per-sample pipeline (initialize once, then
//     estimate-then-predict on every advancing tick)
//   - results.go: the shared store for time-of-event samples and predicted
//     system trajectories
//
// # Architecture
//
// The prog package defines interfaces and bridge types; implementations live
// in sub-packages:
//   - prog/battery/: reference electrochemical cell model (end of discharge)
//   - prog/observer/: state estimators (unscented Kalman filter, particle filter)
//   - prog/predictor/: Monte Carlo time-of-event predictor
//   - prog/store/: SQLite persistence of prediction cycles
//   - prog/bridge/: external data sources feeding the signal bus (MQTT)
//   - prog/service/: daemon wiring (periodic ticks, metrics, HTTP read API)
//
// Sub-packages register their implementations via init() functions that call
// RegisterModel, RegisterObserver and RegisterPredictor; the Prognoser builds
// a pipeline purely from names in a ConfigMap.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Model: system dynamics, measurement map, end-of-life threshold,
//     load profile synthesis and derived outputs
//   - Observer: tracks a belief over the model state from streaming samples
//   - Predictor: simulates the belief forward and fills a Results store
//   - Bus: read-only access to named, timestamped scalar signals
//
// Determinism: pipeline randomness flows from a single master seed through a
// PartitionedRNG, so a run is reproducible from its configuration alone.
package prog
