// Package predictor provides the Monte Carlo predictor: it samples
// realizations from the observer's state belief and simulates each one
// forward under process noise and an assumed future load until the event
// threshold trips or the horizon runs out.
package predictor

import (
	"fmt"
	"math"
	"math/rand"
	randv2 "math/rand/v2"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/prognos-io/prognos/prog"
)

// MCName is the registry identifier of the Monte Carlo predictor.
const MCName = "MC"

// Monte Carlo predictor configuration keys.
const (
	// LoadEstimateKey is the assumed future load profile, (magnitude,
	// duration) pairs anchored at the start of each prediction cycle.
	LoadEstimateKey = "Predictor.loadEst"
	// ProcessNoiseKey lists one process noise variance per state, applied
	// during forward simulation.
	ProcessNoiseKey = "Model.processNoise"
	// WorkersKey bounds the simulation worker pool. Defaults to the CPU
	// count.
	WorkersKey = "Predictor.workers"
)

// MonteCarlo simulates numSamples realizations of the model forward per
// prediction cycle. Realizations run on a worker pool, but all randomness
// is laid out sequentially beforehand (initial states drawn from the belief,
// then one derived seed per realization), so results are bit-identical for
// any worker count.
type MonteCarlo struct {
	model prog.Model
	rng   *rand.Rand // master stream; only touched between fan-outs

	event      string
	outputs    []string
	numSamples int
	horizon    int
	workers    int

	noiseSD     []float64
	loadProfile []float64

	// Per-cycle scratch, allocated once. Workers write disjoint rows.
	toe   map[string][]float64
	traj  map[string][][]float64
	x0    [][]float64
	seeds []int64
}

// NewMonteCarlo builds a Monte Carlo predictor for m drawing from rng.
func NewMonteCarlo(m prog.Model, cfg prog.ConfigMap, rng *rand.Rand) (*MonteCarlo, error) {
	if err := cfg.Require(prog.EventKey, prog.NumSamplesKey, prog.HorizonKey,
		prog.PredictedOutputsKey, LoadEstimateKey, ProcessNoiseKey); err != nil {
		return nil, err
	}

	events, err := cfg.Strings(prog.EventKey)
	if err != nil {
		return nil, err
	}
	if len(events) != 1 {
		return nil, fmt.Errorf("config key %q: monte carlo prediction handles exactly one event, got %d", prog.EventKey, len(events))
	}
	outputs, err := cfg.Strings(prog.PredictedOutputsKey)
	if err != nil {
		return nil, err
	}
	if len(outputs) != m.NumPredictedOutputs() {
		return nil, fmt.Errorf("config key %q: %d names for %d predicted outputs", prog.PredictedOutputsKey, len(outputs), m.NumPredictedOutputs())
	}

	numSamples, err := cfg.Int(prog.NumSamplesKey)
	if err != nil {
		return nil, err
	}
	if numSamples < 1 {
		return nil, fmt.Errorf("config key %q: need at least one sample, got %d", prog.NumSamplesKey, numSamples)
	}
	horizon, err := cfg.Int(prog.HorizonKey)
	if err != nil {
		return nil, err
	}
	if horizon < 1 {
		return nil, fmt.Errorf("config key %q: need a positive horizon, got %d", prog.HorizonKey, horizon)
	}

	variances, err := cfg.Floats(ProcessNoiseKey)
	if err != nil {
		return nil, err
	}
	if len(variances) != m.NumStates() {
		return nil, fmt.Errorf("config key %q: need %d variances, got %d", ProcessNoiseKey, m.NumStates(), len(variances))
	}
	noiseSD := make([]float64, len(variances))
	for i, v := range variances {
		if v < 0 {
			return nil, fmt.Errorf("config key %q: variance %d is negative (%v)", ProcessNoiseKey, i, v)
		}
		noiseSD[i] = math.Sqrt(v)
	}

	loadProfile, err := cfg.Floats(LoadEstimateKey)
	if err != nil {
		return nil, err
	}
	arity := m.NumInputParams()
	if arity < 1 {
		return nil, fmt.Errorf("model declares %d input params", arity)
	}
	if len(loadProfile) < arity || len(loadProfile)%arity != 0 {
		return nil, fmt.Errorf("config key %q: profile length %d is not a positive multiple of the model's %d input params",
			LoadEstimateKey, len(loadProfile), arity)
	}

	workers := runtime.NumCPU()
	if cfg.Has(WorkersKey) {
		if workers, err = cfg.Int(WorkersKey); err != nil {
			return nil, err
		}
		if workers < 1 {
			return nil, fmt.Errorf("config key %q: need at least one worker, got %d", WorkersKey, workers)
		}
	}

	mc := &MonteCarlo{
		model:       m,
		rng:         rng,
		event:       events[0],
		outputs:     outputs,
		numSamples:  numSamples,
		horizon:     horizon,
		workers:     workers,
		noiseSD:     noiseSD,
		loadProfile: loadProfile,
		toe:         map[string][]float64{events[0]: make([]float64, numSamples)},
		traj:        make(map[string][][]float64, len(outputs)),
		x0:          make([][]float64, numSamples),
		seeds:       make([]int64, numSamples),
	}
	for _, name := range outputs {
		rows := make([][]float64, numSamples)
		for i := range rows {
			rows[i] = make([]float64, horizon)
		}
		mc.traj[name] = rows
	}
	for i := range mc.x0 {
		mc.x0[i] = make([]float64, m.NumStates())
	}
	return mc, nil
}

// Predict runs one prediction cycle from the state belief at time t and
// commits the resulting time-of-event samples and trajectories to res.
func (mc *MonteCarlo) Predict(t float64, state []prog.UData, res *prog.Results) error {
	if len(state) != mc.model.NumStates() {
		return fmt.Errorf("state estimate has %d dimensions, model has %d", len(state), mc.model.NumStates())
	}

	if err := mc.drawInitialStates(state); err != nil {
		return err
	}
	for s := range mc.seeds {
		mc.seeds[s] = mc.rng.Int63()
	}

	errs := make([]error, mc.numSamples)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < mc.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x := make([]float64, mc.model.NumStates())
			u := make([]float64, mc.model.NumInputs())
			noise := make([]float64, mc.model.NumStates())
			z := make([]float64, mc.model.NumPredictedOutputs())
			for s := range jobs {
				errs[s] = mc.simulate(t, s, x, u, noise, z)
			}
		}()
	}
	for s := 0; s < mc.numSamples; s++ {
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	for s, err := range errs {
		if err != nil {
			return fmt.Errorf("realization %d: %w", s, err)
		}
	}
	return res.Commit(t, mc.toe, mc.traj)
}

// simulate runs realization s from its drawn initial state. The trajectory
// row is filled for the full horizon; once the threshold trips, the
// time of event is fixed and the last predicted value holds for the
// remaining steps.
func (mc *MonteCarlo) simulate(t float64, s int, x, u, noise, z []float64) error {
	rng := rand.New(rand.NewSource(mc.seeds[s]))
	copy(x, mc.x0[s])
	dt := mc.model.Timestep()

	toe := math.Inf(1)
	crossed := false
	for k := 0; k < mc.horizon; k++ {
		if crossed {
			for _, name := range mc.outputs {
				row := mc.traj[name][s]
				row[k] = row[k-1]
			}
			continue
		}
		tk := t + float64(k)*dt
		if err := mc.model.InputEqn(float64(k)*dt, mc.loadProfile, u); err != nil {
			return err
		}
		mc.model.PredictedOutputEqn(tk, x, u, z)
		for j, name := range mc.outputs {
			mc.traj[name][s][k] = z[j]
		}
		if mc.model.ThresholdEqn(tk, x, u) {
			toe = tk
			crossed = true
			continue
		}
		for d := range noise {
			noise[d] = rng.NormFloat64() * mc.noiseSD[d]
		}
		mc.model.StateEqn(tk, x, u, noise, dt)
	}
	mc.toe[mc.event][s] = toe
	return nil
}

// drawInitialStates fills x0 with realizations of the belief. All draws use
// the master stream, in sample order.
func (mc *MonteCarlo) drawInitialStates(state []prog.UData) error {
	n := len(state)
	switch state[0].Kind() {
	case prog.Point:
		for _, x := range mc.x0 {
			for d := 0; d < n; d++ {
				x[d] = state[d].Get(0)
			}
		}

	case prog.MeanSD:
		for _, x := range mc.x0 {
			for d := 0; d < n; d++ {
				x[d] = state[d].Mean() + state[d].SD()*mc.rng.NormFloat64()
			}
		}

	case prog.MeanCovar:
		mean := make([]float64, n)
		sym := mat.NewSymDense(n, nil)
		for d := 0; d < n; d++ {
			mean[d] = state[d].Mean()
			row := state[d].CovarRow()
			if len(row) != n {
				return fmt.Errorf("state dimension %d has a %d-wide covariance row, want %d", d, len(row), n)
			}
			for j := d; j < n; j++ {
				sym.SetSym(d, j, (row[j]+state[j].CovarRow()[d])/2)
			}
		}
		src := randv2.NewPCG(uint64(mc.rng.Int63()), uint64(mc.rng.Int63()))
		dist, ok := distmv.NewNormal(mean, sym, src)
		if !ok {
			return fmt.Errorf("state covariance is not positive definite")
		}
		for _, x := range mc.x0 {
			dist.Rand(x)
		}

	case prog.Samples:
		size := state[0].Size()
		for _, x := range mc.x0 {
			idx := mc.rng.Intn(size)
			for d := 0; d < n; d++ {
				x[d] = state[d].Get(idx)
			}
		}

	case prog.WeightedSamples:
		weights := state[0].WeightSlice()
		for _, x := range mc.x0 {
			idx := weightedIndex(weights, mc.rng.Float64())
			for d := 0; d < n; d++ {
				x[d] = state[d].Get(idx)
			}
		}

	default:
		return fmt.Errorf("cannot sample initial states from a %s belief", state[0].Kind())
	}
	return nil
}

// weightedIndex walks the weight CDF to the sample covering quantile q.
func weightedIndex(weights []float64, q float64) int {
	cum := 0.0
	for i, w := range weights {
		cum += w
		if q <= cum {
			return i
		}
	}
	return len(weights) - 1
}
