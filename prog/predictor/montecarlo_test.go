package predictor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prognos-io/prognos/prog"
)

// drainModel is a one-state reservoir drained by its input. With a unit
// load and zero noise the time of event is exact arithmetic, which pins the
// predictor's bookkeeping down to the step.
type drainModel struct {
	floor float64
}

func (d drainModel) NumStates() int           { return 1 }
func (d drainModel) NumInputs() int           { return 1 }
func (d drainModel) NumOutputs() int          { return 1 }
func (d drainModel) NumInputParams() int      { return 2 }
func (d drainModel) NumPredictedOutputs() int { return 1 }
func (d drainModel) Timestep() float64        { return 1 }

func (d drainModel) StateEqn(t float64, x, u, n []float64, dt float64) {
	x[0] += -u[0]*dt + dt*n[0]
}

func (d drainModel) OutputEqn(t float64, x, u, n, z []float64) {
	z[0] = x[0] + n[0]
}

func (d drainModel) ThresholdEqn(t float64, x, u []float64) bool {
	return x[0] <= d.floor
}

func (d drainModel) InputEqn(t float64, params, u []float64) error {
	v, err := prog.PiecewiseInput(t, params)
	if err != nil {
		return err
	}
	u[0] = v
	return nil
}

func (d drainModel) PredictedOutputEqn(t float64, x, u, z []float64) {
	z[0] = x[0]
}

func (d drainModel) Initialize(u, z []float64) []float64 {
	return []float64{z[0]}
}

func mcConfig(samples, horizon int) prog.ConfigMap {
	cfg := prog.ConfigMap{}
	cfg.Set(prog.EventKey, "Drained")
	cfg.Set(prog.PredictedOutputsKey, "level")
	cfg.SetFloats(prog.NumSamplesKey, float64(samples))
	cfg.SetFloats(prog.HorizonKey, float64(horizon))
	cfg.SetFloats(LoadEstimateKey, 1, 1e6)
	cfg.SetFloats(ProcessNoiseKey, 0)
	return cfg
}

func newResults(t *testing.T, samples, horizon int) *prog.Results {
	t.Helper()
	res, err := prog.NewResults([]string{"Drained"}, []string{"level"}, samples, horizon)
	require.NoError(t, err)
	return res
}

func TestMonteCarlo_IsRegistered(t *testing.T) {
	assert.Contains(t, prog.RegisteredPredictors(), MCName)
}

func TestMonteCarlo_ConfigValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := NewMonteCarlo(drainModel{}, prog.ConfigMap{}, rng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), LoadEstimateKey)
	assert.Contains(t, err.Error(), ProcessNoiseKey)

	cfg := mcConfig(10, 20)
	cfg.Set(prog.EventKey, "Drained", "Exploded")
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	assert.Error(t, err, "two events")

	cfg = mcConfig(10, 20)
	cfg.SetFloats(ProcessNoiseKey, 0, 0)
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	assert.Error(t, err, "wrong process noise length")

	cfg = mcConfig(10, 20)
	cfg.SetFloats(LoadEstimateKey, 1, 10, 2)
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	assert.Error(t, err, "odd load profile")

	cfg = mcConfig(0, 20)
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	assert.Error(t, err, "zero samples")

	cfg = mcConfig(10, 20)
	cfg.SetFloats(WorkersKey, 0)
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	assert.Error(t, err, "zero workers")
}

func TestMonteCarlo_LoadProfileMatchesModelInputParams(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// A single value cannot form a (magnitude, duration) segment.
	cfg := mcConfig(10, 20)
	cfg.SetFloats(LoadEstimateKey, 8)
	_, err := NewMonteCarlo(drainModel{}, cfg, rng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input params")

	// Ragged multi-segment profiles fail at construction, not mid-predict.
	cfg = mcConfig(10, 20)
	cfg.SetFloats(LoadEstimateKey, 8, 100, 2)
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input params")

	// Whole segments of the model's declared width pass.
	cfg = mcConfig(10, 20)
	cfg.SetFloats(LoadEstimateKey, 8, 100, 2, 1e6)
	_, err = NewMonteCarlo(drainModel{}, cfg, rng)
	assert.NoError(t, err)
}

func TestMonteCarlo_ExactTimeOfEventUnderZeroNoise(t *testing.T) {
	// GIVEN a reservoir at level 10 drained at rate 1 with a floor of 0.5
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, mcConfig(25, 20), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	res := newResults(t, 25, 20)

	// WHEN predicting from t=5
	belief := []prog.UData{prog.NewPoint(10)}
	require.NoError(t, mc.Predict(5, belief, res))

	// THEN every realization crosses after exactly ten steps, at absolute
	// time 15
	toe, err := res.TimeOfEvent("Drained")
	require.NoError(t, err)
	for i := 0; i < toe.Size(); i++ {
		assert.Equal(t, 15.0, toe.Get(i), "sample %d", i)
	}

	// AND the trajectory ramps down then holds its last value past the
	// crossing
	rows, err := res.Trajectory("level")
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, 10.0, row[0])
		assert.Equal(t, 1.0, row[9])
		assert.Equal(t, 0.0, row[10])
		assert.Equal(t, 0.0, row[19])
	}

	cycleAt, ok := res.CycleTime()
	assert.True(t, ok)
	assert.Equal(t, 5.0, cycleAt)
}

func TestMonteCarlo_NoCrossingYieldsInfinity(t *testing.T) {
	// GIVEN no load, so the level never falls
	cfg := mcConfig(10, 15)
	cfg.SetFloats(LoadEstimateKey, 0, 1e6)
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	res := newResults(t, 10, 15)

	require.NoError(t, mc.Predict(0, []prog.UData{prog.NewPoint(10)}, res))

	toe, err := res.TimeOfEvent("Drained")
	require.NoError(t, err)
	for i := 0; i < toe.Size(); i++ {
		assert.True(t, math.IsInf(toe.Get(i), 1), "sample %d", i)
	}

	rows, err := res.Trajectory("level")
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, 10.0, row[14])
	}
}

func TestMonteCarlo_AlreadyPastThreshold(t *testing.T) {
	// A belief already under the floor crosses at the prediction time
	// itself.
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, mcConfig(5, 10), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	res := newResults(t, 5, 10)

	require.NoError(t, mc.Predict(7, []prog.UData{prog.NewPoint(0.2)}, res))

	toe, err := res.TimeOfEvent("Drained")
	require.NoError(t, err)
	for i := 0; i < toe.Size(); i++ {
		assert.Equal(t, 7.0, toe.Get(i))
	}
}

func TestMonteCarlo_DeterministicAcrossWorkerCounts(t *testing.T) {
	// GIVEN identical predictors except for the worker pool size, with
	// real spread in both the belief and the process noise
	run := func(workers int) (prog.UData, [][]float64) {
		cfg := mcConfig(40, 30)
		cfg.SetFloats(ProcessNoiseKey, 0.01)
		cfg.SetFloats(WorkersKey, float64(workers))
		mc, err := NewMonteCarlo(drainModel{floor: 0.5}, cfg, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		res := newResults(t, 40, 30)

		belief := []prog.UData{prog.NewMeanCovar(10, []float64{0.04})}
		require.NoError(t, mc.Predict(0, belief, res))

		toe, err := res.TimeOfEvent("Drained")
		require.NoError(t, err)
		rows, err := res.Trajectory("level")
		require.NoError(t, err)
		return toe, rows
	}

	toe1, rows1 := run(1)
	toe4, rows4 := run(4)

	// THEN the results are bit-identical
	assert.Equal(t, toe1.SampleSlice(), toe4.SampleSlice())
	assert.Equal(t, rows1, rows4)
}

func TestMonteCarlo_SamplesAndWeightedBeliefs(t *testing.T) {
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, mcConfig(10, 20), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	res := newResults(t, 10, 20)

	// All mass on a particle at level 10: every draw must pick it.
	weighted := prog.NewWeightedSamples(3)
	weighted.Set(0, 10)
	weighted.Set(1, 999)
	weighted.Set(2, 999)
	w := weighted.WeightSlice()
	w[0], w[1], w[2] = 1, 0, 0

	require.NoError(t, mc.Predict(5, []prog.UData{weighted}, res))
	toe, err := res.TimeOfEvent("Drained")
	require.NoError(t, err)
	for i := 0; i < toe.Size(); i++ {
		assert.Equal(t, 15.0, toe.Get(i))
	}

	// Unweighted samples that all agree behave like a point.
	samples := prog.NewSamples(4)
	for i := 0; i < 4; i++ {
		samples.Set(i, 10)
	}
	require.NoError(t, mc.Predict(6, []prog.UData{samples}, res))
	toe, err = res.TimeOfEvent("Drained")
	require.NoError(t, err)
	for i := 0; i < toe.Size(); i++ {
		assert.Equal(t, 16.0, toe.Get(i))
	}
}

func TestMonteCarlo_RejectsIndefiniteCovariance(t *testing.T) {
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, mcConfig(10, 20), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	res := newResults(t, 10, 20)

	belief := []prog.UData{prog.NewMeanCovar(10, []float64{-1})}
	err = mc.Predict(0, belief, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive definite")
}

func TestMonteCarlo_CommitShapeMismatchSurfaces(t *testing.T) {
	// GIVEN a results store sized differently from the predictor
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, mcConfig(10, 20), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	res := newResults(t, 11, 20)

	err = mc.Predict(0, []prog.UData{prog.NewPoint(10)}, res)
	assert.Error(t, err)
}

func TestMonteCarlo_StateDimensionMismatch(t *testing.T) {
	mc, err := NewMonteCarlo(drainModel{floor: 0.5}, mcConfig(10, 20), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	res := newResults(t, 10, 20)

	err = mc.Predict(0, []prog.UData{prog.NewPoint(10), prog.NewPoint(2)}, res)
	assert.Error(t, err)
}
