package prog

// Observer tracks a belief over a model's state from streaming input and
// output samples. Implementations are not safe for concurrent use; the
// pipeline steps its observer from a single tick goroutine.
type Observer interface {
	// Initialize seeds the belief at the known state x0 under input u0 at
	// time t0. It must be called before the first Step.
	Initialize(t0 float64, x0, u0 []float64)

	// Step advances the belief to time t and conditions it on the measured
	// outputs z. u is the input sampled at t; propagation across the
	// interval uses the input recorded at the previous call, so a load
	// change takes effect over the interval it was applied. Calling Step
	// before Initialize is an error.
	Step(t float64, u, z []float64) error

	// StateEstimate returns the current belief, one uncertain scalar per
	// state dimension. The representation depends on the estimator: a Kalman
	// style filter returns MeanCovar, a particle filter WeightedSamples.
	StateEstimate() []UData
}
