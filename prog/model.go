package prog

import "fmt"

// Model is the contract between a system model and the estimation/prediction
// pipeline. Implementations are stateless with respect to simulation data:
// every call receives the full state, and buffers are caller-owned. All
// methods must be safe for concurrent use so the predictor can fan
// realizations out across goroutines.
type Model interface {
	// NumStates returns the state vector dimension.
	NumStates() int
	// NumInputs returns the input (load) vector dimension.
	NumInputs() int
	// NumOutputs returns the measured output vector dimension.
	NumOutputs() int
	// NumInputParams returns the number of values in one segment of a load
	// profile. InputEqn accepts profiles whose length is a positive
	// multiple of this.
	NumInputParams() int
	// NumPredictedOutputs returns the derived output vector dimension.
	NumPredictedOutputs() int
	// Timestep returns the nominal integration step in seconds.
	Timestep() float64

	// StateEqn advances x in place by one explicit Euler step of size dt,
	// then adds dt-scaled process noise n. Inputs u are held constant over
	// the step.
	StateEqn(t float64, x, u, n []float64, dt float64)

	// OutputEqn computes the instantaneous measured outputs of state x into
	// z, adding sensor noise n. It does not modify x.
	OutputEqn(t float64, x, u, n, z []float64)

	// ThresholdEqn reports whether the end-of-life condition holds at state
	// x. It is evaluated on noise-free outputs and never inspects raw state
	// components directly.
	ThresholdEqn(t float64, x, u []float64) bool

	// InputEqn synthesizes the input vector u for time t from a load
	// profile given as (magnitude, duration) pairs. It returns an error for
	// a malformed profile (fewer than two values or an odd count).
	InputEqn(t float64, params, u []float64) error

	// PredictedOutputEqn computes derived outputs (quantities of interest
	// that are predicted but not measured) of state x into z.
	PredictedOutputEqn(t float64, x, u, z []float64)

	// Initialize reconstructs a full state vector consistent with a single
	// observation z under input u.
	Initialize(u, z []float64) []float64
}

// PiecewiseInput evaluates a piecewise-constant load profile at time t.
// params holds (magnitude, duration) pairs; segment k covers the half-open
// interval ending at the cumulative duration through k, with the boundary
// time belonging to the earlier segment. Beyond the final segment the last
// magnitude holds indefinitely. Models share this helper from their InputEqn.
func PiecewiseInput(t float64, params []float64) (float64, error) {
	if len(params) < 2 || len(params)%2 != 0 {
		return 0, fmt.Errorf("load profile needs (magnitude, duration) pairs, got %d values", len(params))
	}
	elapsed := 0.0
	for i := 0; i < len(params); i += 2 {
		elapsed += params[i+1]
		if t <= elapsed {
			return params[i], nil
		}
	}
	// Past the end of the profile: the last magnitude holds.
	return params[len(params)-2], nil
}
