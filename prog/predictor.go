package prog

// Predictor simulates a state belief forward and fills a Results store with
// time-of-event samples and predicted output trajectories. predict is invoked
// once per advancing tick, after the observer has stepped; t is the
// pipeline-relative time the prediction starts from.
type Predictor interface {
	Predict(t float64, state []UData, res *Results) error
}
