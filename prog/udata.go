package prog

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// UType identifies the uncertainty representation carried by a UData.
type UType int

const (
	// Point is a single exact value.
	Point UType = iota
	// MeanSD is a mean with a standard deviation.
	MeanSD
	// MeanCovar is a mean with one row of a covariance matrix. A full
	// multivariate belief is a slice of these, one per dimension.
	MeanCovar
	// Samples is an unweighted sample set.
	Samples
	// WeightedSamples is a sample set with per-sample weights.
	WeightedSamples
)

func (t UType) String() string {
	switch t {
	case Point:
		return "point"
	case MeanSD:
		return "mean-sd"
	case MeanCovar:
		return "mean-covar"
	case Samples:
		return "samples"
	case WeightedSamples:
		return "weighted-samples"
	}
	return fmt.Sprintf("utype(%d)", int(t))
}

// UData is a single uncertain scalar quantity. The payload layout depends on
// the representation:
//
//	Point:           [value]
//	MeanSD:          [mean, sd]
//	MeanCovar:       [mean, covariance row...]
//	Samples:         sample values
//	WeightedSamples: sample values, with matching weights
//
// State estimators hand beliefs to the predictor as one UData per state
// dimension; the results store holds time-of-event beliefs as Samples.
type UData struct {
	kind    UType
	vals    []float64
	weights []float64
}

// NewPoint returns a Point UData holding v.
func NewPoint(v float64) UData {
	return UData{kind: Point, vals: []float64{v}}
}

// NewMeanSD returns a MeanSD UData.
func NewMeanSD(mean, sd float64) UData {
	return UData{kind: MeanSD, vals: []float64{mean, sd}}
}

// NewMeanCovar returns a MeanCovar UData holding mean and a copy of one
// covariance matrix row.
func NewMeanCovar(mean float64, covRow []float64) UData {
	vals := make([]float64, 1+len(covRow))
	vals[0] = mean
	copy(vals[1:], covRow)
	return UData{kind: MeanCovar, vals: vals}
}

// NewSamples returns a Samples UData with n zero samples.
func NewSamples(n int) UData {
	return UData{kind: Samples, vals: make([]float64, n)}
}

// NewWeightedSamples returns a WeightedSamples UData with n zero samples and
// uniform weights.
func NewWeightedSamples(n int) UData {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return UData{kind: WeightedSamples, vals: make([]float64, n), weights: w}
}

// Kind returns the uncertainty representation.
func (u UData) Kind() UType { return u.kind }

// Size returns the payload length.
func (u UData) Size() int { return len(u.vals) }

// Get returns payload element i.
func (u UData) Get(i int) float64 { return u.vals[i] }

// Set assigns payload element i.
func (u *UData) Set(i int, v float64) { u.vals[i] = v }

// Mean returns the representative central value: the value itself for Point,
// the stored mean for MeanSD and MeanCovar, and the (weighted) sample mean
// otherwise.
func (u UData) Mean() float64 {
	switch u.kind {
	case Point, MeanSD, MeanCovar:
		return u.vals[0]
	case WeightedSamples:
		return stat.Mean(u.vals, u.weights)
	default:
		return stat.Mean(u.vals, nil)
	}
}

// SD returns the standard deviation of a MeanSD UData.
func (u UData) SD() float64 { return u.vals[1] }

// CovarRow returns the covariance row of a MeanCovar UData. The slice is
// live, not a copy.
func (u UData) CovarRow() []float64 { return u.vals[1:] }

// SampleSlice returns the sample payload of a Samples or WeightedSamples
// UData. The slice is live, not a copy.
func (u UData) SampleSlice() []float64 { return u.vals }

// WeightSlice returns the weights of a WeightedSamples UData. The slice is
// live, not a copy.
func (u UData) WeightSlice() []float64 { return u.weights }
