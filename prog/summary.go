package prog

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes a sample set with infinity-aware statistics. Time-of-event
// samples use +Inf for realizations that never crossed the threshold inside
// the prediction horizon; those are excluded from the moments and quantiles
// and accounted for through Finite.
type Summary struct {
	Count  int
	Finite int
	Mean   float64
	SD     float64
	Min    float64
	Max    float64
	P05    float64
	P25    float64
	Median float64
	P75    float64
	P95    float64
}

// Summarize computes a Summary over samples. With no finite samples every
// statistic is NaN.
func Summarize(samples []float64) Summary {
	s := Summary{Count: len(samples)}
	finite := make([]float64, 0, len(samples))
	for _, v := range samples {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	s.Finite = len(finite)
	if s.Finite == 0 {
		nan := math.NaN()
		s.Mean, s.SD = nan, nan
		s.Min, s.Max = nan, nan
		s.P05, s.P25, s.Median, s.P75, s.P95 = nan, nan, nan, nan, nan
		return s
	}
	sort.Float64s(finite)
	s.Mean = stat.Mean(finite, nil)
	s.SD = stat.StdDev(finite, nil)
	s.Min = finite[0]
	s.Max = finite[len(finite)-1]
	s.P05 = stat.Quantile(0.05, stat.Empirical, finite, nil)
	s.P25 = stat.Quantile(0.25, stat.Empirical, finite, nil)
	s.Median = stat.Quantile(0.5, stat.Empirical, finite, nil)
	s.P75 = stat.Quantile(0.75, stat.Empirical, finite, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, finite, nil)
	return s
}

// FiniteFraction returns the share of samples with a finite value, which for
// time-of-event samples is the probability the event occurs inside the
// horizon.
func (s Summary) FiniteFraction() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Finite) / float64(s.Count)
}
