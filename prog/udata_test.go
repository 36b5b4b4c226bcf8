package prog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUData_PointAndMeanForms(t *testing.T) {
	pt := NewPoint(3.5)
	assert.Equal(t, Point, pt.Kind())
	assert.Equal(t, 3.5, pt.Mean())

	ms := NewMeanSD(2.0, 0.5)
	assert.Equal(t, MeanSD, ms.Kind())
	assert.Equal(t, 2.0, ms.Mean())
	assert.Equal(t, 0.5, ms.SD())

	mc := NewMeanCovar(1.0, []float64{0.1, 0.2})
	assert.Equal(t, MeanCovar, mc.Kind())
	assert.Equal(t, 1.0, mc.Mean())
	assert.Equal(t, []float64{0.1, 0.2}, mc.CovarRow())
}

func TestUData_MeanCovarCopiesRow(t *testing.T) {
	row := []float64{0.1, 0.2}
	mc := NewMeanCovar(1.0, row)
	row[0] = 99
	assert.Equal(t, 0.1, mc.CovarRow()[0])
}

func TestUData_SampleMeans(t *testing.T) {
	s := NewSamples(4)
	for i, v := range []float64{1, 2, 3, 4} {
		s.Set(i, v)
	}
	assert.Equal(t, Samples, s.Kind())
	assert.Equal(t, 4, s.Size())
	assert.InDelta(t, 2.5, s.Mean(), 1e-12)

	w := NewWeightedSamples(2)
	w.Set(0, 10)
	w.Set(1, 20)
	w.WeightSlice()[0] = 0.25
	w.WeightSlice()[1] = 0.75
	assert.InDelta(t, 17.5, w.Mean(), 1e-12)
}

func TestUType_String(t *testing.T) {
	assert.Equal(t, "mean-covar", MeanCovar.String())
	assert.Equal(t, "weighted-samples", WeightedSamples.String())
}
