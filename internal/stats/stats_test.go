package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanMedian(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Median(nil))

	values := []float64{4, 1, 3, 2}
	assert.InDelta(t, 2.5, Mean(values), 1e-9)
	assert.InDelta(t, 2.5, Median(values), 1e-9)
	assert.Equal(t, []float64{4, 1, 3, 2}, values, "median must not reorder input")

	assert.InDelta(t, 3, Median([]float64{5, 3, 1}), 1e-9)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 33.3, Round1(33.333))
	assert.Equal(t, 66.7, Round(66.666, 1))
	assert.Equal(t, 1.3, Round(1.25, 1))
}

func TestPearson(t *testing.T) {
	r, ok := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	assert.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)

	r, ok = Pearson([]float64{1, 2, 3}, []float64{3, 2, 1})
	assert.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-9)

	_, ok = Pearson([]float64{1, 1, 1}, []float64{0, 1, 0})
	assert.False(t, ok)

	_, ok = Pearson([]float64{1}, []float64{1, 2})
	assert.False(t, ok)
}

func TestPearsonConstantSeriesHasNoCorrelation(t *testing.T) {
	for n := 2; n <= 60; n++ {
		x := make([]float64, n)
		y := make([]float64, n)
		for i := range x {
			x[i] = float64(n) / 7.3
			y[i] = float64(i % 2)
		}
		r, ok := Pearson(x, y)
		assert.False(t, ok, "n=%d", n)
		assert.Zero(t, r, "n=%d", n)
	}
}
