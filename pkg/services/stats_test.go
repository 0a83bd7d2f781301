package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
)

func TestPearsonCorrelation_PerfectLinear(t *testing.T) {
	var pairs []datasource.NumericPair
	for i := 1; i <= 50; i++ {
		pairs = append(pairs, datasource.NumericPair{A: float64(i), B: float64(i)*3 + 7})
	}

	r, ok := PearsonCorrelation(pairs)
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-12)
	assert.LessOrEqual(t, r, 1.0)
}

func TestPearsonCorrelation_Negative(t *testing.T) {
	pairs := []datasource.NumericPair{{A: 1, B: 10}, {A: 2, B: 8}, {A: 3, B: 6}, {A: 4, B: 4}}

	r, ok := PearsonCorrelation(pairs)
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-12)
	assert.GreaterOrEqual(t, r, -1.0)
}

func TestPearsonCorrelation_Symmetric(t *testing.T) {
	pairs := []datasource.NumericPair{{A: 1, B: 2.5}, {A: 2, B: 1}, {A: 4, B: 7}, {A: 8, B: 3}, {A: 3, B: 9}}
	swapped := make([]datasource.NumericPair, len(pairs))
	for i, p := range pairs {
		swapped[i] = datasource.NumericPair{A: p.B, B: p.A}
	}

	r1, ok1 := PearsonCorrelation(pairs)
	r2, ok2 := PearsonCorrelation(swapped)

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, r1, r2)
}

func TestPearsonCorrelation_Undefined(t *testing.T) {
	_, ok := PearsonCorrelation([]datasource.NumericPair{{A: 1, B: 2}, {A: 2, B: 3}})
	assert.False(t, ok, "fewer than three pairs")

	_, ok = PearsonCorrelation([]datasource.NumericPair{{A: 5, B: 1}, {A: 5, B: 2}, {A: 5, B: 3}})
	assert.False(t, ok, "constant column")
}
