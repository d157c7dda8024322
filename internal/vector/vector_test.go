package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestCosineDegenerateInputs(t *testing.T) {
	require.Zero(t, Cosine(nil, nil))
	require.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestTopKOrdering(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},      // orthogonal
		{1, 0.1},    // close
		{1, 0},      // exact
		{-1, 0},     // opposite
	}
	got := TopK(query, candidates, 3)
	require.Len(t, got, 3)
	require.Equal(t, 2, got[0].Index)
	require.Equal(t, 1, got[1].Index)
	require.Equal(t, 0, got[2].Index)
}

func TestTopKBounds(t *testing.T) {
	require.Nil(t, TopK([]float32{1}, nil, 5))
	require.Nil(t, TopK([]float32{1}, [][]float32{{1}}, 0))
	got := TopK([]float32{1}, [][]float32{{1}, {2}}, 10)
	require.Len(t, got, 2)
}

func TestTopKDeterministicTies(t *testing.T) {
	got := TopK([]float32{1, 0}, [][]float32{{2, 0}, {3, 0}, {1, 0}}, 3)
	require.Equal(t, []int{0, 1, 2}, []int{got[0].Index, got[1].Index, got[2].Index})
}
