package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractChannel(t *testing.T) {
	src := []int32{
		math.MaxInt32, 0,
		-math.MaxInt32, math.MaxInt32 / 2,
	}

	left := make([]float64, 2)
	n, err := ExtractChannel(left, src, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 1.0, left[0], 1e-9)
	assert.InDelta(t, -1.0, left[1], 1e-9)

	right := make([]float64, 2)
	n, err = ExtractChannel(right, src, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.0, right[0], 1e-9)
	assert.InDelta(t, 0.5, right[1], 1e-6)
}

func TestExtractChannelErrors(t *testing.T) {
	dst := make([]float64, 4)

	_, err := ExtractChannel(dst, []int32{1, 2, 3, 4}, 2, 2)
	assert.Error(t, err, "channel out of range")

	_, err = ExtractChannel(dst, []int32{1, 2, 3}, 2, 0)
	assert.Error(t, err, "ragged interleave")

	_, err = ExtractChannel(make([]float64, 1), []int32{1, 2, 3, 4}, 2, 0)
	assert.Error(t, err, "short destination")
}

func TestDetectFlatline(t *testing.T) {
	level := func(v float64, n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	assert.True(t, DetectFlatline(level(0.1, 128), 0.1, 0.001))
	assert.True(t, DetectFlatline(level(0.1009, 128), 0.1, 0.001))
	assert.True(t, DetectFlatline(level(-0.1, 128), -0.1, 0.001))
	assert.False(t, DetectFlatline(level(0.102, 128), 0.1, 0.001))
	assert.False(t, DetectFlatline(level(0.1, 128), -0.1, 0.001))
	assert.False(t, DetectFlatline(nil, 0.1, 0.001))

	// One outlier breaks the run.
	samples := level(0.1, 128)
	samples[64] = 0.2
	assert.False(t, DetectFlatline(samples, 0.1, 0.001))
}

func TestDetectFallingEdge(t *testing.T) {
	samples := []float64{0.1, 0.1, 0.1, -0.1, -0.1}
	assert.Equal(t, 3, DetectFallingEdge(samples))

	assert.Equal(t, 0, DetectFallingEdge([]float64{-0.1, 0.1}))
	assert.Equal(t, -1, DetectFallingEdge([]float64{0.1, 0.1, 0.0}))
	assert.Equal(t, -1, DetectFallingEdge(nil))
}
