package dsp

import (
	"fmt"
	"math"
)

// ExtractChannel demultiplexes one channel of an interleaved S32_LE buffer
// into dst as normalized float64 samples in [-1, 1]. src length must be a
// multiple of channels; dst must hold len(src)/channels values. It returns
// the number of samples written.
func ExtractChannel(dst []float64, src []int32, channels, channel int) (int, error) {
	if channel < 0 || channel >= channels {
		return 0, fmt.Errorf("channel %d out of range for %d channels", channel, channels)
	}
	if len(src)%channels != 0 {
		return 0, fmt.Errorf("interleaved buffer length %d is not a multiple of %d channels", len(src), channels)
	}
	n := len(src) / channels
	if len(dst) < n {
		return 0, fmt.Errorf("destination too small: need %d samples, have %d", n, len(dst))
	}
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i*channels+channel]) / float64(math.MaxInt32)
	}
	return n, nil
}

// DetectFlatline reports whether every sample of mono lies within
// ±accuracy of the expected constant level.
func DetectFlatline(mono []float64, expected, accuracy float64) bool {
	if len(mono) == 0 {
		return false
	}
	min, max := mono[0], mono[0]
	for _, s := range mono[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min >= expected-accuracy && max <= expected+accuracy
}

// DetectFallingEdge returns the index of the first negative-going sample
// of mono, or -1 when the signal never crosses zero downwards.
func DetectFallingEdge(mono []float64) int {
	for i, s := range mono {
		if s < 0 {
			return i
		}
	}
	return -1
}
