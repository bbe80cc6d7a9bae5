package dsp

import "math"

// spectrum computes the magnitude of each frequency bin of samples using an
// iterative radix-2 Cooley-Tukey transform. len(samples) must be a power of
// two; the result has len(samples)/2+1 entries, bin i covering the frequency
// i*rate/len(samples).
func spectrum(samples []float64) []float64 {
	n := len(samples)
	if n == 0 || n&(n-1) != 0 {
		panic("dsp: spectrum length must be a power of two")
	}

	re := make([]float64, n)
	im := make([]float64, n)

	// Bit-reversal permutation.
	for i, j := 0, 0; i < n; i++ {
		if i < j {
			re[i], re[j] = samples[j], samples[i]
		} else if i == j {
			re[i] = samples[i]
		}
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				wr, wi := math.Cos(step*float64(k)), math.Sin(step*float64(k))
				i, j := start+k, start+k+half
				tr := wr*re[j] - wi*im[j]
				ti := wr*im[j] + wi*re[j]
				re[j], im[j] = re[i]-tr, im[i]-ti
				re[i], im[i] = re[i]+tr, im[i]+ti
			}
		}
	}

	bins := make([]float64, n/2+1)
	for i := range bins {
		bins[i] = math.Hypot(re[i], im[i])
	}
	return bins
}
