// Package dsp implements the signal model used by the loopback tests: sine
// mixture synthesis for playback, windowed FFT detection for capture, and
// the flatline amplitude and falling-edge detectors.
package dsp

import (
	"fmt"
	"math"
)

// maxFrequencies bounds the number of sines mixed into one channel.
const maxFrequencies = 8

type tone struct {
	freq   int
	period []float64
	offset int
}

// Signal is a synthesized per-channel sine mixture. Frequencies are added
// with AddFrequency, the period tables are built once with Synthesize, and
// Fill then produces interleaved playback windows. Detect checks a received
// mono sequence for exactly the frequencies assigned to one channel.
type Signal struct {
	channels int
	rate     int
	tones    [][]tone // indexed by channel
}

// NewSignal creates a signal model for the given channel count and
// sampling rate.
func NewSignal(channels, rate int) *Signal {
	return &Signal{
		channels: channels,
		rate:     rate,
		tones:    make([][]tone, channels),
	}
}

// AddFrequency assigns a sine of the given frequency (Hz) to a channel.
// Frequencies above the Nyquist limit are rejected so callers can prune
// tones that cannot be represented at the current rate. The frequency is
// clipped to an integer divisor of the sampling rate so that a single
// period table can be cycled during Fill.
func (s *Signal) AddFrequency(freq, channel int) error {
	if channel < 0 || channel >= s.channels {
		return fmt.Errorf("channel %d out of range", channel)
	}
	if len(s.tones[channel]) == maxFrequencies {
		return fmt.Errorf("channel %d already has %d frequencies", channel, maxFrequencies)
	}
	if freq > s.rate/2 {
		return fmt.Errorf("frequency %d Hz exceeds the Nyquist limit at %d Hz", freq, s.rate)
	}

	freq = s.rate / (s.rate / freq)
	s.tones[channel] = append(s.tones[channel], tone{freq: freq})
	return nil
}

// Frequencies returns the effective frequencies assigned to a channel,
// after Nyquist pruning and rate clipping.
func (s *Signal) Frequencies(channel int) []int {
	out := make([]int, len(s.tones[channel]))
	for i, t := range s.tones[channel] {
		out[i] = t.freq
	}
	return out
}

// Synthesize builds the per-tone period tables. Each channel's tones share
// the channel's amplitude budget so the mixture stays within [-1, 1].
func (s *Signal) Synthesize() {
	for c := range s.tones {
		n := len(s.tones[c])
		for i := range s.tones[c] {
			t := &s.tones[c][i]
			frames := s.rate / t.freq
			period := make([]float64, frames)
			for j := 0; j < frames; j++ {
				period[j] = math.Sin(2*math.Pi*float64(t.freq)/float64(s.rate)*float64(j)) / float64(n)
			}
			t.period = period
			t.offset = 0
		}
	}
}

// Fill writes frames interleaved samples per channel into buf, which must
// hold at least frames*channels values. Tone phases persist across calls so
// consecutive windows form a continuous signal.
func (s *Signal) Fill(buf []float64, frames int) {
	for i := 0; i < frames*s.channels; i++ {
		buf[i] = 0
	}

	for c := range s.tones {
		for i := range s.tones[c] {
			t := &s.tones[c][i]
			for j := 0; j < frames; j++ {
				buf[j*s.channels+c] += t.period[t.offset]
				t.offset = (t.offset + 1) % len(t.period)
			}
		}
	}
}

// Detect reports whether mono contains the frequencies assigned to channel,
// and only those. The samples are transformed with a radix-2 FFT (len(mono)
// must be a power of two) and the bin powers are scanned for local maxima
// above half of the strongest peak; every expected frequency must produce
// such a peak and any unexpected peak fails the detection.
func (s *Signal) Detect(rate, channel int, mono []float64) bool {
	if len(mono) == 0 {
		return false
	}

	// Allowed error due to the FFT bin width.
	accuracy := rate / len(mono)

	bins := spectrum(mono)

	max := 0.0
	for _, p := range bins {
		if p > max {
			max = p
		}
	}
	if max == 0 {
		return false
	}

	expected := s.tones[channel]
	detected := make([]bool, len(expected))

	threshold := max / 2
	success := true
	above := false
	localMax := 0.0
	localMaxFreq := -1
	for i, p := range bins {
		freq := rate * i / len(mono)

		if p > threshold {
			above = true
		}
		if !above {
			continue
		}

		// The peak ended: decide whether its center frequency was one
		// we generated.
		if p < threshold {
			found := false
			for j := range expected {
				if expected[j].freq > localMaxFreq-accuracy &&
					expected[j].freq < localMaxFreq+accuracy {
					detected[j] = true
					found = true
					break
				}
			}
			if !found {
				success = false
			}

			above = false
			localMax = 0
			localMaxFreq = -1
		}

		if p > localMax {
			localMax = p
			localMaxFreq = freq
		}
	}

	for _, d := range detected {
		if !d {
			success = false
		}
	}
	return success
}
