package loopback

import (
	"audioloop/internal/dsp"
)

func (s *State) fillFlatline(buf []float64, frames int) bool {
	level := FlatlineAmplitude
	if !s.positive.Load() {
		level = -FlatlineAmplitude
	}
	for i := range buf[:frames*s.playback.Channels] {
		buf[i] = level
	}
	return s.run.Load()
}

// TestFlatline plays a constant positive level, then a constant negative
// one, and checks that the amplitude of both is correct and that every
// channel switches sign at the same sample, i.e. that the channels are
// time-aligned through the loopback path.
func (s *State) TestFlatline() (bool, error) {
	s.dev.RegisterFillCallback(s.fillFlatline, PlaybackSamples)

	// Start with the positive level.
	s.positive.Store(true)

	if err := s.start("flatline"); err != nil {
		return false, err
	}

	fallingEdges := make([]int, s.playback.Channels)
	for i := range fallingEdges {
		fallingEdges[i] = -1
	}

	var (
		runErr     error
		channel    []float64
		ampSuccess bool
	)
	streak := 0
	for !ampSuccess && s.elapsedMS < AudioTimeoutMS {
		page, err := s.receive()
		if err != nil {
			runErr = err
			break
		}

		s.debugf("detecting audio signal, t=%d msec", s.elapsedMS)

		perChannel := len(page) / s.capture.Channels
		if cap(channel) < perChannel {
			channel = make([]float64, perChannel)
		}

		for i := 0; i < s.playback.Channels; i++ {
			captureChan := s.captureFor[i]
			s.debugf("processing channel %d (captured as channel %d)", i, captureChan)

			n, err := dsp.ExtractChannel(channel[:perChannel], page, s.capture.Channels, captureChan)
			if err != nil {
				runErr = err
				break
			}
			mono := channel[:n]

			expected := FlatlineAmplitude
			if !s.positive.Load() {
				expected = -FlatlineAmplitude
			}
			if dsp.DetectFlatline(mono, expected, FlatlineAmplitudeAccuracy) {
				s.debugf("flatline amplitude detected on channel %d", i)
				streak++
			} else {
				streak = 0
			}

			// While the signal is negative, record where each channel
			// first crosses zero. The index is global across the whole
			// run; later pages must not overwrite it.
			if j := dsp.DetectFallingEdge(mono); j >= 0 && !s.positive.Load() && fallingEdges[i] < 0 {
				fallingEdges[i] = perChannel*(s.recvPages-1) + j
			}
		}
		if runErr != nil {
			break
		}

		ampSuccess = streak == MinStreak*s.playback.Channels

		if ampSuccess && s.positive.Load() {
			// The positive level is confirmed; flip to the negative one
			// and detect it from scratch.
			s.positive.Store(false)
			ampSuccess = false
			streak = 0
			s.debugf("switching to negative square wave")
		}
	}

	// Compare every channel's falling edge against channel 0.
	alignSuccess := true
	for i, edge := range fallingEdges {
		if edge < 0 {
			s.warnf("falling edge not detected for channel %d", i)
			alignSuccess = false
			continue
		}
		if abs(fallingEdges[0]-edge) > FlatlineAlignAccuracy {
			s.warnf("channel alignment mismatch: channel 0 has a falling edge at index %d while channel %d has index %d",
				fallingEdges[0], i, edge)
			alignSuccess = false
		}
	}

	success := ampSuccess && alignSuccess
	if err := s.stop(success); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return false, runErr
	}
	return success, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
