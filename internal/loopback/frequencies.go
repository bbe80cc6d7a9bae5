package loopback

import (
	"fmt"

	"audioloop/internal/dsp"
)

// testFrequencies are the base sine frequencies (Hz) of the frequency
// test. Depending on the sampling rate some of them cannot be represented
// (Nyquist); those are pruned automatically when the signal is built. The
// 80 kHz tone only survives at a 192 kHz rate.
var testFrequencies = []int{300, 600, 1200, 10000, 80000}

// signalState pairs a State with the synthesized signal of the frequency
// test; the fill callback runs on the playback goroutine.
type signalState struct {
	*State
	signal *dsp.Signal
}

func (s *signalState) fill(buf []float64, frames int) bool {
	s.signal.Fill(buf, frames)
	return s.run.Load()
}

// channelStep returns the frequency offset between adjacent channels: two
// FFT bins of the detection window, the minimum distance at which swapped
// or cross-talking channels cannot be mistaken for each other.
func channelStep(rate int) int {
	return 2 * rate / CaptureWindow
}

// TestFrequencies verifies that a distinguishable sine mixture per channel
// survives the loopback path without channel swapping or cross-talk. After
// the verdict it cross-checks the audio InfoFrame; an InfoFrame mismatch
// fails the run as its own named failure.
func (s *State) TestFrequencies() (bool, error) {
	signal := dsp.NewSignal(s.playback.Channels, s.playback.Rate)

	// Each channel gets its own offset from the base frequencies. The
	// capture rate is assumed to equal the playback rate here; that is
	// asserted right after start, the earliest point it is knowable.
	step := channelStep(s.playback.Rate)
	for _, freq := range testFrequencies {
		for j := 0; j < s.playback.Channels; j++ {
			if err := signal.AddFrequency(freq+j*step, j); err != nil {
				s.debugf("pruning %d Hz on channel %d: %v", freq+j*step, j, err)
			}
		}
	}
	signal.Synthesize()

	ss := &signalState{State: s, signal: signal}
	s.dev.RegisterFillCallback(ss.fill, PlaybackSamples)

	if err := s.start("frequencies"); err != nil {
		return false, err
	}

	if s.capture.Rate != s.playback.Rate {
		err := fmt.Errorf("loopback: capture rate (%d Hz) does not match playback rate (%d Hz)",
			s.capture.Rate, s.playback.Rate)
		if stopErr := s.stop(false); stopErr != nil {
			s.warnf("%v", stopErr)
		}
		return false, err
	}

	channel := make([]float64, CaptureWindow)
	window := make([]int32, 0, s.capture.Channels*CaptureWindow)

	var runErr error
	success := false
	streak := 0
	for !success && s.elapsedMS < AudioTimeoutMS {
		page, err := s.receive()
		if err != nil {
			runErr = err
			break
		}

		window = append(window, page...)
		if len(window) < cap(window) {
			continue
		}

		s.debugf("detecting audio signal, t=%d msec", s.elapsedMS)
		for j := 0; j < s.playback.Channels; j++ {
			captureChan := s.captureFor[j]
			s.debugf("processing channel %d (captured as channel %d)", j, captureChan)

			n, err := dsp.ExtractChannel(channel, window, s.capture.Channels, captureChan)
			if err != nil {
				runErr = err
				break
			}

			if signal.Detect(s.capture.Rate, j, channel[:n]) {
				streak++
			} else {
				streak = 0
			}
		}
		if runErr != nil {
			break
		}

		window = window[:0]
		success = streak == MinStreak*s.playback.Channels
	}

	if err := s.stop(success); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return false, runErr
	}

	if err := s.CheckInfoFrame(); err != nil {
		s.warnf("%v", err)
		return false, nil
	}
	return success, nil
}
