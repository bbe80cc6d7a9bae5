// Package loopback implements the audio loopback verification pipeline:
// the per-run orchestration state, the frequency and flatline tests, and
// the InfoFrame cross-check.
package loopback

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"audioloop/internal/fixture"
	"audioloop/internal/format"
	"audioloop/internal/playback"
)

const (
	// PlaybackSamples is the number of frames requested per playback
	// fill callback.
	PlaybackSamples = 1024

	// CaptureWindow is the number of samples per channel accumulated
	// before running signal detection. It must be a multiple of the
	// fixture page size and long enough to contain a full period of the
	// lowest test frequency at the lowest supported rate.
	CaptureWindow = 2048

	// AudioTimeoutMS bounds each detection loop. The elapsed time is
	// derived from the received data volume, not a wall clock, so a
	// briefly stalled stream does not fail spuriously.
	AudioTimeoutMS = 2000

	// MinStreak is the number of consecutive fully matching windows
	// required before a detection counts. A single match could be a
	// coincidental correlation.
	MinStreak = 3

	// FlatlineAmplitude is the normalized constant level played during
	// the flatline test.
	FlatlineAmplitude = 0.1
	// FlatlineAmplitudeAccuracy is the tolerated deviation from the
	// expected flatline level.
	FlatlineAmplitudeAccuracy = 0.001
	// FlatlineAlignAccuracy is the tolerated falling-edge index skew
	// between channels, in samples.
	FlatlineAlignAccuracy = 0
)

// Fixture is the slice of the capture fixture client the orchestrator
// uses; *fixture.Client implements it.
type Fixture interface {
	StartCapture(port int, analogOnly bool) error
	StopCapture(port int) (*fixture.AudioFile, error)
	AudioFormat(port int) (rate, channels int, err error)
	ChannelMapping(port int) ([]int, error)
	SupportsInfoFrames() bool
	LastInfoFrame(port int, kind fixture.InfoFrameKind) (*fixture.RawInfoFrame, error)
	StreamStart(mode fixture.StreamMode) error
	StreamReceive() ([]int32, error)
	StreamStop() error
}

// StreamInfo describes one side of the loopback path.
type StreamInfo struct {
	Format   format.Format
	Channels int
	Rate     int
}

// Options configures a State.
type Options struct {
	Device  playback.Device
	Fixture Fixture
	Port    int

	Format   format.Format
	Channels int
	Rate     int

	// DumpDir, if set, enables the raw-audio diagnostic dump. The dump
	// is discarded when the test passes and retained when it fails.
	DumpDir string

	Debug  bool
	Stderr io.Writer
}

// State is the orchestration record for one playback/capture test run.
// Exactly one State is live at a time; the playback goroutine it spawns is
// joined before the next run starts.
type State struct {
	dev  playback.Device
	fix  Fixture
	port int

	playback StreamInfo
	// capture is discovered only after playback has begun; it holds the
	// zero value until start completes.
	capture StreamInfo
	// captureFor maps each playback channel to the capture channel it
	// arrives on.
	captureFor []int

	name      string
	recvPages int
	elapsedMS int

	// run is the only datum shared with the playback goroutine.
	run      atomic.Bool
	positive atomic.Bool
	wg       sync.WaitGroup
	// devErr is written by the playback goroutine before wg.Done and
	// read only after wg.Wait.
	devErr error

	dump    *wavDump
	dumpDir string

	debug  bool
	stderr io.Writer
}

// NewState prepares a run for one format/channel/rate combination. The
// device must already be open; it is configured here.
func NewState(opts Options) (*State, error) {
	if opts.Device == nil || opts.Fixture == nil {
		return nil, fmt.Errorf("loopback: device and fixture are required")
	}
	if opts.Channels < 1 || opts.Rate < 1 {
		return nil, fmt.Errorf("loopback: invalid combination: %d channels at %d Hz", opts.Channels, opts.Rate)
	}
	if err := opts.Device.Configure(opts.Format, opts.Channels, opts.Rate); err != nil {
		return nil, fmt.Errorf("loopback: device configuration failed: %w", err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	return &State{
		dev:  opts.Device,
		fix:  opts.Fixture,
		port: opts.Port,
		playback: StreamInfo{
			Format:   opts.Format,
			Channels: opts.Channels,
			Rate:     opts.Rate,
		},
		dumpDir: opts.DumpDir,
		debug:   opts.Debug,
		stderr:  stderr,
	}, nil
}

func (s *State) debugf(msg string, args ...any) {
	if s.debug {
		fmt.Fprintf(s.stderr, "[DEBUG] "+msg+"\n", args...)
	}
}

func (s *State) warnf(msg string, args ...any) {
	fmt.Fprintf(s.stderr, "[WARN] "+msg+"\n", args...)
}

// start brings the run into its RUNNING phase: capture on, stream on,
// playback goroutine spawned, capture format and channel mapping
// discovered. On error everything already started is torn down.
func (s *State) start(name string) error {
	s.name = name
	s.recvPages = 0
	s.elapsedMS = 0

	s.debugf("starting %s test with playback format %s, sampling rate %d Hz and %d channels",
		name, s.playback.Format, s.playback.Rate, s.playback.Channels)

	if err := s.fix.StartCapture(s.port, false); err != nil {
		return fmt.Errorf("loopback: starting capture failed: %w", err)
	}
	if err := s.fix.StreamStart(fixture.StreamStopWhenOverflow); err != nil {
		_, _ = s.fix.StopCapture(s.port)
		return fmt.Errorf("loopback: starting audio stream failed: %w", err)
	}

	s.run.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.devErr = s.dev.Run()
	}()

	// The fixture captures in S32_LE only; rate and channel count are
	// knowable only now that playback has begun.
	s.capture.Format = format.S32LE
	rate, channels, err := s.fix.AudioFormat(s.port)
	if err != nil {
		s.teardown()
		return fmt.Errorf("loopback: querying capture format failed: %w", err)
	}
	if rate == 0 {
		s.debugf("fixture does not report the capture sampling rate, assuming %d Hz", s.playback.Rate)
		rate = s.playback.Rate
	}
	s.capture.Rate = rate
	s.capture.Channels = channels

	mapping, err := s.fix.ChannelMapping(s.port)
	if err != nil {
		s.teardown()
		return fmt.Errorf("loopback: querying channel mapping failed: %w", err)
	}
	s.captureFor, err = resolveMapping(mapping, s.playback.Channels)
	if err != nil {
		s.teardown()
		return fmt.Errorf("loopback: cannot capture all playback channels: %w", err)
	}

	if s.dumpDir != "" {
		dump, err := newWavDump(s.dumpDir, name, s.playback, s.capture)
		if err != nil {
			s.teardown()
			return fmt.Errorf("loopback: creating audio dump failed: %w", err)
		}
		s.debugf("dumping captured audio to %s", dump.path)
		s.dump = dump
	}
	return nil
}

// resolveMapping inverts the fixture's capture-channel-to-source mapping
// into a playback-channel-to-capture-channel table. Every playback channel
// must appear exactly once among valid capture entries.
func resolveMapping(mapping []int, playbackChannels int) ([]int, error) {
	captureFor := make([]int, playbackChannels)
	for j := range captureFor {
		captureFor[j] = -1
	}
	for c, p := range mapping {
		if p < 0 || p >= playbackChannels {
			continue
		}
		if captureFor[p] != -1 {
			return nil, fmt.Errorf("playback channel %d is captured twice (channels %d and %d)",
				p, captureFor[p], c)
		}
		captureFor[p] = c
	}
	for j, c := range captureFor {
		if c < 0 {
			return nil, fmt.Errorf("playback channel %d is not captured", j)
		}
	}
	return captureFor, nil
}

// receive pulls the next stream page and updates the data-volume-derived
// elapsed time. Pages are consumed strictly in delivery order; the streak
// and edge logic downstream is positionally sensitive.
func (s *State) receive() ([]int32, error) {
	page, err := s.fix.StreamReceive()
	if err != nil {
		return nil, err
	}
	if len(page)%s.capture.Channels != 0 {
		return nil, fmt.Errorf("loopback: page of %d samples is not a multiple of %d channels",
			len(page), s.capture.Channels)
	}

	s.elapsedMS = int(float64(s.recvPages) * float64(len(page)) /
		float64(s.capture.Channels) / float64(s.capture.Rate) * 1000)
	s.recvPages++

	if s.dump != nil {
		if err := s.dump.write(page); err != nil {
			return nil, fmt.Errorf("loopback: writing audio dump failed: %w", err)
		}
	}
	return page, nil
}

// teardown releases everything start acquired, without a verdict. Used on
// mid-start failures.
func (s *State) teardown() {
	s.run.Store(false)
	s.wg.Wait()
	_ = s.fix.StreamStop()
	_, _ = s.fix.StopCapture(s.port)
	if s.dump != nil {
		_ = s.dump.close(false)
		s.dump = nil
	}
}

// stop ends the run unconditionally: playback goroutine joined, stream and
// capture stopped, dump closed (discarded on success, retained on
// failure), and the verdict logged.
func (s *State) stop(success bool) error {
	s.debugf("stopping audio playback")
	s.run.Store(false)
	s.wg.Wait()

	var firstErr error
	if s.devErr != nil {
		firstErr = fmt.Errorf("loopback: playback device failed: %w", s.devErr)
	}

	if err := s.fix.StreamStop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("loopback: stopping audio stream failed: %w", err)
	}

	audioFile, err := s.fix.StopCapture(s.port)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("loopback: stopping capture failed: %w", err)
	}
	if audioFile != nil {
		s.debugf("fixture kept its own recording in %s", audioFile.Path)
	}

	if s.dump != nil {
		retained := s.dump.path
		if err := s.dump.close(success); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("loopback: closing audio dump failed: %w", err)
		}
		if !success {
			s.debugf("retained captured audio in %s", retained)
		}
		s.dump = nil
	}

	verdict := "ALL GREEN"
	if !success {
		verdict = "FAILED"
	}
	line := fmt.Sprintf("audio %s test result for format %s, sampling rate %d Hz and %d channels: %s",
		s.name, s.playback.Format, s.playback.Rate, s.playback.Channels, verdict)
	if success {
		s.debugf("%s", line)
	} else {
		s.warnf("%s", line)
	}
	return firstErr
}

// Pages reports how many stream pages the run has consumed.
func (s *State) Pages() int {
	return s.recvPages
}

// ElapsedMS reports the data-volume-derived elapsed time of the run.
func (s *State) ElapsedMS() int {
	return s.elapsedMS
}
