package loopback

import (
	"errors"
	"math"
	"time"

	"audioloop/internal/dsp"
	"audioloop/internal/fixture"
	"audioloop/internal/format"
	"audioloop/internal/playback"
)

// sampleScale converts normalized fake-fixture samples to S32_LE. Slightly
// below full scale so a sample of exactly 1.0 cannot overflow.
const sampleScale = float64(math.MaxInt32 - 256)

// fakeDevice is a playback device whose Run loop polls the fill callback
// with an empty window. The audio the fixture "captures" is synthesized by
// fakeFixture instead, so page content stays deterministic for the
// orchestration loop.
type fakeDevice struct {
	opened bool

	fmt      format.Format
	channels int
	rate     int

	fill   playback.FillFunc
	window int

	runs   int
	runErr error
}

func (d *fakeDevice) Open(string) error { d.opened = true; return nil }

func (d *fakeDevice) TestConfiguration(format.Format, int, int) bool { return true }

func (d *fakeDevice) Configure(f format.Format, channels, rate int) error {
	d.fmt = f
	d.channels = channels
	d.rate = rate
	return nil
}

func (d *fakeDevice) RegisterFillCallback(fill playback.FillFunc, windowFrames int) {
	d.fill = fill
	d.window = windowFrames
}

func (d *fakeDevice) Run() error {
	d.runs++
	if d.fill == nil {
		return errors.New("fake device: no fill callback")
	}
	for d.fill(nil, 0) {
		time.Sleep(time.Millisecond)
	}
	return d.runErr
}

func (d *fakeDevice) Close() error { d.opened = false; return nil }

// fakeFixture synthesizes capture pages synchronously inside
// StreamReceive. wire maps each capture channel to the playback channel
// carried on it (-1 for silence); mapping is what ChannelMapping reports,
// which the tests may deliberately diverge from wire.
type fakeFixture struct {
	rate       int // reported by AudioFormat; 0 = cannot report
	channels   int // reported by AudioFormat
	pbChannels int
	mapping    []int
	wire       []int
	source     func(buf []float64, frames int)

	supported bool
	frame     *fixture.RawInfoFrame
	frameErr  error

	startCaptureErr error
	streamStartErr  error
	receiveErr      error
	receiveErrAt    int // 1-based page index the receive error fires at

	startCaptureCalls int
	stopCaptureCalls  int
	streamStartCalls  int
	streamStopCalls   int
	pages             int
}

// newFakeFixture wires channels capture channels one-to-one to as many
// playback channels, capturing at 48 kHz.
func newFakeFixture(channels int) *fakeFixture {
	wire := make([]int, channels)
	for i := range wire {
		wire[i] = i
	}
	return &fakeFixture{
		rate:       48000,
		channels:   channels,
		pbChannels: channels,
		mapping:    append([]int(nil), wire...),
		wire:       wire,
	}
}

func (f *fakeFixture) StartCapture(int, bool) error {
	f.startCaptureCalls++
	return f.startCaptureErr
}

func (f *fakeFixture) StopCapture(int) (*fixture.AudioFile, error) {
	f.stopCaptureCalls++
	return nil, nil
}

func (f *fakeFixture) AudioFormat(int) (int, int, error) {
	return f.rate, f.channels, nil
}

func (f *fakeFixture) ChannelMapping(int) ([]int, error) {
	return f.mapping, nil
}

func (f *fakeFixture) SupportsInfoFrames() bool { return f.supported }

func (f *fakeFixture) LastInfoFrame(int, fixture.InfoFrameKind) (*fixture.RawInfoFrame, error) {
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	if f.frame == nil {
		return nil, fixture.ErrNoInfoFrame
	}
	return f.frame, nil
}

func (f *fakeFixture) StreamStart(fixture.StreamMode) error {
	f.streamStartCalls++
	return f.streamStartErr
}

func (f *fakeFixture) StreamReceive() ([]int32, error) {
	f.pages++
	if f.receiveErr != nil && f.pages >= f.receiveErrAt {
		return nil, f.receiveErr
	}

	pb := make([]float64, fixture.PageSamples*f.pbChannels)
	if f.source != nil {
		f.source(pb, fixture.PageSamples)
	}

	page := make([]int32, fixture.PageSamples*len(f.wire))
	for i := 0; i < fixture.PageSamples; i++ {
		for c, src := range f.wire {
			var v float64
			if src >= 0 {
				v = pb[i*f.pbChannels+src]
			}
			page[i*len(f.wire)+c] = int32(v * sampleScale)
		}
	}
	return page, nil
}

func (f *fakeFixture) StreamStop() error {
	f.streamStopCalls++
	return nil
}

// frequencySource synthesizes the same per-channel sine mixture the
// frequency test plays, with independent phase state.
func frequencySource(channels, rate int) func([]float64, int) {
	sig := dsp.NewSignal(channels, rate)
	step := channelStep(rate)
	for _, freq := range testFrequencies {
		for j := 0; j < channels; j++ {
			_ = sig.AddFrequency(freq+j*step, j)
		}
	}
	sig.Synthesize()
	return func(buf []float64, frames int) {
		sig.Fill(buf, frames)
	}
}
