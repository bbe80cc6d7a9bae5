package loopback

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audioloop/internal/format"
)

func newTestState(t *testing.T, fix *fakeFixture, mutate func(*Options)) (*State, *fakeDevice, *bytes.Buffer) {
	t.Helper()

	dev := &fakeDevice{}
	stderr := &bytes.Buffer{}
	opts := Options{
		Device:   dev,
		Fixture:  fix,
		Format:   format.S16LE,
		Channels: fix.pbChannels,
		Rate:     48000,
		Debug:    true,
		Stderr:   stderr,
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := NewState(opts)
	require.NoError(t, err)
	return s, dev, stderr
}

func TestNewStateValidation(t *testing.T) {
	fix := newFakeFixture(2)

	_, err := NewState(Options{Fixture: fix, Channels: 2, Rate: 48000})
	assert.Error(t, err, "device required")

	_, err = NewState(Options{Device: &fakeDevice{}, Channels: 2, Rate: 48000})
	assert.Error(t, err, "fixture required")

	_, err = NewState(Options{Device: &fakeDevice{}, Fixture: fix, Channels: 0, Rate: 48000})
	assert.Error(t, err, "channel count")

	_, err = NewState(Options{Device: &fakeDevice{}, Fixture: fix, Channels: 2, Rate: 0})
	assert.Error(t, err, "rate")
}

func TestNewStateConfiguresDevice(t *testing.T) {
	fix := newFakeFixture(2)
	_, dev, _ := newTestState(t, fix, func(o *Options) {
		o.Format = format.S24LE
		o.Rate = 44100
	})

	assert.Equal(t, format.S24LE, dev.fmt)
	assert.Equal(t, 2, dev.channels)
	assert.Equal(t, 44100, dev.rate)
}

func TestResolveMapping(t *testing.T) {
	// Eight capture channels, stereo playback arriving on the first two.
	captureFor, err := resolveMapping([]int{0, 1, -1, -1, -1, -1, -1, -1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, captureFor)

	// Crossed wiring is fine as long as every playback channel arrives.
	captureFor, err = resolveMapping([]int{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, captureFor)
}

func TestResolveMappingMissingChannel(t *testing.T) {
	_, err := resolveMapping([]int{0, -1}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 1 is not captured")
}

func TestResolveMappingDuplicatedChannel(t *testing.T) {
	_, err := resolveMapping([]int{0, 0}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "captured twice")
}

func TestStartCaptureFailureLeavesNothingRunning(t *testing.T) {
	fix := newFakeFixture(2)
	fix.startCaptureErr = errors.New("port not plugged")
	s, dev, _ := newTestState(t, fix, nil)

	_, err := s.TestFrequencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port not plugged")

	assert.Equal(t, 0, fix.streamStartCalls)
	assert.Equal(t, 0, dev.runs)
}

func TestStreamStartFailureStopsCapture(t *testing.T) {
	fix := newFakeFixture(2)
	fix.streamStartErr = errors.New("stream refused")
	s, _, _ := newTestState(t, fix, nil)

	_, err := s.TestFrequencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream refused")
	assert.Equal(t, 1, fix.stopCaptureCalls)
}

func TestMappingFailureShutsDownCleanly(t *testing.T) {
	fix := newFakeFixture(2)
	fix.mapping = []int{0, -1} // playback channel 1 never arrives

	s, _, _ := newTestState(t, fix, nil)

	_, err := s.TestFrequencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot capture all playback channels")

	// The mid-start failure must still unwind capture and stream.
	assert.Equal(t, 1, fix.streamStopCalls)
	assert.Equal(t, 1, fix.stopCaptureCalls)
}

func TestReceiveRejectsRaggedPages(t *testing.T) {
	fix := newFakeFixture(2)
	fix.channels = 3 // page length will not divide by the reported count
	fix.source = frequencySource(2, 48000)

	s, _, _ := newTestState(t, fix, nil)

	_, err := s.TestFrequencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a multiple")
}

func TestReceiveErrorAbortsRun(t *testing.T) {
	fix := newFakeFixture(2)
	fix.source = frequencySource(2, 48000)
	fix.receiveErr = errors.New("stream overflow")
	fix.receiveErrAt = 20

	s, _, _ := newTestState(t, fix, nil)

	ok, err := s.TestFrequencies()
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "stream overflow")

	// The run still shuts the fixture down.
	assert.Equal(t, 1, fix.streamStopCalls)
	assert.Equal(t, 1, fix.stopCaptureCalls)
}

func TestDeviceErrorSurfacesAtStop(t *testing.T) {
	fix := newFakeFixture(2)
	fix.source = frequencySource(2, 48000)

	s, dev, _ := newTestState(t, fix, nil)
	dev.runErr = errors.New("underrun")

	ok, err := s.TestFrequencies()
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "playback device failed")
	assert.Contains(t, err.Error(), "underrun")
}
