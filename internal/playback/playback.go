// Package playback drives the local audio device that feeds the display
// link. Two backends exist: direct ALSA hardware access (the usual CI
// path) and PortAudio (hosts without raw device access).
package playback

import (
	"fmt"

	"audioloop/internal/format"
)

// FillFunc produces the next window of playback audio. buf receives
// frames interleaved normalized samples per channel; returning false stops
// the device loop.
type FillFunc func(buf []float64, frames int) bool

// Device is a playback audio device. The expected call sequence per test
// combination is Open, TestConfiguration/Configure, RegisterFillCallback,
// Run (blocking, usually on its own goroutine), Close.
type Device interface {
	// Open binds the device by name ("hw:0,0" for ALSA, a device name
	// or "" for PortAudio).
	Open(name string) error
	// TestConfiguration reports whether the device supports the
	// combination without changing device state.
	TestConfiguration(f format.Format, channels, rate int) bool
	// Configure fixes the stream format for the next Run.
	Configure(f format.Format, channels, rate int) error
	// RegisterFillCallback installs the audio source. windowFrames is
	// the number of frames requested per callback.
	RegisterFillCallback(fill FillFunc, windowFrames int)
	// Run streams audio until the fill callback returns false.
	Run() error
	// Close releases the device.
	Close() error
}

// Backend names a playback implementation.
type Backend string

const (
	BackendALSA      Backend = "alsa"
	BackendPortAudio Backend = "portaudio"
)

// New returns a fresh device for the given backend.
func New(b Backend) (Device, error) {
	switch b {
	case BackendALSA:
		return &ALSADevice{}, nil
	case BackendPortAudio:
		return &PortAudioDevice{}, nil
	}
	return nil, fmt.Errorf("unknown playback backend %q", b)
}
