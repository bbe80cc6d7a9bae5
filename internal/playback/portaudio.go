package playback

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"audioloop/internal/format"
)

// PortAudioDevice plays through PortAudio. The host API converts from
// float32 to whatever the hardware wants, so TestConfiguration only
// validates the channel count and rate; the PCM format always passes.
type PortAudioDevice struct {
	info *portaudio.DeviceInfo

	channels int
	rate     int

	fill   FillFunc
	window int
}

// Open initializes PortAudio and binds an output device by name; an empty
// name selects the default output device.
func (d *PortAudioDevice) Open(name string) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize failed: %w", err)
	}

	if name == "" || name == "default" {
		info, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return fmt.Errorf("portaudio: no default output device: %w", err)
		}
		d.info = info
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("portaudio: failed to list devices: %w", err)
	}
	for _, info := range devices {
		if info.Name == name && info.MaxOutputChannels > 0 {
			d.info = info
			return nil
		}
	}
	return fmt.Errorf("portaudio: no output device named %q", name)
}

// TestConfiguration checks the combination against the host API.
func (d *PortAudioDevice) TestConfiguration(_ format.Format, channels, rate int) bool {
	if d.info == nil || channels > d.info.MaxOutputChannels {
		return false
	}
	params := portaudio.HighLatencyParameters(nil, d.info)
	params.Output.Channels = channels
	params.SampleRate = float64(rate)
	return portaudio.IsFormatSupported(params, []float32(nil)) == nil
}

// Configure fixes the stream parameters for the next Run.
func (d *PortAudioDevice) Configure(_ format.Format, channels, rate int) error {
	d.channels = channels
	d.rate = rate
	return nil
}

// RegisterFillCallback installs the audio source.
func (d *PortAudioDevice) RegisterFillCallback(fill FillFunc, windowFrames int) {
	d.fill = fill
	d.window = windowFrames
}

// Run streams audio using blocking writes until the fill callback returns
// false.
func (d *PortAudioDevice) Run() error {
	if d.info == nil {
		return errors.New("portaudio: device not opened")
	}
	if d.fill == nil || d.window == 0 {
		return errors.New("portaudio: no fill callback registered")
	}

	out := make([]float32, d.window*d.channels)
	params := portaudio.HighLatencyParameters(nil, d.info)
	params.Output.Channels = d.channels
	params.SampleRate = float64(d.rate)
	params.FramesPerBuffer = d.window

	stream, err := portaudio.OpenStream(params, &out)
	if err != nil {
		return fmt.Errorf("portaudio: open stream failed: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start failed: %w", err)
	}
	defer stream.Stop()

	samples := make([]float64, len(out))
	for d.fill(samples, d.window) {
		for i, s := range samples {
			out[i] = float32(s)
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write failed: %w", err)
		}
	}
	return nil
}

// Close releases the device and terminates PortAudio.
func (d *PortAudioDevice) Close() error {
	d.info = nil
	return portaudio.Terminate()
}

// DeviceInfo describes an available output device.
type DeviceInfo struct {
	Index      int
	Name       string
	SampleRate float64
	Channels   int
	IsDefault  bool
}

// String returns a human-readable representation of the device.
func (d DeviceInfo) String() string {
	suffix := ""
	if d.IsDefault {
		suffix = " (default)"
	}
	return fmt.Sprintf("[%d] %s - %dHz, %d ch%s",
		d.Index, d.Name, int(d.SampleRate), d.Channels, suffix)
}

// ListOutputDevices returns the PortAudio output devices on this host.
func ListOutputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	defaultDevice, _ := portaudio.DefaultOutputDevice()
	var defaultName string
	if defaultDevice != nil {
		defaultName = defaultDevice.Name
	}

	var result []DeviceInfo
	for i, info := range devices {
		if info.MaxOutputChannels > 0 {
			result = append(result, DeviceInfo{
				Index:      i,
				Name:       info.Name,
				SampleRate: info.DefaultSampleRate,
				Channels:   info.MaxOutputChannels,
				IsDefault:  info.Name == defaultName,
			})
		}
	}
	return result, nil
}
