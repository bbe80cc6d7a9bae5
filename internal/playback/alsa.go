package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/alsa"

	"audioloop/internal/format"
)

// periodCount is the number of hardware periods in the ALSA ring buffer.
const periodCount = 4

// ALSADevice plays through a raw ALSA hardware PCM. The PCM itself is
// opened inside Run, because the gen2brain/alsa API fixes the hardware
// parameters at open time and the format is only known after Configure.
type ALSADevice struct {
	card   uint
	device uint
	opened bool

	fmt      format.Format
	channels int
	rate     int

	fill   FillFunc
	window int
}

// Open parses an "hw:card,device" name and checks the device exists.
func (d *ALSADevice) Open(name string) error {
	if !strings.HasPrefix(name, "hw:") {
		return fmt.Errorf("alsa: device name %q must have the form hw:card,device", name)
	}
	parts := strings.Split(strings.TrimPrefix(name, "hw:"), ",")
	if len(parts) != 2 {
		return fmt.Errorf("alsa: device name %q must have the form hw:card,device", name)
	}
	card, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return fmt.Errorf("alsa: bad card in %q: %w", name, err)
	}
	dev, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fmt.Errorf("alsa: bad device in %q: %w", name, err)
	}

	d.card = uint(card)
	d.device = uint(dev)
	if _, err := alsa.PcmParamsGet(d.card, d.device, alsa.PCM_OUT); err != nil {
		return fmt.Errorf("alsa: cannot query %q: %w", name, err)
	}
	d.opened = true
	return nil
}

// TestConfiguration checks the combination against the hardware parameter
// ranges without opening the PCM.
func (d *ALSADevice) TestConfiguration(f format.Format, channels, rate int) bool {
	params, err := alsa.PcmParamsGet(d.card, d.device, alsa.PCM_OUT)
	if err != nil {
		return false
	}
	if !params.FormatIsSupported(alsaFormat(f)) {
		return false
	}
	if min, err := params.RangeMin(alsa.SNDRV_PCM_HW_PARAM_CHANNELS); err != nil || uint32(channels) < min {
		return false
	}
	if max, err := params.RangeMax(alsa.SNDRV_PCM_HW_PARAM_CHANNELS); err != nil || uint32(channels) > max {
		return false
	}
	if min, err := params.RangeMin(alsa.SNDRV_PCM_HW_PARAM_RATE); err != nil || uint32(rate) < min {
		return false
	}
	if max, err := params.RangeMax(alsa.SNDRV_PCM_HW_PARAM_RATE); err != nil || uint32(rate) > max {
		return false
	}
	return true
}

// Configure fixes the stream format for the next Run.
func (d *ALSADevice) Configure(f format.Format, channels, rate int) error {
	d.fmt = f
	d.channels = channels
	d.rate = rate
	return nil
}

// RegisterFillCallback installs the audio source.
func (d *ALSADevice) RegisterFillCallback(fill FillFunc, windowFrames int) {
	d.fill = fill
	d.window = windowFrames
}

// Run opens the PCM with the configured parameters and writes windows from
// the fill callback until it returns false.
func (d *ALSADevice) Run() error {
	if !d.opened {
		return errors.New("alsa: device not opened")
	}
	if d.fill == nil || d.window == 0 {
		return errors.New("alsa: no fill callback registered")
	}

	cfg := alsa.Config{
		Channels:    uint32(d.channels),
		Rate:        uint32(d.rate),
		PeriodSize:  uint32(d.window),
		PeriodCount: periodCount,
		Format:      alsaFormat(d.fmt),
	}
	pcm, err := alsa.PcmOpen(d.card, d.device, alsa.PCM_OUT, &cfg)
	if err != nil {
		return fmt.Errorf("alsa: open hw:%d,%d failed: %w", d.card, d.device, err)
	}
	defer pcm.Close()

	samples := make([]float64, d.window*d.channels)
	raw := make([]byte, len(samples)*d.fmt.BytesPerSample())
	for d.fill(samples, d.window) {
		if err := format.ConvertTo(raw, samples, d.fmt); err != nil {
			return err
		}
		if _, err := pcm.Write(raw); err != nil {
			return fmt.Errorf("alsa: write failed: %w", err)
		}
	}
	return nil
}

// Close releases the device binding.
func (d *ALSADevice) Close() error {
	d.opened = false
	return nil
}

func alsaFormat(f format.Format) alsa.PcmFormat {
	switch f {
	case format.S16LE:
		return alsa.SNDRV_PCM_FORMAT_S16_LE
	case format.S24LE:
		return alsa.SNDRV_PCM_FORMAT_S24_LE
	case format.S32LE:
		return alsa.SNDRV_PCM_FORMAT_S32_LE
	}
	return alsa.SNDRV_PCM_FORMAT_INVALID
}
