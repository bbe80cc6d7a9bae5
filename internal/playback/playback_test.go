package playback

import (
	"testing"

	"github.com/gen2brain/alsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audioloop/internal/format"
)

func TestNewBackend(t *testing.T) {
	dev, err := New(BackendALSA)
	require.NoError(t, err)
	assert.IsType(t, &ALSADevice{}, dev)

	dev, err = New(BackendPortAudio)
	require.NoError(t, err)
	assert.IsType(t, &PortAudioDevice{}, dev)

	_, err = New(Backend("jack"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jack")
}

func TestALSAOpenRejectsBadNames(t *testing.T) {
	d := &ALSADevice{}

	for _, name := range []string{"", "default", "hw:0", "hw:0,0,0", "hw:x,0", "hw:0,y"} {
		assert.Error(t, d.Open(name), "name %q", name)
	}
}

func TestALSARunWithoutOpen(t *testing.T) {
	d := &ALSADevice{}
	d.RegisterFillCallback(func([]float64, int) bool { return false }, 1024)

	err := d.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not opened")
}

func TestALSARunWithoutFill(t *testing.T) {
	d := &ALSADevice{opened: true}

	err := d.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fill callback")
}

func TestALSAFormatMapping(t *testing.T) {
	assert.Equal(t, alsa.SNDRV_PCM_FORMAT_S16_LE, alsaFormat(format.S16LE))
	assert.Equal(t, alsa.SNDRV_PCM_FORMAT_S24_LE, alsaFormat(format.S24LE))
	assert.Equal(t, alsa.SNDRV_PCM_FORMAT_S32_LE, alsaFormat(format.S32LE))
	assert.Equal(t, alsa.SNDRV_PCM_FORMAT_INVALID, alsaFormat(format.Format(99)))
}

func TestDeviceInfoString(t *testing.T) {
	info := DeviceInfo{Index: 2, Name: "HDMI Output", SampleRate: 48000, Channels: 8}
	assert.Equal(t, "[2] HDMI Output - 48000Hz, 8 ch", info.String())

	info.IsDefault = true
	assert.Equal(t, "[2] HDMI Output - 48000Hz, 8 ch (default)", info.String())
}
