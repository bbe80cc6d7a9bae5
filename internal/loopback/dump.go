package loopback

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavDump persists the raw captured pages for offline analysis. The file
// is named after the test and the playback configuration so a failing
// combination can be found without cross-referencing logs.
type wavDump struct {
	f    *os.File
	enc  *wav.Encoder
	path string

	channels int
	rate     int
}

func newWavDump(dir, name string, pb, cap StreamInfo) (*wavDump, error) {
	filename := fmt.Sprintf("capture-%s-%s-%dch-%dHz.wav",
		name, pb.Format, pb.Channels, pb.Rate)
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &wavDump{
		f:        f,
		enc:      wav.NewEncoder(f, cap.Rate, 32, cap.Channels, 1),
		path:     path,
		channels: cap.Channels,
		rate:     cap.Rate,
	}, nil
}

func (d *wavDump) write(page []int32) error {
	data := make([]int, len(page))
	for i, s := range page {
		data[i] = int(s)
	}
	return d.enc.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: d.channels,
			SampleRate:  d.rate,
		},
		Data:           data,
		SourceBitDepth: 32,
	})
}

// close finalizes the WAV header and removes the file when the run
// succeeded; failed runs keep their dump.
func (d *wavDump) close(success bool) error {
	err := d.enc.Close()
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	if success {
		if rerr := os.Remove(d.path); err == nil {
			err = rerr
		}
	}
	return err
}
