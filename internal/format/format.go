// Package format describes the PCM sample formats the harness plays and
// captures, and converts normalized samples into device byte layouts.
package format

import (
	"fmt"
	"math"
	"strings"
)

// Format identifies a little-endian signed PCM sample format.
type Format int

const (
	S16LE Format = iota
	S24LE
	S32LE
)

// String returns the ALSA-style name of the format.
func (f Format) String() string {
	switch f {
	case S16LE:
		return "S16_LE"
	case S24LE:
		return "S24_LE"
	case S32LE:
		return "S32_LE"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Width returns the number of significant bits per sample.
func (f Format) Width() int {
	switch f {
	case S16LE:
		return 16
	case S24LE:
		return 24
	case S32LE:
		return 32
	}
	return 0
}

// BytesPerSample returns the storage size of one sample. S24_LE samples
// occupy four bytes with the top byte unused.
func (f Format) BytesPerSample() int {
	if f == S16LE {
		return 2
	}
	return 4
}

// Parse maps a config string such as "S16_LE" or "s24" to a Format.
func Parse(s string) (Format, error) {
	switch strings.TrimSuffix(strings.ToUpper(s), "_LE") {
	case "S16":
		return S16LE, nil
	case "S24":
		return S24LE, nil
	case "S32":
		return S32LE, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// ConvertTo encodes normalized float64 samples (in [-1, 1]) into dst as
// interleaved little-endian PCM. dst must hold len(src)*f.BytesPerSample()
// bytes. Out-of-range samples are clipped.
func ConvertTo(dst []byte, src []float64, f Format) error {
	need := len(src) * f.BytesPerSample()
	if len(dst) < need {
		return fmt.Errorf("destination too small: need %d bytes, have %d", need, len(dst))
	}

	switch f {
	case S16LE:
		for i, s := range src {
			v := scale(s, math.MaxInt16)
			dst[2*i] = byte(v)
			dst[2*i+1] = byte(v >> 8)
		}
	case S24LE:
		for i, s := range src {
			v := scale(s, 1<<23-1)
			dst[4*i] = byte(v)
			dst[4*i+1] = byte(v >> 8)
			dst[4*i+2] = byte(v >> 16)
			dst[4*i+3] = 0
		}
	case S32LE:
		for i, s := range src {
			v := scale(s, math.MaxInt32)
			dst[4*i] = byte(v)
			dst[4*i+1] = byte(v >> 8)
			dst[4*i+2] = byte(v >> 16)
			dst[4*i+3] = byte(v >> 24)
		}
	default:
		return fmt.Errorf("cannot convert to format %s", f)
	}
	return nil
}

func scale(s float64, max int32) int32 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int32(math.Round(s * float64(max)))
}
